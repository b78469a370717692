package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	caseapi "RoboSupport/backend/go/internal/case_service/api"
	"RoboSupport/backend/go/internal/case_service/consumer"
	"RoboSupport/backend/go/internal/case_service/monitor"
	"RoboSupport/backend/go/internal/case_service/notifier"
	"RoboSupport/backend/go/internal/case_service/portal"
	"RoboSupport/backend/go/internal/case_service/publisher"
	caseservice "RoboSupport/backend/go/internal/case_service/service"
	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/config"
	"RoboSupport/backend/go/internal/database/kafka"
	"RoboSupport/backend/go/internal/database/mongo"
	"RoboSupport/backend/go/internal/database/mysql"
	"RoboSupport/backend/go/internal/database/redis"
	"RoboSupport/backend/go/internal/models"
	userapi "RoboSupport/backend/go/internal/user_service/api"
	userservice "RoboSupport/backend/go/internal/user_service/service"
	userstore "RoboSupport/backend/go/internal/user_service/store"
	"RoboSupport/backend/go/pkg/circuitbreaker"
	httpserver "RoboSupport/backend/go/pkg/http"
	"RoboSupport/backend/go/pkg/httpmiddleware"
	"RoboSupport/backend/go/pkg/logger"
	"RoboSupport/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:          "support_service",
		Short:        "Support case service: submission, monitoring and notification",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger.Init(cfg.Logger.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "backend/go/internal/config/config.yaml", "path to the YAML configuration file")

	if err := cmd.Execute(); err != nil {
		log.Fatalf("support_service: %v", err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	serviceLogger := logger.New("support_service", "", "")

	// Users always live in MySQL.
	db, err := mysql.GetDB(&cfg.Databases.MySQL)
	if err != nil {
		return err
	}
	defer mysql.Close()
	if err := mysql.Migrate(db); err != nil {
		return err
	}
	serviceLogger.Info("Database migration completed")

	checks := map[string]healthCheck{"mysql": mysql.HealthCheck}
	if cfg.Databases.CaseStore == config.CaseStoreMongo {
		checks["mongodb"] = mongo.HealthCheck
	}

	caseStore, closeStore, err := openCaseStore(ctx, cfg, serviceLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	var cache store.StatusCache
	redisClient, err := redis.GetClient(&cfg.Databases.Redis)
	switch {
	case err != nil:
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Redis unavailable, status cache disabled")
	case redisClient != nil:
		cache = store.NewRedisStatusCache(redisClient, cfg.Databases.Redis.TTL())
		checks["redis"] = redis.HealthCheck
		defer redis.Close()
	}

	var events monitor.EventPublisher = publisher.Discard{}
	kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
	switch {
	case err != nil:
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Kafka unavailable, case events disabled")
		kafkaClient = nil
	case kafkaClient != nil:
		events = publisher.NewEventPublisher(kafkaClient.Writer, cfg.Databases.Kafka.EventTopic, serviceLogger)
		checks["kafka"] = kafkaClient.HealthCheck
		defer kafkaClient.Close()
	}

	rodPortal := portal.NewRodPortal(cfg.Portal, serviceLogger)
	defer rodPortal.Close()
	var caseportal portal.Adapter = rodPortal
	if b := cfg.Portal.Breaker; b.Enabled {
		breaker := circuitbreaker.New(b.FailureThreshold, b.SuccessThreshold, b.OpenTimeout(),
			circuitbreaker.WithFailurePredicate(portal.BreakerFailure),
			circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
				serviceLogger.WithPayload(map[string]interface{}{
					"from": from.String(),
					"to":   to.String(),
				}).Warn("portal circuit breaker changed state")
			}),
		)
		caseportal = portal.NewGuarded(rodPortal, breaker)
	}

	var mailer notifier.Notifier = notifier.NewLogNotifier(serviceLogger)
	if cfg.SMTP.Configured() {
		mailer = notifier.NewSMTPNotifier(cfg.SMTP, serviceLogger)
	}

	userService := userservice.NewService(userstore.NewStore(db), cfg.Auth.JwtSecret, cfg.Auth.TokenLifetime(), cfg.Auth.AdminEmails)

	conns := caseservice.NewConnectionManager()
	caseMonitor := monitor.New(monitor.Config{
		Interval: cfg.Monitor.Interval(),
		MaxPolls: cfg.Monitor.MaxPolls,
	}, monitor.Deps{
		Portal:  caseportal,
		Store:   caseStore,
		Mailer:  mailer,
		Session: conns,
		Events:  events,
		Cache:   cache,
	}, serviceLogger)
	caseService := caseservice.NewCaseService(caseservice.Deps{
		Portal:     caseportal,
		Store:      caseStore,
		Cache:      cache,
		Supervisor: monitor.NewSupervisor(caseMonitor, serviceLogger),
		Users:      userService,
		Events:     events,
		Conns:      conns,
	}, serviceLogger)

	var portalLimiter *ratelimiter.KeyedTokenBucket
	if rl := cfg.Middleware.RateLimiter; rl.Enabled {
		portalLimiter = ratelimiter.NewKeyedTokenBucket(rl.Rate, rl.Capacity)
	}

	router := newRouter(userService, caseService, portalLimiter, checks, serviceLogger)
	server := httpserver.NewServer(router,
		httpserver.WithAddress(cfg.Server.Address),
		httpserver.WithLogger(serviceLogger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Server.GracePeriod())
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracePeriod())
		defer cancel()
		return caseService.Shutdown(shutdownCtx)
	})
	if kafkaClient != nil && cache != nil {
		cacheSync := consumer.NewEventConsumer(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.EventTopic, cfg.Databases.Kafka.ConsumerGroup, serviceLogger)
		g.Go(func() error {
			defer cacheSync.Close()
			if err := cacheSync.Run(gctx, consumer.CacheResolutions(cache)); err != nil {
				serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("status cache sync stopped")
			}
			return nil
		})
	}
	if portalLimiter != nil {
		g.Go(func() error {
			sweepLimiter(gctx, portalLimiter, time.Minute)
			return nil
		})
	}

	err = g.Wait()
	serviceLogger.Info("Server gracefully stopped")
	return err
}

// openCaseStore builds the configured case store and returns its cleanup.
func openCaseStore(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (store.CaseStore, func(), error) {
	switch cfg.Databases.CaseStore {
	case config.CaseStoreMongo:
		client, err := mongo.GetClient(&cfg.Databases.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		coll, err := mongo.CaseCollection(ctx, client, &cfg.Databases.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMongoCaseStore(coll), func() {
			if err := mongo.Close(context.Background()); err != nil {
				log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
			}
		}, nil
	case config.CaseStoreMemory:
		log.Warn("Using in-memory case store, cases are lost on restart")
		return store.NewMemoryCaseStore(), func() {}, nil
	default:
		db, err := mysql.GetDB(&cfg.Databases.MySQL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewGormCaseStore(db), func() {}, nil
	}
}

type healthCheck func(ctx context.Context) error

func newRouter(users *userservice.Service, cases *caseservice.CaseService, limiter *ratelimiter.KeyedTokenBucket, checks map[string]healthCheck, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httpmiddleware.RequestLogger("support_service"))

	portalLimit := func(c *gin.Context) { c.Next() }
	if limiter != nil {
		portalLimit = httpmiddleware.RateLimitByKey(limiter, func(c *gin.Context) string {
			return c.GetString(userapi.ContextUserID)
		})
	}

	auth := userapi.AuthMiddleware(users)
	userapi.NewHandler(users).RegisterRoutes(router.Group("/api/v1"), auth)
	caseapi.NewAPI(cases, log).RegisterRoutes(router, auth, portalLimit)

	router.GET("/healthz", healthHandler(checks))
	return router
}

// healthHandler reports 503 when any backing service fails its check.
func healthHandler(checks map[string]healthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, gin.H{"healthy": status == http.StatusOK, "checks": report})
	}
}

// sweepLimiter drops idle per-user buckets until ctx ends.
func sweepLimiter(ctx context.Context, limiter *ratelimiter.KeyedTokenBucket, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

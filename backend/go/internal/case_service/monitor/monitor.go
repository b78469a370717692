// Package monitor watches submitted support cases until the manufacturer
// resolves them, and tracks which chat session owns each watch.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RoboSupport/backend/go/internal/case_service/notifier"
	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultMaxPolls = 288
)

// Config bounds a single monitor's lifetime: MaxPolls probes spaced Interval apart.
type Config struct {
	Interval time.Duration
	MaxPolls int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = DefaultMaxPolls
	}
	return c
}

// Target identifies the case being watched and who to tell when it resolves.
type Target struct {
	SessionID  string
	TaskNumber string
	UserID     string
	Email      string
	Username   string
}

type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeExhausted
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// StatusChecker is the part of the portal the monitor needs.
type StatusChecker interface {
	CheckStatus(ctx context.Context, taskNumber string) (models.CaseStatus, string, error)
}

// StatusWriter is the part of the case store the monitor needs.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, taskNumber string, status models.CaseStatus, response string) error
}

// SessionNotifier pushes a payload into a live chat session.
type SessionNotifier interface {
	NotifySession(sessionID string, payload interface{}) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.CaseEvent) error
}

// Deps are the collaborators of a Monitor. Events may be nil.
type Deps struct {
	Portal  StatusChecker
	Store   StatusWriter
	Mailer  notifier.Notifier
	Session SessionNotifier
	Events  EventPublisher

	// Cache, when set, is refreshed with the resolution so status probes
	// stop reporting the case as open.
	Cache store.StatusCache
}

// ResolutionNotice is the in-session payload sent when a case resolves.
type ResolutionNotice struct {
	Type       string `json:"type"`
	TaskNumber string `json:"task_number"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Response   string `json:"response"`
}

const NoticeCaseResolved = "case_resolved"

// Monitor polls the portal for one case at a time; a single Monitor value is
// shared by all running watches.
type Monitor struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
	now  func() time.Time
}

func New(cfg Config, deps Deps, log *logger.Logger) *Monitor {
	return &Monitor{cfg: cfg.withDefaults(), deps: deps, log: log, now: time.Now}
}

// Run watches t until it resolves, the poll budget runs out or ctx is
// cancelled. Nothing is written or sent once cancellation has been seen.
func (m *Monitor) Run(ctx context.Context, t Target) Outcome {
	log := m.log.WithFields(map[string]interface{}{
		"task_number": t.TaskNumber,
		"session_id":  t.SessionID,
	})
	log.Info("case monitor started")

	for poll := 1; poll <= m.cfg.MaxPolls; poll++ {
		if !wait(ctx, m.cfg.Interval) {
			log.Info("case monitor cancelled")
			return OutcomeCancelled
		}

		status, raw, err := m.deps.Portal.CheckStatus(ctx, t.TaskNumber)
		if ctx.Err() != nil {
			log.Info("case monitor cancelled")
			return OutcomeCancelled
		}

		switch {
		case err != nil:
			log.WithError(models.ErrorInfo{Message: err.Error(), Type: "PortalError"}).
				WithPayload(map[string]interface{}{"poll": poll}).
				Warn("status check failed")
		case status == models.CaseResolved:
			return m.resolve(ctx, t, raw, log)
		case status == models.CaseOpen:
			log.WithPayload(map[string]interface{}{"poll": poll}).Debug("case still open")
		default:
			log.WithPayload(map[string]interface{}{"poll": poll}).Info("case status unknown")
		}
	}

	log.WithPayload(map[string]interface{}{"polls": m.cfg.MaxPolls}).Info("poll budget exhausted, monitor stopped")
	return OutcomeExhausted
}

func (m *Monitor) resolve(ctx context.Context, t Target, raw string, log *logger.Logger) Outcome {
	formatted := FormatResolutionResponse(raw)

	if err := m.deps.Store.UpdateStatus(ctx, t.TaskNumber, models.CaseResolved, formatted); err != nil {
		entry := log.WithError(models.ErrorInfo{Message: err.Error(), Type: "StoreError"})
		if errors.Is(err, store.ErrInvalidTransition) {
			entry.Warn("case already resolved in store")
		} else {
			entry.Error("failed to record resolution, notifying anyway")
		}
	}
	if m.deps.Cache != nil {
		cached := store.CachedStatus{Status: models.CaseResolved, Response: formatted, At: m.now().UTC()}
		if err := m.deps.Cache.Set(ctx, t.TaskNumber, cached); err != nil {
			log.WithError(models.ErrorInfo{Message: err.Error(), Type: "CacheError"}).Warn("failed to refresh status cache")
		}
	}
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	notice := ResolutionNotice{
		Type:       NoticeCaseResolved,
		TaskNumber: t.TaskNumber,
		Status:     string(models.CaseResolved),
		Message:    ResolutionMessage(t.TaskNumber, formatted),
		Response:   formatted,
	}
	if err := m.deps.Session.NotifySession(t.SessionID, notice); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "SessionError"}).Warn("in-session notification failed")
	}
	if ctx.Err() != nil {
		return OutcomeCancelled
	}

	m.sendEmail(ctx, t, formatted, log)

	if m.deps.Events != nil {
		event := models.CaseEvent{
			EventID:    uuid.NewString(),
			Type:       models.EventCaseResolved,
			TaskNumber: t.TaskNumber,
			UserID:     t.UserID,
			SessionID:  t.SessionID,
			Status:     models.CaseResolved,
			Response:   formatted,
			OccurredAt: m.now().UTC(),
		}
		if err := m.deps.Events.Publish(ctx, event); err != nil {
			log.WithError(models.ErrorInfo{Message: err.Error(), Type: "PublishError"}).Warn("failed to publish resolution event")
		}
	}

	log.Info("case resolved")
	return OutcomeResolved
}

func (m *Monitor) sendEmail(ctx context.Context, t Target, formatted string, log *logger.Logger) {
	if t.Email == "" {
		log.Warn("no e-mail address for case owner, skipping e-mail")
		return
	}
	subject, body, err := notifier.RenderResolutionEmail(t.Username, t.TaskNumber, formatted)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "TemplateError"}).Error("failed to render resolution e-mail")
		return
	}
	if err := m.deps.Mailer.Send(ctx, t.Email, subject, body); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "NotifierError"}).Warn("resolution e-mail failed")
	}
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return ctx.Err() == nil
	}
}

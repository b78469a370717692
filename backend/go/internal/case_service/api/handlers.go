// Package api exposes the case service over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"RoboSupport/backend/go/internal/case_service/portal"
	"RoboSupport/backend/go/internal/case_service/service"
	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/models"
	userapi "RoboSupport/backend/go/internal/user_service/api"
	"RoboSupport/backend/go/pkg/circuitbreaker"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HeaderSessionID names the chat session a case submission belongs to.
const HeaderSessionID = "X-Session-ID"

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Cases is the case service as seen by the handlers.
type Cases interface {
	OpenSession(userID string, conn service.Conn) string
	EndSession(sessionID string) int
	SessionOwner(sessionID string) (string, bool)
	SubmitCase(ctx context.Context, sessionID, userID, originalText, translatedText string) (*service.SubmitResult, error)
	ProbeStatus(ctx context.Context, req service.Requester, taskNumber string) (*service.StatusResult, error)
	SendReminder(ctx context.Context, req service.Requester, taskNumber string) error
	ListCases(ctx context.Context, userID string, page, limit int) ([]*models.SupportCase, error)
	ListOpen(ctx context.Context) ([]service.OpenCase, error)
}

// API provides handlers for the case service.
type API struct {
	service  Cases
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewAPI creates a new API handler. Browser clients must connect from the
// same origin; clients that send no Origin header are accepted.
func NewAPI(cases Cases, logger *logger.Logger) *API {
	return &API{
		service: cases,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint and the /api/v1 case routes.
// portalLimit guards the routes that drive the manufacturer portal.
func (a *API) RegisterRoutes(r gin.IRouter, authMiddleware, portalLimit gin.HandlerFunc) {
	r.GET("/ws/session", authMiddleware, a.WebSocketHandler)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(authMiddleware)
	{
		apiV1.DELETE("/sessions/:id", a.EndSessionHandler)

		apiV1.POST("/cases", a.SubmitCaseHandler)
		apiV1.GET("/cases", a.ListCasesHandler)
		apiV1.GET("/cases/:task/status", portalLimit, a.StatusHandler)
		apiV1.POST("/cases/:task/reminder", portalLimit, a.ReminderHandler)

		admin := apiV1.Group("/admin")
		admin.Use(userapi.RequireRole(models.RoleAdmin))
		admin.GET("/cases/open", a.ListOpenHandler)
	}
}

func requester(c *gin.Context) service.Requester {
	claims := userapi.ClaimsFrom(c)
	return service.Requester{UserID: claims.UserID, Admin: claims.IsAdmin()}
}

// respondError maps service errors onto HTTP statuses.
func (a *API) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, service.ErrEmptyIssue), errors.Is(err, service.ErrInvalidTaskNumber):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, store.ErrCaseNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrAlreadyResolved):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		status, msg = http.StatusServiceUnavailable, "support portal temporarily unavailable"
	case errors.Is(err, portal.ErrSubmissionFailed), errors.Is(err, portal.ErrReminderFailed):
		status, msg = http.StatusBadGateway, err.Error()
	default:
		a.logger.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: status}).
			WithPayload(map[string]interface{}{"path": c.FullPath()}).Error("request failed")
	}
	c.JSON(status, gin.H{"error": msg})
}

// SubmitCaseRequest is the body of POST /api/v1/cases.
type SubmitCaseRequest struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
}

// SubmitCaseHandler files a new case for the session in X-Session-ID.
func (a *API) SubmitCaseHandler(c *gin.Context) {
	sessionID := c.GetHeader(HeaderSessionID)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": HeaderSessionID + " header is required"})
		return
	}
	var req SubmitCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	res, err := a.service.SubmitCase(c.Request.Context(), sessionID, requester(c).UserID, req.OriginalText, req.TranslatedText)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListCasesHandler returns the caller's cases.
func (a *API) ListCasesHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	cases, err := a.service.ListCases(c.Request.Context(), requester(c).UserID, page, limit)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "page": page})
}

// StatusHandler probes the portal for one case.
func (a *API) StatusHandler(c *gin.Context) {
	res, err := a.service.ProbeStatus(c.Request.Context(), requester(c), c.Param("task"))
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ReminderHandler nudges the support team about an open case.
func (a *API) ReminderHandler(c *gin.Context) {
	if err := a.service.SendReminder(c.Request.Context(), requester(c), c.Param("task")); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reminder sent"})
}

// ListOpenHandler lists every open case. Admin only.
func (a *API) ListOpenHandler(c *gin.Context) {
	cases, err := a.service.ListOpen(c.Request.Context())
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

// EndSessionHandler ends one of the caller's sessions.
func (a *API) EndSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	owner, ok := a.service.SessionOwner(sessionID)
	if !ok {
		a.respondError(c, service.ErrSessionNotFound)
		return
	}
	if r := requester(c); owner != r.UserID && !r.Admin {
		a.respondError(c, service.ErrForbidden)
		return
	}
	cancelled := a.service.EndSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cancelled_monitors": cancelled})
}

// SessionOpened is the first message on a new session connection.
type SessionOpened struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// WebSocketHandler upgrades the request and keeps the session alive until
// the client goes away; the session then ends and its monitors stop.
func (a *API) WebSocketHandler(c *gin.Context) {
	userID := requester(c).UserID

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}

	sessionID := a.service.OpenSession(userID, conn)
	defer a.service.EndSession(sessionID)

	if err := conn.WriteJSON(SessionOpened{Type: "session_opened", SessionID: sessionID}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

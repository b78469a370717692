// Package service is the boundary between chat sessions and the support
// case machinery: submission, status probes, reminders and monitor lifetime.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RoboSupport/backend/go/internal/case_service/monitor"
	"RoboSupport/backend/go/internal/case_service/portal"
	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrEmptyIssue        = errors.New("issue description is empty")
	ErrInvalidTaskNumber = errors.New("invalid task number")
	ErrForbidden         = errors.New("case belongs to another user")
	ErrAlreadyResolved   = errors.New("case is already resolved")
)

// UserDirectory resolves the contact details of a case owner.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Requester is the authenticated caller of an operation.
type Requester struct {
	UserID string
	Admin  bool
}

// Deps are the collaborators of a CaseService. Cache and Events may be nil.
type Deps struct {
	Portal     portal.Adapter
	Store      store.CaseStore
	Cache      store.StatusCache
	Supervisor *monitor.Supervisor
	Users      UserDirectory
	Events     monitor.EventPublisher
	Conns      *ConnectionManager
}

// CaseService provides core business logic for support cases.
type CaseService struct {
	portal     portal.Adapter
	store      store.CaseStore
	cache      store.StatusCache
	supervisor *monitor.Supervisor
	users      UserDirectory
	events     monitor.EventPublisher
	conns      *ConnectionManager
	logger     *logger.Logger
	now        func() time.Time
}

// NewCaseService creates a new CaseService.
func NewCaseService(deps Deps, logger *logger.Logger) *CaseService {
	s := &CaseService{
		portal:     deps.Portal,
		store:      deps.Store,
		cache:      deps.Cache,
		supervisor: deps.Supervisor,
		users:      deps.Users,
		events:     deps.Events,
		conns:      deps.Conns,
		logger:     logger,
		now:        time.Now,
	}
	if s.cache == nil {
		s.cache = noCache{}
	}
	if s.conns == nil {
		s.conns = NewConnectionManager()
	}
	return s
}

// OpenSession registers a chat connection and returns its session ID.
func (s *CaseService) OpenSession(userID string, conn Conn) string {
	sessionID := uuid.NewString()
	s.conns.Add(sessionID, userID, conn)
	s.logger.WithFields(map[string]interface{}{"session_id": sessionID, "user_id": userID}).Info("session opened")
	return sessionID
}

// EndSession cancels every monitor of the session, then closes its
// connection. It is safe to call more than once.
func (s *CaseService) EndSession(sessionID string) int {
	cancelled := s.supervisor.End(sessionID)
	if s.conns.Remove(sessionID) || cancelled > 0 {
		s.logger.WithFields(map[string]interface{}{
			"session_id": sessionID,
			"cancelled":  cancelled,
		}).Info("session ended")
	}
	return cancelled
}

// SessionOwner returns the user a live session belongs to.
func (s *CaseService) SessionOwner(sessionID string) (string, bool) {
	return s.conns.Owner(sessionID)
}

// NotifySession pushes payload to the session's connection.
func (s *CaseService) NotifySession(sessionID string, payload interface{}) error {
	return s.conns.NotifySession(sessionID, payload)
}

// SubmitResult is returned by SubmitCase.
type SubmitResult struct {
	TaskNumber string              `json:"task_number"`
	Case       *models.SupportCase `json:"case,omitempty"`
	Monitoring bool                `json:"monitoring"`
	Message    string              `json:"message"`
}

// SubmitCase files a case with the portal and starts watching it for the
// session. A portal failure is returned as is; nothing is recorded.
func (s *CaseService) SubmitCase(ctx context.Context, sessionID, userID, originalText, translatedText string) (*SubmitResult, error) {
	originalText = strings.TrimSpace(originalText)
	translatedText = strings.TrimSpace(translatedText)
	if originalText == "" && translatedText == "" {
		return nil, ErrEmptyIssue
	}
	owner, ok := s.conns.Owner(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if owner != userID {
		return nil, ErrForbidden
	}
	if originalText == "" {
		originalText = translatedText
	}
	issue := translatedText
	if issue == "" {
		issue = originalText
	}

	log := s.logger.WithFields(map[string]interface{}{"session_id": sessionID, "user_id": userID})

	taskNumber, err := s.portal.Submit(ctx, userID, issue)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "PortalError"}).Error("case submission failed")
		return nil, err
	}
	log = log.WithFields(map[string]interface{}{"task_number": taskNumber})

	record, err := s.store.Create(ctx, userID, originalText, translatedText, taskNumber)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "StoreError"}).Error("failed to record case, monitoring anyway")
		record = nil
	}

	target := monitor.Target{TaskNumber: taskNumber, UserID: userID}
	if user, err := s.users.GetUserByID(ctx, userID); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("owner lookup failed, resolution e-mail disabled")
	} else {
		target.Email = user.Email
		target.Username = user.Username
	}

	monitoring := true
	if err := s.supervisor.Start(sessionID, target); err != nil {
		monitoring = errors.Is(err, monitor.ErrAlreadyMonitored)
		if !monitoring {
			log.WithError(models.ErrorInfo{Message: err.Error()}).Error("failed to start case monitor")
		}
	}

	if err := s.cache.Set(ctx, taskNumber, store.CachedStatus{Status: models.CaseOpen, At: s.now().UTC()}); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("failed to prime status cache")
	}
	s.publish(ctx, models.CaseEvent{
		Type:       models.EventCaseSubmitted,
		TaskNumber: taskNumber,
		UserID:     userID,
		SessionID:  sessionID,
		Status:     models.CaseOpen,
	}, log)

	log.Info("case submitted")
	return &SubmitResult{
		TaskNumber: taskNumber,
		Case:       record,
		Monitoring: monitoring,
		Message:    submittedMessage(taskNumber),
	}, nil
}

// StatusResult is returned by ProbeStatus.
type StatusResult struct {
	TaskNumber string            `json:"task_number"`
	Status     models.CaseStatus `json:"status"`
	Response   string            `json:"response,omitempty"`
	Message    string            `json:"message"`
	Cached     bool              `json:"cached"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// ProbeStatus answers a user's status question for one case. It never
// writes to the case store and does not affect any running monitor.
func (s *CaseService) ProbeStatus(ctx context.Context, req Requester, taskNumber string) (*StatusResult, error) {
	record, taskNumber, err := s.authorize(ctx, req, taskNumber)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(map[string]interface{}{"task_number": taskNumber, "user_id": req.UserID})

	if record != nil && record.Status == models.CaseResolved {
		return statusResult(taskNumber, models.CaseResolved, record.SupportResponse, true, record.UpdatedAt), nil
	}

	cached, err := s.cache.Get(ctx, taskNumber)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("status cache read failed")
	}
	if cached != nil {
		return statusResult(taskNumber, cached.Status, cached.Response, true, cached.At), nil
	}

	status, raw, err := s.portal.CheckStatus(ctx, taskNumber)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "PortalError"}).Warn("status probe failed")
		status = models.CaseUnknown
	}
	response := ""
	if status == models.CaseResolved {
		response = monitor.FormatResolutionResponse(raw)
	}
	now := s.now().UTC()
	if err := s.cache.Set(ctx, taskNumber, store.CachedStatus{Status: status, Response: response, At: now}); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).Warn("status cache write failed")
	}
	return statusResult(taskNumber, status, response, false, now), nil
}

// SendReminder asks the support team to look at an open case again.
func (s *CaseService) SendReminder(ctx context.Context, req Requester, taskNumber string) error {
	record, taskNumber, err := s.authorize(ctx, req, taskNumber)
	if err != nil {
		return err
	}
	if record != nil && record.Status == models.CaseResolved {
		return ErrAlreadyResolved
	}
	if err := s.portal.SendReminder(ctx, taskNumber); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "PortalError"}).
			WithFields(map[string]interface{}{"task_number": taskNumber}).Warn("reminder failed")
		return err
	}
	s.logger.WithFields(map[string]interface{}{"task_number": taskNumber, "user_id": req.UserID}).Info("reminder sent")
	return nil
}

// ListCases returns one page of the user's cases, newest first.
func (s *CaseService) ListCases(ctx context.Context, userID string, page, limit int) ([]*models.SupportCase, error) {
	cases, err := s.store.ListByUser(ctx, userID, page, limit)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"userID": userID}).Error("Failed to list user cases")
		return nil, err
	}
	return cases, nil
}

// OpenCase is an open case together with whether this instance watches it.
type OpenCase struct {
	*models.SupportCase
	Monitored bool `json:"monitored"`
}

// ListOpen returns every open case. Administrative.
func (s *CaseService) ListOpen(ctx context.Context) ([]OpenCase, error) {
	cases, err := s.store.ListOpen(ctx)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to list open cases")
		return nil, err
	}
	out := make([]OpenCase, 0, len(cases))
	for _, c := range cases {
		out = append(out, OpenCase{SupportCase: c, Monitored: s.supervisor.Active(c.TaskNumber)})
	}
	return out, nil
}

// Shutdown stops every monitor and closes every session connection.
func (s *CaseService) Shutdown(ctx context.Context) error {
	err := s.supervisor.Shutdown(ctx)
	closed := s.conns.CloseAll()
	s.logger.WithPayload(map[string]interface{}{"sessions": len(closed)}).Info("case service stopped")
	return err
}

// authorize normalizes taskNumber and checks that req may act on it. The
// record is nil only for admins asking about a case the store does not know.
func (s *CaseService) authorize(ctx context.Context, req Requester, taskNumber string) (*models.SupportCase, string, error) {
	taskNumber = strings.ToUpper(strings.TrimSpace(taskNumber))
	if taskNumber == "" || portal.ExtractTaskNumber(taskNumber) != taskNumber {
		return nil, "", ErrInvalidTaskNumber
	}

	record, err := s.store.GetByTaskNumber(ctx, taskNumber)
	switch {
	case errors.Is(err, store.ErrCaseNotFound) && req.Admin:
		return nil, taskNumber, nil
	case err != nil:
		return nil, "", err
	case !req.Admin && record.UserID != req.UserID:
		s.logger.WithPayload(map[string]interface{}{"task_number": taskNumber, "requestingUserID": req.UserID}).Warn("User attempted to access another user's case")
		return nil, "", ErrForbidden
	}
	return record, taskNumber, nil
}

func (s *CaseService) publish(ctx context.Context, event models.CaseEvent, log *logger.Logger) {
	if s.events == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, event); err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error(), Type: "PublishError"}).Warn("failed to publish case event")
	}
}

func submittedMessage(taskNumber string) string {
	return fmt.Sprintf("📨 Your support case has been submitted. Tracking number: `%s`.\n\n"+
		"You will be notified here and by e-mail as soon as the support team resolves it.", taskNumber)
}

func statusResult(taskNumber string, status models.CaseStatus, response string, cached bool, at time.Time) *StatusResult {
	r := &StatusResult{
		TaskNumber: taskNumber,
		Status:     status,
		Response:   response,
		Cached:     cached,
		CheckedAt:  at,
	}
	switch status {
	case models.CaseResolved:
		r.Message = monitor.ResolutionMessage(taskNumber, response)
	case models.CaseOpen:
		r.Message = fmt.Sprintf("⏳ Support case `%s` is still open. The support team is working on it and you will be notified when it is resolved.", taskNumber)
	default:
		r.Message = fmt.Sprintf("❓ The status of support case `%s` could not be determined right now. Please try again in a few minutes.", taskNumber)
	}
	return r
}

type noCache struct{}

func (noCache) Get(context.Context, string) (*store.CachedStatus, error) { return nil, nil }

func (noCache) Set(context.Context, string, store.CachedStatus) error { return nil }

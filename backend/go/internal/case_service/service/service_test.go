package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"RoboSupport/backend/go/internal/case_service/monitor"
	"RoboSupport/backend/go/internal/case_service/portal"
	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"
)

type fakePortal struct {
	mu          sync.Mutex
	nextTask    string
	submitErr   error
	status      models.CaseStatus
	statusText  string
	statusCalls int
	reminders   []string
}

func (p *fakePortal) Submit(_ context.Context, _, _ string) (string, error) {
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.nextTask, nil
}

func (p *fakePortal) CheckStatus(_ context.Context, _ string) (models.CaseStatus, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	return p.status, p.statusText, nil
}

func (p *fakePortal) SendReminder(_ context.Context, task string) error {
	p.reminders = append(p.reminders, task)
	return nil
}

type failingCreateStore struct {
	*store.MemoryCaseStore
}

func (failingCreateStore) Create(context.Context, string, string, string, string) (*models.SupportCase, error) {
	return nil, errors.New("database is down")
}

type fakeUsers map[string]*models.User

func (u fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, errors.New("user not found")
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]store.CachedStatus
}

func (c *mapCache) Get(_ context.Context, task string) (*store.CachedStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.entries[task]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (c *mapCache) Set(_ context.Context, task string, cs store.CachedStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[task] = cs
	return nil
}

type fakeConn struct {
	mu      sync.Mutex
	written []interface{}
	closed  bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ monitor.Target) monitor.Outcome {
	<-ctx.Done()
	return monitor.OutcomeCancelled
}

type recordingEvents struct {
	events []models.CaseEvent
}

func (r *recordingEvents) Publish(_ context.Context, e models.CaseEvent) error {
	r.events = append(r.events, e)
	return nil
}

type harness struct {
	svc    *CaseService
	portal *fakePortal
	store  *store.MemoryCaseStore
	cache  *mapCache
	events *recordingEvents
	sup    *monitor.Supervisor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger.SetOutput(io.Discard)
	log := logger.New("case-service-test", "", "")
	h := &harness{
		portal: &fakePortal{nextTask: "SUP-00000001", status: models.CaseOpen},
		store:  store.NewMemoryCaseStore(),
		cache:  &mapCache{entries: make(map[string]store.CachedStatus)},
		events: &recordingEvents{},
		sup:    monitor.NewSupervisor(blockingRunner{}, log),
	}
	h.svc = NewCaseService(Deps{
		Portal:     h.portal,
		Store:      h.store,
		Cache:      h.cache,
		Supervisor: h.sup,
		Users:      fakeUsers{"u1": {UserID: "u1", Email: "u1@example.com", Username: "u1"}},
		Events:     h.events,
	}, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

func TestSubmitCase_StartsMonitoring(t *testing.T) {
	h := newHarness(t)
	session := h.svc.OpenSession("u1", &fakeConn{})

	res, err := h.svc.SubmitCase(context.Background(), session, "u1", "meine Klinge ist kaputt", "my blade is broken")
	if err != nil {
		t.Fatalf("SubmitCase() error = %v", err)
	}
	if res.TaskNumber != "SUP-00000001" || !res.Monitoring || res.Case == nil {
		t.Errorf("result = %+v", res)
	}
	if !h.sup.Active("SUP-00000001") {
		t.Error("case is not monitored")
	}
	if got := h.sup.SessionTasks(session); len(got) != 1 {
		t.Errorf("SessionTasks() = %v", got)
	}
	c, err := h.store.GetByTaskNumber(context.Background(), "SUP-00000001")
	if err != nil || c.Status != models.CaseOpen || c.TranslatedText != "my blade is broken" {
		t.Errorf("stored case = %+v, %v", c, err)
	}
	if cs := h.cache.entries["SUP-00000001"]; cs.Status != models.CaseOpen {
		t.Errorf("cache = %+v", cs)
	}
	if len(h.events.events) != 1 || h.events.events[0].Type != models.EventCaseSubmitted {
		t.Errorf("events = %+v", h.events.events)
	}
}

func TestSubmitCase_PortalFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	h.portal.submitErr = portal.ErrSubmissionFailed
	session := h.svc.OpenSession("u1", &fakeConn{})

	_, err := h.svc.SubmitCase(context.Background(), session, "u1", "blade broken", "")
	if !errors.Is(err, portal.ErrSubmissionFailed) {
		t.Fatalf("SubmitCase() error = %v, want ErrSubmissionFailed", err)
	}
	if h.sup.Len() != 0 {
		t.Error("monitor started after failed submission")
	}
	if _, err := h.store.GetByTaskNumber(context.Background(), "SUP-00000001"); !errors.Is(err, store.ErrCaseNotFound) {
		t.Errorf("case recorded after failed submission: %v", err)
	}
}

func TestSubmitCase_StoreFailureStillMonitors(t *testing.T) {
	h := newHarness(t)
	h.svc.store = failingCreateStore{h.store}
	session := h.svc.OpenSession("u1", &fakeConn{})

	res, err := h.svc.SubmitCase(context.Background(), session, "u1", "blade broken", "")
	if err != nil {
		t.Fatalf("SubmitCase() error = %v", err)
	}
	if res.Case != nil || !res.Monitoring || !h.sup.Active(res.TaskNumber) {
		t.Errorf("result = %+v, active = %v", res, h.sup.Active(res.TaskNumber))
	}
}

func TestSubmitCase_TranslatedTextOnly(t *testing.T) {
	h := newHarness(t)
	session := h.svc.OpenSession("u1", &fakeConn{})

	res, err := h.svc.SubmitCase(context.Background(), session, "u1", "", "my blade is broken")
	if err != nil {
		t.Fatalf("SubmitCase() error = %v", err)
	}
	c, err := h.store.GetByTaskNumber(context.Background(), res.TaskNumber)
	if err != nil || c.OriginalText != "my blade is broken" {
		t.Errorf("stored case = %+v, %v", c, err)
	}
}

func TestSubmitCase_Rejects(t *testing.T) {
	h := newHarness(t)
	session := h.svc.OpenSession("u1", &fakeConn{})

	tests := []struct {
		name      string
		sessionID string
		userID    string
		text      string
		want      error
	}{
		{"empty issue", session, "u1", "   ", ErrEmptyIssue},
		{"unknown session", "nope", "u1", "broken", ErrSessionNotFound},
		{"someone else's session", session, "u2", "broken", ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.SubmitCase(context.Background(), tt.sessionID, tt.userID, tt.text, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("SubmitCase() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func seedCase(t *testing.T, h *harness, user, task string) {
	t.Helper()
	if _, err := h.store.Create(context.Background(), user, "broken", "broken", task); err != nil {
		t.Fatal(err)
	}
}

func TestProbeStatus_Ownership(t *testing.T) {
	h := newHarness(t)
	seedCase(t, h, "u1", "SUP-AAA")

	if _, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u2"}, "SUP-AAA"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other user error = %v, want ErrForbidden", err)
	}
	if _, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u2", Admin: true}, "sup-aaa"); err != nil {
		t.Errorf("admin error = %v", err)
	}
	if _, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u1"}, "SUP-MISSING"); !errors.Is(err, store.ErrCaseNotFound) {
		t.Errorf("missing case error = %v, want ErrCaseNotFound", err)
	}
	if _, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u1"}, "hello"); !errors.Is(err, ErrInvalidTaskNumber) {
		t.Errorf("bad task error = %v, want ErrInvalidTaskNumber", err)
	}
}

func TestProbeStatus_ResolvedIsReadOnlyAndCached(t *testing.T) {
	h := newHarness(t)
	seedCase(t, h, "u1", "SUP-AAA")
	h.portal.status = models.CaseResolved
	h.portal.statusText = "Menu Check Status the blade was replaced under warranty"

	res, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u1"}, "SUP-AAA")
	if err != nil {
		t.Fatalf("ProbeStatus() error = %v", err)
	}
	if res.Status != models.CaseResolved || res.Response != "The blade was replaced under warranty." || res.Cached {
		t.Errorf("result = %+v", res)
	}

	again, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u1"}, "SUP-AAA")
	if err != nil {
		t.Fatalf("second ProbeStatus() error = %v", err)
	}
	if !again.Cached || h.portal.statusCalls != 1 {
		t.Errorf("second probe cached = %v, portal calls = %d", again.Cached, h.portal.statusCalls)
	}

	c, _ := h.store.GetByTaskNumber(context.Background(), "SUP-AAA")
	if c.Status != models.CaseOpen {
		t.Errorf("probe wrote to the store: status = %q", c.Status)
	}
}

func TestProbeStatus_StoredResolutionSkipsPortal(t *testing.T) {
	h := newHarness(t)
	seedCase(t, h, "u1", "SUP-AAA")
	if err := h.store.UpdateStatus(context.Background(), "SUP-AAA", models.CaseResolved, "Fixed it for you."); err != nil {
		t.Fatal(err)
	}

	res, err := h.svc.ProbeStatus(context.Background(), Requester{UserID: "u1"}, "SUP-AAA")
	if err != nil {
		t.Fatalf("ProbeStatus() error = %v", err)
	}
	if res.Response != "Fixed it for you." || h.portal.statusCalls != 0 {
		t.Errorf("result = %+v, portal calls = %d", res, h.portal.statusCalls)
	}
}

func TestSendReminder(t *testing.T) {
	h := newHarness(t)
	seedCase(t, h, "u1", "SUP-AAA")
	seedCase(t, h, "u1", "SUP-BBB")
	_ = h.store.UpdateStatus(context.Background(), "SUP-BBB", models.CaseResolved, "Done and dusted.")

	if err := h.svc.SendReminder(context.Background(), Requester{UserID: "u1"}, "SUP-AAA"); err != nil {
		t.Fatalf("SendReminder() error = %v", err)
	}
	if err := h.svc.SendReminder(context.Background(), Requester{UserID: "u1"}, "SUP-BBB"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("resolved case error = %v, want ErrAlreadyResolved", err)
	}
	if len(h.portal.reminders) != 1 || h.portal.reminders[0] != "SUP-AAA" {
		t.Errorf("reminders = %v", h.portal.reminders)
	}
}

func TestEndSession_CancelsMonitorsAndClosesConn(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{}
	session := h.svc.OpenSession("u1", conn)
	if _, err := h.svc.SubmitCase(context.Background(), session, "u1", "blade broken", ""); err != nil {
		t.Fatal(err)
	}

	if n := h.svc.EndSession(session); n != 1 {
		t.Errorf("EndSession() = %d, want 1", n)
	}
	if h.sup.Active("SUP-00000001") {
		t.Error("monitor still active")
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
	if n := h.svc.EndSession(session); n != 0 {
		t.Errorf("second EndSession() = %d, want 0", n)
	}
}

func TestNotifySession(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{}
	session := h.svc.OpenSession("u1", conn)

	if err := h.svc.NotifySession(session, monitor.ResolutionNotice{TaskNumber: "SUP-1"}); err != nil {
		t.Fatalf("NotifySession() error = %v", err)
	}
	if len(conn.written) != 1 {
		t.Errorf("written = %d, want 1", len(conn.written))
	}
	if err := h.svc.NotifySession("gone", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session error = %v", err)
	}
}

func TestListOpen_MarksMonitored(t *testing.T) {
	h := newHarness(t)
	seedCase(t, h, "u2", "SUP-OLD")
	session := h.svc.OpenSession("u1", &fakeConn{})
	if _, err := h.svc.SubmitCase(context.Background(), session, "u1", "blade broken", ""); err != nil {
		t.Fatal(err)
	}

	open, err := h.svc.ListOpen(context.Background())
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	monitored := map[string]bool{}
	for _, c := range open {
		monitored[c.TaskNumber] = c.Monitored
	}
	if len(monitored) != 2 || !monitored["SUP-00000001"] || monitored["SUP-OLD"] {
		t.Errorf("monitored = %v", monitored)
	}
}

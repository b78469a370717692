package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"

	"RoboSupport/backend/go/pkg/logger"
)

var (
	ErrAlreadyMonitored = errors.New("task is already being monitored")
	ErrSupervisorClosed = errors.New("supervisor is shut down")
)

// Runner runs one watch to completion. *Monitor implements it.
type Runner interface {
	Run(ctx context.Context, t Target) Outcome
}

type handle struct {
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// Supervisor owns the running monitors, indexed by chat session. A task
// number is watched by at most one monitor at a time; its entry in owners
// is only released once that monitor's goroutine has returned.
type Supervisor struct {
	runner Runner
	log    *logger.Logger

	mu       sync.Mutex
	sessions map[string]map[string]*handle
	owners   map[string]*handle
	closed   bool
}

func NewSupervisor(runner Runner, log *logger.Logger) *Supervisor {
	return &Supervisor{
		runner:   runner,
		log:      log,
		sessions: make(map[string]map[string]*handle),
		owners:   make(map[string]*handle),
	}
}

// Start launches a monitor for t on behalf of sessionID.
func (s *Supervisor) Start(sessionID string, t Target) error {
	t.SessionID = sessionID
	log := s.log.WithFields(map[string]interface{}{
		"task_number": t.TaskNumber,
		"session_id":  sessionID,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	if owner, ok := s.owners[t.TaskNumber]; ok {
		s.mu.Unlock()
		log.WithPayload(map[string]interface{}{"owner_session": owner.sessionID}).Warn("task already monitored, ignoring")
		return ErrAlreadyMonitored
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{sessionID: sessionID, cancel: cancel, done: make(chan struct{})}
	tasks, ok := s.sessions[sessionID]
	if !ok {
		tasks = make(map[string]*handle)
		s.sessions[sessionID] = tasks
	}
	tasks[t.TaskNumber] = h
	s.owners[t.TaskNumber] = h
	s.mu.Unlock()

	go func() {
		defer close(h.done)
		defer s.release(sessionID, t.TaskNumber, h)
		defer cancel()
		outcome := s.runner.Run(ctx, t)
		log.WithPayload(map[string]interface{}{"outcome": outcome.String()}).Info("case monitor finished")
	}()
	return nil
}

// release drops h from the registry. Entries that have been replaced or
// already removed by End are left alone.
func (s *Supervisor) release(sessionID, taskNumber string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tasks, ok := s.sessions[sessionID]; ok && tasks[taskNumber] == h {
		delete(tasks, taskNumber)
		if len(tasks) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	if s.owners[taskNumber] == h {
		delete(s.owners, taskNumber)
	}
}

// End cancels every monitor of sessionID and waits for them to return.
// It reports how many monitors were cancelled.
func (s *Supervisor) End(sessionID string) int {
	s.mu.Lock()
	tasks := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	handles := make([]*handle, 0, len(tasks))
	for _, h := range tasks {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
	if len(handles) > 0 {
		s.log.WithFields(map[string]interface{}{
			"session_id": sessionID,
			"cancelled":  len(handles),
		}).Info("session monitors cancelled")
	}
	return len(handles)
}

// Active reports whether taskNumber is currently watched by any session.
func (s *Supervisor) Active(taskNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[taskNumber]
	return ok
}

// SessionTasks lists the task numbers watched for sessionID, sorted.
func (s *Supervisor) SessionTasks(sessionID string) []string {
	s.mu.Lock()
	tasks := make([]string, 0, len(s.sessions[sessionID]))
	for task := range s.sessions[sessionID] {
		tasks = append(tasks, task)
	}
	s.mu.Unlock()
	sort.Strings(tasks)
	return tasks
}

// Len is the number of running monitors.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners)
}

// Shutdown cancels every monitor and refuses new ones. It returns
// ctx.Err() if the monitors have not all returned before ctx ends.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	handles := make([]*handle, 0, len(s.owners))
	for _, h := range s.owners {
		handles = append(handles, h)
	}
	s.sessions = make(map[string]map[string]*handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingRunner runs until its context is cancelled.
type blockingRunner struct {
	started chan string
	runs    atomic.Int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 64)}
}

func (r *blockingRunner) Run(ctx context.Context, t Target) Outcome {
	r.runs.Add(1)
	r.started <- t.TaskNumber
	<-ctx.Done()
	return OutcomeCancelled
}

type runnerFunc func(ctx context.Context, t Target) Outcome

func (f runnerFunc) Run(ctx context.Context, t Target) Outcome { return f(ctx, t) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSupervisor_AtMostOneMonitorPerTask(t *testing.T) {
	runner := newBlockingRunner()
	sup := NewSupervisor(runner, testLogger())
	defer sup.End("s1")

	if err := sup.Start("s1", Target{TaskNumber: "SUP-1"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-runner.started

	if err := sup.Start("s1", Target{TaskNumber: "SUP-1"}); !errors.Is(err, ErrAlreadyMonitored) {
		t.Errorf("same session Start() error = %v, want ErrAlreadyMonitored", err)
	}
	if err := sup.Start("s2", Target{TaskNumber: "SUP-1"}); !errors.Is(err, ErrAlreadyMonitored) {
		t.Errorf("other session Start() error = %v, want ErrAlreadyMonitored", err)
	}
	if got := runner.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
	if sup.Len() != 1 || !sup.Active("SUP-1") {
		t.Errorf("Len() = %d, Active = %v", sup.Len(), sup.Active("SUP-1"))
	}
	if got := sup.SessionTasks("s2"); len(got) != 0 {
		t.Errorf("SessionTasks(s2) = %v, want none", got)
	}
}

func TestSupervisor_EndCancelsOnlyThatSession(t *testing.T) {
	runner := newBlockingRunner()
	sup := NewSupervisor(runner, testLogger())

	for _, task := range []string{"SUP-3", "SUP-1", "SUP-2"} {
		if err := sup.Start("s1", Target{TaskNumber: task}); err != nil {
			t.Fatalf("Start(%s) error = %v", task, err)
		}
	}
	if err := sup.Start("s2", Target{TaskNumber: "SUP-9"}); err != nil {
		t.Fatalf("Start(SUP-9) error = %v", err)
	}
	for i := 0; i < 4; i++ {
		<-runner.started
	}

	if got := sup.SessionTasks("s1"); fmt.Sprint(got) != "[SUP-1 SUP-2 SUP-3]" {
		t.Errorf("SessionTasks(s1) = %v", got)
	}
	if n := sup.End("s1"); n != 3 {
		t.Errorf("End(s1) = %d, want 3", n)
	}
	for _, task := range []string{"SUP-1", "SUP-2", "SUP-3"} {
		if sup.Active(task) {
			t.Errorf("%s still active after End", task)
		}
	}
	if !sup.Active("SUP-9") {
		t.Error("SUP-9 of another session was cancelled")
	}
	if n := sup.End("s2"); n != 1 {
		t.Errorf("End(s2) = %d, want 1", n)
	}
	if n := sup.End("unknown"); n != 0 {
		t.Errorf("End(unknown) = %d, want 0", n)
	}
	if sup.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sup.Len())
	}
}

func TestSupervisor_NaturalTerminationReleasesTask(t *testing.T) {
	sup := NewSupervisor(runnerFunc(func(context.Context, Target) Outcome {
		return OutcomeExhausted
	}), testLogger())

	if err := sup.Start("s1", Target{TaskNumber: "SUP-1"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return !sup.Active("SUP-1") })

	if got := sup.SessionTasks("s1"); len(got) != 0 {
		t.Errorf("SessionTasks(s1) = %v, want none", got)
	}
	if err := sup.Start("s2", Target{TaskNumber: "SUP-1"}); err != nil {
		t.Errorf("restart after termination error = %v", err)
	}
	waitFor(t, func() bool { return sup.Len() == 0 })
}

func TestSupervisor_EndRacingNaturalTermination(t *testing.T) {
	sup := NewSupervisor(runnerFunc(func(ctx context.Context, t Target) Outcome {
		select {
		case <-ctx.Done():
			return OutcomeCancelled
		case <-time.After(time.Duration(len(t.TaskNumber)%3) * time.Millisecond):
			return OutcomeExhausted
		}
	}), testLogger())

	var wg sync.WaitGroup
	for s := 0; s < 8; s++ {
		session := fmt.Sprintf("s%d", s)
		for i := 0; i < 10; i++ {
			_ = sup.Start(session, Target{TaskNumber: fmt.Sprintf("SUP-%d-%d", s, i)})
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.End(session)
		}()
	}
	wg.Wait()

	if sup.Len() != 0 {
		t.Errorf("Len() = %d after ending every session", sup.Len())
	}
}

func TestSupervisor_StartDuringUnwindIsRejected(t *testing.T) {
	release := make(chan struct{})
	sup := NewSupervisor(runnerFunc(func(ctx context.Context, _ Target) Outcome {
		<-ctx.Done()
		<-release
		return OutcomeCancelled
	}), testLogger())

	if err := sup.Start("s1", Target{TaskNumber: "SUP-1"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ended := make(chan int)
	go func() { ended <- sup.End("s1") }()

	waitFor(t, func() bool { return len(sup.SessionTasks("s1")) == 0 })
	if err := sup.Start("s2", Target{TaskNumber: "SUP-1"}); !errors.Is(err, ErrAlreadyMonitored) {
		t.Errorf("Start() while unwinding error = %v, want ErrAlreadyMonitored", err)
	}

	close(release)
	if n := <-ended; n != 1 {
		t.Errorf("End() = %d, want 1", n)
	}
	if sup.Active("SUP-1") {
		t.Error("SUP-1 still active after End returned")
	}
}

func TestSupervisor_Shutdown(t *testing.T) {
	runner := newBlockingRunner()
	sup := NewSupervisor(runner, testLogger())
	_ = sup.Start("s1", Target{TaskNumber: "SUP-1"})
	_ = sup.Start("s2", Target{TaskNumber: "SUP-2"})
	<-runner.started
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if sup.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sup.Len())
	}
	if err := sup.Start("s1", Target{TaskNumber: "SUP-3"}); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("Start() after Shutdown error = %v, want ErrSupervisorClosed", err)
	}
}

func TestSupervisor_EndStopsRealMonitorSilently(t *testing.T) {
	f := newFixture(t, 1000, stillOpen())
	sup := NewSupervisor(f.monitor, testLogger())

	if err := sup.Start("s1", target); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return f.portal.Calls() >= 3 })
	sup.End("s1")
	calls := f.portal.Calls()

	time.Sleep(10 * time.Millisecond)
	if f.portal.Calls() != calls {
		t.Errorf("portal polled after End: %d -> %d", calls, f.portal.Calls())
	}
	if f.store.Writes() != 0 || len(f.mailer.Sent()) != 0 || f.session.Len() != 0 {
		t.Error("side effects from a cancelled monitor")
	}
}

package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/circuitbreaker"
)

type flakyPortal struct {
	calls int
	err   error
}

func (f *flakyPortal) Submit(context.Context, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "SUP-OK", nil
}

func (f *flakyPortal) CheckStatus(context.Context, string) (models.CaseStatus, string, error) {
	f.calls++
	if f.err != nil {
		return models.CaseUnknown, "", f.err
	}
	return models.CaseResolved, "fixed", nil
}

func (f *flakyPortal) SendReminder(context.Context, string) error {
	f.calls++
	return f.err
}

func TestGuarded_OpensAndFailsFast(t *testing.T) {
	inner := &flakyPortal{err: errors.New("portal down")}
	g := NewGuarded(inner, circuitbreaker.New(2, 1, time.Hour, circuitbreaker.WithFailurePredicate(BreakerFailure)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		status, _, err := g.CheckStatus(ctx, "SUP-1")
		if err == nil || status != models.CaseUnknown {
			t.Fatalf("call %d = (%s, %v), want unknown with error", i, status, err)
		}
	}

	status, _, err := g.CheckStatus(ctx, "SUP-1")
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) || status != models.CaseUnknown {
		t.Errorf("open breaker = (%s, %v), want (unknown, ErrCircuitOpen)", status, err)
	}
	if _, err := g.Submit(ctx, "u", "issue"); !errors.Is(err, ErrSubmissionFailed) {
		t.Errorf("Submit() error = %v, want ErrSubmissionFailed", err)
	}
	if err := g.SendReminder(ctx, "SUP-1"); !errors.Is(err, ErrReminderFailed) {
		t.Errorf("SendReminder() error = %v, want ErrReminderFailed", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestGuarded_PassesThrough(t *testing.T) {
	inner := &flakyPortal{}
	g := NewGuarded(inner, circuitbreaker.New(1, 1, time.Hour))

	task, err := g.Submit(context.Background(), "u", "issue")
	if err != nil || task != "SUP-OK" {
		t.Errorf("Submit() = (%q, %v)", task, err)
	}
	status, response, err := g.CheckStatus(context.Background(), task)
	if err != nil || status != models.CaseResolved || response != "fixed" {
		t.Errorf("CheckStatus() = (%s, %q, %v)", status, response, err)
	}
}

func TestGuarded_CancellationDoesNotTrip(t *testing.T) {
	inner := &flakyPortal{err: context.Canceled}
	g := NewGuarded(inner, circuitbreaker.New(1, 1, time.Hour, circuitbreaker.WithFailurePredicate(BreakerFailure)))

	for i := 0; i < 3; i++ {
		_, _, _ = g.CheckStatus(context.Background(), "SUP-1")
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3 (breaker must stay closed)", inner.calls)
	}
}

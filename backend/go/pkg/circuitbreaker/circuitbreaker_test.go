package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func fail() (interface{}, error) { return nil, errBoom }
func ok() (interface{}, error)   { return "ok", nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New(3, 1, time.Minute, WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if cb.State() != Closed {
		t.Fatalf("State() = %v after 2 failures, want Closed", cb.State())
	}

	_, _ = cb.Execute(fail)
	if cb.State() != Open {
		t.Fatalf("State() = %v after 3 failures, want Open", cb.State())
	}

	called := false
	_, err := cb.Execute(func() (interface{}, error) { called = true; return nil, nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("request ran while the circuit was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(2, 1, time.Minute)

	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(ok)
	_, _ = cb.Execute(fail)

	if cb.State() != Closed {
		t.Errorf("State() = %v, want Closed", cb.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var transitions []string
	cb := New(1, 2, 30*time.Second,
		WithClock(clock.Now),
		WithStateChange(func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	_, _ = cb.Execute(fail)
	clock.Advance(30 * time.Second)
	if cb.State() != HalfOpen {
		t.Fatalf("State() = %v, want Half-Open", cb.State())
	}

	res, err := cb.Execute(ok)
	if err != nil || res != "ok" {
		t.Fatalf("Execute() = (%v, %v), want (ok, nil)", res, err)
	}
	if cb.State() != HalfOpen {
		t.Fatalf("State() = %v after 1 success, want Half-Open", cb.State())
	}
	_, _ = cb.Execute(ok)
	if cb.State() != Closed {
		t.Fatalf("State() = %v after 2 successes, want Closed", cb.State())
	}

	want := []string{"Closed->Open", "Open->Half-Open", "Half-Open->Closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := New(1, 1, time.Second, WithClock(clock.Now))

	_, _ = cb.Execute(fail)
	clock.Advance(time.Second)
	_, _ = cb.Execute(fail)

	if cb.State() != Open {
		t.Errorf("State() = %v, want Open", cb.State())
	}
}

func TestBreaker_FailurePredicate(t *testing.T) {
	cb := New(1, 1, time.Minute, WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}))

	_, err := cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.State() != Closed {
		t.Errorf("State() = %v, want Closed for an ignored error", cb.State())
	}
}

package portal

import (
	"context"
	"errors"
	"fmt"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/circuitbreaker"
)

// Guarded wraps an Adapter with a circuit breaker so a portal outage fails
// fast instead of tying up a browser for every poll of every monitor.
type Guarded struct {
	next    Adapter
	breaker circuitbreaker.CircuitBreaker
}

// NewGuarded decorates next with breaker.
func NewGuarded(next Adapter, breaker circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// BreakerFailure is the failure predicate for the portal breaker: a caller
// cancelling its own request says nothing about the portal's health.
func BreakerFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

type statusResult struct {
	status   models.CaseStatus
	response string
}

func (g *Guarded) Submit(ctx context.Context, userID, issueText string) (string, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Submit(ctx, userID, issueText)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// CheckStatus returns (unknown, "", circuitbreaker.ErrCircuitOpen) while the
// breaker is open.
func (g *Guarded) CheckStatus(ctx context.Context, taskNumber string) (models.CaseStatus, string, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		status, response, err := g.next.CheckStatus(ctx, taskNumber)
		if err != nil {
			return nil, err
		}
		return statusResult{status: status, response: response}, nil
	})
	if err != nil {
		return models.CaseUnknown, "", err
	}
	r := res.(statusResult)
	return r.status, r.response, nil
}

func (g *Guarded) SendReminder(ctx context.Context, taskNumber string) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.next.SendReminder(ctx, taskNumber)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", ErrReminderFailed, err)
	}
	return err
}

var _ Adapter = (*Guarded)(nil)

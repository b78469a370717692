package store

import (
	"context"
	"errors"

	"RoboSupport/backend/go/internal/models"
)

var (
	ErrCaseNotFound      = errors.New("support case not found")
	ErrDuplicateCase     = errors.New("support case already exists")
	ErrInvalidTransition = errors.New("invalid support case status transition")
	ErrInvalidStatus     = errors.New("status cannot be stored")
)

// CaseStore persists support cases. Implementations enforce that a case
// only ever moves from open to resolved.
type CaseStore interface {
	Create(ctx context.Context, userID, originalText, translatedText, taskNumber string) (*models.SupportCase, error)
	UpdateStatus(ctx context.Context, taskNumber string, status models.CaseStatus, response string) error
	GetByTaskNumber(ctx context.Context, taskNumber string) (*models.SupportCase, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.SupportCase, error)
	ListOpen(ctx context.Context) ([]*models.SupportCase, error)
}

// allowedFrom returns the statuses a case may be in for a write of next to
// succeed. An empty result means next can never be written.
func allowedFrom(next models.CaseStatus) []models.CaseStatus {
	switch next {
	case models.CaseOpen, models.CaseResolved:
		return []models.CaseStatus{models.CaseOpen}
	}
	return nil
}

func canTransition(from, to models.CaseStatus) bool {
	for _, s := range allowedFrom(to) {
		if s == from {
			return true
		}
	}
	return false
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// normalizePage clamps 1-based pagination and returns the offset and limit.
func normalizePage(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return (page - 1) * limit, limit
}

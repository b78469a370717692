package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RoboSupport/backend/go/internal/models"

	"gorm.io/gorm"
)

// GormCaseStore stores cases in the support_cases table.
type GormCaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormCaseStore creates a store over db. The schema is migrated by the
// mysql package on connect.
func NewGormCaseStore(db *gorm.DB) *GormCaseStore {
	return &GormCaseStore{db: db, now: time.Now}
}

func (s *GormCaseStore) Create(ctx context.Context, userID, originalText, translatedText, taskNumber string) (*models.SupportCase, error) {
	now := s.now().UTC()
	c := &models.SupportCase{
		TaskNumber:     taskNumber,
		UserID:         userID,
		OriginalText:   originalText,
		TranslatedText: translatedText,
		Status:         models.CaseOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "Duplicate entry")) {
		return nil, ErrDuplicateCase
	}
	if err != nil {
		return nil, fmt.Errorf("insert support case: %w", err)
	}
	return c, nil
}

// UpdateStatus performs the transition as a single conditional UPDATE so
// concurrent writers cannot move a resolved case back to open.
func (s *GormCaseStore) UpdateStatus(ctx context.Context, taskNumber string, status models.CaseStatus, response string) error {
	from := allowedFrom(status)
	if len(from) == 0 {
		return ErrInvalidStatus
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": s.now().UTC(),
	}
	if response != "" {
		updates["support_response"] = response
	}

	res := s.db.WithContext(ctx).Model(&models.SupportCase{}).
		Where("task_number = ? AND status IN ?", taskNumber, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update support case %s: %w", taskNumber, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Nothing matched: either the case is missing, the transition is not
	// allowed, or an open->open write changed no columns.
	current, err := s.GetByTaskNumber(ctx, taskNumber)
	if err != nil {
		return err
	}
	if !canTransition(current.Status, status) {
		return ErrInvalidTransition
	}
	return nil
}

func (s *GormCaseStore) GetByTaskNumber(ctx context.Context, taskNumber string) (*models.SupportCase, error) {
	var c models.SupportCase
	err := s.db.WithContext(ctx).Where("task_number = ?", taskNumber).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get support case %s: %w", taskNumber, err)
	}
	return &c, nil
}

func (s *GormCaseStore) ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.SupportCase, error) {
	offset, size := normalizePage(page, limit)
	var cases []*models.SupportCase
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(size).
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("list support cases for user: %w", err)
	}
	return cases, nil
}

func (s *GormCaseStore) ListOpen(ctx context.Context) ([]*models.SupportCase, error) {
	var cases []*models.SupportCase
	err := s.db.WithContext(ctx).
		Where("status = ?", models.CaseOpen).
		Order("created_at ASC").
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("list open support cases: %w", err)
	}
	return cases, nil
}

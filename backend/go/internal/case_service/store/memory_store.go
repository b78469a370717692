package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"RoboSupport/backend/go/internal/models"
)

// MemoryCaseStore keeps cases in process memory. It is meant for local
// development and tests; nothing survives a restart.
type MemoryCaseStore struct {
	mu    sync.RWMutex
	cases map[string]*models.SupportCase
	now   func() time.Time
}

// NewMemoryCaseStore creates an empty store.
func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{
		cases: make(map[string]*models.SupportCase),
		now:   time.Now,
	}
}

func (s *MemoryCaseStore) Create(_ context.Context, userID, originalText, translatedText, taskNumber string) (*models.SupportCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[taskNumber]; ok {
		return nil, ErrDuplicateCase
	}
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
	s.cases[taskNumber] = c
	cp := *c
	return &cp, nil
}

func (s *MemoryCaseStore) UpdateStatus(_ context.Context, taskNumber string, status models.CaseStatus, response string) error {
	if len(allowedFrom(status)) == 0 {
		return ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[taskNumber]
	if !ok {
		return ErrCaseNotFound
	}
	if !canTransition(c.Status, status) {
		return ErrInvalidTransition
	}
	c.Status = status
	if response != "" {
		c.SupportResponse = response
	}
	c.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryCaseStore) GetByTaskNumber(_ context.Context, taskNumber string) (*models.SupportCase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[taskNumber]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryCaseStore) ListByUser(_ context.Context, userID string, page, limit int) ([]*models.SupportCase, error) {
	all := s.filter(func(c *models.SupportCase) bool { return c.UserID == userID })
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	offset, size := normalizePage(page, limit)
	if offset >= len(all) {
		return []*models.SupportCase{}, nil
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryCaseStore) ListOpen(_ context.Context) ([]*models.SupportCase, error) {
	open := s.filter(func(c *models.SupportCase) bool { return c.Status == models.CaseOpen })
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	return open, nil
}

func (s *MemoryCaseStore) filter(keep func(*models.SupportCase) bool) []*models.SupportCase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SupportCase, 0)
	for _, c := range s.cases {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

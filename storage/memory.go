package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Anuvesh07/Planicorn/domain"
)

// MemoryStore keeps the board in process memory. It backs tests and the
// local development mode.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]map[string]domain.Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]map[string]domain.Task),
		now:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	lane := draft.Lane
	if lane == "" {
		lane = domain.LaneTodo
	}

	now := s.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       draft.Title,
		Description: draft.Description,
		Lane:        lane,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if draft.Rank != nil {
		t.Rank = *draft.Rank
	} else {
		t.Rank = domain.NextRank(s.ownerTasksLocked(ownerID), lane)
	}
	if lane == domain.LaneDone {
		done := now
		t.CompletedAt = &done
	}

	if s.tasks[ownerID] == nil {
		s.tasks[ownerID] = make(map[string]domain.Task)
	}
	s.tasks[ownerID][t.ID] = t
	return t, nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string, f Filter, page, pageSize int) ([]domain.Task, int, error) {
	tasks, err := s.ListAll(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	out, total := paginate(tasks, f, page, pageSize)
	return out, total, nil
}

// ListAll returns every task on the owner's board in no particular order.
func (s *MemoryStore) ListAll(ctx context.Context, ownerID string) ([]domain.Task, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerTasksLocked(ownerID), nil
}

func (s *MemoryStore) Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[ownerID][taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	t.Apply(patch, s.now())
	s.tasks[ownerID][taskID] = t
	return t, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[ownerID][taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	delete(s.tasks[ownerID], taskID)
	if len(s.tasks[ownerID]) == 0 {
		delete(s.tasks, ownerID)
	}
	return t, nil
}

func (s *MemoryStore) ownerTasksLocked(ownerID string) []domain.Task {
	out := make([]domain.Task, 0, len(s.tasks[ownerID]))
	for _, t := range s.tasks[ownerID] {
		out = append(out, t)
	}
	return out
}

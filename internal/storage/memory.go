package storage

import (
	"context"
	"sync"

	"pytest-insight/internal/models"
)

// MemoryStorage keeps sessions in process memory. Used by tests and by
// ephemeral profiles. Guarded by a mutex because the REST server reads
// concurrently.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions []*models.TestSession
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) LoadAll(ctx context.Context) ([]*models.TestSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TestSession, len(s.sessions))
	copy(out, s.sessions)
	return out, nil
}

func (s *MemoryStorage) Save(ctx context.Context, session *models.TestSession) error {
	return s.SaveMany(ctx, []*models.TestSession{session})
}

func (s *MemoryStorage) SaveMany(ctx context.Context, sessions []*models.TestSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, sessions...)
	return nil
}

func (s *MemoryStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}

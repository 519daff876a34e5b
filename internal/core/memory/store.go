// Package memory provides in-process implementations of the checkpoint
// store and audit log for tests and local development. Not for production.
package memory

import (
	"context"
	"sync"
	"time"

	"procflow/internal/domain"
)

type Store struct {
	mu          sync.Mutex
	checkpoints map[string]*domain.Checkpoint
	transitions map[string][]domain.Transition
}

func NewStore() *Store {
	return &Store{
		checkpoints: map[string]*domain.Checkpoint{},
		transitions: map[string][]domain.Transition{},
	}
}

func (s *Store) Create(ctx context.Context, cp *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cp
	s.checkpoints[cp.ThreadID] = &c
	return nil
}

func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[threadID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *cp
	return &c, nil
}

// Save implements compare-and-set on Version: the caller's checkpoint must
// carry the version it loaded; on success the stored and returned version
// are bumped by one.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint, trans *domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.checkpoints[cp.ThreadID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != cp.Version {
		return domain.ErrStaleVersion
	}

	cp.Version++
	cp.UpdatedAt = time.Now()
	c := *cp
	s.checkpoints[cp.ThreadID] = &c

	if trans != nil {
		s.transitions[cp.ThreadID] = append(s.transitions[cp.ThreadID], *trans)
	}
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, threadID string) ([]domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Transition, len(s.transitions[threadID]))
	copy(out, s.transitions[threadID])
	return out, nil
}

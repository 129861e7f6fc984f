package store

import (
	"context"
	"sort"
	"sync"

	"github.com/bayonhq/coagent/workflow"
)

// MemoryStore is an in-process Store for development and testing.
// Runs are deep-copied on the way in and out so callers never share mutable
// state with the store.
type MemoryStore struct {
	runs    map[string]*workflow.Run
	byOwner map[string][]string
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*workflow.Run),
		byOwner: make(map[string][]string),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, run *workflow.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, known := s.runs[run.ID]; !known {
		s.byOwner[run.OwnerID] = append(s.byOwner[run.OwnerID], run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, runID string) (*workflow.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// ListByOwner implements Store. Runs are returned newest first.
func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*workflow.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	ids := s.byOwner[ownerID]
	out := make([]*workflow.Run, 0, len(ids))
	for _, id := range ids {
		if run, ok := s.runs[id]; ok {
			out = append(out, run.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// State is the per-source request budget for the current window. It is
// exclusively owned by the Limiter; other components only see it through
// Status().
type State struct {
	Count        int       `json:"count"`
	WindowStart  time.Time `json:"window_start"`
	Limited      bool      `json:"limited"`
	BackoffLevel int       `json:"backoff_level"`
	LastSuccess  time.Time `json:"last_success"`
}

// Store persists per-source window state. The memory implementation is the
// default; a redis-backed one keeps budgets across process restarts.
type Store interface {
	Get(ctx context.Context, source string) (State, bool, error)
	Put(ctx context.Context, source string, st State) error
	Delete(ctx context.Context, source string) error
	Sources(ctx context.Context) ([]string, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (s *MemoryStore) Get(_ context.Context, source string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[source]
	return st, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, source string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[source] = st
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, source)
	return nil
}

func (s *MemoryStore) Sources(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.states))
	for k := range s.states {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Package memory implements the claim store as a process-local map.
// It carries the same TTL and exclusivity semantics as the postgres
// store but coordinates only within one process, which makes it fit for
// tests and single-node deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/earlybird-ai/finledger/internal/core/domain"
)

type entryState string

const (
	stateClaimed entryState = "claimed"
	stateDone    entryState = "done"
)

type entry struct {
	state     entryState
	result    string
	expiresAt time.Time
}

type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Expired entries are dropped lazily on access, so no reaper goroutine
// is needed for crash recovery.
func (s *Store) TryClaim(_ context.Context, key string, claimTTL time.Duration) (domain.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if e.state == stateDone {
			return domain.ClaimResult{Cached: true, Result: e.result}, nil
		}
		return domain.ClaimResult{}, nil
	}

	s.entries[key] = entry{state: stateClaimed, expiresAt: now.Add(claimTTL)}
	return domain.ClaimResult{Claimed: true}, nil
}

func (s *Store) Complete(_ context.Context, key, result string, cacheTTL time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{state: stateDone, result: result, expiresAt: s.now().Add(cacheTTL)}
	return nil
}

func (s *Store) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.state == stateClaimed {
		delete(s.entries, key)
	}
	return nil
}

package reminder

import (
	"context"
	"sync"
	"time"

	domain "marco/internal/domain/reminder"
)

// MemoryPendingStore keeps pending confirmations in process memory. Entries
// older than ttl are treated as absent and reclaimed lazily.
type MemoryPendingStore struct {
	mu    sync.Mutex
	items map[int64]domain.Pending
	ttl   time.Duration
	clock domain.Clock
}

// NewMemoryPendingStore creates a store. ttl <= 0 disables expiry.
func NewMemoryPendingStore(ttl time.Duration, clock domain.Clock) *MemoryPendingStore {
	return &MemoryPendingStore{
		items: make(map[int64]domain.Pending),
		ttl:   ttl,
		clock: domain.ClockOrSystem(clock),
	}
}

func (s *MemoryPendingStore) Get(_ context.Context, userID int64) (domain.Pending, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending, ok := s.items[userID]
	if !ok {
		return domain.Pending{}, false, nil
	}
	if s.expired(pending) {
		delete(s.items, userID)
		return domain.Pending{}, false, nil
	}
	return pending, true, nil
}

func (s *MemoryPendingStore) Set(_ context.Context, userID int64, pending domain.Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = s.clock.Now()
	}
	s.items[userID] = pending
	return nil
}

func (s *MemoryPendingStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (s *MemoryPendingStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, pending := range s.items {
		if s.expired(pending) {
			delete(s.items, userID)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryPendingStore) expired(pending domain.Pending) bool {
	if s.ttl <= 0 {
		return false
	}
	return !s.clock.Now().Before(pending.CreatedAt.Add(s.ttl))
}

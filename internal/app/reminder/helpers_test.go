package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "marco/internal/domain/reminder"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type extractorFunc func(ctx context.Context, raw, hint string) domain.ExtractionResult

func (f extractorFunc) Extract(ctx context.Context, raw, hint string) domain.ExtractionResult {
	return f(ctx, raw, hint)
}

// memorySnapshotStore records every saved snapshot and can be told to fail.
type memorySnapshotStore struct {
	mu    sync.Mutex
	saved []domain.Snapshot
	fail  error
}

func (s *memorySnapshotStore) Load(context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return domain.Snapshot{}, nil
	}
	last := s.saved[len(s.saved)-1]
	return domain.Snapshot{Reminders: append([]domain.Reminder(nil), last.Reminders...)}, nil
}

func (s *memorySnapshotStore) Save(_ context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.saved = append(s.saved, domain.Snapshot{Reminders: append([]domain.Reminder(nil), snapshot.Reminders...)})
	return nil
}

func (s *memorySnapshotStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *memorySnapshotStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

var errDiskFull = errors.New("disk full")

func reminderAt(userID int64, task string, event time.Time, lead int) domain.Reminder {
	return domain.NewReminder(userID, domain.ParsedIntent{Task: task, EventTime: event, LeadMinutes: lead}, event)
}

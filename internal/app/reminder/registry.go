package reminder

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domain "marco/internal/domain/reminder"
	"marco/internal/shared/logging"
	id "marco/internal/shared/utils/id"
)

// Registry is the durable, fire-time ordered collection of confirmed reminders.
//
// mu guards the heap and index and is held only for structural work.
// persistMu serializes mutations with their snapshot writes so the store
// always sees snapshots in mutation order; readers never wait on I/O.
type Registry struct {
	mu    sync.RWMutex
	queue reminderHeap
	byID  map[string]*entry
	seq   uint64

	persistMu sync.Mutex
	store     domain.SnapshotStore
	dirty     atomic.Bool

	clock  domain.Clock
	newID  func() string
	logger logging.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

func WithRegistryClock(clock domain.Clock) RegistryOption {
	return func(r *Registry) { r.clock = domain.ClockOrSystem(clock) }
}

func WithRegistryLogger(logger logging.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logging.OrNop(logger) }
}

func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry creates an empty registry. A nil store keeps everything in memory.
func NewRegistry(store domain.SnapshotStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:   make(map[string]*entry),
		store:  store,
		clock:  domain.SystemClock{},
		newID:  id.NewReminderID,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert validates rem, assigns its identity and persists the new state. The
// reminder becomes visible only after the snapshot was written; on a save
// error nothing changes and the error is returned.
func (r *Registry) Insert(ctx context.Context, rem domain.Reminder) (string, error) {
	if err := rem.Validate(); err != nil {
		return "", err
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	if rem.ID == "" {
		rem.ID = r.newID()
	}
	if _, exists := r.byID[rem.ID]; exists {
		r.mu.RUnlock()
		return "", fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidReminder, rem.ID)
	}
	rem.Seq = r.seq + 1
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = r.clock.Now()
	}
	snapshot := r.snapshotLocked()
	r.mu.RUnlock()

	snapshot.Reminders = append(snapshot.Reminders, rem)
	if err := r.save(ctx, snapshot); err != nil {
		return "", fmt.Errorf("registry: persist insert: %w", err)
	}

	r.mu.Lock()
	r.seq = rem.Seq
	e := &entry{reminder: rem, index: -1}
	r.byID[rem.ID] = e
	if rem.Dispatchable() {
		heap.Push(&r.queue, e)
	}
	r.mu.Unlock()

	r.logger.Info("Registry: inserted %s for user %d firing at %s", rem.ID, rem.UserID, rem.FireTime.Format(time.RFC3339))
	return rem.ID, nil
}

// DueAsOf returns every dispatchable reminder with FireTime <= now, ascending by
// fire time then insertion order. It walks only the due frontier of the heap.
func (r *Registry) DueAsOf(now time.Time) []domain.Reminder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.queue) == 0 {
		return nil
	}
	var due []domain.Reminder
	frontier := &indexHeap{backing: r.queue, positions: []int{0}}
	for frontier.Len() > 0 {
		pos := heap.Pop(frontier).(int)
		rem := r.queue[pos].reminder
		if rem.FireTime.After(now) {
			break
		}
		due = append(due, rem)
		for _, child := range []int{2*pos + 1, 2*pos + 2} {
			if child < len(r.queue) {
				heap.Push(frontier, child)
			}
		}
	}
	return due
}

// MarkFired flags id as delivered. Repeated calls are no-ops. The change is
// applied in memory before the save, so a save error leaves the registry dirty
// for Flush rather than re-dispatching the reminder.
func (r *Registry) MarkFired(ctx context.Context, reminderID string) error {
	return r.mutate(ctx, reminderID, func(rem *domain.Reminder) bool {
		if rem.Fired {
			return false
		}
		rem.Fired = true
		return true
	})
}

// RecordFailure counts a failed notify attempt. When maxAttempts > 0 and the
// count reaches it, the reminder is dead-lettered and leaves the dispatch queue.
func (r *Registry) RecordFailure(ctx context.Context, reminderID string, maxAttempts int) (bool, error) {
	deadLettered := false
	err := r.mutate(ctx, reminderID, func(rem *domain.Reminder) bool {
		if !rem.Dispatchable() {
			return false
		}
		rem.Attempts++
		if maxAttempts > 0 && rem.Attempts >= maxAttempts {
			rem.DeadLettered = true
			deadLettered = true
		}
		return true
	})
	return deadLettered, err
}

func (r *Registry) mutate(ctx context.Context, reminderID string, apply func(*domain.Reminder) bool) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	e, ok := r.byID[reminderID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrReminderNotFound, reminderID)
	}
	if !apply(&e.reminder) {
		r.mu.Unlock()
		return nil
	}
	if !e.reminder.Dispatchable() && e.index >= 0 {
		heap.Remove(&r.queue, e.index)
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.save(ctx, snapshot); err != nil {
		return fmt.Errorf("registry: persist %s: %w", reminderID, err)
	}
	return nil
}

// Get returns a copy of the reminder with the given id.
func (r *Registry) Get(reminderID string) (domain.Reminder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[reminderID]
	if !ok {
		return domain.Reminder{}, false
	}
	return e.reminder, true
}

// All returns every reminder, fired or not, sorted by fire time then insertion order.
func (r *Registry) All() []domain.Reminder {
	return r.filter(func(domain.Reminder) bool { return true })
}

// ForUser returns the reminders owned by userID in fire order.
func (r *Registry) ForUser(userID int64) []domain.Reminder {
	return r.filter(func(rem domain.Reminder) bool { return rem.UserID == userID })
}

func (r *Registry) filter(keep func(domain.Reminder) bool) []domain.Reminder {
	r.mu.RLock()
	out := make([]domain.Reminder, 0, len(r.byID))
	for _, e := range r.byID {
		if keep(e.reminder) {
			out = append(out, e.reminder)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len reports the total number of reminders held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot captures the registry in insertion order.
func (r *Registry) Snapshot() domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() domain.Snapshot {
	reminders := make([]domain.Reminder, 0, len(r.byID))
	for _, e := range r.byID {
		reminders = append(reminders, e.reminder)
	}
	sort.Slice(reminders, func(i, j int) bool { return reminders[i].Seq < reminders[j].Seq })
	return domain.Snapshot{Reminders: reminders}
}

// Restore replaces the registry contents with snapshot. Reminders keep their
// relative order and are renumbered 1..n; missing ids are generated and
// missing fire times are taken from the event time. A fire time after its
// event is clamped to the event.
func (r *Registry) Restore(snapshot domain.Snapshot) error {
	byID := make(map[string]*entry, len(snapshot.Reminders))
	queue := make(reminderHeap, 0, len(snapshot.Reminders))
	var seq uint64
	for _, rem := range snapshot.Reminders {
		if rem.ID == "" {
			rem.ID = r.newID()
		}
		if rem.FireTime.IsZero() {
			rem.FireTime = rem.EventTime
		}
		if rem.FireTime.After(rem.EventTime) {
			r.logger.Warn("Registry: %s fires at %s after its event at %s; clamping to the event",
				rem.ID, rem.FireTime.Format(time.RFC3339), rem.EventTime.Format(time.RFC3339))
			rem.FireTime = rem.EventTime
		}
		if err := rem.Validate(); err != nil {
			return fmt.Errorf("registry: restore %s: %w", rem.ID, err)
		}
		if _, exists := byID[rem.ID]; exists {
			return fmt.Errorf("registry: restore: %w: duplicate id %s", domain.ErrInvalidReminder, rem.ID)
		}
		seq++
		rem.Seq = seq
		e := &entry{reminder: rem, index: -1}
		byID[rem.ID] = e
		if rem.Dispatchable() {
			e.index = len(queue)
			queue = append(queue, e)
		}
	}
	heap.Init(&queue)

	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	r.mu.Lock()
	r.byID = byID
	r.queue = queue
	r.seq = seq
	r.mu.Unlock()
	r.dirty.Store(false)
	return nil
}

// Load restores the registry from the backing store.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("registry: load: %w", err)
	}
	if err := r.Restore(snapshot); err != nil {
		return err
	}
	r.logger.Info("Registry: loaded %d reminders", len(snapshot.Reminders))
	return nil
}

// Persist writes the current state to the store unconditionally.
func (r *Registry) Persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	if err := r.save(ctx, r.Snapshot()); err != nil {
		return fmt.Errorf("registry: persist: %w", err)
	}
	return nil
}

// Flush persists only when an earlier save failed.
func (r *Registry) Flush(ctx context.Context) error {
	if !r.dirty.Load() {
		return nil
	}
	return r.Persist(ctx)
}

// Dirty reports whether the in-memory state is ahead of the store.
func (r *Registry) Dirty() bool {
	return r.dirty.Load()
}

// save must be called with persistMu held.
func (r *Registry) save(ctx context.Context, snapshot domain.Snapshot) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, snapshot); err != nil {
		r.dirty.Store(true)
		r.logger.Error("Registry: save failed: %v", err)
		return err
	}
	r.dirty.Store(false)
	return nil
}

// IsNotFound reports whether err means the reminder id is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrReminderNotFound)
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	appreminder "marco/internal/app/reminder"
	domain "marco/internal/domain/reminder"
	"marco/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{Reminders: []domain.Reminder{
		{
			ID: "rem-a", UserID: 42, Task: "call mom",
			EventTime: base.Add(2 * time.Hour), FireTime: base.Add(110 * time.Minute),
			CreatedAt: base,
		},
		{
			ID: "rem-b", UserID: 7, Task: "اجتماع الفريق",
			EventTime: base.Add(time.Hour), FireTime: base.Add(time.Hour),
			Fired: true, CreatedAt: base.Add(time.Minute),
		},
		{
			ID: "rem-c", UserID: 42, Task: "renew passport",
			EventTime: base.Add(24 * time.Hour), FireTime: base.Add(23 * time.Hour),
			Attempts: 20, DeadLettered: true, CreatedAt: base.Add(2 * time.Minute),
		},
	}}
}

// assertSameSnapshot compares reminders ignoring Seq and time zone representation.
func assertSameSnapshot(t *testing.T, want, got domain.Snapshot) {
	t.Helper()
	require.Len(t, got.Reminders, len(want.Reminders))
	for i := range want.Reminders {
		w, g := want.Reminders[i], got.Reminders[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.UserID, g.UserID)
		assert.Equal(t, w.Task, g.Task)
		assert.True(t, w.EventTime.Equal(g.EventTime), "event time %s != %s", w.EventTime, g.EventTime)
		assert.True(t, w.FireTime.Equal(g.FireTime), "fire time %s != %s", w.FireTime, g.FireTime)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt), "created at %s != %s", w.CreatedAt, g.CreatedAt)
		assert.Equal(t, w.Fired, g.Fired)
		assert.Equal(t, w.Attempts, g.Attempts)
		assert.Equal(t, w.DeadLettered, g.DeadLettered)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "reminders.json"))
	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Reminders)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	store := NewFileStore(path)
	want := sampleSnapshot()

	require.NoError(t, store.Save(context.Background(), want))
	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assertSameSnapshot(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStoreWritesInteropShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	require.NoError(t, NewFileStore(path).Save(context.Background(), sampleSnapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, key := range []string{`"scheduled_reminders"`, `"task"`, `"time"`, `"reminder_send_time"`, `"user_id"`, `"fired"`} {
		assert.Contains(t, text, key)
	}
	assert.Contains(t, text, `"2026-03-14T11:30:00Z"`)
}

func TestFileStoreReadsOriginalBotDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	legacy := `{
  "scheduled_reminders": [
    {
      "task": "drink water",
      "time": "2026-03-15T15:00:00",
      "reminder_send_time": "2026-03-15T14:50:00",
      "user_id": 123456
    },
    {
      "task": "gym",
      "time": "2026-03-16T07:00:00.250000",
      "reminder_send_time": "2026-03-16T06:45:00.250000",
      "user_id": 654321,
      "fired": true
    }
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	dubai := time.FixedZone("GST", 4*60*60)
	snapshot, err := NewFileStore(path, WithLocation(dubai)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Reminders, 2)

	first := snapshot.Reminders[0]
	assert.Empty(t, first.ID)
	assert.Equal(t, "drink water", first.Task)
	assert.Equal(t, int64(123456), first.UserID)
	assert.True(t, first.EventTime.Equal(time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC)))
	assert.True(t, first.FireTime.Equal(time.Date(2026, 3, 15, 10, 50, 0, 0, time.UTC)))
	assert.False(t, first.Fired)

	second := snapshot.Reminders[1]
	assert.True(t, second.Fired)
	assert.Equal(t, 250*time.Millisecond, time.Duration(second.EventTime.Nanosecond()))
}

func TestRegistryLoadsOriginalBotRowWithNegativeLead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	legacy := `{
  "scheduled_reminders": [
    {"task": "call mom", "time": "2026-03-15T11:00:00", "reminder_send_time": "2026-03-15T10:50:00", "user_id": 1},
    {"task": "stretch", "time": "2026-03-15T10:00:00", "reminder_send_time": "2026-03-15T10:05:00", "user_id": 2}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	reg := appreminder.NewRegistry(NewFileStore(path, WithLocation(time.UTC)))
	require.NoError(t, reg.Load(context.Background()))
	require.Equal(t, 2, reg.Len())

	byTask := map[string]domain.Reminder{}
	for _, rem := range reg.All() {
		byTask[rem.Task] = rem
	}
	stretch := byTask["stretch"]
	assert.True(t, stretch.FireTime.Equal(stretch.EventTime))
	assert.True(t, byTask["call mom"].FireTime.Equal(time.Date(2026, 3, 15, 10, 50, 0, 0, time.UTC)))
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scheduled_reminders": [{"task": "x", "time": "tomorrow"}]}`), 0o600))
	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tomorrow")
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFileStore(filepath.Join(t.TempDir(), "r.json")).Save(ctx, sampleSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "marco.db"))
	require.NoError(t, err)
	store, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Reminders)

	want := sampleSnapshot()
	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameSnapshot(t, want, got)
}

func TestSQLiteStoreSaveReplacesContents(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	next := sampleSnapshot()
	next.Reminders = next.Reminders[1:]
	next.Reminders[0].Attempts = 3
	require.NoError(t, store.Save(ctx, next))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameSnapshot(t, next, got)
}

func TestSQLiteStoreRejectsMissingID(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	bad := sampleSnapshot()
	bad.Reminders[1].ID = ""
	require.Error(t, store.Save(ctx, bad))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameSnapshot(t, sampleSnapshot(), got)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	pool, cleanup := testutil.NewPostgresTestPool(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(pool, nil)
	require.NoError(t, store.EnsureSchema(ctx))

	want := sampleSnapshot()
	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assertSameSnapshot(t, want, got)

	want.Reminders = want.Reminders[:1]
	require.NoError(t, store.Save(ctx, want))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assertSameSnapshot(t, want, got)
}

func TestRedisPendingStore(t *testing.T) {
	addr := testutil.RedisAddr(t)
	store := NewRedisPendingStore(addr, "", 0, time.Minute)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	userID := time.Now().UnixNano()
	_, ok, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	pending := domain.Pending{
		Intent: domain.ParsedIntent{
			Task:        "pay rent",
			EventTime:   time.Now().Add(time.Hour).UTC().Truncate(time.Second),
			LeadMinutes: 15,
			Locale:      domain.LocaleEnglish,
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Set(ctx, userID, pending))

	got, ok, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pending.Intent.Task, got.Intent.Task)
	assert.True(t, pending.Intent.EventTime.Equal(got.Intent.EventTime))
	assert.Equal(t, 15, got.Intent.LeadMinutes)

	ttl, err := store.client.TTL(ctx, pendingKey(userID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, store.Delete(ctx, userID))
	_, ok, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	expired := pending
	expired.CreatedAt = time.Now().Add(-2 * time.Minute)
	require.NoError(t, store.Set(ctx, userID, expired))
	_, ok, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok, "an already expired pending entry is not stored")
}

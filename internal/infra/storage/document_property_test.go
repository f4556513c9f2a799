package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	domain "marco/internal/domain/reminder"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func remindersFrom(offsets []int) domain.Snapshot {
	var snapshot domain.Snapshot
	for i, offset := range offsets {
		event := base.Add(time.Duration(offset) * time.Second)
		snapshot.Reminders = append(snapshot.Reminders, domain.Reminder{
			ID:        fmt.Sprintf("rem-%d", i),
			UserID:    int64(offset % 7),
			Task:      fmt.Sprintf("task %d", offset),
			EventTime: event,
			FireTime:  event.Add(-time.Duration(i%60) * time.Minute),
			Fired:     i%2 == 0,
			Attempts:  i % 4,
			CreatedAt: base,
		})
	}
	return snapshot
}

func sameSnapshot(a, b domain.Snapshot) bool {
	if len(a.Reminders) != len(b.Reminders) {
		return false
	}
	for i := range a.Reminders {
		x, y := a.Reminders[i], b.Reminders[i]
		if x.ID != y.ID || x.UserID != y.UserID || x.Task != y.Task || x.Fired != y.Fired ||
			x.Attempts != y.Attempts || !x.EventTime.Equal(y.EventTime) || !x.FireTime.Equal(y.FireTime) {
			return false
		}
	}
	return true
}

func TestPropertyStoresRoundTrip(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	properties := gopter.NewProperties(params)
	dir := t.TempDir()

	db, err := OpenSQLite(filepath.Join(dir, "prop.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlite, err := NewSQLiteStore(context.Background(), db)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer func() { _ = sqlite.Close() }()

	run := 0
	properties.Property("save then load yields the same snapshot", prop.ForAll(
		func(offsets []int) bool {
			ctx := context.Background()
			want := remindersFrom(offsets)
			run++

			file := NewFileStore(filepath.Join(dir, fmt.Sprintf("r-%d.json", run)))
			if err := file.Save(ctx, want); err != nil {
				return false
			}
			fromFile, err := file.Load(ctx)
			if err != nil || !sameSnapshot(want, fromFile) {
				return false
			}

			if err := sqlite.Save(ctx, want); err != nil {
				return false
			}
			fromDB, err := sqlite.Load(ctx)
			return err == nil && sameSnapshot(want, fromDB)
		},
		gen.SliceOf(gen.IntRange(0, 1_000_000)),
	))

	properties.TestingRun(t)
}

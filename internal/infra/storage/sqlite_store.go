package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "marco/internal/domain/reminder"
	"marco/internal/infra/filestore"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database at path with WAL enabled.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := filestore.EnsureParentDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; WAL lets readers proceed
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SQLiteStore persists reminders as rows. Each save is one transaction that
// upserts the snapshot and removes rows it no longer contains.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and creates the schema if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS reminders (
        id TEXT PRIMARY KEY,
        seq INTEGER NOT NULL,
        user_id INTEGER NOT NULL,
        task TEXT NOT NULL,
        event_time TEXT NOT NULL,
        fire_time TEXT NOT NULL,
        fired INTEGER NOT NULL DEFAULT 0,
        attempts INTEGER NOT NULL DEFAULT 0,
        dead_lettered INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL DEFAULT '',
        generation INTEGER NOT NULL DEFAULT 0
    );
    CREATE INDEX IF NOT EXISTS idx_reminders_seq ON reminders (seq);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Load returns every row in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) (domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, task, event_time, fire_time, fired, attempts, dead_lettered, created_at
        FROM reminders
        ORDER BY seq ASC`)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("sqlite store: load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot domain.Snapshot
	for rows.Next() {
		var (
			rem                  domain.Reminder
			event, fire, created string
			fired, deadLettered  int
		)
		if err := rows.Scan(&rem.ID, &rem.UserID, &rem.Task, &event, &fire, &fired, &rem.Attempts, &deadLettered, &created); err != nil {
			return domain.Snapshot{}, fmt.Errorf("sqlite store: scan: %w", err)
		}
		if rem.EventTime, err = parseTimestamp(event, time.UTC); err != nil {
			return domain.Snapshot{}, fmt.Errorf("sqlite store: %s: %w", rem.ID, err)
		}
		if rem.FireTime, err = parseTimestamp(fire, time.UTC); err != nil {
			return domain.Snapshot{}, fmt.Errorf("sqlite store: %s: %w", rem.ID, err)
		}
		if rem.CreatedAt, err = parseTimestamp(created, time.UTC); err != nil {
			return domain.Snapshot{}, fmt.Errorf("sqlite store: %s: %w", rem.ID, err)
		}
		rem.Fired = fired != 0
		rem.DeadLettered = deadLettered != 0
		snapshot.Reminders = append(snapshot.Reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("sqlite store: load: %w", err)
	}
	return snapshot, nil
}

// Save replaces the table contents with snapshot in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snapshot domain.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var generation int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(generation), 0) + 1 FROM reminders`).Scan(&generation); err != nil {
		return fmt.Errorf("sqlite store: generation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO reminders (id, seq, user_id, task, event_time, fire_time, fired, attempts, dead_lettered, created_at, generation)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            seq = excluded.seq,
            user_id = excluded.user_id,
            task = excluded.task,
            event_time = excluded.event_time,
            fire_time = excluded.fire_time,
            fired = excluded.fired,
            attempts = excluded.attempts,
            dead_lettered = excluded.dead_lettered,
            created_at = excluded.created_at,
            generation = excluded.generation`)
	if err != nil {
		return fmt.Errorf("sqlite store: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, rem := range snapshot.Reminders {
		if rem.ID == "" {
			return fmt.Errorf("sqlite store: reminder %d has no id", i)
		}
		if _, err = stmt.ExecContext(ctx,
			rem.ID, i+1, rem.UserID, rem.Task,
			formatTimestamp(rem.EventTime), formatTimestamp(rem.FireTime),
			boolToInt(rem.Fired), rem.Attempts, boolToInt(rem.DeadLettered),
			formatTimestamp(rem.CreatedAt), generation,
		); err != nil {
			return fmt.Errorf("sqlite store: upsert %s: %w", rem.ID, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM reminders WHERE generation <> ?`, generation); err != nil {
		return fmt.Errorf("sqlite store: prune: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

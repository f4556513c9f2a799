package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "marco/internal/domain/reminder"
	"marco/internal/shared/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reminderTable = "marco_reminders"

// PostgresStore persists reminders in a Postgres table through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresStore wraps pool. Call EnsureSchema before first use.
func NewPostgresStore(pool *pgxpool.Pool, logger logging.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logging.OrNop(logger),
	}
}

// OpenPostgres connects to dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, logger logging.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	store := NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the reminder table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store not initialized")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    seq BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    task TEXT NOT NULL,
    event_time TIMESTAMPTZ NOT NULL,
    fire_time TIMESTAMPTZ NOT NULL,
    fired BOOLEAN NOT NULL DEFAULT FALSE,
    attempts INTEGER NOT NULL DEFAULT 0,
    dead_lettered BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ,
    generation BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_%s_seq ON %s (seq);
`, reminderTable, reminderTable, reminderTable)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgres store: schema: %w", err)
	}
	return nil
}

// Load returns every row in insertion order.
func (s *PostgresStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if s == nil || s.pool == nil {
		return domain.Snapshot{}, fmt.Errorf("postgres store not initialized")
	}
	query := fmt.Sprintf(`
SELECT id, user_id, task, event_time, fire_time, fired, attempts, dead_lettered, created_at
FROM %s
ORDER BY seq ASC
`, reminderTable)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres store: load: %w", err)
	}
	defer rows.Close()

	var snapshot domain.Snapshot
	for rows.Next() {
		var (
			rem     domain.Reminder
			created *time.Time
		)
		if err := rows.Scan(&rem.ID, &rem.UserID, &rem.Task, &rem.EventTime, &rem.FireTime,
			&rem.Fired, &rem.Attempts, &rem.DeadLettered, &created); err != nil {
			return domain.Snapshot{}, fmt.Errorf("postgres store: scan: %w", err)
		}
		if created != nil {
			rem.CreatedAt = *created
		}
		snapshot.Reminders = append(snapshot.Reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres store: load: %w", err)
	}
	return snapshot, nil
}

// Save replaces the table contents with snapshot in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store not initialized")
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var generation int64
		if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(generation), 0) + 1 FROM %s`, reminderTable)).Scan(&generation); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("generation: %w", err)
			}
			generation = 1
		}

		upsert := fmt.Sprintf(`
INSERT INTO %s (id, seq, user_id, task, event_time, fire_time, fired, attempts, dead_lettered, created_at, generation)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    seq = EXCLUDED.seq,
    user_id = EXCLUDED.user_id,
    task = EXCLUDED.task,
    event_time = EXCLUDED.event_time,
    fire_time = EXCLUDED.fire_time,
    fired = EXCLUDED.fired,
    attempts = EXCLUDED.attempts,
    dead_lettered = EXCLUDED.dead_lettered,
    created_at = EXCLUDED.created_at,
    generation = EXCLUDED.generation
`, reminderTable)

		batch := &pgx.Batch{}
		for i, rem := range snapshot.Reminders {
			if rem.ID == "" {
				return fmt.Errorf("reminder %d has no id", i)
			}
			var created *time.Time
			if !rem.CreatedAt.IsZero() {
				ts := rem.CreatedAt
				created = &ts
			}
			batch.Queue(upsert, rem.ID, int64(i+1), rem.UserID, rem.Task, rem.EventTime, rem.FireTime,
				rem.Fired, rem.Attempts, rem.DeadLettered, created, generation)
		}
		batch.Queue(fmt.Sprintf(`DELETE FROM %s WHERE generation <> $1`, reminderTable), generation)

		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres store: save: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"marco/internal/shared/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const testDatabaseEnv = "MARCO_TEST_POSTGRES_DSN"

// NewPostgresTestPool connects to MARCO_TEST_POSTGRES_DSN inside a throwaway
// schema. The test is skipped when the variable is unset.
func NewPostgresTestPool(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	dbURL := envOrSkip(t, testDatabaseEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adminPool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("create postgres pool: %v", err)
	}
	if err := adminPool.Ping(ctx); err != nil {
		adminPool.Close()
		t.Skipf("postgres not reachable: %v", err)
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	if _, err := adminPool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		adminPool.Close()
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		adminPool.Close()
		t.Fatalf("parse postgres config: %v", err)
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = make(map[string]string)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		adminPool.Close()
		t.Fatalf("create test postgres pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = adminPool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		adminPool.Close()
	}
	return pool, cleanup
}

func envOrSkip(t *testing.T, key string) string {
	t.Helper()
	raw, ok := config.DefaultEnvLookup(key)
	value := strings.TrimSpace(raw)
	if !ok || value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORAGE", "IDEMPOTENCY_BACKEND", "IDEMPOTENCY_WAIT_ATTEMPTS",
		"IDEMPOTENCY_WAIT_DELAY_MS", "IDEMPOTENCY_COALESCE", "IDEMPOTENCY_RETENTION_MS", "IDEMPOTENCY_LEASE_MS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "pg", cfg.Storage)
	require.Equal(t, "store", cfg.IdempotencyBackend)
	require.Equal(t, 5, cfg.WaitAttempts)
	require.Equal(t, 50*time.Millisecond, cfg.WaitDelay)
	require.False(t, cfg.Coalesce)
	require.Zero(t, cfg.Retention)
	require.Equal(t, 30*time.Second, cfg.RedisLease)
	require.Equal(t, 24*time.Hour, cfg.RedisTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("IDEMPOTENCY_WAIT_ATTEMPTS", "9")
	t.Setenv("IDEMPOTENCY_WAIT_DELAY_MS", "20")
	t.Setenv("IDEMPOTENCY_COALESCE", "true")
	t.Setenv("IDEMPOTENCY_RETENTION_MS", "60000")
	t.Setenv("WORKER_BATCH_LIMIT", "nope")

	cfg := Load()
	require.Equal(t, "sqlite", cfg.Storage)
	require.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	require.Equal(t, 9, cfg.WaitAttempts)
	require.Equal(t, 20*time.Millisecond, cfg.WaitDelay)
	require.True(t, cfg.Coalesce)
	require.Equal(t, time.Minute, cfg.Retention)
	require.Equal(t, 500, cfg.WorkerBatchSize)
}

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"receipts-service/internal/bootstrap"
	"receipts-service/internal/idempotency"
	"receipts-service/internal/infrastructure/memory"

	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *memory.IdempotencyStore, key string, payload []byte) {
	t.Helper()
	err := s.Transact(context.Background(), func(ctx context.Context) error {
		rec, err := s.Reserve(ctx, key)
		if err != nil {
			return err
		}
		return s.SetResult(ctx, rec.ID, payload)
	})
	require.NoError(t, err)
}

func testDeps(s *memory.IdempotencyStore, now time.Time) deps {
	return deps{
		store: func(context.Context) (idempotency.Store, func(), error) { return s, func() {}, nil },
		backend: func(context.Context) (bootstrap.Backend, func(), error) {
			return bootstrap.Backend{
				Name:    "memory",
				Records: s,
				Purger:  s,
				Ping:    func(context.Context) error { return nil },
			}, func() {}, nil
		},
		now: func() time.Time { return now },
	}
}

func run(t *testing.T, d deps, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(d)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLookup(t *testing.T) {
	s := memory.NewIdempotencyStore()
	seed(t, s, "k1", []byte(`{"id":"r1"}`))

	out, err := run(t, testDeps(s, time.Now()), "lookup", "k1")
	require.NoError(t, err)
	require.Contains(t, out, `"state": "resolved"`)
	require.Contains(t, out, `"id": "r1"`)

	_, err = run(t, testDeps(s, time.Now()), "lookup", "missing")
	require.ErrorContains(t, err, `no record for key "missing"`)
}

func TestPurge(t *testing.T) {
	s := memory.NewIdempotencyStore()
	seed(t, s, "a", []byte(`1`))
	seed(t, s, "b", []byte(`2`))

	out, err := run(t, testDeps(s, time.Now().Add(48*time.Hour)), "purge", "--older-than", "1h", "--batch", "1")
	require.NoError(t, err)
	require.Contains(t, out, "purged 2 records")

	_, err = s.Find(context.Background(), "a")
	require.Error(t, err)
}

func TestPurge_RejectsNonPositiveAge(t *testing.T) {
	_, err := run(t, testDeps(memory.NewIdempotencyStore(), time.Now()), "purge", "--older-than", "0s")
	require.ErrorContains(t, err, "--older-than must be positive")
}

func TestMigrate(t *testing.T) {
	out, err := run(t, testDeps(memory.NewIdempotencyStore(), time.Now()), "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "memory schema is up to date")
}

package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWait_ResolvesOnLaterAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := Wait(context.Background(), WaitPolicy{MaxAttempts: 5, Delay: time.Millisecond},
		func(context.Context) (string, bool, error) {
			calls++
			return "done", calls == 3, nil
		})
	require.NoError(t, err)
	require.Equal(t, "done", got)
	require.Equal(t, 3, calls)
}

func TestWait_ExhaustsExactlyMaxAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Wait(context.Background(), WaitPolicy{MaxAttempts: 4, Delay: time.Millisecond},
		func(context.Context) (int, bool, error) {
			calls++
			return 0, false, nil
		})
	require.ErrorIs(t, err, ErrCoordinationTimeout)
	require.Equal(t, 4, calls)
}

func TestWait_LookupErrorStops(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	calls := 0
	_, err := Wait(context.Background(), WaitPolicy{MaxAttempts: 5, Delay: time.Millisecond},
		func(context.Context) (int, bool, error) {
			calls++
			return 0, false, boom
		})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestWait_CancellationAbortsPromptly(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := Wait(ctx, WaitPolicy{MaxAttempts: 10, Delay: time.Second},
		func(context.Context) (int, bool, error) { return 0, false, nil })
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWait_CancelledContextSkipsLookup(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Wait(ctx, DefaultWaitPolicy, func(context.Context) (int, bool, error) {
		calls++
		return 1, true, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls)
}

func TestWaitPolicy_Normalize(t *testing.T) {
	t.Parallel()
	p := WaitPolicy{MaxAttempts: 0, Delay: -time.Second}.normalize()
	require.Equal(t, DefaultWaitPolicy.MaxAttempts, p.MaxAttempts)
	require.Zero(t, p.Delay)
}

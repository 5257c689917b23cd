package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{Window: 900 * time.Second, MaxAttempts: 3, Cooldown: 900 * time.Second}

func TestMemoryStoreRecord(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	_, err := store.CheckAndRecord(context.Background(), "k", testPolicy, now)
	require.NoError(t, err)

	e, ok := store.records["k"]
	require.True(t, ok)
	require.Equal(t, now, e.rec.WindowStart)
	require.Equal(t, 1, e.rec.AttemptCount)
	require.True(t, e.rec.CooldownUntil.IsZero())
	require.Equal(t, now.Add(testPolicy.Window), e.rec.ExpiresAt(testPolicy))
}

func TestMemoryStoreDeleteStale(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	_, err := store.CheckAndRecord(ctx, "old", testPolicy, start)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = store.CheckAndRecord(ctx, "cooling", testPolicy, start)
		require.NoError(t, err)
	}
	_, err = store.CheckAndRecord(ctx, "fresh", testPolicy, start.Add(20*time.Minute))
	require.NoError(t, err)

	// The cooldown on "cooling" runs to start+15m, so a cutoff at start+10m keeps it.
	n, err := store.DeleteStale(ctx, start.Add(10*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, store.records, "cooling")
	require.Contains(t, store.records, "fresh")

	n, err = store.DeleteStale(ctx, start.Add(16*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotContains(t, store.records, "cooling")
	require.Contains(t, store.records, "fresh")
}

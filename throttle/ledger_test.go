package throttle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var emailPolicy = throttle.Policy{Window: 900 * time.Second, MaxAttempts: 3, Cooldown: 900 * time.Second}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRedisStore(t *testing.T) throttle.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return throttle.NewRedisStore(client, "test")
}

// backends runs fn against every store implementation so they stay in step.
func backends(t *testing.T, fn func(t *testing.T, store throttle.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, throttle.NewMemoryStore()) })
	t.Run("redis", func(t *testing.T) { fn(t, newRedisStore(t)) })
}

func TestFourthAttemptDenied(t *testing.T) {
	backends(t, func(t *testing.T, store throttle.Store) {
		clk := &clock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
		ledger, err := throttle.NewLedger(store, throttle.WithNowTime(clk.Now))
		require.NoError(t, err)
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			d, err := ledger.CheckAndRecord(ctx, "acme:email:abc", emailPolicy)
			require.NoError(t, err)
			require.True(t, d.Allowed, "attempt %d", i)
			require.Equal(t, i, d.Count)
			clk.Advance(time.Minute)
		}

		d, err := ledger.CheckAndRecord(ctx, "acme:email:abc", emailPolicy)
		require.NoError(t, err)
		require.False(t, d.Allowed)
		require.Greater(t, d.RetryAfter, time.Duration(0))
		require.Equal(t, 900, d.RetryAfterSeconds())
	})
}

func TestScopesAreIndependent(t *testing.T) {
	backends(t, func(t *testing.T, store throttle.Store) {
		clk := &clock{now: time.Now()}
		ledger, err := throttle.NewLedger(store, throttle.WithNowTime(clk.Now))
		require.NoError(t, err)
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			_, err := ledger.CheckAndRecord(ctx, "a", emailPolicy)
			require.NoError(t, err)
		}
		d, err := ledger.CheckAndRecord(ctx, "b", emailPolicy)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	})
}

func TestCooldownThenReset(t *testing.T) {
	backends(t, func(t *testing.T, store throttle.Store) {
		clk := &clock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
		policy := throttle.Policy{Window: time.Minute, MaxAttempts: 1, Cooldown: 10 * time.Minute}
		ledger, err := throttle.NewLedger(store, throttle.WithNowTime(clk.Now))
		require.NoError(t, err)
		ctx := context.Background()

		d, _ := ledger.CheckAndRecord(ctx, "k", policy)
		require.True(t, d.Allowed)
		d, _ = ledger.CheckAndRecord(ctx, "k", policy)
		require.False(t, d.Allowed)
		require.Equal(t, 10*time.Minute, d.RetryAfter)

		// The window has long passed but the cooldown still holds.
		clk.Advance(5 * time.Minute)
		d, _ = ledger.CheckAndRecord(ctx, "k", policy)
		require.False(t, d.Allowed)
		require.Equal(t, 5*time.Minute, d.RetryAfter)

		clk.Advance(5*time.Minute + time.Second)
		d, _ = ledger.CheckAndRecord(ctx, "k", policy)
		require.True(t, d.Allowed)
		require.Equal(t, 1, d.Count)
	})
}

func TestWindowResets(t *testing.T) {
	backends(t, func(t *testing.T, store throttle.Store) {
		clk := &clock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
		ledger, err := throttle.NewLedger(store, throttle.WithNowTime(clk.Now))
		require.NoError(t, err)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			d, _ := ledger.CheckAndRecord(ctx, "k", emailPolicy)
			require.True(t, d.Allowed)
		}
		clk.Advance(emailPolicy.Window + time.Second)

		d, err := ledger.CheckAndRecord(ctx, "k", emailPolicy)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1, d.Count)
	})
}

func TestZeroCooldownHoldsUntilWindowEnd(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
	policy := throttle.Policy{Window: 10 * time.Minute, MaxAttempts: 1}
	ledger, err := throttle.NewLedger(throttle.NewMemoryStore(), throttle.WithNowTime(clk.Now))
	require.NoError(t, err)

	_, _ = ledger.CheckAndRecord(context.Background(), "k", policy)
	clk.Advance(4 * time.Minute)
	d, _ := ledger.CheckAndRecord(context.Background(), "k", policy)
	require.False(t, d.Allowed)
	require.Equal(t, 6*time.Minute, d.RetryAfter)
}

func TestConcurrentAttemptsNeverExceedBudget(t *testing.T) {
	backends(t, func(t *testing.T, store throttle.Store) {
		ledger, err := throttle.NewLedger(store)
		require.NoError(t, err)
		policy := throttle.Policy{Window: time.Hour, MaxAttempts: 10, Cooldown: time.Hour}

		var allowed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := ledger.CheckAndRecord(context.Background(), "hot", policy)
				if err == nil && d.Allowed {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(10), allowed.Load())
	})
}

func TestLedgerValidation(t *testing.T) {
	_, err := throttle.NewLedger(nil)
	require.Error(t, err)

	ledger, err := throttle.NewLedger(throttle.NewMemoryStore())
	require.NoError(t, err)

	_, err = ledger.CheckAndRecord(context.Background(), "", emailPolicy)
	require.Error(t, err)
	_, err = ledger.CheckAndRecord(context.Background(), "k", throttle.Policy{Window: time.Minute})
	require.Error(t, err)
	_, err = ledger.CheckAndRecord(context.Background(), "k", throttle.Policy{MaxAttempts: 1})
	require.Error(t, err)
}

func TestScopeKey(t *testing.T) {
	require.Equal(t, "magic:email:t-1:abc", throttle.ScopeKey("magic", "email", "t-1", "abc"))
}

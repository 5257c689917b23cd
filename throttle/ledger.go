// Package throttle implements a fixed-window attempt ledger with cooldown
// escalation. Stores make the read-increment-compare step atomic; the window
// arithmetic lives in Policy.Apply so every backend behaves identically.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Policy bounds attempts for one scope.
type Policy struct {
	Window      time.Duration
	MaxAttempts int
	// Cooldown applies once MaxAttempts is exceeded. Zero holds the scope
	// until the current window ends.
	Cooldown time.Duration
}

func (p Policy) Validate() error {
	if p.Window <= 0 {
		return errors.New("throttle window must be positive")
	}
	if p.MaxAttempts < 1 {
		return errors.New("throttle max attempts must be at least 1")
	}
	if p.Cooldown < 0 {
		return errors.New("throttle cooldown must not be negative")
	}
	return nil
}

// Record is the persisted state of one scope.
type Record struct {
	ScopeKey      string
	WindowStart   time.Time
	AttemptCount  int
	CooldownUntil time.Time // zero when no cooldown is active
}

// ExpiresAt is the instant after which the record carries no information.
func (r Record) ExpiresAt(p Policy) time.Time {
	end := r.WindowStart.Add(p.Window)
	if r.CooldownUntil.After(end) {
		return r.CooldownUntil
	}
	return end
}

// Decision is the outcome of one CheckAndRecord call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // whole seconds, at least one second when denied
	Count      int
}

// RetryAfterSeconds returns RetryAfter as an integer for Retry-After headers.
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// Apply records one attempt against rec at now. exists is false for a scope
// with no stored state. The returned record must be persisted in the same
// atomic step that read rec.
func (p Policy) Apply(rec Record, exists bool, now time.Time) (Record, Decision) {
	if !exists {
		rec = Record{ScopeKey: rec.ScopeKey, WindowStart: now}
	}

	if !rec.CooldownUntil.IsZero() {
		if now.Before(rec.CooldownUntil) {
			rec.AttemptCount++
			return rec, Decision{RetryAfter: ceilSeconds(rec.CooldownUntil.Sub(now)), Count: rec.AttemptCount}
		}
		rec = Record{ScopeKey: rec.ScopeKey, WindowStart: now}
	}

	if now.Sub(rec.WindowStart) > p.Window {
		rec.WindowStart = now
		rec.AttemptCount = 0
	}

	rec.AttemptCount++
	if rec.AttemptCount > p.MaxAttempts {
		if p.Cooldown > 0 {
			rec.CooldownUntil = now.Add(p.Cooldown)
		} else {
			rec.CooldownUntil = rec.WindowStart.Add(p.Window)
		}
		return rec, Decision{RetryAfter: ceilSeconds(rec.CooldownUntil.Sub(now)), Count: rec.AttemptCount}
	}
	return rec, Decision{Allowed: true, Count: rec.AttemptCount}
}

func ceilSeconds(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	secs := (d + time.Second - 1) / time.Second
	return secs * time.Second
}

// Store performs an atomic check-and-record for a scope.
type Store interface {
	CheckAndRecord(ctx context.Context, scopeKey string, p Policy, now time.Time) (Decision, error)
}

// StalePurger is implemented by stores whose records do not expire on their
// own. Redis records carry a TTL and need no purge.
type StalePurger interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Ledger is the entry point used by call sites. The backing store can be
// swapped without touching them.
type Ledger struct {
	store   Store
	nowTime func() time.Time
}

type LedgerOption func(*Ledger)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowTime = nowFunc
	}
}

func NewLedger(store Store, options ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("[NewLedger] store is required")
	}
	l := &Ledger{store: store, nowTime: time.Now}
	for _, opt := range options {
		opt(l)
	}
	return l, nil
}

// CheckAndRecord counts one attempt for scopeKey and reports whether it is
// within policy. Counts already committed stand even if ctx is cancelled later.
func (l *Ledger) CheckAndRecord(ctx context.Context, scopeKey string, p Policy) (Decision, error) {
	if scopeKey == "" {
		return Decision{}, errors.New("[Ledger CheckAndRecord] scope key is required")
	}
	if err := p.Validate(); err != nil {
		return Decision{}, fmt.Errorf("[Ledger CheckAndRecord] %w", err)
	}
	d, err := l.store.CheckAndRecord(ctx, scopeKey, p, l.nowTime())
	if err != nil {
		return Decision{}, fmt.Errorf("[Ledger CheckAndRecord] %w", err)
	}
	return d, nil
}

// ScopeKey joins key parts with ':'. Parts must already be hashed where they
// hold personal data.
func ScopeKey(parts ...string) string {
	return strings.Join(parts, ":")
}

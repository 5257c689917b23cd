package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jrsteele09/tutorhub-auth/internal/dbx"
	"github.com/jrsteele09/tutorhub-auth/throttle"
)

var (
	_ throttle.Store       = (*ThrottleStore)(nil)
	_ throttle.StalePurger = (*ThrottleStore)(nil)
)

// ThrottleStore keeps throttle records in Postgres. The row lock taken by
// SELECT ... FOR UPDATE serialises concurrent attempts on one scope.
type ThrottleStore struct {
	db *sql.DB
}

func NewThrottleStore(db *sql.DB) *ThrottleStore {
	return &ThrottleStore{db: db}
}

func (s *ThrottleStore) CheckAndRecord(ctx context.Context, scopeKey string, p throttle.Policy, now time.Time) (throttle.Decision, error) {
	var decision throttle.Decision
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO throttle_records (scope_key, window_start, attempt_count)
			VALUES ($1, $2, 0)
			ON CONFLICT (scope_key) DO NOTHING
		`, scopeKey, now)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		rec := throttle.Record{ScopeKey: scopeKey}
		var cooldown sql.NullTime
		if err := tx.QueryRowContext(ctx, `
			SELECT window_start, attempt_count, cooldown_until
			FROM throttle_records
			WHERE scope_key = $1
			FOR UPDATE
		`, scopeKey).Scan(&rec.WindowStart, &rec.AttemptCount, &cooldown); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if cooldown.Valid {
			rec.CooldownUntil = cooldown.Time
		}

		var next throttle.Record
		next, decision = p.Apply(rec, inserted == 0, now)

		if _, err := tx.ExecContext(ctx, `
			UPDATE throttle_records
			SET window_start = $2, attempt_count = $3, cooldown_until = $4
			WHERE scope_key = $1
		`, scopeKey, next.WindowStart, next.AttemptCount, nullTime(next.CooldownUntil)); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return throttle.Decision{}, err
	}
	return decision, nil
}

// DeleteStale removes records whose window started, and whose cooldown ended,
// before cutoff.
func (s *ThrottleStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM throttle_records
		WHERE window_start < $1 AND (cooldown_until IS NULL OR cooldown_until < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

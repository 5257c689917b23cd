package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/tutorhub-auth/internal/dbx"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/magiclink"
	"github.com/jrsteele09/tutorhub-auth/sessions"
)

var _ magiclink.Store = (*MagicLinkRepository)(nil)

// MagicLinkRepository implements magiclink.Store. Redeem marks the token and
// inserts the session in one transaction.
type MagicLinkRepository struct {
	db *sql.DB
}

func NewMagicLinkRepository(db *sql.DB) *MagicLinkRepository {
	return &MagicLinkRepository{db: db}
}

func (r *MagicLinkRepository) Create(ctx context.Context, t *magiclink.Token) error {
	query := `
		INSERT INTO magic_link_tokens (id, token_hash, identifier_hash, tenant_id, parent_user_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.TokenHash, t.IdentifierHash, t.TenantID, t.ParentUserID, t.IssuedAt, t.ExpiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *MagicLinkRepository) FindByHash(ctx context.Context, tenantID, tokenHash string) (*magiclink.Token, error) {
	query := `
		SELECT id, token_hash, identifier_hash, tenant_id, parent_user_id, issued_at, expires_at, consumed_at
		FROM magic_link_tokens
		WHERE tenant_id = $1 AND token_hash = $2
	`
	var (
		t          magiclink.Token
		consumedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, tenantID, tokenHash).Scan(
		&t.ID, &t.TokenHash, &t.IdentifierHash, &t.TenantID, &t.ParentUserID, &t.IssuedAt, &t.ExpiresAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMagicLinkNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if consumedAt.Valid {
		ts := consumedAt.Time
		t.ConsumedAt = &ts
	}
	return &t, nil
}

// Redeem is a conditional update: only the caller whose UPDATE touches the
// unconsumed row goes on to insert the session.
func (r *MagicLinkRepository) Redeem(ctx context.Context, tokenID string, now time.Time, s *sessions.Session) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE magic_link_tokens
			SET consumed_at = $2
			WHERE id = $1 AND consumed_at IS NULL
		`, tokenID, now)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n == 0 {
			return apperrors.ErrAlreadyConsumed
		}
		return createSession(ctx, tx, s)
	})
}

func (r *MagicLinkRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM magic_link_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

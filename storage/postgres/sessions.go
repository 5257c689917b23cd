package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/tutorhub-auth/internal/dbx"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/sessions"
	"github.com/jrsteele09/tutorhub-auth/users"
)

var _ sessions.Repo = (*SessionRepository)(nil)

// SessionRepository implements sessions.Repo over dbx.DBTX.
type SessionRepository struct {
	db dbx.DBTX
}

func NewSessionRepository(db dbx.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const insertSession = `
	INSERT INTO sessions (id, tenant_id, user_id, role, parent_id, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *SessionRepository) Create(ctx context.Context, s *sessions.Session) error {
	return createSession(ctx, r.db, s)
}

func createSession(ctx context.Context, db dbx.DBTX, s *sessions.Session) error {
	if _, err := db.ExecContext(ctx, insertSession,
		s.ID, s.TenantID, s.UserID, string(s.Role), s.ParentID, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	query := `
		SELECT id, tenant_id, user_id, role, parent_id, created_at, expires_at
		FROM sessions
		WHERE id = $1
	`
	var (
		s    sessions.Session
		role string
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).
		Scan(&s.ID, &s.TenantID, &s.UserID, &role, &s.ParentID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.Role = users.Role(role)
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

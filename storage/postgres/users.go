package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/tutorhub-auth/internal/dbx"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/users"
)

var _ users.UserRepo = (*UserRepository)(nil)

// UserRepository implements users.UserRepo. Memberships live in their own
// table and are replaced wholesale on Upsert.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Upsert(ctx context.Context, u *users.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `
			INSERT INTO users (id, email, name, password_hash, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, password_hash = EXCLUDED.password_hash
		`
		if _, err := tx.ExecContext(ctx, query, u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return apperrors.Wrapf(apperrors.ErrConflict, "email already registered")
			}
			return fmt.Errorf("error performing sql request: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("error performing sql request: %w", err)
		}
		for _, m := range u.Memberships {
			joined := m.JoinedAt
			if joined.IsZero() {
				joined = u.CreatedAt
			}
			insert := `
				INSERT INTO memberships (user_id, tenant_id, role, parent_id, joined_at)
				VALUES ($1, $2, $3, $4, $5)
			`
			if _, err := tx.ExecContext(ctx, insert, u.ID, m.TenantID, string(m.Role), m.ParentID, joined); err != nil {
				return fmt.Errorf("error performing sql request: %w", err)
			}
		}
		return nil
	})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	query := `
		SELECT id, email, name, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	return r.load(ctx, r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	query := `
		SELECT id, email, name, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	return r.load(ctx, r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	query := `
		SELECT id, email, name, password_hash, created_at
		FROM users
		ORDER BY email
		OFFSET $1 LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	var out []*users.User
	for rows.Next() {
		u := &users.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	for _, u := range out {
		if u.Memberships, err = r.memberships(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *UserRepository) load(ctx context.Context, row *sql.Row) (*users.User, error) {
	u := &users.User{}
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	var err error
	if u.Memberships, err = r.memberships(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) memberships(ctx context.Context, userID string) ([]users.Membership, error) {
	query := `
		SELECT tenant_id, role, parent_id, joined_at
		FROM memberships
		WHERE user_id = $1
		ORDER BY joined_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []users.Membership
	for rows.Next() {
		var (
			m    users.Membership
			role string
		)
		if err := rows.Scan(&m.TenantID, &role, &m.ParentID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if m.Role, err = users.ParseRole(role); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

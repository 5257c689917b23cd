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
	"github.com/jrsteele09/tutorhub-auth/tenants"
)

var _ tenants.Repo = (*TenantRepository)(nil)

// TenantRepository implements tenants.Repo over dbx.DBTX.
type TenantRepository struct {
	db dbx.DBTX
}

func NewTenantRepository(db dbx.DBTX) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Upsert(ctx context.Context, t *tenants.Tenant) error {
	t.Slug = tenants.NormaliseSlug(t.Slug)
	if err := tenants.ValidateSlug(t.Slug); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}

	query := `
		INSERT INTO tenants (id, slug, name, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, name = EXCLUDED.name, timezone = EXCLUDED.timezone
	`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.Slug, t.Name, t.Timezone, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrapf(apperrors.ErrConflict, "tenant slug %q taken", t.Slug)
		}
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *TenantRepository) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	query := `
		SELECT id, slug, name, timezone, created_at
		FROM tenants
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, tenantID))
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*tenants.Tenant, error) {
	query := `
		SELECT id, slug, name, timezone, created_at
		FROM tenants
		WHERE slug = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, slug))
}

func (r *TenantRepository) List(ctx context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	query := `
		SELECT id, slug, name, timezone, created_at
		FROM tenants
		ORDER BY slug
		OFFSET $1 LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*tenants.Tenant
	for rows.Next() {
		t := &tenants.Tenant{}
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.Timezone, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *TenantRepository) scanOne(row *sql.Row) (*tenants.Tenant, error) {
	t := &tenants.Tenant{}
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Timezone, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrTenantNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

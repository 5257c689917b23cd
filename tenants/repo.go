package tenants

import "context"

// Repo stores tenants. Lookups that miss return apperrors.ErrTenantNotFound.
type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}

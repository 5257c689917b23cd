package tenantrepofakes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	slugs   map[string]string
	lock    sync.RWMutex
}

func NewFakeTenantRepo() tenants.Repo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
		slugs:   make(map[string]string),
	}
}

func (tr *FakeTenantRepo) Upsert(_ context.Context, tenantData *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	if tenantData.CreatedAt.IsZero() {
		tenantData.CreatedAt = time.Now().UTC()
	}
	if existing, ok := tr.slugs[tenantData.Slug]; ok && existing != tenantData.ID {
		return apperrors.Wrapf(apperrors.ErrConflict, "slug %q already taken", tenantData.Slug)
	}
	if prev, ok := tr.tenants[tenantData.ID]; ok {
		delete(tr.slugs, prev.Slug)
	}
	copied := *tenantData
	tr.tenants[tenantData.ID] = &copied
	tr.slugs[tenantData.Slug] = tenantData.ID
	return nil
}

func (tr *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	copied := *t
	return &copied, nil
}

func (tr *FakeTenantRepo) GetBySlug(ctx context.Context, slug string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	id, ok := tr.slugs[slug]
	tr.lock.RUnlock()
	if !ok {
		return nil, apperrors.ErrTenantNotFound
	}
	return tr.Get(ctx, id)
}

func (tr *FakeTenantRepo) List(_ context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	all := make([]*tenants.Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		copied := *t
		all = append(all, &copied)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Slug < all[j].Slug
	})

	if offset < 0 || offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

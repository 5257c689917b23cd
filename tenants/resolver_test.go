package tenants_test

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	tenantrepofakes "github.com/jrsteele09/tutorhub-auth/tenants/repofakes"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) (*tenants.Resolver, tenants.Repo) {
	t.Helper()
	repo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, repo.Upsert(context.Background(), &tenants.Tenant{ID: "t-acme", Slug: "acme", Name: "Acme Tutoring", Timezone: "Europe/London"}))
	require.NoError(t, repo.Upsert(context.Background(), &tenants.Tenant{ID: "t-other", Slug: "other", Name: "Other Centre", Timezone: "UTC"}))

	r, err := tenants.NewResolver(repo, "tutorhub.app")
	require.NoError(t, err)
	return r, repo
}

func TestResolvePath(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		slug    string
		wantID  string
		wantErr error
	}{
		{"exact", "acme", "t-acme", nil},
		{"normalised", "  ACME ", "t-acme", nil},
		{"empty", "   ", "", apperrors.ErrInvalidTenantSlug},
		{"bad characters", "ac_me", "", apperrors.ErrInvalidTenantSlug},
		{"leading hyphen", "-acme", "", apperrors.ErrInvalidTenantSlug},
		{"unknown", "acme2", "", apperrors.ErrTenantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant, err := r.Resolve(ctx, tenants.Request{Mode: tenants.ModePath, PathSlug: tt.slug, Host: "other.tutorhub.app"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, tenant)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, tenant.ID)
		})
	}
}

func TestResolveErrorKinds(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.Resolve(context.Background(), tenants.Request{Mode: tenants.ModePath, PathSlug: "Bad Slug!"})
	require.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = r.Resolve(context.Background(), tenants.Request{Mode: tenants.ModePath, PathSlug: "missing"})
	require.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestResolveHost(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		host    string
		wantID  string
		wantErr error
	}{
		{"subdomain", "acme.tutorhub.app", "t-acme", nil},
		{"with port", "ACME.tutorhub.app:8443", "t-acme", nil},
		{"apex", "tutorhub.app", "", apperrors.ErrInvalidTenantSlug},
		{"nested", "x.acme.tutorhub.app", "", apperrors.ErrInvalidTenantSlug},
		{"foreign domain", "acme.example.com", "", apperrors.ErrInvalidTenantSlug},
		{"unknown", "nobody.tutorhub.app", "", apperrors.ErrTenantNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant, err := r.Resolve(ctx, tenants.Request{Mode: tenants.ModeHost, Host: tt.host, PathSlug: "other"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, tenant.ID)
		})
	}
}

func TestResolveDoesNotMergeModes(t *testing.T) {
	r, _ := newResolver(t)

	tenant, err := r.Resolve(context.Background(), tenants.Request{Mode: tenants.ModePath, PathSlug: "acme", Host: "other.tutorhub.app"})
	require.NoError(t, err)
	require.Equal(t, "t-acme", tenant.ID)

	_, err = r.Resolve(context.Background(), tenants.Request{Mode: tenants.ModePath, Host: "acme.tutorhub.app"})
	require.ErrorIs(t, err, apperrors.ErrInvalidTenantSlug)
}

type failingRepo struct{ tenants.Repo }

func (failingRepo) GetBySlug(context.Context, string) (*tenants.Tenant, error) {
	return nil, errors.New("connection refused")
}

func TestResolveStorageFailureIsInternal(t *testing.T) {
	r, err := tenants.NewResolver(failingRepo{}, "tutorhub.app")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), tenants.Request{Mode: tenants.ModePath, PathSlug: "acme"})
	require.Error(t, err)
	require.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

func TestResolveDoesNotCreateTenants(t *testing.T) {
	r, repo := newResolver(t)

	_, err := r.Resolve(context.Background(), tenants.Request{Mode: tenants.ModePath, PathSlug: "brand-new"})
	require.ErrorIs(t, err, apperrors.ErrTenantNotFound)

	all, err := repo.List(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestNewResolverRequiresRepo(t *testing.T) {
	_, err := tenants.NewResolver(nil, "tutorhub.app")
	require.Error(t, err)
}

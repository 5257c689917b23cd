package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/users"
	"github.com/rs/zerolog/log"
)

const defaultTenantTimezone = "UTC"

// InitialiseSystem seeds the bootstrap tenant and its owner when they are
// configured and missing. It is idempotent.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	slug := tenants.NormaliseSlug(s.config.GetBootstrapTenantSlug())
	if slug == "" {
		return nil
	}

	// Step 1: Create or get the bootstrap tenant
	tenant, err := s.initialiseTenant(ctx, slug)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap tenant: %w", err)
	}

	// Step 2: Create or get its owner
	email := s.config.GetBootstrapOwnerEmail()
	if email == "" {
		return nil
	}
	if err := s.initialiseOwner(ctx, tenant, email, s.config.GetBootstrapOwnerPassword()); err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap owner: %w", err)
	}
	return nil
}

// initialiseTenant creates the tenant if it doesn't exist
func (s *Server) initialiseTenant(ctx context.Context, slug string) (*tenants.Tenant, error) {
	if err := tenants.ValidateSlug(slug); err != nil {
		return nil, err
	}

	existing, err := s.deps.Tenants.GetBySlug(ctx, slug)
	if err == nil {
		log.Debug().Str("tenant", slug).Msg("bootstrap tenant already exists")
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	tenant := &tenants.Tenant{
		ID:        uuid.New().String(),
		Slug:      slug,
		Name:      s.config.GetBootstrapTenantName(),
		Timezone:  defaultTenantTimezone,
		CreatedAt: s.nowTime(),
	}
	if err := s.deps.Tenants.Upsert(ctx, tenant); err != nil {
		return nil, fmt.Errorf("[server initialiseTenant] failed to create tenant: %w", err)
	}
	log.Info().Str("tenant", slug).Str("tenant_id", tenant.ID).Msg("created bootstrap tenant")
	return tenant, nil
}

// initialiseOwner makes sure rawEmail holds the Owner role in tenant. An
// existing user keeps their password and other memberships.
func (s *Server) initialiseOwner(ctx context.Context, tenant *tenants.Tenant, rawEmail, password string) error {
	email, err := users.NormaliseEmail(rawEmail)
	if err != nil {
		return err
	}

	owner, err := s.deps.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if owner.HasTenantRole(tenant.ID, users.RoleOwner) {
			log.Debug().Str("tenant", tenant.Slug).Msg("bootstrap owner already exists")
			return nil
		}
	case apperrors.Is(err, apperrors.ErrNotFound):
		owner = &users.User{
			ID:        uuid.New().String(),
			Email:     email,
			Name:      "Owner",
			CreatedAt: s.nowTime(),
		}
		if password != "" {
			if err := users.ValidatePasswordStrength(password); err != nil {
				return apperrors.Wrapf(apperrors.ErrValidation, "bootstrap owner password: %v", err)
			}
			if owner.PasswordHash, err = users.HashPassword(password); err != nil {
				return fmt.Errorf("[server initialiseOwner] failed to hash password: %w", err)
			}
		} else {
			log.Warn().Str("tenant", tenant.Slug).Msg("bootstrap owner has no password and can only sign in through SSO")
		}
	default:
		return err
	}

	membership := users.Membership{TenantID: tenant.ID, Role: users.RoleOwner, JoinedAt: s.nowTime()}
	if m := owner.Membership(tenant.ID); m != nil {
		*m = membership
	} else {
		owner.Memberships = append(owner.Memberships, membership)
	}

	if err := s.deps.Users.Upsert(ctx, owner); err != nil {
		return fmt.Errorf("[server initialiseOwner] failed to save owner: %w", err)
	}
	log.Info().Str("tenant", tenant.Slug).Str("email", logging.RedactEmail(email)).Msg("bootstrap owner ready")
	return nil
}

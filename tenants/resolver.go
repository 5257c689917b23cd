package tenants

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
)

// Mode selects where a route takes its tenant from. A route declares exactly
// one mode and the resolver never consults the other source.
type Mode int

const (
	// ModePath reads the {tenant} path segment (admin, tutor and API routes).
	ModePath Mode = iota
	// ModeHost reads the subdomain under the base domain (parent-facing routes).
	ModeHost
)

func (m Mode) String() string {
	if m == ModeHost {
		return "host"
	}
	return "path"
}

// Request carries the inputs the resolver needs from an inbound request.
type Request struct {
	Mode     Mode
	PathSlug string
	Host     string
}

// Resolver maps a request to a tenant. It holds no per-request state and
// performs a fresh lookup on every call.
type Resolver struct {
	repo       Repo
	baseDomain string
}

func NewResolver(repo Repo, baseDomain string) (*Resolver, error) {
	if repo == nil {
		return nil, errors.New("[NewResolver] tenant repo is required")
	}
	return &Resolver{
		repo:       repo,
		baseDomain: strings.Trim(strings.ToLower(baseDomain), "."),
	}, nil
}

// Resolve returns the tenant for req. Malformed input yields
// apperrors.ErrInvalidTenantSlug and an unknown slug yields
// apperrors.ErrTenantNotFound. It never creates tenants.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Tenant, error) {
	var raw string
	switch req.Mode {
	case ModePath:
		raw = req.PathSlug
	case ModeHost:
		var err error
		if raw, err = r.SlugFromHost(req.Host); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("[Resolver Resolve] unknown resolution mode %d", req.Mode)
	}

	slug := NormaliseSlug(raw)
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}

	tenant, err := r.repo.GetBySlug(ctx, slug)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrTenantNotFound
		}
		return nil, apperrors.Wrapf(err, "[Resolver Resolve] tenant lookup")
	}
	return tenant, nil
}

// SlugFromHost extracts the single subdomain label that precedes the base
// domain, e.g. "acme.tutorhub.app" -> "acme".
func (r *Resolver) SlugFromHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	suffix := "." + r.baseDomain
	if r.baseDomain == "" || !strings.HasSuffix(host, suffix) {
		return "", apperrors.ErrInvalidTenantSlug
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", apperrors.ErrInvalidTenantSlug
	}
	return label, nil
}

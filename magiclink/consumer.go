package magiclink

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/jrsteele09/tutorhub-auth/sessions"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/users"
	"github.com/rs/zerolog/log"
)

// Reason is the coarse failure taxonomy exposed to clients. It does not
// distinguish a wrong tenant, a used token and a token that never existed.
type Reason string

const (
	ReasonMissing Reason = "missing"
	ReasonExpired Reason = "expired"
	ReasonInvalid Reason = "invalid"
	ReasonFailed  Reason = "failed"
)

// ParentHomePath is where a parent lands after signing in, relative to the tenant.
const ParentHomePath = "/parent"

type ConsumeResult struct {
	OK         bool              `json:"ok"`
	RedirectTo string            `json:"redirectTo,omitempty"`
	Reason     Reason            `json:"reason,omitempty"`
	Session    *sessions.Session `json:"-"`
}

func failed(r Reason) ConsumeResult {
	return ConsumeResult{Reason: r}
}

type Consumer struct {
	deps     Deps
	settings *Settings
	opts     options
}

func NewConsumer(deps Deps, settings *Settings, opts ...Option) (*Consumer, error) {
	if err := deps.validateShared("NewConsumer"); err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, errors.New("[NewConsumer] settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, apperrors.Wrapf(err, "[NewConsumer] settings")
	}
	return &Consumer{deps: deps, settings: settings, opts: buildOptions(opts)}, nil
}

// ConsumeMagicLink redeems rawToken for tenantSlug exactly once. Every outcome
// is reported in the result, never as an error.
func (c *Consumer) ConsumeMagicLink(ctx context.Context, tenantSlug, rawToken string) ConsumeResult {
	res := c.consume(ctx, tenantSlug, rawToken)
	if res.OK {
		c.opts.observer.MagicLinkConsumed("ok")
	} else {
		c.opts.observer.MagicLinkConsumed(string(res.Reason))
	}
	return res
}

func (c *Consumer) consume(ctx context.Context, tenantSlug, rawToken string) ConsumeResult {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return failed(ReasonMissing)
	}

	tenant, err := c.deps.Resolver.Resolve(ctx, tenants.Request{Mode: tenants.ModePath, PathSlug: tenantSlug})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInternal {
			log.Error().Err(err).Msg("magic link consume: tenant lookup failed")
			return failed(ReasonFailed)
		}
		return failed(ReasonInvalid)
	}

	tok, err := c.deps.Tokens.FindByHash(ctx, tenant.ID, c.deps.Hasher.TokenHash(rawToken))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return failed(ReasonInvalid)
		}
		log.Error().Err(err).Str("tenant", tenant.Slug).Str("token", logging.RedactToken(rawToken)).Msg("magic link consume: token lookup failed")
		return failed(ReasonFailed)
	}
	if tok.TenantID != tenant.ID {
		return failed(ReasonInvalid)
	}

	now := c.opts.nowTime()
	if tok.Expired(now) {
		return failed(ReasonExpired)
	}
	if tok.Consumed() || tok.ParentUserID == "" {
		return failed(ReasonInvalid)
	}

	parent, err := c.deps.Users.GetByID(ctx, tok.ParentUserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return failed(ReasonInvalid)
		}
		log.Error().Err(err).Str("tenant", tenant.Slug).Msg("magic link consume: parent lookup failed")
		return failed(ReasonFailed)
	}
	membership := parent.Membership(tenant.ID)
	if membership == nil || membership.Role != users.RoleParent {
		return failed(ReasonInvalid)
	}

	session := sessions.New(tenant.ID, parent.ID, *membership, now, c.settings.SessionTTL)
	if err := c.deps.Tokens.Redeem(ctx, tok.ID, now, session); err != nil {
		if apperrors.Is(err, apperrors.ErrAlreadyConsumed) {
			return failed(ReasonInvalid)
		}
		log.Error().Err(err).Str("tenant", tenant.Slug).Str("token", logging.RedactToken(rawToken)).Msg("magic link consume: redeem failed")
		return failed(ReasonFailed)
	}

	log.Info().Str("tenant", tenant.Slug).Str("session_ref", session.ID[:8]).Msg("parent signed in by magic link")
	return ConsumeResult{
		OK:         true,
		RedirectTo: "/" + tenant.Slug + ParentHomePath,
		Session:    session,
	}
}

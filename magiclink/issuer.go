package magiclink

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/jrsteele09/tutorhub-auth/mail"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/jrsteele09/tutorhub-auth/users"
	"github.com/rs/zerolog/log"
)

const ReasonThrottled = "throttled"

const unknownSource = "unknown"

// IssueRequest is one parent's request for a sign-in link.
type IssueRequest struct {
	TenantSlug     string
	Email          string
	SourceAddress  string
	ForwardedProto string
	ForwardedHost  string
}

type IssueResult struct {
	Issued     bool          `json:"issued"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

type Issuer struct {
	deps     Deps
	settings *Settings
	opts     options
}

func NewIssuer(deps Deps, settings *Settings, opts ...Option) (*Issuer, error) {
	if err := deps.validateShared("NewIssuer"); err != nil {
		return nil, err
	}
	if deps.Ledger == nil {
		return nil, errors.New("[NewIssuer] throttle ledger is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("[NewIssuer] mail sender is required")
	}
	if deps.Links == nil {
		return nil, errors.New("[NewIssuer] link builder is required")
	}
	if settings == nil {
		return nil, errors.New("[NewIssuer] settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, apperrors.Wrapf(err, "[NewIssuer] settings")
	}
	return &Issuer{deps: deps, settings: settings, opts: buildOptions(opts)}, nil
}

// RequestMagicLink records the attempt in both throttle scopes and, when both
// permit, stores a new token and delivers it. The result is {Issued:true}
// whether or not the email belongs to a parent.
func (i *Issuer) RequestMagicLink(ctx context.Context, req IssueRequest) (IssueResult, error) {
	email, err := users.NormaliseEmail(req.Email)
	if err != nil {
		i.opts.observer.MagicLinkIssued("invalid_email")
		return IssueResult{}, apperrors.Public(err, "a valid email address is required")
	}

	tenant, err := i.deps.Resolver.Resolve(ctx, tenants.Request{Mode: tenants.ModePath, PathSlug: req.TenantSlug})
	if err != nil {
		i.opts.observer.MagicLinkIssued("tenant_error")
		return IssueResult{}, err
	}

	identifierHash := i.deps.Hasher.IdentifierHash(email)
	source := req.SourceAddress
	if source == "" {
		source = unknownSource
	}

	// Both scopes are charged on every call, even when the first denies.
	emailDecision, emailErr := i.deps.Ledger.CheckAndRecord(ctx,
		throttle.ScopeKey("magic", "email", tenant.ID, identifierHash), i.settings.EmailPolicy)
	sourceDecision, sourceErr := i.deps.Ledger.CheckAndRecord(ctx,
		throttle.ScopeKey("magic", "source", tenant.ID, i.deps.Hasher.SourceHash(source)), i.settings.SourcePolicy)
	if err := errors.Join(emailErr, sourceErr); err != nil {
		i.opts.observer.MagicLinkIssued("error")
		return IssueResult{}, apperrors.Wrapf(err, "[Issuer RequestMagicLink] throttle")
	}

	if !emailDecision.Allowed || !sourceDecision.Allowed {
		retry := max(emailDecision.RetryAfter, sourceDecision.RetryAfter)
		if !emailDecision.Allowed {
			i.opts.observer.ThrottleDenied("email")
		}
		if !sourceDecision.Allowed {
			i.opts.observer.ThrottleDenied("source")
		}
		i.opts.observer.MagicLinkIssued(ReasonThrottled)
		log.Info().
			Str("tenant", tenant.Slug).
			Str("identifier_ref", identifierHash[:12]).
			Dur("retry_after", retry).
			Msg("magic link throttled")
		return IssueResult{Issued: false, Reason: ReasonThrottled, RetryAfter: retry}, nil
	}

	parent, err := i.findParent(ctx, tenant.ID, email)
	if err != nil {
		i.opts.observer.MagicLinkIssued("error")
		return IssueResult{}, err
	}

	raw, err := GenerateRawToken()
	if err != nil {
		i.opts.observer.MagicLinkIssued("error")
		return IssueResult{}, err
	}

	now := i.opts.nowTime()
	tok := &Token{
		ID:             uuid.New().String(),
		TokenHash:      i.deps.Hasher.TokenHash(raw),
		IdentifierHash: identifierHash,
		TenantID:       tenant.ID,
		IssuedAt:       now,
		ExpiresAt:      now.Add(i.settings.TTL),
	}
	if parent != nil {
		tok.ParentUserID = parent.ID
	}
	if err := i.deps.Tokens.Create(ctx, tok); err != nil {
		i.opts.observer.MagicLinkIssued("error")
		return IssueResult{}, apperrors.Wrapf(err, "[Issuer RequestMagicLink] store token")
	}

	if parent != nil {
		i.deliver(ctx, req, tenant, email, raw, tok.ExpiresAt)
	}
	i.opts.observer.MagicLinkIssued("issued")
	return IssueResult{Issued: true}, nil
}

// findParent returns the user holding the Parent role for email in tenantID,
// or nil when there is none.
func (i *Issuer) findParent(ctx context.Context, tenantID, email string) (*users.User, error) {
	u, err := i.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrapf(err, "[Issuer RequestMagicLink] user lookup")
	}
	if !u.HasTenantRole(tenantID, users.RoleParent) {
		return nil, nil
	}
	return u, nil
}

// deliver sends the link. Failures are logged and never change the response.
func (i *Issuer) deliver(ctx context.Context, req IssueRequest, tenant *tenants.Tenant, email, raw string, expiresAt time.Time) {
	link, err := i.deps.Links.Build(req.ForwardedProto, req.ForwardedHost, tenant.Slug, raw)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant.Slug).Msg("magic link not delivered")
		return
	}
	msg := mail.MagicLinkMessage{
		To:         email,
		TenantName: tenant.Name,
		TenantSlug: tenant.Slug,
		Link:       link,
		ExpiresAt:  expiresAt,
	}
	if err := i.deps.Sender.SendMagicLink(ctx, msg); err != nil {
		log.Error().Err(err).
			Str("tenant", tenant.Slug).
			Str("to", logging.RedactEmail(email)).
			Msg("magic link delivery failed")
	}
}

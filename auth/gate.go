package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/sessions"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/token"
	"github.com/jrsteele09/tutorhub-auth/users"
)

// RoleSet is the set of roles a protected route admits.
type RoleSet map[users.Role]struct{}

// Roles builds a RoleSet.
func Roles(roles ...users.Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

func (s RoleSet) Contains(r users.Role) bool {
	_, ok := s[r]
	return ok
}

// Common role sets for the application areas.
var (
	AdminAreaRoles = Roles(users.RoleOwner, users.RoleAdmin)
	TutorAreaRoles = Roles(users.RoleOwner, users.RoleAdmin, users.RoleTutor)
	ParentRoles    = Roles(users.RoleParent)
	AnyRole        = Roles(users.RoleOwner, users.RoleAdmin, users.RoleTutor, users.RoleParent)
)

// Request carries what the gate needs from an inbound request: the raw session
// credential and how the route locates its tenant.
type Request struct {
	SessionToken string
	Tenant       tenants.Request
}

// AuthorizedContext is handed to protected handlers. Handlers must use its
// Tenant and never re-derive one from client parameters.
type AuthorizedContext struct {
	Tenant     *tenants.Tenant   `json:"tenant"`
	User       *users.User       `json:"-"`
	Membership users.Membership  `json:"membership"`
	Session    *sessions.Session `json:"-"`
}

// MarshalJSON renders the context for its own tenant only. The user's
// memberships elsewhere are left out.
func (a *AuthorizedContext) MarshalJSON() ([]byte, error) {
	var profile *users.Profile
	if a.User != nil {
		p := a.User.Profile()
		profile = &p
	}
	return json.Marshal(struct {
		Tenant     *tenants.Tenant  `json:"tenant"`
		User       *users.Profile   `json:"user"`
		Membership users.Membership `json:"membership"`
	}{a.Tenant, profile, a.Membership})
}

// Role returns the resolved role for display and audit.
func (a *AuthorizedContext) Role() users.Role {
	return a.Membership.Role
}

// GateObserver receives one outcome per gate decision.
type GateObserver interface {
	GateDecision(outcome string)
}

type nopGateObserver struct{}

func (nopGateObserver) GateDecision(string) {}

// Gate is the authorization predicate for protected routes. It never mutates
// state.
type Gate struct {
	resolver *tenants.Resolver
	codec    *token.SessionCodec
	repos    Repos
	nowTime  func() time.Time
	observer GateObserver
}

// GateOption defines a function type to modify the Gate instance.
type GateOption func(*Gate)

// WithGateNowTime sets the now time function (primarily for testing)
func WithGateNowTime(nowFunc func() time.Time) GateOption {
	return func(g *Gate) {
		g.nowTime = nowFunc
	}
}

func WithGateObserver(obs GateObserver) GateOption {
	return func(g *Gate) {
		if obs != nil {
			g.observer = obs
		}
	}
}

func NewGate(resolver *tenants.Resolver, codec *token.SessionCodec, repos Repos, options ...GateOption) (*Gate, error) {
	if resolver == nil {
		return nil, errors.New("[NewGate] tenant resolver is required")
	}
	if codec == nil {
		return nil, errors.New("[NewGate] session codec is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewGate] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewGate] Sessions repo is required")
	}
	g := &Gate{
		resolver: resolver,
		codec:    codec,
		repos:    repos,
		nowTime:  time.Now,
		observer: nopGateObserver{},
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// RequireRole authorizes req for the roles in allowed. The checks run in a
// fixed order: session, tenant resolution, tenant match, role, membership.
// A wrong tenant is reported before a wrong role.
func (g *Gate) RequireRole(ctx context.Context, req Request, allowed RoleSet) (*AuthorizedContext, error) {
	actx, err := g.requireRole(ctx, req, allowed)
	g.observer.GateDecision(outcome(err))
	return actx, err
}

func (g *Gate) requireRole(ctx context.Context, req Request, allowed RoleSet) (*AuthorizedContext, error) {
	session, user, err := g.authenticate(ctx, req.SessionToken)
	if err != nil {
		return nil, err
	}

	tenant, err := g.resolver.Resolve(ctx, req.Tenant)
	if err != nil {
		return nil, err
	}

	if session.TenantID != tenant.ID {
		return nil, apperrors.ErrTenantMismatch
	}

	if !allowed.Contains(session.Role) {
		return nil, apperrors.ErrRoleNotAllowed
	}

	// Memberships can be revoked or changed after the session was issued.
	m := user.Membership(tenant.ID)
	if m == nil || m.Role != session.Role {
		return nil, apperrors.ErrMembershipNotFound
	}

	return &AuthorizedContext{
		Tenant:     tenant,
		User:       user,
		Membership: *m,
		Session:    session,
	}, nil
}

// authenticate returns the live session behind raw and its user. Every
// failure is Unauthorized except a storage fault.
func (g *Gate) authenticate(ctx context.Context, raw string) (*sessions.Session, *users.User, error) {
	claims, err := g.codec.Decode(raw)
	if err != nil {
		return nil, nil, err
	}

	session, err := g.repos.Sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthorized) || apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrSessionNotFound
		}
		return nil, nil, apperrors.Wrapf(err, "[Gate RequireRole] session lookup")
	}
	if session.TenantID != claims.TenantID {
		return nil, nil, apperrors.ErrInvalidToken
	}
	if session.Expired(g.nowTime()) {
		return nil, nil, apperrors.ErrSessionExpired
	}

	user, err := g.repos.Users.GetByID(ctx, session.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.ErrSessionNotFound
		}
		return nil, nil, apperrors.Wrapf(err, "[Gate RequireRole] user lookup")
	}
	return session, user, nil
}

func outcome(err error) string {
	if err == nil {
		return "allowed"
	}
	return apperrors.KindOf(err).String()
}

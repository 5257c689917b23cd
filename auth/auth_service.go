package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/jrsteele09/tutorhub-auth/sessions"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/jrsteele09/tutorhub-auth/token"
	"github.com/jrsteele09/tutorhub-auth/users"
	"github.com/rs/zerolog/log"
)

// Repos holds all repository dependencies for the gate and the login service
type Repos struct {
	Users    users.UserRepo // Repository for user data
	Sessions sessions.Repo  // Repository for session rows
}

// Settings is resolved once at start-up.
type Settings struct {
	SessionTTL  time.Duration
	LoginPolicy throttle.Policy
}

func DefaultSettings() Settings {
	return Settings{
		SessionTTL:  12 * time.Hour,
		LoginPolicy: throttle.Policy{Window: 15 * time.Minute, MaxAttempts: 5, Cooldown: 15 * time.Minute},
	}
}

func (s Settings) Validate() error {
	if s.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if err := s.LoginPolicy.Validate(); err != nil {
		return fmt.Errorf("login policy: %w", err)
	}
	return nil
}

// IdentifierHasher derives the throttle key for an email. magiclink.Hasher
// implements it.
type IdentifierHasher interface {
	IdentifierHash(email string) string
}

// ThrottledError is returned by Login when the attempt budget is exhausted.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %s", apperrors.ErrThrottled, e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error { return apperrors.ErrThrottled }

// LoginRequest holds a staff password login attempt.
type LoginRequest struct {
	TenantSlug string
	Email      string
	Password   string
}

// LoginResult is a started session and its signed credential.
type LoginResult struct {
	Tenant  *tenants.Tenant
	User    *users.User
	Session *sessions.Session
	Token   string
}

// AuthenticationService signs staff in and out.
type AuthenticationService struct {
	resolver *tenants.Resolver
	codec    *token.SessionCodec
	ledger   *throttle.Ledger
	hasher   IdentifierHasher
	repos    Repos
	settings *Settings
	nowTime  func() time.Time // nowTime function (injectable for testing)
}

// AuthenticationServiceOption defines a function type to modify the AuthenticationService instance.
type AuthenticationServiceOption func(*AuthenticationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthenticationServiceOption {
	return func(as *AuthenticationService) {
		as.nowTime = nowFunc
	}
}

// NewAuthenticationService initializes a new AuthenticationService with required dependencies.
func NewAuthenticationService(
	resolver *tenants.Resolver,
	codec *token.SessionCodec,
	ledger *throttle.Ledger,
	hasher IdentifierHasher,
	repos Repos,
	settings *Settings,
	options ...AuthenticationServiceOption,
) (*AuthenticationService, error) {
	if resolver == nil {
		return nil, errors.New("[NewAuthenticationService] tenant resolver is required")
	}
	if codec == nil {
		return nil, errors.New("[NewAuthenticationService] session codec is required")
	}
	if ledger == nil {
		return nil, errors.New("[NewAuthenticationService] throttle ledger is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewAuthenticationService] identifier hasher is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewAuthenticationService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthenticationService] Sessions repo is required")
	}
	if settings == nil {
		return nil, errors.New("[NewAuthenticationService] settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, apperrors.Wrapf(err, "[NewAuthenticationService] settings")
	}

	as := &AuthenticationService{
		resolver: resolver,
		codec:    codec,
		ledger:   ledger,
		hasher:   hasher,
		repos:    repos,
		settings: settings,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// Login checks a staff member's password and starts a session in the
// requested tenant. Every credential failure is the same ErrInvalidCredentials.
func (as *AuthenticationService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	tenant, err := as.resolver.Resolve(ctx, tenants.Request{Mode: tenants.ModePath, PathSlug: req.TenantSlug})
	if err != nil {
		return nil, err
	}

	email, err := users.NormaliseEmail(req.Email)
	if err != nil {
		users.VerifyPassword(nil, req.Password)
		return nil, apperrors.ErrInvalidCredentials
	}

	decision, err := as.ledger.CheckAndRecord(ctx,
		throttle.ScopeKey("staff", "login", tenant.ID, as.hasher.IdentifierHash(email)), as.settings.LoginPolicy)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[AuthenticationService.Login] throttle")
	}
	if !decision.Allowed {
		log.Info().Str("tenant", tenant.Slug).Str("email", logging.RedactEmail(email)).Msg("staff login throttled")
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	user, err := as.repos.Users.GetByEmail(ctx, email)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Wrapf(err, "[AuthenticationService.Login] GetByEmail")
	}
	if !users.VerifyPassword(user, req.Password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	m := user.Membership(tenant.ID)
	if m == nil || !m.Role.IsStaff() {
		return nil, apperrors.ErrInvalidCredentials
	}
	return as.StartSession(ctx, tenant, user, *m)
}

// LoginWithIdentity starts a staff session for an email an identity provider
// has already verified.
func (as *AuthenticationService) LoginWithIdentity(ctx context.Context, tenant *tenants.Tenant, email string) (*LoginResult, error) {
	email, err := users.NormaliseEmail(email)
	if err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	user, err := as.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrapf(err, "[AuthenticationService.LoginWithIdentity] GetByEmail")
	}
	m := user.Membership(tenant.ID)
	if m == nil || !m.Role.IsStaff() {
		return nil, apperrors.ErrInvalidCredentials
	}
	return as.StartSession(ctx, tenant, user, *m)
}

// StartSession stores a new session for the membership and signs its credential.
func (as *AuthenticationService) StartSession(ctx context.Context, tenant *tenants.Tenant, user *users.User, m users.Membership) (*LoginResult, error) {
	session := sessions.New(tenant.ID, user.ID, m, as.nowTime(), as.settings.SessionTTL)
	if err := as.repos.Sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Wrapf(err, "[AuthenticationService.StartSession] create session")
	}
	raw, err := as.codec.Encode(session)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[AuthenticationService.StartSession] encode")
	}
	log.Info().Str("tenant", tenant.Slug).Str("role", string(m.Role)).Str("user", user.ID).Msg("session started")
	return &LoginResult{Tenant: tenant, User: user, Session: session, Token: raw}, nil
}

// Logout destroys the session.
func (as *AuthenticationService) Logout(ctx context.Context, sessionID string) error {
	if err := as.repos.Sessions.Delete(ctx, sessionID); err != nil {
		return apperrors.Wrapf(err, "[AuthenticationService.Logout] delete session")
	}
	return nil
}

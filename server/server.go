package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/tutorhub-auth/auth"
	"github.com/jrsteele09/tutorhub-auth/internal/config"
	"github.com/jrsteele09/tutorhub-auth/internal/metrics"
	"github.com/jrsteele09/tutorhub-auth/magiclink"
	"github.com/jrsteele09/tutorhub-auth/server/authflowrepo"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/token"
	"github.com/jrsteele09/tutorhub-auth/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type OidcConfig struct {
	OidcProvider *oidc.Provider
	OAuth2Config *oauth2.Config
	OidcVerifier *oidc.IDTokenVerifier
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Deps holds everything the HTTP surface calls into. Tenants and Users are
// only used for start-up seeding and the SSO callback.
type Deps struct {
	Tenants      tenants.Repo
	Users        users.UserRepo
	Resolver     *tenants.Resolver
	Codec        *token.SessionCodec
	Gate         *auth.Gate
	Auth         *auth.AuthenticationService
	Issuer       *magiclink.Issuer
	Consumer     *magiclink.Consumer
	AuthFlows    authflowrepo.Repo
	Metrics      *metrics.Metrics
	HealthChecks map[string]HealthCheck
}

type Server struct {
	env            string
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	deps           Deps
	trustedProxies map[string]struct{}
	nowTime        func() time.Time

	oidcConfig     *OidcConfig
	oidcConfigLock sync.RWMutex
}

type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithOidcConfig installs a pre-built identity provider configuration instead
// of discovering one from OIDC_ISSUER on first use.
func WithOidcConfig(oc *OidcConfig) Option {
	return func(s *Server) {
		s.oidcConfig = oc
	}
}

func New(config config.Config, deps Deps, options ...Option) (*Server, error) {
	switch {
	case deps.Gate == nil:
		return nil, errors.New("[Server New] gate is required")
	case deps.Auth == nil:
		return nil, errors.New("[Server New] authentication service is required")
	case deps.Issuer == nil || deps.Consumer == nil:
		return nil, errors.New("[Server New] magic link issuer and consumer are required")
	case deps.Codec == nil:
		return nil, errors.New("[Server New] session codec is required")
	case deps.Resolver == nil:
		return nil, errors.New("[Server New] tenant resolver is required")
	case deps.Tenants == nil || deps.Users == nil:
		return nil, errors.New("[Server New] tenant and user repos are required")
	case deps.AuthFlows == nil:
		return nil, errors.New("[Server New] auth flow repo is required")
	}

	s := &Server{
		mux:            http.NewServeMux(),
		config:         config,
		deps:           deps,
		trustedProxies: make(map[string]struct{}),
		nowTime:        time.Now,
	}
	s.env = config.GetEnv()
	for _, p := range config.GetTrustedProxies() {
		s.trustedProxies[p] = struct{}{}
	}
	for _, opt := range options {
		opt(s)
	}

	// Bootstrap: ensure the configured tenant and its owner exist
	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	if s.deps.Metrics != nil {
		handler = s.deps.Metrics.HTTPMiddleware(handler)
	}
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.RegisterRouteHandler(pattern, http.HandlerFunc(handler))
}

// RegisterProtected mounts handler behind the gate. The tenant is taken from
// the {tenant} path segment in ModePath and from the Host header in ModeHost.
func (s *Server) RegisterProtected(pattern string, mode tenants.Mode, roles auth.RoleSet, handler ProtectedHandlerFunc) {
	s.RegisterRouteHandler(pattern, ChainMiddleware(s.RequireRole(mode, roles, handler), s.APIMiddleware()...))
}

func (s *Server) logRoutes() {
	if s.env != config.EnvironmentDev {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path := splitRoute(route)
		log.Debug().Str("method", method).Str("path", path).Msg("route")
	}
}

// splitRoute separates a mux pattern such as "GET /{tenant}/me" into its
// method and path. Patterns without a method match any.
func splitRoute(route string) (method, path string) {
	method, path, ok := strings.Cut(route, " ")
	if !ok {
		return "ANY", route
	}
	return method, path
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(scheme, ",", 2)[0]))
	}
	return "http"
}

// sourceAddress is the client address used for throttling. X-Forwarded-For is
// honoured only when the immediate peer is a trusted proxy.
func (s *Server) sourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if _, trusted := s.trustedProxies[strings.ToLower(host)]; trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if client := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); client != "" {
				return client
			}
		}
	}
	return host
}

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/jrsteele09/tutorhub-auth/server/authflowrepo"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var errSSODisabled = apperrors.Public(fmt.Errorf("%w: sso is not configured", apperrors.ErrNotFound), "not found")

func (s *Server) ssoEnabled() bool {
	if s.config.GetOIDCIssuer() != "" {
		return true
	}
	s.oidcConfigLock.RLock()
	defer s.oidcConfigLock.RUnlock()
	return s.oidcConfig != nil
}

// getOidcConfig discovers the staff identity provider once and caches it.
func (s *Server) getOidcConfig(ctx context.Context) (*OidcConfig, error) {
	s.oidcConfigLock.RLock()
	cached := s.oidcConfig
	s.oidcConfigLock.RUnlock()
	if cached != nil {
		return cached, nil
	}

	s.oidcConfigLock.Lock()
	defer s.oidcConfigLock.Unlock()
	if s.oidcConfig != nil {
		return s.oidcConfig, nil
	}

	provider, err := oidc.NewProvider(ctx, s.config.GetOIDCIssuer())
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	clientID := s.config.GetOIDCClientID()
	s.oidcConfig = &OidcConfig{
		OidcProvider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: s.config.GetOIDCClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  s.config.GetOIDCRedirectURL(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		OidcVerifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}
	return s.oidcConfig, nil
}

// SSOStartHandler redirects a staff member to the identity provider with a
// fresh state, nonce and PKCE challenge.
func (s *Server) SSOStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ssoEnabled() {
			writeError(w, r, errSSODisabled)
			return
		}

		tenant, err := s.deps.Resolver.Resolve(r.Context(), tenantRequest(r, tenants.ModePath))
		if err != nil {
			writeError(w, r, err)
			return
		}

		oidcConfig, err := s.getOidcConfig(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		state, err := generateRandomString(32)
		if err != nil {
			writeError(w, r, err)
			return
		}
		nonce, err := generateRandomString(32)
		if err != nil {
			writeError(w, r, err)
			return
		}
		verifier, err := generateRandomString(32)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if err := s.deps.AuthFlows.Upsert(state, &authflowrepo.AuthFlowState{
			TenantID:     tenant.ID,
			TenantSlug:   tenant.Slug,
			CodeVerifier: verifier,
			Nonce:        nonce,
			CreatedAt:    s.nowTime(),
		}); err != nil {
			writeError(w, r, err)
			return
		}

		authURL := oidcConfig.OAuth2Config.AuthCodeURL(state,
			oidc.Nonce(nonce),
			oauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(verifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// SSOCallbackHandler completes the authorization code flow and starts a staff
// session in the tenant the flow was started for.
func (s *Server) SSOCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ssoEnabled() {
			writeError(w, r, errSSODisabled)
			return
		}

		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		if errorParam := r.FormValue("error"); errorParam != "" {
			log.Warn().Str("error", errorParam).Msg("sso: identity provider returned an error")
			writeError(w, r, apperrors.Public(apperrors.ErrUnauthorized, "sign in was not completed"))
			return
		}
		if code == "" || state == "" {
			writeError(w, r, apperrors.Public(apperrors.ErrValidation, "missing code or state parameter"))
			return
		}

		authState, err := s.deps.AuthFlows.Take(state)
		if err != nil {
			writeError(w, r, apperrors.Public(err, "invalid state parameter"))
			return
		}

		tenant, err := s.deps.Tenants.Get(r.Context(), authState.TenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		oidcConfig, err := s.getOidcConfig(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		oauth2Token, err := oidcConfig.OAuth2Config.Exchange(
			r.Context(),
			code,
			oauth2.SetAuthURLParam("code_verifier", authState.CodeVerifier),
		)
		if err != nil {
			log.Warn().Err(err).Str("tenant", tenant.Slug).Msg("sso: token exchange failed")
			writeError(w, r, apperrors.Public(apperrors.ErrUnauthorized, "sign in was not completed"))
			return
		}

		rawIDToken, ok := oauth2Token.Extra("id_token").(string)
		if !ok {
			writeError(w, r, apperrors.Public(apperrors.ErrUnauthorized, "identity provider returned no id token"))
			return
		}

		idToken, err := oidcConfig.OidcVerifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			log.Warn().Err(err).Str("tenant", tenant.Slug).Msg("sso: id token verification failed")
			writeError(w, r, apperrors.Public(apperrors.ErrInvalidToken, "sign in was not completed"))
			return
		}

		var claims struct {
			Nonce         string `json:"nonce"`
			Email         string `json:"email"`
			EmailVerified *bool  `json:"email_verified"`
		}
		if err := idToken.Claims(&claims); err != nil {
			writeError(w, r, apperrors.Public(apperrors.Wrapf(apperrors.ErrInvalidToken, "claims: %v", err), "sign in was not completed"))
			return
		}

		// Validate nonce to prevent replay attacks
		if claims.Nonce != authState.Nonce {
			writeError(w, r, apperrors.Public(apperrors.ErrInvalidToken, "sign in was not completed"))
			return
		}
		if claims.EmailVerified != nil && !*claims.EmailVerified {
			writeError(w, r, apperrors.ErrInvalidCredentials)
			return
		}

		res, err := s.deps.Auth.LoginWithIdentity(r.Context(), tenant, claims.Email)
		if err != nil {
			if apperrors.KindOf(err) != apperrors.KindInternal {
				log.Info().Str("tenant", tenant.Slug).Str("email", logging.RedactEmail(claims.Email)).Msg("sso: no staff membership")
			}
			writeError(w, r, err)
			return
		}

		s.SetSessionCookie(w, r, res.Token, res.Session)
		redirectSuccess(w, r, "/"+tenant.Slug+pathAdminHome)
	}
}

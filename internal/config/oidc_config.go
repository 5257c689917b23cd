package config

type OIDCConfig interface {
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetOIDCRedirectURL() string
}

type OIDC struct{}

var _ OIDCConfig = OIDC{}

// GetOIDCIssuer returns the staff identity provider. SSO is disabled when empty.
func (OIDC) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (OIDC) GetOIDCClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "")
}

func (OIDC) GetOIDCClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (OIDC) GetOIDCRedirectURL() string {
	return GetEnv("OIDC_REDIRECT_URL", "http://localhost:8080/auth/sso/callback")
}

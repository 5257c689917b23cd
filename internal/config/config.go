package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	AuthConfig
	ThrottleConfig
	StorageConfig
	OIDCConfig
	MailConfig
	BootstrapConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseDomain() string
	GetPublicBaseURL() string
	GetTrustedForwardedHosts() []string
	GetTrustedProxies() []string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Auth
	Throttle
	Storage
	OIDC
	Mail
	Bootstrap
}

// New loads an optional .env file from the working directory and returns an
// environment backed Config.
func New() Config {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	return mainConfig{}
}

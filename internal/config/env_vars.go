package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar         = "PORT"
	appNameVar         = "APP_NAME"
	logLevelVar        = "LOG_LEVEL"
	baseDomainVar      = "BASE_DOMAIN"
	publicBaseURLVar   = "PUBLIC_BASE_URL"
	trustedFwdHostsVar = "TRUSTED_FORWARDED_HOSTS"
	trustedProxiesVar  = "TRUSTED_PROXIES"

	EnvironmentDev  = "DEV"
	EnvironmentProd = "PROD"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "TutorHub")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return EnvironmentDev
	}
	return strings.ToUpper(env)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetBaseDomain returns the apex domain parent subdomains hang off, e.g. "tutorhub.app".
func (EnvVars) GetBaseDomain() string {
	return strings.ToLower(GetEnv(baseDomainVar, "localhost"))
}

// GetPublicBaseURL is the canonical external origin used for links when no
// trusted forwarded host is present.
func (EnvVars) GetPublicBaseURL() string {
	return strings.TrimRight(GetEnv(publicBaseURLVar, ""), "/")
}

func (EnvVars) GetTrustedForwardedHosts() []string {
	return GetEnvList(trustedFwdHostsVar, nil)
}

func (EnvVars) GetTrustedProxies() []string {
	return GetEnvList(trustedProxiesVar, nil)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// GetEnvList splits a comma separated variable, dropping empty entries.
func GetEnvList(envVar string, defaultValue []string) []string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

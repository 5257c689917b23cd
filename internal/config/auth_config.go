package config

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const (
	pepperVar        = "AUTH_PEPPER"
	sessionSecretVar = "SESSION_SECRET"
	sessionTTLVar    = "SESSION_TTL"
	magicLinkTTLVar  = "MAGIC_LINK_TTL"
)

type AuthConfig interface {
	GetPepper() string
	GetSessionSecret() string
	GetSessionTTL() time.Duration
	GetMagicLinkTTL() time.Duration
	// SecretsGenerated reports whether the pepper or session secret fell back to
	// a per-process random value.
	SecretsGenerated() bool
}

type Auth struct{}

var _ AuthConfig = Auth{}

var (
	generatedOnce       sync.Once
	generatedPepper     string
	generatedSessionKey string
)

func generateSecrets() {
	generatedOnce.Do(func() {
		generatedPepper = randomHex(32)
		generatedSessionKey = randomHex(32)
	})
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("config: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

func (Auth) GetPepper() string {
	if v := GetEnv(pepperVar, ""); v != "" {
		return v
	}
	generateSecrets()
	return generatedPepper
}

func (Auth) GetSessionSecret() string {
	if v := GetEnv(sessionSecretVar, ""); v != "" {
		return v
	}
	generateSecrets()
	return generatedSessionKey
}

func (Auth) SecretsGenerated() bool {
	return GetEnv(pepperVar, "") == "" || GetEnv(sessionSecretVar, "") == ""
}

func (Auth) GetSessionTTL() time.Duration {
	return GetEnvDuration(sessionTTLVar, 12*time.Hour)
}

func (Auth) GetMagicLinkTTL() time.Duration {
	return GetEnvDuration(magicLinkTTLVar, 15*time.Minute)
}

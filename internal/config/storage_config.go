package config

import "strings"

const (
	ThrottleBackendMemory   = "memory"
	ThrottleBackendRedis    = "redis"
	ThrottleBackendPostgres = "postgres"
)

type StorageConfig interface {
	GetDatabaseURL() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetThrottleBackend() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetDatabaseURL returns the Postgres DSN. Empty selects the in-memory repos.
func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

func (Storage) GetThrottleBackend() string {
	return strings.ToLower(GetEnv("THROTTLE_BACKEND", ThrottleBackendMemory))
}

package config

import "strings"

// BootstrapConfig describes the tenant and owner seeded at start-up. Seeding
// is skipped when the slug is empty.
type BootstrapConfig interface {
	GetBootstrapTenantSlug() string
	GetBootstrapTenantName() string
	GetBootstrapOwnerEmail() string
	GetBootstrapOwnerPassword() string
}

type Bootstrap struct{}

var _ BootstrapConfig = Bootstrap{}

func (Bootstrap) GetBootstrapTenantSlug() string {
	return strings.ToLower(GetEnv("BOOTSTRAP_TENANT_SLUG", ""))
}

func (b Bootstrap) GetBootstrapTenantName() string {
	return GetEnv("BOOTSTRAP_TENANT_NAME", b.GetBootstrapTenantSlug())
}

func (Bootstrap) GetBootstrapOwnerEmail() string {
	return GetEnv("BOOTSTRAP_OWNER_EMAIL", "")
}

// GetBootstrapOwnerPassword returns the initial owner password. When empty the
// owner is created without one and can only sign in through SSO.
func (Bootstrap) GetBootstrapOwnerPassword() string {
	return GetEnv("BOOTSTRAP_OWNER_PASSWORD", "")
}

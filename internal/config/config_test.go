package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, v := range []string{"MAGIC_LINK_TTL", "MAGIC_LINK_EMAIL_MAX", "MAGIC_LINK_SOURCE_WINDOW", "PORT", "ENV"} {
		t.Setenv(v, "")
	}
	c := New()

	require.Equal(t, 15*time.Minute, c.GetMagicLinkTTL())
	require.Equal(t, 3, c.GetMagicLinkEmailMax())
	require.Equal(t, 15*time.Minute, c.GetMagicLinkEmailWindow())
	require.Equal(t, 10, c.GetMagicLinkSourceMax())
	require.Equal(t, 60*time.Minute, c.GetMagicLinkSourceWindow())
	require.Equal(t, c.GetMagicLinkSourceWindow(), c.GetMagicLinkSourceCooldown())
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, EnvironmentDev, c.GetEnv())
}

func TestOverrides(t *testing.T) {
	t.Setenv("MAGIC_LINK_TTL", "5m")
	t.Setenv("MAGIC_LINK_EMAIL_MAX", "7")
	t.Setenv("PORT", ":9000")
	t.Setenv("TRUSTED_FORWARDED_HOSTS", "Acme.TutorHub.app, ,other.tutorhub.app")

	c := New()
	require.Equal(t, 5*time.Minute, c.GetMagicLinkTTL())
	require.Equal(t, 7, c.GetMagicLinkEmailMax())
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, []string{"acme.tutorhub.app", "other.tutorhub.app"}, c.GetTrustedForwardedHosts())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAGIC_LINK_TTL", "soon")
	t.Setenv("MAGIC_LINK_EMAIL_MAX", "-2")

	c := New()
	require.Equal(t, 15*time.Minute, c.GetMagicLinkTTL())
	require.Equal(t, 3, c.GetMagicLinkEmailMax())
}

func TestGeneratedSecretsAreStable(t *testing.T) {
	t.Setenv("AUTH_PEPPER", "")
	t.Setenv("SESSION_SECRET", "")

	c := New()
	require.True(t, c.SecretsGenerated())
	require.NotEmpty(t, c.GetPepper())
	require.Equal(t, c.GetPepper(), c.GetPepper())
	require.NotEqual(t, c.GetPepper(), c.GetSessionSecret())

	t.Setenv("AUTH_PEPPER", "pepper")
	t.Setenv("SESSION_SECRET", "secret")
	require.False(t, c.SecretsGenerated())
	require.Equal(t, "pepper", c.GetPepper())
}

func TestBootstrap(t *testing.T) {
	t.Setenv("BOOTSTRAP_TENANT_SLUG", "Maple")
	t.Setenv("BOOTSTRAP_TENANT_NAME", "")
	t.Setenv("BOOTSTRAP_OWNER_EMAIL", "founder@maple.test")
	t.Setenv("BOOTSTRAP_OWNER_PASSWORD", "")

	c := New()
	require.Equal(t, "maple", c.GetBootstrapTenantSlug())
	require.Equal(t, "maple", c.GetBootstrapTenantName())
	require.Equal(t, "founder@maple.test", c.GetBootstrapOwnerEmail())
	require.Empty(t, c.GetBootstrapOwnerPassword())

	t.Setenv("BOOTSTRAP_TENANT_NAME", "Maple Learning")
	require.Equal(t, "Maple Learning", c.GetBootstrapTenantName())
}

package tenants

import (
	"regexp"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
)

// Tenant is a tutoring centre. All users, sessions and credentials are scoped
// to exactly one tenant. The slug is the tenant's public, URL-safe handle.
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

const maxSlugLength = 63

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// NormaliseSlug trims whitespace and lowercases a raw slug.
func NormaliseSlug(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateSlug reports whether an already normalised slug is well formed.
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return apperrors.ErrInvalidTenantSlug
	}
	return nil
}

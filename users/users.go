package users

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// Role is a principal's role within one tenant.
type Role string

const (
	RoleOwner  Role = "owner"  // Runs the centre, full access
	RoleAdmin  Role = "admin"  // Office staff
	RoleTutor  Role = "tutor"  // Teaching staff
	RoleParent Role = "parent" // Guardian of one or more students, signs in by magic link
)

// ParseRole returns the Role for s, rejecting anything outside the enum.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleAdmin, RoleTutor, RoleParent:
		return r, nil
	}
	return "", apperrors.Wrapf(apperrors.ErrValidation, "unknown role %q", s)
}

// IsStaff reports whether the role signs in with a password or SSO.
func (r Role) IsStaff() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleTutor
}

// Membership represents a user's role within a specific tenant
type Membership struct {
	TenantID string    `json:"tenant_id"`
	Role     Role      `json:"role"`
	ParentID string    `json:"parent_id,omitempty"` // Parent record in the tenant, for RoleParent only
	JoinedAt time.Time `json:"joined_at"`
}

type User struct {
	ID           string       `json:"id,omitempty"`
	Email        string       `json:"email,omitempty"` // Normalised, unique across tenants
	Name         string       `json:"name,omitempty"`
	PasswordHash string       `json:"-"` // Staff only, never serialize
	CreatedAt    time.Time    `json:"created_at,omitempty"`
	Memberships  []Membership `json:"memberships,omitempty"`
}

// Profile is the tenant-neutral part of a user. Responses scoped to one
// tenant carry a Profile plus that tenant's membership, never the full
// membership list.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, Name: u.Name}
}

// NormaliseEmail trims and lowercases an address and checks it is a bare
// addr-spec. Two addresses that differ only in case normalise identically.
func NormaliseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 254 {
		return "", apperrors.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", apperrors.ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", apperrors.ErrInvalidEmail
	}
	return email, nil
}

// Membership returns the user's membership for a specific tenant
func (u *User) Membership(tenantID string) *Membership {
	for i := range u.Memberships {
		if u.Memberships[i].TenantID == tenantID {
			return &u.Memberships[i]
		}
	}
	return nil
}

// HasTenantRole checks if the user holds role within a tenant
func (u *User) HasTenantRole(tenantID string, role Role) bool {
	m := u.Membership(tenantID)
	return m != nil && m.Role == role
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// dummyHash is compared against when no user exists so that unknown and known
// emails take a similar time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("tutorhub-timing-equaliser"), bcrypt.DefaultCost)

// VerifyPassword checks password against u, tolerating a nil user.
func VerifyPassword(u *User, password string) bool {
	if u == nil || u.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return CheckPasswordHash(password, u.PasswordHash)
}

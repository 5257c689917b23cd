package sessions

import (
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/tutorhub-auth/users"
)

// Session is an authenticated principal bound to one tenant. It is created at
// login, destroyed at logout or expiry, and never moved between tenants.
type Session struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	Role      users.Role `json:"role"`
	ParentID  string     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// New builds a session for the given membership starting at now.
func New(tenantID, userID string, m users.Membership, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Role:      m.Role,
		ParentID:  m.ParentID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

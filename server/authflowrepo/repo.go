package authflowrepo

import (
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
)

// ErrStateNotFound is returned for an unknown, used or expired state.
var ErrStateNotFound = fmt.Errorf("%w: sso state not found", apperrors.ErrUnauthorized)

// AuthFlowState is what the SSO start handler remembers about one redirect to
// the identity provider.
type AuthFlowState struct {
	TenantID     string
	TenantSlug   string
	CodeVerifier string
	Nonce        string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	// Take returns the state and removes it, so a state is honoured once.
	Take(state string) (*AuthFlowState, error)
}

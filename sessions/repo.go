package sessions

import (
	"context"
	"time"
)

// Repo defines the interface for session storage operations.
type Repo interface {
	// Create stores a new session
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID, returning apperrors.ErrSessionNotFound on a miss
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session by ID
	Delete(ctx context.Context, sessionID string) error

	// DeleteExpired removes sessions that expired at or before now
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

package magiclink

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/tutorhub-auth/throttle"
)

// Settings is built once at start-up and shared by reference.
type Settings struct {
	TTL          time.Duration
	SessionTTL   time.Duration
	EmailPolicy  throttle.Policy
	SourcePolicy throttle.Policy
}

func DefaultSettings() Settings {
	return Settings{
		TTL:          15 * time.Minute,
		SessionTTL:   12 * time.Hour,
		EmailPolicy:  throttle.Policy{Window: 15 * time.Minute, MaxAttempts: 3, Cooldown: 15 * time.Minute},
		SourcePolicy: throttle.Policy{Window: 60 * time.Minute, MaxAttempts: 10, Cooldown: 60 * time.Minute},
	}
}

func (s Settings) Validate() error {
	if s.TTL <= 0 {
		return errors.New("magic link TTL must be positive")
	}
	if s.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if err := s.EmailPolicy.Validate(); err != nil {
		return fmt.Errorf("email policy: %w", err)
	}
	if err := s.SourcePolicy.Validate(); err != nil {
		return fmt.Errorf("source policy: %w", err)
	}
	return nil
}

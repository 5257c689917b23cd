package authflowrepo

import (
	"errors"
	"sync"
	"time"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// States older than maxAge are treated as missing and swept on write.
type InMemoryRepo struct {
	mu      sync.Mutex
	states  map[string]*AuthFlowState
	maxAge  time.Duration
	nowTime func() time.Time
}

type Option func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// NewInMemoryRepo creates a new in-memory auth flow state repository
func NewInMemoryRepo(maxAge time.Duration, options ...Option) *InMemoryRepo {
	r := &InMemoryRepo{
		states:  make(map[string]*AuthFlowState),
		maxAge:  maxAge,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, authState *AuthFlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if authState == nil {
		return errors.New("authState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowTime()
	for k, v := range r.states {
		if r.expired(v, now) {
			delete(r.states, k)
		}
	}

	// Create a copy to prevent external modifications
	stored := *authState
	r.states[state] = &stored
	return nil
}

func (r *InMemoryRepo) Take(state string) (*AuthFlowState, error) {
	if state == "" {
		return nil, ErrStateNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	authState, exists := r.states[state]
	if !exists {
		return nil, ErrStateNotFound
	}
	delete(r.states, state)
	if r.expired(authState, r.nowTime()) {
		return nil, ErrStateNotFound
	}
	out := *authState
	return &out, nil
}

// Len reports how many states are held.
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *InMemoryRepo) expired(s *AuthFlowState, now time.Time) bool {
	return r.maxAge > 0 && now.Sub(s.CreatedAt) > r.maxAge
}

package magiclinkrepofakes

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/magiclink"
	"github.com/jrsteele09/tutorhub-auth/sessions"
)

var _ magiclink.Store = (*FakeTokenStore)(nil)

// FakeTokenStore keeps tokens in memory and writes redeemed sessions to the
// supplied session repo while holding its own lock.
type FakeTokenStore struct {
	tokens   map[string]*magiclink.Token // by ID
	sessions sessions.Repo
	lock     sync.Mutex
}

func NewFakeTokenStore(sessionRepo sessions.Repo) *FakeTokenStore {
	return &FakeTokenStore{
		tokens:   make(map[string]*magiclink.Token),
		sessions: sessionRepo,
	}
}

func (s *FakeTokenStore) Create(_ context.Context, token *magiclink.Token) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	copied := *token
	s.tokens[token.ID] = &copied
	return nil
}

func (s *FakeTokenStore) FindByHash(_ context.Context, tenantID, tokenHash string) (*magiclink.Token, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, t := range s.tokens {
		if t.TenantID == tenantID && t.TokenHash == tokenHash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, apperrors.ErrMagicLinkNotFound
}

func (s *FakeTokenStore) Redeem(ctx context.Context, tokenID string, now time.Time, session *sessions.Session) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return apperrors.ErrMagicLinkNotFound
	}
	if t.ConsumedAt != nil {
		return apperrors.ErrAlreadyConsumed
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return err
	}
	consumedAt := now
	t.ConsumedAt = &consumedAt
	return nil
}

func (s *FakeTokenStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	removed := 0
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(s.tokens, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored tokens for tenantID.
func (s *FakeTokenStore) Count(tenantID string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.TenantID == tenantID {
			n++
		}
	}
	return n
}

// All returns copies of every stored token.
func (s *FakeTokenStore) All() []magiclink.Token {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]magiclink.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, *t)
	}
	return out
}

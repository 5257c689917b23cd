// Package magiclink issues and redeems single-use parent sign-in links.
//
// Only peppered hashes of the token and the email are stored. The raw token
// leaves the process once, inside the delivered link.
package magiclink

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/tutorhub-auth/sessions"
)

// rawTokenBytes gives 256 bits of entropy.
const rawTokenBytes = 32

// Token is the stored form of an issued link.
type Token struct {
	ID             string
	TokenHash      string
	IdentifierHash string
	TenantID       string
	ParentUserID   string // empty when the email matched no parent
	IssuedAt       time.Time
	ExpiresAt      time.Time
	ConsumedAt     *time.Time
}

func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func (t *Token) Consumed() bool {
	return t.ConsumedAt != nil
}

// Store persists tokens. Misses return apperrors.ErrMagicLinkNotFound.
type Store interface {
	Create(ctx context.Context, token *Token) error
	// FindByHash looks a token up within one tenant only.
	FindByHash(ctx context.Context, tenantID, tokenHash string) (*Token, error)
	// Redeem sets consumed_at and stores session as one atomic unit. A token
	// that is already consumed yields apperrors.ErrAlreadyConsumed and no
	// session is written.
	Redeem(ctx context.Context, tokenID string, now time.Time, session *sessions.Session) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// GenerateRawToken returns a URL-safe random token.
func GenerateRawToken() (string, error) {
	b := make([]byte, rawTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate magic link token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher derives the stored digests. Each kind of input is domain-separated
// so a token hash can never equal an identifier hash.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) (*Hasher, error) {
	if len(pepper) < 16 {
		return nil, errors.New("[NewHasher] pepper must be at least 16 bytes")
	}
	return &Hasher{pepper: []byte(pepper)}, nil
}

func (h *Hasher) TokenHash(raw string) string {
	return h.sum("token", raw)
}

// IdentifierHash hashes a normalised email.
func (h *Hasher) IdentifierHash(email string) string {
	return h.sum("email", email)
}

func (h *Hasher) SourceHash(addr string) string {
	return h.sum("source", addr)
}

func (h *Hasher) sum(kind, value string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

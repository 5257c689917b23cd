package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/tutorhub-auth/internal/errors"
	"github.com/jrsteele09/tutorhub-auth/sessions"
)

const sessionIssuer = "tutorhub"

// SessionClaims are carried by the session cookie or bearer token. They only
// point at a server-side session; role and membership are read from storage.
type SessionClaims struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tid"`
	jwt.RegisteredClaims
}

// SessionCodec turns sessions into signed credentials and back.
type SessionCodec struct {
	signer  Signer
	nowTime func() time.Time
}

type SessionCodecOption func(*SessionCodec)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionCodecOption {
	return func(c *SessionCodec) {
		c.nowTime = nowFunc
	}
}

func NewSessionCodec(signer Signer, options ...SessionCodecOption) (*SessionCodec, error) {
	if signer == nil {
		return nil, errors.New("[NewSessionCodec] signer is required")
	}
	c := &SessionCodec{signer: signer, nowTime: time.Now}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Encode signs a credential for s that expires with the session.
func (c *SessionCodec) Encode(s *sessions.Session) (string, error) {
	claims := SessionClaims{
		SessionID: s.ID,
		TenantID:  s.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(c.nowTime()),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	return c.signer.Sign(claims)
}

// Decode verifies raw and returns its claims. Any failure is reported as
// apperrors.ErrInvalidToken.
func (c *SessionCodec) Decode(raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, apperrors.ErrNoSession
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowTime),
	)
	if err != nil || !parsed.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	if claims.SessionID == "" || claims.TenantID == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// Base taxonomy. Every domain error wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

var (
	// Tenant errors
	ErrInvalidTenantSlug = fmt.Errorf("%w: invalid tenant slug", ErrValidation)
	ErrTenantNotFound    = fmt.Errorf("%w: tenant not found", ErrNotFound)
	ErrTenantMismatch    = fmt.Errorf("%w: session does not belong to tenant", ErrForbidden)

	// Session errors
	ErrNoSession       = fmt.Errorf("%w: no session", ErrUnauthorized)
	ErrSessionNotFound = fmt.Errorf("%w: session not found", ErrUnauthorized)
	ErrSessionExpired  = fmt.Errorf("%w: session expired", ErrUnauthorized)
	ErrInvalidToken    = fmt.Errorf("%w: invalid session token", ErrUnauthorized)

	// Authorization errors
	ErrRoleNotAllowed     = fmt.Errorf("%w: role not permitted", ErrForbidden)
	ErrMembershipNotFound = fmt.Errorf("%w: no membership for tenant", ErrForbidden)

	// Credential errors
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrNotFound)

	// Magic link errors
	ErrMagicLinkNotFound = fmt.Errorf("%w: magic link not found", ErrNotFound)
	ErrAlreadyConsumed   = fmt.Errorf("%w: magic link already consumed", ErrConflict)
	ErrThrottled         = fmt.Errorf("%w: too many attempts", ErrForbidden)
)

// KindOf reports the taxonomy kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindInternal
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	}
	return "internal_error"
}

// HTTPStatus maps a kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	return KindOf(err).HTTPStatus()
}

// PublicMessage returns a message that is safe to send to a client.
// Internal errors never expose their cause.
func PublicMessage(err error) string {
	kind := KindOf(err)
	if kind == KindInternal {
		return "an unexpected error occurred"
	}
	var target *publicError
	if errors.As(err, &target) {
		return target.msg
	}
	return kind.String()
}

type publicError struct {
	msg string
	err error
}

func (p *publicError) Error() string { return p.msg + ": " + p.err.Error() }
func (p *publicError) Unwrap() error { return p.err }

// Public attaches a client-safe message to err.
func Public(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &publicError{msg: msg, err: err}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

package magiclink

import (
	"errors"
	"time"

	"github.com/jrsteele09/tutorhub-auth/mail"
	"github.com/jrsteele09/tutorhub-auth/tenants"
	"github.com/jrsteele09/tutorhub-auth/throttle"
	"github.com/jrsteele09/tutorhub-auth/users"
)

// Deps holds the collaborators shared by Issuer and Consumer.
type Deps struct {
	Resolver *tenants.Resolver
	Users    users.UserRepo
	Tokens   Store
	Hasher   *Hasher
	Ledger   *throttle.Ledger // Issuer only
	Sender   mail.Sender      // Issuer only
	Links    *LinkBuilder     // Issuer only
}

// Observer receives outcome counts. internal/metrics implements it.
type Observer interface {
	MagicLinkIssued(outcome string)
	MagicLinkConsumed(reason string)
	ThrottleDenied(scope string)
}

type nopObserver struct{}

func (nopObserver) MagicLinkIssued(string)   {}
func (nopObserver) MagicLinkConsumed(string) {}
func (nopObserver) ThrottleDenied(string)    {}

type options struct {
	nowTime  func() time.Time
	observer Observer
}

type Option func(*options)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(o *options) {
		o.nowTime = nowFunc
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{nowTime: time.Now, observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (d Deps) validateShared(fn string) error {
	if d.Resolver == nil {
		return errors.New("[" + fn + "] tenant resolver is required")
	}
	if d.Users == nil {
		return errors.New("[" + fn + "] users repo is required")
	}
	if d.Tokens == nil {
		return errors.New("[" + fn + "] token store is required")
	}
	if d.Hasher == nil {
		return errors.New("[" + fn + "] hasher is required")
	}
	return nil
}

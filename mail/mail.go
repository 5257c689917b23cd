// Package mail delivers magic-link messages out of band. The raw link only
// ever leaves the process through a Sender.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/rs/zerolog/log"
)

// MagicLinkMessage is one sign-in email.
type MagicLinkMessage struct {
	To         string    `json:"to"`
	TenantName string    `json:"tenant_name"`
	TenantSlug string    `json:"tenant_slug"`
	Link       string    `json:"link"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Sender interface {
	SendMagicLink(ctx context.Context, msg MagicLinkMessage) error
}

// Subject folds all whitespace in the tenant name, line breaks included, to
// single spaces so the name cannot start a new header.
func (m MagicLinkMessage) Subject() string {
	return fmt.Sprintf("Your sign-in link for %s", strings.Join(strings.Fields(m.TenantName), " "))
}

func (m MagicLinkMessage) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello,\r\n\r\n")
	fmt.Fprintf(&b, "Use the link below to sign in to the %s parent portal.\r\n\r\n", m.TenantName)
	fmt.Fprintf(&b, "%s\r\n\r\n", m.Link)
	fmt.Fprintf(&b, "The link can be used once and expires at %s.\r\n", m.ExpiresAt.UTC().Format("15:04 MST on 2 Jan 2006"))
	fmt.Fprintf(&b, "If you did not ask to sign in you can ignore this email.\r\n")
	return b.String()
}

// LogSender writes a redacted line instead of sending. Used in DEV.
type LogSender struct{}

var _ Sender = LogSender{}

func (LogSender) SendMagicLink(_ context.Context, msg MagicLinkMessage) error {
	log.Info().
		Str("to", logging.RedactEmail(msg.To)).
		Str("tenant", msg.TenantSlug).
		Str("link_ref", logging.HashRef(msg.Link)).
		Time("expires_at", msg.ExpiresAt).
		Msg("magic link delivery (log backend)")
	return nil
}

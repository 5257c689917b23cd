package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

var testMessage = MagicLinkMessage{
	To:         "parent@example.com",
	TenantName: "Acme Tutoring",
	TenantSlug: "acme",
	Link:       "https://acme.tutorhub.app/acme/parent/auth/verify?token=abc",
	ExpiresAt:  time.Date(2026, 1, 5, 10, 15, 0, 0, time.UTC),
}

func TestMessageBody(t *testing.T) {
	require.Equal(t, "Your sign-in link for Acme Tutoring", testMessage.Subject())
	require.Contains(t, testMessage.Body(), testMessage.Link)
	require.Contains(t, testMessage.Body(), "10:15 UTC on 5 Jan 2026")
}

func TestSubjectFoldsLineBreaks(t *testing.T) {
	msg := testMessage
	msg.TenantName = "Acme\r\nBcc: attacker@evil.test"
	require.Equal(t, "Your sign-in link for Acme Bcc: attacker@evil.test", msg.Subject())
	require.NotContains(t, msg.Subject(), "\n")
	require.NotContains(t, msg.Subject(), "\r")
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", "587", "bot", "pw", "no-reply@tutorhub.app")

	var raw bytes.Buffer
	var sawDeadline bool
	s.send = func(ctx context.Context, m *gomail.Msg) error {
		_, sawDeadline = ctx.Deadline()
		_, err := m.WriteTo(&raw)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.SendMagicLink(ctx, testMessage))
	require.True(t, sawDeadline)
	require.Contains(t, raw.String(), "Subject: Your sign-in link for Acme Tutoring")
	require.Contains(t, raw.String(), "parent@example.com")

	bad := testMessage
	bad.To = "parent@example.com\r\nBcc: x@evil.test"
	require.Error(t, s.SendMagicLink(context.Background(), bad))

	s.send = func(context.Context, *gomail.Msg) error { return errors.New("relay refused") }
	require.ErrorContains(t, s.SendMagicLink(context.Background(), testMessage), "relay refused")

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	require.ErrorIs(t, s.SendMagicLink(cancelled, testMessage), context.Canceled)
}

func TestSMTPSenderRejectsBadPort(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", "smtp", "", "", "no-reply@tutorhub.app")
	require.ErrorContains(t, s.SendMagicLink(context.Background(), testMessage), "invalid port")
}

// blockingSender holds every delivery until release is closed.
type blockingSender struct {
	release   chan struct{}
	mu        sync.Mutex
	delivered []MagicLinkMessage
	deadlines int
}

func (b *blockingSender) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := ctx.Deadline(); ok {
		b.deadlines++
	}
	b.delivered = append(b.delivered, msg)
	return nil
}

func TestAsyncSenderDoesNotWaitForDelivery(t *testing.T) {
	next := &blockingSender{release: make(chan struct{})}
	a := NewAsyncSender(next, 1, 4, time.Minute)

	start := time.Now()
	require.NoError(t, a.SendMagicLink(context.Background(), testMessage))
	require.Less(t, time.Since(start), time.Second)

	close(next.release)
	require.NoError(t, a.Close())
	require.Len(t, next.delivered, 1)
	require.Equal(t, 1, next.deadlines)
	require.ErrorIs(t, a.SendMagicLink(context.Background(), testMessage), ErrQueueClosed)
}

func TestAsyncSenderQueueFull(t *testing.T) {
	next := &blockingSender{release: make(chan struct{})}
	a := NewAsyncSender(next, 1, 1, time.Minute)

	// The worker may already hold the first message, so fill until the queue refuses.
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = a.SendMagicLink(context.Background(), testMessage)
	}
	require.ErrorIs(t, err, ErrQueueFull)

	close(next.release)
	require.NoError(t, a.Close())
}

type fakePublisher struct {
	key string
	msg amqp.Publishing
	err error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _ string, key string, _, _ bool, msg amqp.Publishing) error {
	f.key, f.msg = key, msg
	return f.err
}

func TestQueueSender(t *testing.T) {
	pub := &fakePublisher{}
	q := NewQueueSender(pub, "mail.magic_link")

	require.NoError(t, q.SendMagicLink(context.Background(), testMessage))
	require.Equal(t, "mail.magic_link", pub.key)
	require.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)

	var decoded MagicLinkMessage
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	require.Equal(t, testMessage.Link, decoded.Link)

	pub.err = errors.New("channel closed")
	require.Error(t, q.SendMagicLink(context.Background(), testMessage))
}

package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/tutorhub-auth/internal/logging"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull   = errors.New("mail: delivery queue full")
	ErrQueueClosed = errors.New("mail: delivery queue closed")
)

// AsyncSender hands messages to a fixed pool of workers so a request returns
// as soon as its message is queued. Each delivery gets its own deadline.
type AsyncSender struct {
	next    Sender
	timeout time.Duration
	queue   chan MagicLinkMessage

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Sender = (*AsyncSender)(nil)

func NewAsyncSender(next Sender, workers, buffer int, timeout time.Duration) *AsyncSender {
	if workers < 1 {
		workers = 1
	}
	a := &AsyncSender{
		next:    next,
		timeout: timeout,
		queue:   make(chan MagicLinkMessage, buffer),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

// SendMagicLink queues msg and never blocks. ctx is not carried over to the
// delivery, which outlives the request.
func (a *AsyncSender) SendMagicLink(_ context.Context, msg MagicLinkMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrQueueClosed
	}
	select {
	case a.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (a *AsyncSender) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
	return nil
}

func (a *AsyncSender) work() {
	defer a.wg.Done()
	for msg := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.SendMagicLink(ctx, msg); err != nil {
			log.Error().Err(err).
				Str("to", logging.RedactEmail(msg.To)).
				Str("tenant", msg.TenantSlug).
				Msg("magic link delivery failed")
		}
		cancel()
	}
}

package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel used to enqueue mail.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueSender hands messages to a mail worker over RabbitMQ.
type QueueSender struct {
	publisher Publisher
	queue     string
	nowTime   func() time.Time
}

var _ Sender = (*QueueSender)(nil)

func NewQueueSender(publisher Publisher, queue string) *QueueSender {
	return &QueueSender{publisher: publisher, queue: queue, nowTime: time.Now}
}

// DialQueue connects, declares the durable mail queue and returns a sender
// with a close function for shutdown.
func DialQueue(url, queue string) (*QueueSender, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	closeFn := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewQueueSender(ch, queue), closeFn, nil
}

func (q *QueueSender) SendMagicLink(ctx context.Context, msg MagicLinkMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    q.nowTime().UTC(),
		Type:         "magic_link",
		Body:         body,
	}
	if err := q.publisher.PublishWithContext(ctx, "", q.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/evalauth/internal/email"
	"github.com/iliyamo/evalauth/internal/logger"
)

// Publisher enqueues email events on a durable queue.  The broker connection
// is opened lazily and redialed after it drops.
type Publisher struct {
	url   string
	queue string
	log   *logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewPublisher(url, queue string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{url: url, queue: queue, log: log}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, nil
}

// Publish enqueues ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev EmailEvent) error {
	if err := ev.validate(); err != nil {
		return err
	}
	if ev.QueuedAt.IsZero() {
		ev.QueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		p.log.Error("Email queue: broker unavailable", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.QueuedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// SendVerificationLink enqueues a verification email.
func (p *Publisher) SendVerificationLink(ctx context.Context, to, token string) error {
	return p.Publish(ctx, EmailEvent{Kind: email.KindVerification, To: to, Token: token})
}

// SendResetLink enqueues a password reset email.
func (p *Publisher) SendResetLink(ctx context.Context, to, token string) error {
	return p.Publish(ctx, EmailEvent{Kind: email.KindPasswordReset, To: to, Token: token})
}

// Close closes the broker connection if one is open.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/evalauth/internal/email"
	"github.com/iliyamo/evalauth/internal/logger"
)

// Deliverer sends one rendered email.  *email.Sender implements it.
type Deliverer interface {
	Send(ctx context.Context, kind email.Kind, to, token string) error
}

// Consumer drains the email queue into a Deliverer.
type Consumer struct {
	url         string
	queue       string
	deliverer   Deliverer
	sendTimeout time.Duration
	log         *logger.Logger
}

func NewConsumer(url, queue string, d Deliverer, sendTimeout time.Duration, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{url: url, queue: queue, deliverer: d, sendTimeout: sendTimeout, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled, redialing
// with exponential backoff when the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("Email consumer: failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("Email consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn("Email consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.log.Error("Email consumer: handle message failed", "error", err)
				_ = d.Nack(false, false) // no requeue, avoids a hot loop on poison messages
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	ev, err := decodeEvent(body)
	if err != nil {
		return err
	}
	sendCtx := ctx
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}
	return c.deliverer.Send(sendCtx, ev.Kind, ev.To, ev.Token)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package queue moves outbound email through RabbitMQ so request handlers
// never wait on SMTP.  The publisher implements the service Mailer; the
// consumer drains the queue into an email sender.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/evalauth/internal/email"
)

// EmailEvent asks the consumer to deliver one link.  Token is the raw
// single-use value; it is the same secret the email itself will carry.
type EmailEvent struct {
	Kind     email.Kind `json:"kind"`
	To       string     `json:"to"`
	Token    string     `json:"token"`
	QueuedAt time.Time  `json:"queued_at"`
}

func (e EmailEvent) validate() error {
	switch e.Kind {
	case email.KindVerification, email.KindPasswordReset:
	default:
		return fmt.Errorf("unknown email kind %q", e.Kind)
	}
	if e.To == "" || e.Token == "" {
		return fmt.Errorf("%s event missing recipient or token", e.Kind)
	}
	return nil
}

func decodeEvent(body []byte) (EmailEvent, error) {
	var ev EmailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return EmailEvent{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := ev.validate(); err != nil {
		return EmailEvent{}, err
	}
	return ev, nil
}

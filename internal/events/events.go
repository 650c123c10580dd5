// Package events notifies downstream consumers about newly synced
// messages. Delivery is at-least-once: a message may be announced again
// if a consumer replays the exchange, never announced for a message that
// was not persisted.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nhle/unibox/internal/model"
)

// RoutingKeyMessageSynced is used for every persisted message.
const RoutingKeyMessageSynced = "message.synced"

// MessageSynced is the JSON body of a message.synced event.
type MessageSynced struct {
	MessageID         string    `json:"message_id"`
	AccountID         string    `json:"account_id"`
	UserID            string    `json:"user_id"`
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"provider_message_id"`
	From              string    `json:"from"`
	Subject           string    `json:"subject"`
	Priority          string    `json:"priority,omitempty"`
	Intent            string    `json:"intent,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

// NewMessageSynced builds the event for msg stored under acct.
func NewMessageSynced(acct *model.Account, msg *model.Message) MessageSynced {
	ev := MessageSynced{
		MessageID:         msg.ID,
		AccountID:         msg.AccountID,
		UserID:            acct.UserID,
		Provider:          string(acct.Provider),
		ProviderMessageID: msg.ProviderMessageID,
		From:              msg.From,
		Subject:           msg.Subject,
		ReceivedAt:        msg.ReceivedAt,
	}
	if msg.Priority != nil {
		ev.Priority = string(*msg.Priority)
	}
	if msg.Intent != nil {
		ev.Intent = *msg.Intent
	}
	return ev
}

// Publisher announces persisted messages.
type Publisher interface {
	PublishMessageSynced(ctx context.Context, ev MessageSynced) error
	Close() error
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishMessageSynced(context.Context, MessageSynced) error { return nil }
func (Noop) Close() error                                              { return nil }

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// DialAMQP connects to url and declares exchange as a durable topic
// exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishMessageSynced sends ev as a persistent JSON message.
func (p *AMQPPublisher) PublishMessageSynced(ctx context.Context, ev MessageSynced) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyMessageSynced, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.MessageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing %s for message %s: %w", RoutingKeyMessageSynced, ev.MessageID, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// Package events publishes domain events (currently only ingest completion)
// to RabbitMQ. When no broker is configured, or it is unreachable at startup,
// a logging fallback is used instead.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"collectwise/internal/logging"
)

// RoutingIngestCompleted is the routing key of the event published after
// every ingestion run.
const RoutingIngestCompleted = "ingest.completed"

// Publisher publishes JSON events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// EventProducer publishes to a durable topic exchange.
type EventProducer struct {
	exchange string

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared bool

	logger logging.Logger
}

// NewEventProducer dials amqpURL with a bounded timeout.
func NewEventProducer(amqpURL, exchange string, logger logging.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("events: exchange name is empty")
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &EventProducer{exchange: exchange, conn: conn, channel: ch, logger: logger}, nil
}

// Publish marshals body and publishes it as a persistent message. A failed
// exchange declare reopens the channel once before giving up.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared {
		if err := p.declare(); err != nil {
			if p.logger != nil {
				p.logger.Printf("events: exchange declare failed; reopening channel exchange=%s err=%v", p.exchange, err)
			}
			ch, chErr := p.conn.Channel()
			if chErr != nil {
				return fmt.Errorf("events: reopen channel: %w", chErr)
			}
			p.channel = ch
			if err := p.declare(); err != nil {
				return fmt.Errorf("events: declare %s: %w", p.exchange, err)
			}
		}
		p.declared = true
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *EventProducer) declare() error {
	return p.channel.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

// Close releases channel and connection resources.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Fallback logs events instead of publishing them.
type Fallback struct {
	Logger logging.Logger
}

func (f Fallback) Publish(_ context.Context, routingKey string, body any) error {
	if f.Logger == nil {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", routingKey, err)
	}
	f.Logger.Printf("events: broker not configured; routing_key=%s body=%s", routingKey, payload)
	return nil
}

func (Fallback) Close() {}

// New returns an EventProducer for amqpURL, or a Fallback when amqpURL is
// empty or the broker cannot be reached.
func New(amqpURL, exchange string, logger logging.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		return Fallback{Logger: logger}
	}
	p, err := NewEventProducer(amqpURL, exchange, logger)
	if err != nil {
		if logger != nil {
			logger.Printf("events: rabbitmq unavailable, using log fallback: %v", err)
		}
		return Fallback{Logger: logger}
	}
	return p
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// Drop stray characters before the scheme (e.g. from copy-pasted env files).
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("events: AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

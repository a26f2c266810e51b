package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bryan-buckman/buildlog/internal/model"
)

// Config describes the AMQP exchange post events are published to.
type Config struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue"`
}

// Message is the JSON body of a published event.
type Message struct {
	Action    string          `json:"action"`
	Post      model.PostEvent `json:"post"`
	Timestamp time.Time       `json:"timestamp"`
}

// RabbitMQ publishes post events to a durable direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// NewRabbitMQ dials cfg.URL and declares the topology events need.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	r := &RabbitMQ{
		conn:       conn,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}
	if r.channel, err = conn.Channel(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := r.declare(cfg.QueueName); err != nil {
		_ = r.Close()
		return nil, err
	}

	logger.Info("event broker ready",
		"exchange", cfg.Exchange,
		"routing_key", cfg.RoutingKey,
		"queue", cfg.QueueName,
	)
	return r, nil
}

// declare creates the durable direct exchange and, when queue is set, a
// durable queue bound to it under the routing key. Consumers that bring
// their own queue leave it empty.
func (r *RabbitMQ) declare(queue string) error {
	if err := r.channel.ExchangeDeclare(r.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", r.exchange, err)
	}
	if queue == "" {
		return nil
	}
	if _, err := r.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}
	if err := r.channel.QueueBind(queue, r.routingKey, r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", queue, err)
	}
	return nil
}

// Publish sends ev as a persistent "created" message.
func (r *RabbitMQ) Publish(ctx context.Context, ev model.PostEvent) error {
	now := time.Now().UTC()
	body, err := json.Marshal(Message{Action: "created", Post: ev, Timestamp: now})
	if err != nil {
		return fmt.Errorf("encode post event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	}
	if err := r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish post event: %w", err)
	}
	r.logger.Debug("post event published", "slug", ev.Slug)
	return nil
}

// Close releases the channel and the connection. It is safe on a
// partially constructed publisher.
func (r *RabbitMQ) Close() error {
	var errs []error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "meteorite-explorer/internal/errors"
)

// DefaultExchange is the fanout exchange used when none is configured.
const DefaultExchange = "meteorite.events"

// RabbitMQConfig describes the broker connection.
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Durable  bool
}

// RabbitMQBus publishes events to a fanout exchange. Every subscription
// binds its own exclusive queue, so each instance sees every event.
type RabbitMQBus struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQBus dials the broker and declares the exchange.
func NewRabbitMQBus(cfg RabbitMQConfig) (*RabbitMQBus, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rabbitmq url must not be empty")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, eventFailure(err, "connect rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, eventFailure(err, "open rabbitmq channel")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, eventFailure(err, "declare exchange "+exchange)
	}
	return &RabbitMQBus{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends event as a persistent JSON message.
func (b *RabbitMQBus) Publish(ctx context.Context, event Event) error {
	if b == nil || b.ch == nil {
		return xerrors.New(xerrors.CodeUnavailable, "rabbitmq bus not initialized")
	}
	msg, err := publishing(event)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ch.PublishWithContext(ctx, b.exchange, "", false, false, msg); err != nil {
		return eventFailure(err, "publish "+event.Type)
	}
	return nil
}

func publishing(event Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, eventFailure(err, "encode event")
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}

func decodeDelivery(body []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, eventFailure(err, "decode event")
	}
	if event.Type == "" {
		return Event{}, xerrors.New(xerrors.CodeEventFailure, "event without type")
	}
	return event, nil
}

func eventFailure(err error, action string) error {
	return xerrors.Wrap(xerrors.CodeEventFailure, err, action)
}

// Subscribe consumes from a private queue bound to the exchange until ctx is
// cancelled. Messages that fail to decode are dropped.
func (b *RabbitMQBus) Subscribe(ctx context.Context, handler Handler) error {
	if b == nil || b.conn == nil {
		return xerrors.New(xerrors.CodeUnavailable, "rabbitmq bus not initialized")
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return eventFailure(err, "open rabbitmq channel")
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return eventFailure(err, "declare subscriber queue")
	}
	if err := ch.QueueBind(queue.Name, "", b.exchange, false, nil); err != nil {
		return eventFailure(err, fmt.Sprintf("bind %s to %s", queue.Name, b.exchange))
	}
	msgs, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return eventFailure(err, "consume "+queue.Name)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ErrClosed
			}
			event, err := decodeDelivery(msg.Body)
			if err != nil {
				_ = msg.Reject(false)
				continue
			}
			_ = handler(ctx, event)
			_ = msg.Ack(false)
		}
	}
}

// Close closes the channel and the connection.
func (b *RabbitMQBus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

var _ Bus = (*RabbitMQBus)(nil)

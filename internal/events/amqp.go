package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are forwarded to.
const DefaultExchange = "taskflow.events"

// Envelope is the JSON document published for every forwarded event.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	WorkflowID string    `json:"workflow_id"`
	Payload    Event     `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher sends an encoded event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, messageID string) error
}

// AMQPPublisher publishes to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// DialAMQP connects to RabbitMQ and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends a persistent JSON message to the exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body []byte, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Forwarder relays every bus event to a Publisher.
type Forwarder struct {
	pub    Publisher
	events <-chan Event
	logger *slog.Logger
	done   chan struct{}
}

// NewForwarder subscribes to all topics on bus. Call Run to start relaying.
func NewForwarder(bus *EventBus, pub Publisher, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		pub:    pub,
		events: bus.SubscribeAll(0),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run forwards events until ctx is cancelled or the bus is closed.
// Publish errors are logged and do not stop the loop.
func (f *Forwarder) Run(ctx context.Context) {
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.events:
			if !ok {
				return
			}
			if err := f.forward(ctx, ev); err != nil {
				f.logger.Warn("failed to forward event",
					"type", ev.EventType(),
					"workflow_id", ev.WorkflowID(),
					"error", err,
				)
			}
		}
	}
}

// Wait blocks until Run has returned.
func (f *Forwarder) Wait() {
	<-f.done
}

func (f *Forwarder) forward(ctx context.Context, ev Event) error {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       ev.EventType(),
		WorkflowID: ev.WorkflowID(),
		Payload:    ev,
		Timestamp:  time.Now(),
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return f.pub.Publish(ctx, ev.EventType(), body, env.ID)
}

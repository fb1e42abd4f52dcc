package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends domain events.  Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.  It is used when events are disabled.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// AMQPPublisher publishes JSON events to a durable topic exchange, using
// the event type as routing key.  The connection is opened lazily and
// re-dialed after a failure.
//
// Dialing, including the AMQP handshake, is bounded by dialTimeout.  After
// a failed dial the publisher fails fast until redialBackoff has passed,
// so callers queued on the mutex do not each wait out a dead broker.
type AMQPPublisher struct {
	url           string
	exchange      string
	dialTimeout   time.Duration
	redialBackoff time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	downTill time.Time
}

// ErrBrokerDown is returned by Publish while the publisher is backing off
// after a failed dial.
var ErrBrokerDown = errors.New("events: broker unavailable")

// NewAMQPPublisher returns a publisher for exchange on the broker at url.
// No connection is made until the first Publish.
func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		url:           url,
		exchange:      exchange,
		dialTimeout:   publishTimeout,
		redialBackoff: 5 * time.Second,
	}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.downTill) {
		return nil, ErrBrokerDown
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		p.downTill = time.Now().Add(p.redialBackoff)
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish implements Publisher.  Messages are persistent.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// publishTimeout bounds how long Emit may hold up its caller.
const publishTimeout = 2 * time.Second

// Emit publishes ev after a core operation has already committed.  It
// never fails the caller: errors are logged and dropped.  The request
// context's cancellation is ignored so a client hanging up does not lose
// the event.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		log.Printf("events: publish %s %s: %v", ev.Type, ev.ID, err)
	}
}

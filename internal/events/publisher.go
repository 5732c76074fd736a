package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeType = "topic"

	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

// confirmChannel is the part of *amqp.Channel the publisher drives.
type confirmChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	GetNextPublishSeqNo() uint64
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange with publisher
// confirms. Each publish waits for the confirmation carrying its own delivery tag.
type AMQPPublisher struct {
	mu      sync.Mutex // pairs a sequence number with its publish
	conn    *amqp.Connection
	channel confirmChannel
	log     *zap.Logger

	waitMu  sync.Mutex
	waiting map[uint64]chan bool
	closed  bool

	backoff        time.Duration
	confirmTimeout time.Duration
}

func NewAMQPPublisher(url string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		ExchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	p := newPublisher(channel, channel.NotifyPublish(make(chan amqp.Confirmation, 16)), log)
	p.conn = conn

	log.Info("Connected to RabbitMQ", zap.String("exchange", ExchangeName))
	return p, nil
}

func newPublisher(ch confirmChannel, confirms <-chan amqp.Confirmation, log *zap.Logger) *AMQPPublisher {
	p := &AMQPPublisher{
		channel:        ch,
		log:            log,
		waiting:        map[uint64]chan bool{},
		backoff:        initialBackoff,
		confirmTimeout: confirmTimeout,
	}
	go p.dispatch(confirms)
	return p
}

// dispatch hands each confirmation to the publish waiting on its tag.
// Confirmations nobody waits for any more (timed out) are dropped.
func (p *AMQPPublisher) dispatch(confirms <-chan amqp.Confirmation) {
	for c := range confirms {
		p.waitMu.Lock()
		w, ok := p.waiting[c.DeliveryTag]
		delete(p.waiting, c.DeliveryTag)
		p.waitMu.Unlock()
		if ok {
			w <- c.Ack
		} else {
			p.log.Debug("Dropping stale confirmation", zap.Uint64("delivery_tag", c.DeliveryTag))
		}
	}

	p.waitMu.Lock()
	p.closed = true
	for tag, w := range p.waiting {
		close(w)
		delete(p.waiting, tag)
	}
	p.waitMu.Unlock()
}

// Publish sends e with the event type as routing key, retrying with
// exponential backoff until the broker acknowledges it.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := p.backoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			}
		}

		tag, acked, err := p.send(ctx, e, body)
		if err != nil {
			lastErr = err
			p.log.Warn("Failed to publish event, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		select {
		case ack, ok := <-acked:
			if !ok {
				return fmt.Errorf("channel closed while awaiting confirmation")
			}
			if ack {
				p.log.Debug("Event published",
					zap.String("event_id", e.EventID),
					zap.String("event_type", e.EventType),
				)
				return nil
			}
			lastErr = fmt.Errorf("event not acknowledged")
		case <-ctx.Done():
			p.forget(tag)
			return ctx.Err()
		case <-time.After(p.confirmTimeout):
			p.forget(tag)
			lastErr = fmt.Errorf("confirmation timeout")
		}

		p.log.Warn("Event publish not confirmed, retrying", zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// send publishes once and returns the delivery tag with the channel its
// confirmation will arrive on.
func (p *AMQPPublisher) send(ctx context.Context, e Event, body []byte) (uint64, <-chan bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tag := p.channel.GetNextPublishSeqNo()
	acked := make(chan bool, 1)

	p.waitMu.Lock()
	if p.closed {
		p.waitMu.Unlock()
		return 0, nil, fmt.Errorf("channel closed")
	}
	p.waiting[tag] = acked
	p.waitMu.Unlock()

	err := p.channel.PublishWithContext(
		ctx,
		ExchangeName,
		e.EventType,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
			MessageId:     e.EventID,
			CorrelationId: e.CorrelationID,
			Body:          body,
			Headers: amqp.Table{
				"event_type":    e.EventType,
				"event_version": e.EventVersion,
			},
		},
	)
	if err != nil {
		p.forget(tag)
		return 0, nil, err
	}
	return tag, acked, nil
}

func (p *AMQPPublisher) forget(tag uint64) {
	p.waitMu.Lock()
	delete(p.waiting, tag)
	p.waitMu.Unlock()
}

func (p *AMQPPublisher) IsHealthy() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/pairchat/internal/presence"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// Publisher sends presence transitions to the queue. A connection lost to a broker
// restart is redialed on the next publish.
type Publisher struct {
	queue string
	dial  func() (io.Closer, channel, error)

	mu   sync.Mutex
	conn io.Closer
	ch   channel
}

func NewPublisher(url, queue string) (*Publisher, error) {
	p := &Publisher{
		queue: queue,
		dial: func() (io.Closer, channel, error) {
			return dialAMQP(url, queue)
		},
	}
	if err := p.reconnectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialAMQP(url, queue string) (io.Closer, channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := DeclareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// reconnectLocked drops the current connection, if any, and dials a new one. p.mu must be held.
func (p *Publisher) reconnectLocked() error {
	p.closeLocked()
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) closeLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}

// DeclareQueues declares the main queue plus its retry and dead-letter queues.
// Publisher and worker both call it so either may start first.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// OnStatusChange publishes presence transitions; it plugs into presence.Registry as a listener.
func (p *Publisher) OnStatusChange(ctx context.Context, ev presence.StatusChange) error {
	body, err := EncodeStatusChange(ev)
	if err != nil {
		return err
	}
	return p.publish(ctx, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    ev.At,
	})
}

func (p *Publisher) publish(ctx context.Context, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.reconnectLocked(); err != nil {
			return fmt.Errorf("rabbitmq reconnect: %w", err)
		}
	}

	err := p.publishLocked(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// closed between the check and the publish
		if rerr := p.reconnectLocked(); rerr != nil {
			return fmt.Errorf("rabbitmq reconnect: %w", rerr)
		}
		err = p.publishLocked(ctx, msg)
	}
	return err
}

func (p *Publisher) publishLocked(ctx context.Context, msg amqp.Publishing) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		msg,
	)
}

func EncodeStatusChange(ev presence.StatusChange) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeStatusChange parses a queued event and rejects ones missing a user or a known status.
func DecodeStatusChange(body []byte) (presence.StatusChange, error) {
	var ev presence.StatusChange
	if err := json.Unmarshal(body, &ev); err != nil {
		return presence.StatusChange{}, err
	}
	if ev.UserID == "" {
		return presence.StatusChange{}, ErrBadEvent
	}
	if ev.Status != presence.StatusOnline && ev.Status != presence.StatusOffline {
		return presence.StatusChange{}, ErrBadEvent
	}
	return ev, nil
}

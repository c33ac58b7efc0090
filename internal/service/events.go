// Package service holds outbound integrations used by the handlers.
// Publishing errors are logged and returned so callers can ignore them
// without interrupting the request flow.
package service

import (
    "context"
    "encoding/json"
    "errors"
    "log"
    "net"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/opustrack/opustrack/internal/queue"
)

// ErrBrokerBackoff is returned while the publisher waits before redialling
// a broker that just failed.
var ErrBrokerBackoff = errors.New("events: broker unavailable, retry later")

const (
    dialTimeout = 5 * time.Second
    minBackoff  = time.Second
    maxBackoff  = 30 * time.Second
)

// EventPublisher publishes domain events.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.DomainEvent) error
}

// NopPublisher drops events. It is used when no broker is configured and
// in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.DomainEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to a durable queue via
// the default exchange. The connection is opened lazily and re-dialled
// after it drops, at most once per backoff window. Callers never wait for
// the connection longer than their context allows.
type AMQPPublisher struct {
    URL   string
    Queue string

    sem     chan struct{} // one holder owns conn and ch
    conn    *amqp.Connection
    ch      *amqp.Channel
    backoff time.Duration
    retryAt time.Time
}

func NewAMQPPublisher(url, queueName string) *AMQPPublisher {
    return &AMQPPublisher{URL: url, Queue: queueName, sem: make(chan struct{}, 1)}
}

func (p *AMQPPublisher) lock(ctx context.Context) error {
    select {
    case p.sem <- struct{}{}:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (p *AMQPPublisher) unlock() { <-p.sem }

// dial opens a connection whose TCP connect and AMQP handshake both end
// at the context deadline, or after dialTimeout without one.
func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, error) {
    deadline, ok := ctx.Deadline()
    if !ok {
        deadline = time.Now().Add(dialTimeout)
    }
    return amqp.DialConfig(p.URL, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial: func(network, addr string) (net.Conn, error) {
            d := net.Dialer{Deadline: deadline}
            conn, err := d.DialContext(ctx, network, addr)
            if err != nil {
                return nil, err
            }
            // cleared by the client once the handshake completes
            if err := conn.SetDeadline(deadline); err != nil {
                _ = conn.Close()
                return nil, err
            }
            return conn, nil
        },
    })
}

func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        return p.ch, nil
    }
    p.closeLocked()
    if time.Now().Before(p.retryAt) {
        return nil, ErrBrokerBackoff
    }
    ch, err := p.open(ctx)
    if err != nil {
        p.backoff = min(max(2*p.backoff, minBackoff), maxBackoff)
        p.retryAt = time.Now().Add(p.backoff)
        return nil, err
    }
    p.backoff, p.retryAt = 0, time.Time{}
    return ch, nil
}

func (p *AMQPPublisher) open(ctx context.Context) (*amqp.Channel, error) {
    conn, err := p.dial(ctx)
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

// Publish sends ev. OccurredAt is filled in when zero.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.DomainEvent) error {
    if ev.OccurredAt.IsZero() {
        ev.OccurredAt = time.Now().UTC()
    }
    body, err := json.Marshal(ev)
    if err != nil {
        log.Printf("events: marshal %s failed: %v", ev.Type, err)
        return err
    }

    if err := p.lock(ctx); err != nil {
        log.Printf("events: %s dropped: %v", ev.Type, err)
        return err
    }
    defer p.unlock()
    ch, err := p.channel(ctx)
    if err != nil {
        log.Printf("events: broker unavailable: %v", err)
        return err
    }
    err = ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    ev.OccurredAt,
        Type:         ev.Type,
        Body:         body,
    })
    if err != nil {
        log.Printf("events: publish %s failed: %v", ev.Type, err)
        p.closeLocked()
        return err
    }
    return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
    p.sem <- struct{}{}
    defer p.unlock()
    p.closeLocked()
    return nil
}

func (p *AMQPPublisher) closeLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// PublishAsync fires ev in the background with its own timeout so slow
// brokers never hold up a response.
func PublishAsync(p EventPublisher, ev queue.DomainEvent) {
    if p == nil {
        return
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = p.Publish(ctx, ev)
    }()
}

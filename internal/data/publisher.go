package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"FitTrack/internal/conf"
	"FitTrack/internal/model"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrBrokerDeliveryFailed wraps every failure to get an event confirmed by the broker.
	ErrBrokerDeliveryFailed = errors.New("broker delivery failed")
	// ErrBrokerNacked is returned when the broker negatively acknowledges a message.
	ErrBrokerNacked = errors.New("broker nacked the message")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher is closed")
)

const exchangeKind = "topic"

// EventPublisher delivers domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// amqpConnection is the subset of *amqp.Connection the publisher uses.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	PublishWithConfirm(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

// confirmation is a pending publisher confirm.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type connectionAdapter struct {
	*amqp.Connection
}

func (c connectionAdapter) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return channelAdapter{Channel: ch}, nil
}

type channelAdapter struct {
	*amqp.Channel
}

func (c channelAdapter) PublishWithConfirm(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.Channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

func dialAMQP(url string, timeout time.Duration) (amqpConnection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, err
	}
	return connectionAdapter{Connection: conn}, nil
}

// RabbitMQPublisher publishes persistent JSON events to a durable topic exchange
// and waits for the broker confirm. It owns one connection and opens a channel
// per publish.
type RabbitMQPublisher struct {
	url            string
	exchange       string
	dialTimeout    time.Duration
	publishTimeout time.Duration
	dial           func(url string, timeout time.Duration) (amqpConnection, error)

	mu     sync.Mutex
	conn   amqpConnection
	closed bool
	group  singleflight.Group

	logger *pkglog.LogHelper
}

// NewRabbitMQPublisher creates a publisher. The connection is dialed on first use.
func NewRabbitMQPublisher(c *conf.Broker, logger log.Logger) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		url:            c.URL,
		exchange:       c.Exchange,
		dialTimeout:    c.DialTimeout,
		publishTimeout: c.PublishTimeout,
		dial:           dialAMQP,
		logger:         pkglog.NewLogHelper(logger),
	}
}

// Publish sends ev and blocks until the broker confirms it, the publish timeout
// elapses or ctx is done.
func (p *RabbitMQPublisher) Publish(ctx context.Context, ev model.Event) error {
	if p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	err := p.publish(ctx, ev)
	if err != nil {
		p.logger.Warnw("msg", "event publish failed",
			"type", "event",
			"exchange", p.exchange,
			"routing_key", ev.RoutingKey,
			"error", err)
		return fmt.Errorf("%w: %w", ErrBrokerDeliveryFailed, err)
	}
	return nil
}

func (p *RabbitMQPublisher) publish(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}

	ch, err := p.openChannel(ctx, conn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			p.logger.Debugw("msg", "channel close failed", "error", cerr)
		}
	}()

	messageID := uuid.NewString()
	confirm, err := ch.PublishWithConfirm(ctx, p.exchange, ev.RoutingKey, amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		MessageId:       messageID,
		Timestamp:       ev.OccurredAt,
		Type:            ev.RoutingKey,
		Body:            body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm: %w", err)
	}
	if !acked {
		return ErrBrokerNacked
	}

	p.logger.Event("event published",
		"exchange", p.exchange,
		"routing_key", ev.RoutingKey,
		"message_id", messageID)
	return nil
}

type channelResult struct {
	ch  amqpChannel
	err error
}

// openChannel opens a confirm-mode channel on conn with the exchange declared.
// The channel RPCs have no deadline of their own, so the setup runs aside and
// ctx bounds the wait. A setup that outlives ctx drops the connection.
func (p *RabbitMQPublisher) openChannel(ctx context.Context, conn amqpConnection) (amqpChannel, error) {
	done := make(chan channelResult, 1)
	go func() {
		ch, err := p.setupChannel(conn)
		done <- channelResult{ch: ch, err: err}
	}()

	select {
	case r := <-done:
		return r.ch, r.err
	case <-ctx.Done():
		p.discard(conn)
		go func() {
			if r := <-done; r.ch != nil {
				_ = r.ch.Close()
			}
		}()
		return nil, fmt.Errorf("channel setup: %w", ctx.Err())
	}
}

func (p *RabbitMQPublisher) setupChannel(conn amqpConnection) (amqpChannel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return ch, nil
}

// discard forgets conn and closes it in the background. The next publish redials.
func (p *RabbitMQPublisher) discard(conn amqpConnection) {
	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
	}
	p.mu.Unlock()

	p.logger.Warnw("msg", "broker stopped answering, dropping connection",
		"type", "event",
		"exchange", p.exchange)
	go func() {
		if err := conn.Close(); err != nil {
			p.logger.Debugw("msg", "connection close failed", "error", err)
		}
	}()
}

// connection returns the live connection, dialing a new one when there is none
// or the previous one was closed. Concurrent callers share a single dial and
// each stops waiting when its ctx is done.
func (p *RabbitMQPublisher) connection(ctx context.Context) (amqpConnection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPublisherClosed
	}
	if p.conn != nil && !p.conn.IsClosed() {
		conn := p.conn
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	dialed := p.group.DoChan("dial", func() (interface{}, error) {
		conn, err := p.dial(p.url, p.dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = conn.Close()
			return nil, ErrPublisherClosed
		}
		p.conn = conn
		host, vhost := brokerEndpoint(p.url)
		p.logger.Startup("broker connection established",
			"host", host,
			"vhost", vhost,
			"exchange", p.exchange)
		return conn, nil
	})

	select {
	case r := <-dialed:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(amqpConnection), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("dial broker: %w", ctx.Err())
	}
}

// brokerEndpoint reduces an AMQP URL to host:port and vhost so credentials
// never reach the logs.
func brokerEndpoint(rawURL string) (host, vhost string) {
	uri, err := amqp.ParseURI(rawURL)
	if err != nil {
		return "invalid", ""
	}
	return net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port)), uri.Vhost
}

// Close closes the broker connection. Further publishes fail with ErrPublisherClosed.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

// NoopEventPublisher only logs events. It is used in test mode.
type NoopEventPublisher struct {
	logger *pkglog.LogHelper
}

// NewNoopEventPublisher creates a publisher that never touches a broker.
func NewNoopEventPublisher(logger log.Logger) *NoopEventPublisher {
	return &NoopEventPublisher{logger: pkglog.NewLogHelper(logger)}
}

// Publish logs ev and returns nil.
func (p *NoopEventPublisher) Publish(_ context.Context, ev model.Event) error {
	p.logger.Event("event not published (test mode)",
		"routing_key", ev.RoutingKey,
		"payload", ev.Payload)
	return nil
}

// NewEventPublisher selects the publisher for the configured mode.
func NewEventPublisher(app *conf.App, c *conf.Broker, logger log.Logger) (EventPublisher, func(), error) {
	helper := log.NewHelper(logger)

	if !app.IsProduction() {
		helper.Info("test mode: events are logged, not published")
		return NewNoopEventPublisher(logger), func() {}, nil
	}
	if c == nil || c.URL == "" {
		return nil, nil, errors.New("broker url is required in production mode")
	}

	pub := NewRabbitMQPublisher(c, logger)
	cleanup := func() {
		helper.Info("closing the broker connection")
		if err := pub.Close(); err != nil {
			helper.Errorw("msg", "failed to close broker connection", "error", err)
		}
	}
	return pub, cleanup, nil
}

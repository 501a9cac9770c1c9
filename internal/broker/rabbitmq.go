package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/mapper"
	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/Guizzs26/ctms-sync/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange   = "ctms.contacts"
	RoutingKey = "contact.sync"

	confirmTimeout = 10 * time.Second
)

var ErrBrokerClosed = errors.New("broker connection is closed")

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Publisher is a Deliverer that publishes contact records as persistent JSON
// messages and waits for the broker's confirm.
type Publisher struct {
	conn       *amqp.Connection
	channel    channel
	metrics    *metrics.SyncMetrics
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewPublisher dials the broker, declares the topic exchange and enables
// publisher confirms.
func NewPublisher(url string, m *metrics.SyncMetrics, l *slog.Logger) (*Publisher, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		conn:       c,
		channel:    ch,
		metrics:    m,
		logger:     l.With("component", "broker"),
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.setHealthy(true)

	c.NotifyClose(p.connClosed)
	ch.NotifyClose(p.chanClosed)
	go p.watch()

	p.logger.Info("Connected to RabbitMQ", "exchange", Exchange)
	return p, nil
}

func (p *Publisher) watch() {
	select {
	case err := <-p.connClosed:
		p.setHealthy(false)
		p.logger.Warn("RabbitMQ connection closed", "error", err)
	case err := <-p.chanClosed:
		p.setHealthy(false)
		p.logger.Warn("RabbitMQ channel closed", "error", err)
	case <-p.ctx.Done():
	}
}

func (p *Publisher) setHealthy(ok bool) {
	p.healthy.Store(ok)
	p.metrics.SetBrokerHealthy(ok)
}

// Push publishes rec and blocks until it is confirmed. A NACK is a rejection;
// a closed link or a confirm timeout is transient.
func (p *Publisher) Push(ctx context.Context, rec mapper.Record) error {
	if !p.IsHealthy() {
		return ErrBrokerClosed
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	deferred, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		Exchange,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:      amqp.Table{"email_id": rec.EmailID.String()},
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    rec.EmailID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	acked, err := deferred.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("publisher confirm failed: %w", err)
	}
	if !acked {
		return fmt.Errorf("%w: RabbitMQ NACK received for %s", models.ErrDeliveryRejected, rec.EmailID)
	}
	return nil
}

// Close gracefully shuts down the RabbitMQ resources
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Info("Terminating RabbitMQ publisher")
		p.cancel()
		if p.channel != nil {
			p.channel.Close()
		}
		if p.conn != nil {
			p.conn.Close()
		}
		p.setHealthy(false)
	})
	return nil
}

// IsHealthy returns true if the connection and channel are active
func (p *Publisher) IsHealthy() bool {
	return p.healthy.Load()
}

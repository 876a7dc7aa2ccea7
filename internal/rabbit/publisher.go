package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"natrip-payments/internal/domain"
)

const RoutingOrderPaid = "order.paid"

// OrderPaidEvent is published once per order, when it first becomes paid.
type OrderPaidEvent struct {
	OrderToken        string        `json:"orderToken"`
	Provider          string        `json:"provider"`
	ProviderPaymentID string        `json:"providerPaymentId,omitempty"`
	AmountTotal       domain.Amount `json:"amountTotal"`
	PaidAt            time.Time     `json:"paidAt"`
}

type Publisher interface {
	PublishOrderPaid(ctx context.Context, evt OrderPaidEvent) error
	Close() error
}

type noop struct{}

// NewNoop is used when no broker is configured.
func NewNoop() Publisher {
	return noop{}
}

func (noop) PublishOrderPaid(context.Context, OrderPaidEvent) error { return nil }
func (noop) Close() error                                            { return nil }

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	IsClosed() bool
	Close() error
}

type connection interface {
	channel() (channel, error)
	IsClosed() bool
	Close() error
}

type amqpConnection struct {
	*amqp091.Connection
}

func (c amqpConnection) channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// publisher reopens its channel, and redials when the connection itself is
// gone, so a broker restart only fails the publishes made while it is down.
type publisher struct {
	url      string
	exchange string
	dial     func(url string) (connection, error)
	log      logrus.FieldLogger

	mu   sync.Mutex
	conn connection
	ch   channel
}

// NewPublisher dials the broker and declares the fanout exchange.
func NewPublisher(url, exchange string, log logrus.FieldLogger) (Publisher, error) {
	p, err := newPublisher(url, exchange, dialAMQP, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(url, exchange string, dial func(string) (connection, error), log logrus.FieldLogger) (*publisher, error) {
	p := &publisher{url: url, exchange: exchange, dial: dial, log: log}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		if p.conn != nil {
			p.conn.Close()
		}
		return nil, err
	}
	log.WithField("exchange", exchange).Info("rabbit publisher ready")
	return p, nil
}

// ensureChannel must be called with mu held.
func (p *publisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return err
		}
		p.conn = conn
	}
	ch, err := p.conn.channel()
	if err != nil {
		return err
	}
	err = ch.ExchangeDeclare(
		p.exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return err
	}
	p.ch = ch
	return nil
}

func (p *publisher) PublishOrderPaid(ctx context.Context, evt OrderPaidEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.OrderToken,
		Timestamp:    evt.PaidAt,
		Type:         RoutingOrderPaid,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for attempt := 0; ; attempt++ {
		if err := p.ensureChannel(); err != nil {
			return fmt.Errorf("reopen rabbit channel: %w", err)
		}
		err := p.ch.PublishWithContext(ctx, p.exchange, RoutingOrderPaid, false, false, msg)
		if err == nil || attempt > 0 || !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
		p.log.WithError(err).Warn("rabbit channel closed, reopening")
		p.ch.Close()
		p.ch = nil
	}
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.log.WithError(err).Warn("closing rabbit channel")
		}
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

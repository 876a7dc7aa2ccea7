package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natrip-payments/internal/domain"
	"natrip-payments/internal/logging"
)

type fakeChannel struct {
	closed    bool
	failWith  error
	declared  []string
	published []amqp091.Publishing
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	c.declared = append(c.declared, name+"/"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }
func (c *fakeChannel) Close() error   { c.closed = true; return nil }

type fakeConnection struct {
	closed   bool
	channels []*fakeChannel
}

func (c *fakeConnection) channel() (channel, error) {
	if c.closed {
		return nil, amqp091.ErrClosed
	}
	ch := &fakeChannel{}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConnection) IsClosed() bool { return c.closed }
func (c *fakeConnection) Close() error   { c.closed = true; return nil }

type fakeBroker struct {
	down  bool
	conns []*fakeConnection
}

func (b *fakeBroker) dial(string) (connection, error) {
	if b.down {
		return nil, errors.New("connection refused")
	}
	c := &fakeConnection{}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) lastChannel() *fakeChannel {
	conn := b.conns[len(b.conns)-1]
	return conn.channels[len(conn.channels)-1]
}

func paidEvent(token string) OrderPaidEvent {
	return OrderPaidEvent{
		OrderToken:  token,
		Provider:    "hybrid",
		AmountTotal: domain.NewAmount(decimal.RequireFromString("115.50")),
		PaidAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishOrderPaid(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newPublisher("amqp://test", "payment_orders", broker.dial, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, p.PublishOrderPaid(context.Background(), paidEvent("tok-1")))

	ch := broker.lastChannel()
	assert.Equal(t, []string{"payment_orders/fanout"}, ch.declared)
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "tok-1", msg.MessageId)
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, 115.5, got["amountTotal"])
}

func TestPublishReopensClosedChannel(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newPublisher("amqp://test", "payment_orders", broker.dial, logging.Discard())
	require.NoError(t, err)

	broker.lastChannel().closed = true
	require.NoError(t, p.PublishOrderPaid(context.Background(), paidEvent("tok-1")))

	require.Len(t, broker.conns, 1)
	assert.Len(t, broker.conns[0].channels, 2)
	assert.Len(t, broker.lastChannel().published, 1)
}

func TestPublishRetriesOnceAfterErrClosed(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newPublisher("amqp://test", "payment_orders", broker.dial, logging.Discard())
	require.NoError(t, err)

	broker.lastChannel().failWith = amqp091.ErrClosed
	require.NoError(t, p.PublishOrderPaid(context.Background(), paidEvent("tok-1")))
	assert.Len(t, broker.lastChannel().published, 1)
}

func TestPublishRedialsAfterBrokerRestart(t *testing.T) {
	broker := &fakeBroker{}
	p, err := newPublisher("amqp://test", "payment_orders", broker.dial, logging.Discard())
	require.NoError(t, err)

	broker.conns[0].closed = true
	broker.lastChannel().closed = true
	broker.down = true
	assert.Error(t, p.PublishOrderPaid(context.Background(), paidEvent("tok-1")))

	broker.down = false
	require.NoError(t, p.PublishOrderPaid(context.Background(), paidEvent("tok-2")))
	require.Len(t, broker.conns, 2)
	assert.Equal(t, "tok-2", broker.lastChannel().published[0].MessageId)
}

func TestNewPublisherFailsWhenBrokerDown(t *testing.T) {
	broker := &fakeBroker{down: true}
	_, err := newPublisher("amqp://test", "payment_orders", broker.dial, logging.Discard())
	assert.Error(t, err)
}

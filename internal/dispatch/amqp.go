package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lunaralarm/internal/model"
)

const (
	DefaultExchange   = "lunaralarm"
	DefaultRoutingKey = "anniversary.notification"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes each notification as JSON to a durable topic exchange, for
// consumers that fan out to other transports.
type AMQP struct {
	conn       *amqp.Connection
	ch         amqpChannel
	exchange   string
	routingKey string
}

// DialAMQP connects to url and declares the exchange.
func DialAMQP(url, exchange, routingKey string) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange: %w", err)
	}

	a := newAMQP(ch, exchange, routingKey)
	a.conn = conn
	return a, nil
}

func newAMQP(ch amqpChannel, exchange, routingKey string) *AMQP {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &AMQP{ch: ch, exchange: exchange, routingKey: routingKey}
}

func (a *AMQP) Name() string { return "amqp" }

func (a *AMQP) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return a.ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.EventID + "|" + n.TargetDate.Format(time.DateOnly) + "|" + n.Label,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (a *AMQP) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

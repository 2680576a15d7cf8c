package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "rabbitmq")

// RoutingPrefix prefixes every routing key; consumers bind RoutingPrefix + "#".
const RoutingPrefix = "orders."

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Rabbit publishes and consumes change feed events on a topic exchange.
type Rabbit struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
}

func NewRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *Rabbit) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *Rabbit) Publish(ctx context.Context, event changefeed.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	err = r.ch.PublishWithContext(ctx, r.exchange, RoutingPrefix+event.EventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", event.EventType)
}

// Consume binds a durable queue to every order event and feeds deliveries to
// handler until ctx is done or the channel closes. Failed deliveries are
// rejected without requeue.
func (r *Rabbit) Consume(ctx context.Context, queueName string, handler changefeed.Handler) error {
	q, err := r.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "declare queue %s", queueName)
	}
	if err := r.ch.QueueBind(q.Name, RoutingPrefix+"#", r.exchange, false, nil); err != nil {
		return errors.Wrapf(err, "bind queue %s", queueName)
	}
	msgs, err := r.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "consume %s", queueName)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				log.WithField("queue", queueName).Info("consumer stopped")
				return nil
			}
			r.deliver(ctx, d, handler)
		}
	}
}

func (r *Rabbit) deliver(ctx context.Context, d amqp.Delivery, handler changefeed.Handler) {
	entry := log.WithField("routing_key", d.RoutingKey)

	var event changefeed.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		entry.WithError(err).Warn("skipping undecodable message")
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, event); err != nil {
		entry.WithError(err).WithField("order_id", event.AggregateID).Error("handler error")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

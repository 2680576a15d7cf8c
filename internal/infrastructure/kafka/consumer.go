package kafka

import (
	"context"
	"encoding/json"

	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "kafka")

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Consume feeds every event on the topic to handler until ctx is done.
// Undecodable messages and handler failures are logged and skipped.
func (c *Consumer) Consume(ctx context.Context, handler changefeed.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.WithError(err).Warn("error reading message")
				continue
			}

			var event changefeed.Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.WithError(err).WithField("offset", msg.Offset).Warn("skipping undecodable message")
				continue
			}
			if err := handler(ctx, event); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"event_type": event.EventType,
					"order_id":   event.AggregateID,
				}).Error("error handling message")
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/swirly-orders/internal/app"
	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/example/swirly-orders/internal/config"
	"github.com/example/swirly-orders/internal/email"
	"github.com/example/swirly-orders/internal/infrastructure/kinesis"
	"github.com/example/swirly-orders/internal/notification"
	"github.com/example/swirly-orders/internal/pkg/logging"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/sirupsen/logrus"
)

var (
	log                 = logging.Component("lambda-notifier")
	notificationHandler changefeed.Handler
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogJSON)
	// Stream records come from the DynamoDB documents table, so orders are read back from it.
	cfg.DocumentBackend = config.BackendDynamo
	cfg.RealtimeBackend = config.BackendMemory

	stores, err := app.OpenStores(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open stores")
	}

	repo := repository.New(stores.Documents, stores.Realtime)
	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	notificationHandler = notification.NewHandler(mailer, repo).HandleEvent

	log.WithFields(logrus.Fields{
		"table": cfg.DynamoTable,
		"smtp":  cfg.SMTPHost + ":" + cfg.SMTPPort,
	}).Info("initialized")
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	return process(ctx, notificationHandler, kinesisEvent), nil
}

// process reports every record that could not be converted or handled as a
// batch item failure so the stream retries only those.
func process(ctx context.Context, handle changefeed.Handler, kinesisEvent events.KinesisEvent) events.KinesisEventResponse {
	log.WithField("records", len(kinesisEvent.Records)).Info("received batch")

	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord) {
		failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
	}

	for _, record := range kinesisEvent.Records {
		entry := log.WithField("record_id", record.EventID)
		event, err := kinesis.ConvertFromKinesisRecord(record)
		if err != nil {
			entry.WithError(err).Error("failed to convert record")
			fail(record)
			continue
		}
		if event == nil {
			continue
		}

		entry = entry.WithFields(logrus.Fields{"event_type": event.EventType, "order_id": event.AggregateID})
		if err := handle(ctx, *event); err != nil {
			entry.WithError(err).Error("failed to process event")
			fail(record)
			continue
		}
		entry.Debug("processed event")
	}

	log.WithFields(logrus.Fields{
		"succeeded": len(kinesisEvent.Records) - len(failures),
		"total":     len(kinesisEvent.Records),
	}).Info("batch processed")

	return events.KinesisEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}

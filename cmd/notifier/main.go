package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/example/swirly-orders/internal/app"
	"github.com/example/swirly-orders/internal/config"
	"github.com/example/swirly-orders/internal/email"
	"github.com/example/swirly-orders/internal/infrastructure/kafka"
	"github.com/example/swirly-orders/internal/infrastructure/rabbitmq"
	"github.com/example/swirly-orders/internal/notification"
	"github.com/example/swirly-orders/internal/pkg/logging"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logging.Component("notifier")

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogJSON)
	if len(cfg.ChangeFeed) == 0 {
		log.Fatal("CHANGE_FEED must name kafka, rabbitmq or both")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open stores")
	}
	defer stores.Close()

	repo := repository.New(stores.Documents, stores.Realtime)
	mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(mailer, repo)

	log.WithFields(logrus.Fields{
		"feeds": cfg.ChangeFeed,
		"smtp":  cfg.SMTPHost + ":" + cfg.SMTPPort,
		"from":  cfg.SMTPFrom,
	}).Info("notifier starting")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.FeedEnabled(config.FeedKafka) {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer consumer.Close()
		g.Go(func() error {
			log.WithField("topic", cfg.KafkaTopic).Info("consuming kafka")
			return consumer.Consume(gctx, handler.HandleEvent)
		})
	}
	if cfg.FeedEnabled(config.FeedRabbitMQ) {
		rabbit, err := rabbitmq.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to rabbitmq")
		}
		defer rabbit.Close()
		g.Go(func() error {
			log.WithField("queue", cfg.RabbitQueue).Info("consuming rabbitmq")
			return rabbit.Consume(gctx, cfg.RabbitQueue, handler.HandleEvent)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("consumer stopped")
	}
	log.Info("shutting down")
}

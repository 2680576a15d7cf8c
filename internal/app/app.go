// Package app assembles stores and transports from configuration for the binaries.
package app

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/swirly-orders/internal/changefeed"
	"github.com/example/swirly-orders/internal/config"
	"github.com/example/swirly-orders/internal/infrastructure/kafka"
	"github.com/example/swirly-orders/internal/infrastructure/rabbitmq"
	"github.com/example/swirly-orders/internal/infrastructure/store"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "app")

// Stores holds the document and realtime stores of one process.
type Stores struct {
	Documents store.DocumentStore
	Realtime  store.RealtimeStore

	closers []func() error
}

// Close releases every connection opened by OpenStores, last opened first.
func (s *Stores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// OpenStores connects the configured document and realtime backends.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{}
	docs, err := s.openDocuments(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	rt, err := s.openRealtime(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Documents, s.Realtime = docs, rt
	return s, nil
}

func (s *Stores) openDocuments(ctx context.Context, cfg *config.Config) (store.DocumentStore, error) {
	switch cfg.DocumentBackend {
	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := store.MigratePostgres(db.DB); err != nil {
			return nil, err
		}
		log.Info("document store: postgres")
		return store.NewPostgresDocumentStore(db), nil

	case config.BackendSQLite:
		docs, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, docs.Close)
		log.WithField("path", cfg.SQLitePath).Info("document store: sqlite")
		return docs, nil

	case config.BackendDynamo:
		client, err := NewDynamoClient(ctx, cfg.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		log.WithField("table", cfg.DynamoTable).Info("document store: dynamodb")
		return store.NewDynamoDocumentStore(client, cfg.DynamoTable), nil

	default:
		log.Info("document store: memory")
		return store.NewMemoryDocumentStore(), nil
	}
}

func (s *Stores) openRealtime(ctx context.Context, cfg *config.Config) (store.RealtimeStore, error) {
	if cfg.RealtimeBackend != config.BackendRedis {
		log.Info("realtime store: memory")
		return store.NewMemoryRealtimeStore(), nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.RedisAddrs,
		Password: cfg.RedisPassword,
	})
	s.closers = append(s.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	log.WithField("addrs", cfg.RedisAddrs).Info("realtime store: redis")
	return store.NewRedisRealtimeStore(client, cfg.RedisPrefix), nil
}

// NewDynamoClient builds a DynamoDB client from the default AWS credential
// chain. A non-empty endpoint targets a local emulator.
func NewDynamoClient(ctx context.Context, endpoint string) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// OpenChangeFeed connects a publisher for every configured transport. The
// result is empty when no transport is configured.
func OpenChangeFeed(cfg *config.Config) (changefeed.Fanout, error) {
	var feed changefeed.Fanout
	if cfg.FeedEnabled(config.FeedKafka) {
		feed = append(feed, kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.WithField("topic", cfg.KafkaTopic).Info("change feed: kafka")
	}
	if cfg.FeedEnabled(config.FeedRabbitMQ) {
		r, err := rabbitmq.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			_ = feed.Close()
			return nil, err
		}
		feed = append(feed, r)
		log.WithField("exchange", cfg.RabbitExchange).Info("change feed: rabbitmq")
	}
	return feed, nil
}

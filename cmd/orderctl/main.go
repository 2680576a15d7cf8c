// Command orderctl is the operator tool for the order store: schema
// migrations, status overrides, removals and test tokens.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/swirly-orders/internal/app"
	"github.com/example/swirly-orders/internal/auth"
	"github.com/example/swirly-orders/internal/checkout"
	"github.com/example/swirly-orders/internal/command"
	"github.com/example/swirly-orders/internal/config"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store"
	"github.com/example/swirly-orders/internal/pkg/logging"
	"github.com/example/swirly-orders/internal/query"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/joho/godotenv"
)

var log = logging.Component("orderctl")

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := newApp(os.Stdout, cfg, func(ctx context.Context) (*env, error) {
		return openEnv(ctx, cfg)
	})
	if err := cli.RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

func openEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	feed, err := app.OpenChangeFeed(cfg)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	e := newEnv(stores.Documents, stores.Realtime, repository.WithPublisher(feed))
	e.close = func() {
		_ = feed.Close()
		_ = stores.Close()
	}
	return e, nil
}

// env is the set of services one command runs against.
type env struct {
	repo     *repository.Repository
	commands *command.Handler
	queries  *query.Handler
	close    func()
}

func newEnv(docs store.DocumentStore, rt store.RealtimeStore, opts ...repository.Option) *env {
	repo := repository.New(docs, rt, opts...)
	return &env{
		repo:     repo,
		commands: command.NewHandler(repo, order.NewService(repo), checkout.SimulatedProcessor{}),
		queries:  query.NewHandler(repo),
		close:    func() {},
	}
}

func newJWTService(cfg *config.Config) (*auth.JWTService, error) {
	if err := cfg.RequireJWTSecret(); err != nil {
		return nil, err
	}
	return auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry), nil
}

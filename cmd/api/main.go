package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/swirly-orders/internal/api"
	"github.com/example/swirly-orders/internal/app"
	"github.com/example/swirly-orders/internal/auth"
	"github.com/example/swirly-orders/internal/checkout"
	"github.com/example/swirly-orders/internal/command"
	"github.com/example/swirly-orders/internal/config"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/pkg/logging"
	"github.com/example/swirly-orders/internal/query"
	"github.com/example/swirly-orders/internal/repository"
	"github.com/example/swirly-orders/internal/subscription"
	"github.com/joho/godotenv"
)

var log = logging.Component("api")

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogJSON)
	if err := cfg.RequireJWTSecret(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open stores")
	}
	defer stores.Close()

	feed, err := app.OpenChangeFeed(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open change feed")
	}
	defer feed.Close()

	repo := repository.New(stores.Documents, stores.Realtime, repository.WithPublisher(feed))
	cmdHandler := command.NewHandler(repo, order.NewService(repo), checkout.SimulatedProcessor{Delay: cfg.PaymentDelay})
	queryHandler := query.NewHandler(repo)
	subs := subscription.NewManager(stores.Realtime, repo, subscription.WithFanoutLimit(cfg.FanoutLimit))
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiry)

	handlers := api.NewHandlers(cmdHandler, queryHandler, repo, subs, cfg.SSEHeartbeat)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers, jwtService, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("server started")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/milletlink/milletlink-backend/api/controllers"
	"github.com/milletlink/milletlink-backend/api/routes"
	"github.com/milletlink/milletlink-backend/internal/chat"
	"github.com/milletlink/milletlink-backend/internal/couriers"
	"github.com/milletlink/milletlink-backend/internal/dispatch"
	"github.com/milletlink/milletlink-backend/internal/notifications"
	"github.com/milletlink/milletlink-backend/internal/orders"
	"github.com/milletlink/milletlink-backend/internal/relay"
	"github.com/milletlink/milletlink-backend/pkg/auth"
	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/milletlink/milletlink-backend/pkg/db"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/metrics"
	"github.com/milletlink/milletlink-backend/pkg/migrate"
	"github.com/milletlink/milletlink-backend/pkg/outbox"
	"github.com/milletlink/milletlink-backend/pkg/redis"
)

const shutdownGrace = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "relay"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "relay",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	defer func() {
		closeErr := multierr.Append(dbClient.Close(), redisClient.Close())
		if closeErr != nil {
			logg.Error(context.Background(), "error closing clients", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(registry)

	chatSvc := chat.NewService(chat.NewGormRepository(dbClient), cfg.Chat, logg)

	var verify relay.TokenVerifier
	if !cfg.App.IsDev() {
		verify = func(token string) (uuid.UUID, error) {
			return auth.VerifyIdentityToken(cfg.JWT, token)
		}
	}

	hub := relay.NewHub(chatSvc, redisClient, verify, relayMetrics, logg)
	relayServer := relay.NewServer(hub, cfg.Relay, relayMetrics, logg)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	dispatchSvc := dispatch.NewService(dbClient, dispatch.NewGormRepository(dbClient), outboxSvc, hub, logg)
	selector := couriers.NewSelector(redisClient, dispatchSvc, cfg.Dispatch, logg)
	ordersSvc := orders.NewService(dbClient, orders.NewGormRepository(dbClient), outboxSvc, selector, dispatchSvc, hub, logg)
	notificationsRepo := notifications.NewGormRepository(dbClient)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(ctx, "starting relay server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			ordersSvc,
			dispatchSvc,
			chatSvc,
			notificationsRepo,
			relayServer,
			registry,
		),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		chatSvc.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(ctx, "shutting down relay server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		// Flush chat messages still sitting in the durable-log queue.
		chatSvc.Close()
		return err
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "relay server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "relay server shut down gracefully")
}

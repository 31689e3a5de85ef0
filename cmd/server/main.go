// Command server runs the dispense sample backend: the public JSON API and a
// separate ops listener for probes, metrics and docs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sipcard/dispense/internal/api"
	"github.com/sipcard/dispense/internal/api/metrics"
	"github.com/sipcard/dispense/internal/core/service"
	"github.com/sipcard/dispense/internal/infrastructure/config"
	mongodb "github.com/sipcard/dispense/internal/infrastructure/db/mongo"
	redisdb "github.com/sipcard/dispense/internal/infrastructure/db/redis"
	opshttp "github.com/sipcard/dispense/internal/infrastructure/http"
	"github.com/sipcard/dispense/internal/infrastructure/http/handlers"
	"github.com/sipcard/dispense/internal/infrastructure/queue"
	"github.com/sipcard/dispense/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		l := logger.Get()
		l.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "dispense",
	})

	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close")
		}
	}()

	repos := mongodb.NewRepositories(db)
	if err := repos.EnsureIndexes(ctx); err != nil {
		return err
	}

	authService := service.NewAuthService(repos.Users, redisdb.NewRefreshRegistry(rdb), service.AuthConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	}, log.With().Str("component", "auth").Logger())
	cardService := service.NewCardService(repos.Cards, log.With().Str("component", "cards").Logger())
	tapService := service.NewTapService(
		repos.Cards,
		repos.Taps,
		redisdb.NewDedupChecker(rdb),
		metrics.TapRecorder{},
		cfg.Taps.PricePerLitreCents,
		log.With().Str("component", "taps").Logger(),
	)

	dispatcher := queue.NewDispatcher(cfg.Taps.Workers, tapService, log.With().Str("component", "dispatcher").Logger())
	// Workers outlive the signal so queued taps can still reach mongo while draining.
	dispatcher.Start(context.WithoutCancel(ctx))

	apiRouter := api.NewRouter(api.Deps{
		Auth:  authService,
		Cards: cardService,
		Taps:  dispatcher,
		Log:   log,
	})
	opsRouter := opshttp.NewRouter(opshttp.Options{
		Checks:  []handlers.Check{handlers.MongoCheck(db), handlers.RedisCheck(rdb)},
		Swagger: !cfg.IsProduction(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, apiRouter, ":"+cfg.Port, "api", log) })
	g.Go(func() error { return serve(gctx, opsRouter, ":"+cfg.OpsPort, "ops", log) })
	serveErr := g.Wait()

	// Servers are down; drain what was already accepted.
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := dispatcher.Stop(drainCtx); err != nil {
		log.Error().Err(err).Msg("tap dispatcher did not drain")
	}

	log.Info().Msg("shutdown complete")
	return serveErr
}

// serve runs e on addr until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, e *echo.Echo, addr, name string, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listener", name).Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Str("listener", name).Msg("stopped")
	return nil
}

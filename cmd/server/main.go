// main wires high-level dependencies and keeps the server lifecycle small.
// Registry logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"meldid/internal/admin"
	"meldid/internal/audit"
	"meldid/internal/platform/config"
	"meldid/internal/platform/httpserver"
	"meldid/internal/platform/logger"
	"meldid/internal/platform/metrics"
	platformredis "meldid/internal/platform/redis"
	"meldid/internal/registry"
	registryhandler "meldid/internal/registry/handler"
	"meldid/internal/registry/store"
	httptransport "meldid/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	registryStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	sink, err := buildAuditSink(cfg)
	if err != nil {
		log.Error("audit sink init failed", "error", err)
		os.Exit(1)
	}
	auditor := audit.NewPublisher(sink, log)
	defer auditor.Close()

	m := metrics.New()
	service := registry.NewService(registryStore, log, m, auditor)

	jwtService := admin.NewJWTService(cfg.AdminJWTKey, "meld-registry")
	adminHandler := admin.NewHandler(jwtService, cfg.AdminAPIKeyHash, log)

	router := httptransport.NewRouter(
		log, m,
		registryhandler.New(service, log),
		adminHandler,
		jwtService,
		service.Health,
	)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting meld registry", "addr", cfg.Addr)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
		case <-groupCtx.Done():
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildStore picks the registry store from configuration: postgres when a
// database URL is set, redis when only redis is, in-memory otherwise.
func buildStore(ctx context.Context, cfg config.Server) (registry.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil

	case cfg.RedisURL != "":
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedis(client.Client), func() { _ = client.Close() }, nil

	default:
		return store.NewMemory(), func() {}, nil
	}
}

func buildAuditSink(cfg config.Server) (audit.Sink, error) {
	if len(cfg.KafkaBrokers) > 0 {
		return audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
	}
	return audit.NewMemorySink(), nil
}

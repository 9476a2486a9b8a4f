// Command gatekeepd serves the marketplace's credential and admission
// endpoints over HTTP.
//
// Configuration comes from the environment (see internal/config). Without
// REDIS_ADDR an in-process miniredis backs the counters, which is only
// suitable for local runs.
//
//	POST   /v1/check-email                      {"email"}
//	POST   /v1/accounts                         {"email","password"}
//	POST   /v1/login                            {"email","password"}
//	POST   /v1/password                         bearer; {"current_password","new_password"}
//	POST   /v1/password/reset-token             {"email"}
//	POST   /v1/password/reset                   {"token","new_password"}
//	DELETE /v1/admin/rate-limits/{operation}/{key}  bearer, admin role
//	GET    /metrics
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/internal/config"
	"github.com/staynest/gatekeep/internal/logger"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logger.New(0, "text").Fatal("load config", "error", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, cleanup, err := openRedis(cfg.Redis)
	if err != nil {
		log.Fatal("open redis", "error", err)
	}
	defer cleanup()
	if cfg.Redis.Addr == "" {
		log.Warn("REDIS_ADDR not set, using in-process miniredis")
	}

	builder := gatekeep.New().
		WithConfig(cfg.Engine()).
		WithRedis(client).
		WithLogger(log.Logger)

	accounts := newAccountStore(cfg.Accounts.AdminIdentifier)
	builder = builder.WithCredentialProvider(accounts)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(gatekeep.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		log.Fatal("build engine", "error", err)
	}
	defer engine.Close()

	srv := &server{
		engine:         engine,
		accounts:       accounts,
		logger:         log.Logger,
		trustForwarded: cfg.HTTP.TrustForwarded,
		resetTTL:       cfg.Accounts.ResetTokenTTL,
		health: func(r *http.Request) error {
			return client.Ping(r.Context()).Err()
		},
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: srv.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	log.Info("listening", "addr", cfg.HTTP.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("serve", "error", err)
	}
}

func openRedis(cfg config.Redis) (redis.UniversalClient, func(), error) {
	if cfg.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Addr},
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

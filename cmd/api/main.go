package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "staysync/internal/adapters/http_server"
	"staysync/internal/adapters/observability"
	redisad "staysync/internal/adapters/redis"
	"staysync/internal/adapters/roomstock"
	"staysync/internal/app"
	"staysync/internal/scheduler"
	"staysync/internal/shared"
	mysqlrepo "staysync/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	tiers, err := shared.LoadTiers(cfg.TiersConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("tiers config load failed")
	}

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	source, err := roomstock.New(cfg.RoomstockBase, cfg.RoomstockKey, cfg.RoomstockRPS, cfg.RoomstockTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("roomstock client init failed")
	}

	refresher := app.NewRefreshService(source, repo, cfg.BatchSize, cfg.DefaultResidency, log.Logger)
	search := app.NewSearchService(source, repo, cache, cfg.SearchCacheTTL, cfg.SearchCacheMax, cfg.DefaultResidency, log.Logger)

	sched := scheduler.New(refresher, cfg.Workers, cfg.DrainTimeout, log.Logger)
	sched.RegisterTable(tiers)
	sched.Start()

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Search: search, Sched: sched, Store: repo, Tiers: tiers})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}
	go func() {
		figure.NewFigure("STAYSYNC", "", true).Print()
		log.Info().Str("addr", cfg.HTTPAddr).Int("partitions", len(tiers.Partitions())).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	// Requests stop first; manual triggers ride the same worker pool the
	// drain below waits on.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if !sched.Stop(context.Background()) {
		log.Warn().Msg("scheduler drain timed out, exiting with runs in flight")
	}
	log.Info().Msg("bye")
}

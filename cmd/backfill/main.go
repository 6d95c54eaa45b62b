package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"staysync/internal/adapters/observability"
	"staysync/internal/adapters/roomstock"
	"staysync/internal/app"
	"staysync/internal/domain"
	"staysync/internal/shared"
	mysqlrepo "staysync/internal/storage/mysql"
)

// backfill sweeps every configured partition once and exits. It is the
// first-boot companion to the API's scheduler: same executor, no timers.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	tiers, err := shared.LoadTiers(cfg.TiersConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("tiers config load failed")
	}
	partitions := tiers.Partitions()

	log.Info().
		Str("base", cfg.RoomstockBase).
		Int("workers", cfg.Workers).
		Int("partitions", len(partitions)).
		Msg("backfill starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	source, err := roomstock.New(cfg.RoomstockBase, cfg.RoomstockKey, cfg.RoomstockRPS, cfg.RoomstockTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("roomstock client init failed")
	}
	refresher := app.NewRefreshService(source, repo, cfg.BatchSize, cfg.DefaultResidency, log.Logger)

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, p := range partitions {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(p domain.Partition) {
			defer wg.Done()
			defer sem.Release(int64(1))

			res := refresher.Refresh(ctx, p)
			if res.Status != domain.JobCompleted {
				log.Warn().Str("partition", p.Label()).Str("status", res.Status).Strs("errors", res.Errors).Msg("backfill partition failed")
				return
			}
			log.Info().
				Str("partition", p.Label()).
				Int("processed", res.Processed).
				Int("created", res.Created).
				Int("updated", res.Updated).
				Msg("backfill partition ok")
		}(p)
	}

	wg.Wait()
	log.Info().Msg("backfill completed")
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"repscore/internal/adapters/collector"
	"repscore/internal/adapters/observability"
	redisad "repscore/internal/adapters/redis"
	"repscore/internal/app"
	"repscore/internal/shared"
	mysqlrepo "repscore/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv, "collector")

	log.Info().
		Str("base", cfg.CollectorBase).
		Int("workers", cfg.CollectWorkers).
		Msg("collector starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	client, err := collector.New(cfg.CollectorBase, cfg.CollectorKey, cfg.CollectorRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize collector client")
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	snaps, err := app.NewSnapshotService(repo, cache, client, nil, cfg.CacheTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid weight configuration")
	}

	hotels, err := repo.ListHotels(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("listing hotels failed")
	}

	sem := semaphore.NewWeighted(int64(cfg.CollectWorkers))
	var wg sync.WaitGroup

	for _, h := range hotels {
		h := h

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(hotelID int64) {
			defer wg.Done()
			defer sem.Release(int64(1))

			if _, err := snaps.Collect(ctx, hotelID); err != nil {
				if errors.Is(err, app.ErrNoLiveData) {
					log.Warn().Int64("id", hotelID).Msg("no live data, skipped")
					return
				}
				log.Warn().Int64("id", hotelID).Err(err).Msg("collect failed")
				return
			}
			log.Info().Int64("id", hotelID).Msg("collect ok")
		}(h.ID)
	}

	wg.Wait()
	log.Info().Msg("collection completed")
}

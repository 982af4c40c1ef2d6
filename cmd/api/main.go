package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"repscore/internal/adapters/collector"
	server "repscore/internal/adapters/http_server"
	"repscore/internal/adapters/observability"
	redisad "repscore/internal/adapters/redis"
	"repscore/internal/app"
	"repscore/internal/shared"
	mysqlrepo "repscore/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	reg := observability.InitRegistry()
	observability.Serve(reg)

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
	col, err := collector.New(cfg.CollectorBase, cfg.CollectorKey, cfg.CollectorRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize collector client")
	}

	snaps, err := app.NewSnapshotService(repo, cache, col, nil, cfg.CacheTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid weight configuration")
	}
	catalog := app.NewCatalogService(repo, snaps)
	groups := app.NewGroupService(repo, snaps)
	rec := app.NewReconciler(repo, snaps, cfg.ImportWorkers)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Catalog:   catalog,
		Snapshots: snaps,
		Groups:    groups,
		Reconcile: rec,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

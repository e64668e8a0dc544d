package main

import (
	"context"
	"flag"
	"time"

	"animehub/internal/app"
	"animehub/internal/logging"
	"animehub/pkg/utils"
)

// catalog-sync runs a single catalog sync iteration and exits.
func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for the run")
	flag.Parse()

	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.With("catalog-sync")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, logging.Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	defer a.Close()

	rep, err := a.CatalogSyncService().RunOnce(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog sync failed")
	}
	log.Info().
		Str("run_id", rep.RunID).
		Int("synced", rep.Synced).
		Int("trending", rep.Trending).
		Int("status_updated", rep.StatusUpdated).
		Str("db", cfg.Database.Path).
		Msg("catalog sync finished")
}

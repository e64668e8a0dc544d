package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"animehub/internal/app"
	"animehub/internal/jobs"
	"animehub/internal/logging"
	"animehub/pkg/utils"
)

func main() {
	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.With("api-server")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logging.Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close app")
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sup := jobs.NewSupervisor("api-server", log)
	sup.Add(jobs.NewHTTPServerService("http-api", httpSrv, 10*time.Second))
	if cfg.Jobs.SyncEnabled {
		sup.Add(a.CatalogSyncService())
	} else {
		log.Info().Msg("catalog sync job disabled")
	}

	log.Info().Str("addr", cfg.Server.HTTPAddr).Str("db", cfg.Database.Path).Msg("HTTP API server starting")
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("supervisor stopped")
	}
	log.Info().Msg("servers stopped")
}

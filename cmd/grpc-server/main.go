package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"animehub/internal/catalog"
	"animehub/internal/grpcserver"
	"animehub/internal/jobs"
	"animehub/internal/logging"
	"animehub/pkg/database"
	"animehub/pkg/utils"
)

func main() {
	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.With("grpc-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := database.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout}
	if err := database.EnsureDataDir(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("data dir")
	}
	db, err := database.OpenAndMigrate(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	srv := grpcserver.NewServer(cfg.Server.GRPCAddr, db, catalog.NewRepo(db), logging.Logger())

	sup := jobs.NewSupervisor("grpc-server", log)
	sup.Add(srv)
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("supervisor stopped")
	}
	log.Info().Msg("gRPC server stopped")
}

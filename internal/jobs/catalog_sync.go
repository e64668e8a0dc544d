package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"animehub/internal/metrics"
	"animehub/pkg/models"
)

type CatalogIngester interface {
	SyncCatalog(ctx context.Context, limit int) (int, error)
	IngestTrendingCatalog(ctx context.Context, limit int) (int, error)
}

type StatusUpdater interface {
	AutoUpdateStatusesAllUsers(ctx context.Context) (*models.AutoStatusResult, error)
}

type CatalogSyncConfig struct {
	Interval      time.Duration
	SyncLimit     int
	TrendingLimit int
}

// Report summarizes one iteration.
type Report struct {
	RunID         string
	Synced        int
	Trending      int
	StatusUpdated int
}

// CatalogSyncService runs sync, trending ingestion and auto-status for all
// users once per interval, starting immediately.
type CatalogSyncService struct {
	ingest CatalogIngester
	status StatusUpdater
	cfg    CatalogSyncConfig
	log    zerolog.Logger
}

func NewCatalogSyncService(in CatalogIngester, st StatusUpdater, cfg CatalogSyncConfig, log zerolog.Logger) *CatalogSyncService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.SyncLimit <= 0 {
		cfg.SyncLimit = 200
	}
	if cfg.TrendingLimit <= 0 {
		cfg.TrendingLimit = 40
	}
	return &CatalogSyncService{
		ingest: in,
		status: st,
		cfg:    cfg,
		log:    log.With().Str("service", "catalog-sync").Logger(),
	}
}

// Serve implements suture.Service. Cancellation is only observed between
// iterations; a running iteration always finishes.
func (s *CatalogSyncService) Serve(ctx context.Context) error {
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("catalog sync service starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("catalog sync service shutting down")
			return ctx.Err()
		case <-timer.C:
			if _, err := s.RunOnce(context.WithoutCancel(ctx)); err != nil {
				s.log.Error().Err(err).Msg("catalog sync failed")
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

// RunOnce performs one iteration. The first failing step ends it.
func (s *CatalogSyncService) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	rep := &Report{RunID: uuid.NewString()}
	log := s.log.With().Str("run_id", rep.RunID).Logger()

	err := s.run(ctx, rep)
	metrics.JobDuration.WithLabelValues("catalog_sync").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobRuns.WithLabelValues("catalog_sync", "error").Inc()
		return rep, err
	}
	metrics.JobRuns.WithLabelValues("catalog_sync", "ok").Inc()

	log.Info().
		Int("synced_count", rep.Synced).
		Int("trending_updated", rep.Trending).
		Int("auto_status_updated", rep.StatusUpdated).
		Dur("took", time.Since(start)).
		Msg("catalog sync completed")
	return rep, nil
}

func (s *CatalogSyncService) run(ctx context.Context, rep *Report) error {
	var err error
	if rep.Synced, err = s.ingest.SyncCatalog(ctx, s.cfg.SyncLimit); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	if rep.Trending, err = s.ingest.IngestTrendingCatalog(ctx, s.cfg.TrendingLimit); err != nil {
		return fmt.Errorf("ingest trending: %w", err)
	}
	res, err := s.status.AutoUpdateStatusesAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("auto-status: %w", err)
	}
	rep.StatusUpdated = res.UpdatedCount
	return nil
}

func (s *CatalogSyncService) String() string {
	return "catalog-sync"
}

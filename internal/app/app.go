// Package app builds the services shared by the API server and the
// one-shot catalog sync.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"animehub/internal/activity"
	"animehub/internal/auth"
	"animehub/internal/autostatus"
	"animehub/internal/cache"
	"animehub/internal/catalog"
	"animehub/internal/ingest"
	"animehub/internal/jikan"
	"animehub/internal/jobs"
	"animehub/internal/recommend"
	"animehub/internal/reviews"
	"animehub/internal/social"
	"animehub/internal/stats"
	"animehub/internal/sync"
	"animehub/internal/tracking"
	"animehub/pkg/database"
	"animehub/pkg/utils"
)

type App struct {
	Config   *utils.Config
	DB       *sql.DB
	Cache    cache.Cache
	Hub      *sync.Hub
	Provider jikan.Provider
	Tokens   auth.TokenService

	Users    *auth.Repo
	Catalog  *catalog.Repo
	Tracking *tracking.Repo
	Reviews  *reviews.Repo
	Activity *activity.Repo
	Social   *social.Repo

	Stats      *stats.Service
	Ingest     *ingest.Service
	Recommend  *recommend.Engine
	AutoStatus *autostatus.Service

	log zerolog.Logger
}

type Option func(*App)

// WithProvider replaces the Jikan client.
func WithProvider(p jikan.Provider) Option {
	return func(a *App) { a.Provider = p }
}

// WithDB uses an already migrated database instead of opening cfg.Database.
func WithDB(db *sql.DB) Option {
	return func(a *App) { a.DB = db }
}

func New(ctx context.Context, cfg *utils.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, log: log}
	for _, o := range opts {
		o(a)
	}

	if a.DB == nil {
		dbCfg := database.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout}
		if err := database.EnsureDataDir(dbCfg); err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
		db, err := database.OpenAndMigrate(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		a.DB = db
	}

	c, err := cache.New(ctx, cache.Config{RedisURL: cfg.Cache.RedisURL, MaxCost: cfg.Cache.MaxCost}, log)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.Cache = c

	if a.Provider == nil {
		a.Provider = jikan.NewClient(jikan.Config{
			BaseURL:         cfg.Jikan.BaseURL,
			Timeout:         cfg.Jikan.Timeout,
			MaxRetries:      cfg.Jikan.MaxRetries,
			Backoff:         cfg.Jikan.Backoff,
			CacheTTL:        cfg.Jikan.CacheTTL,
			BreakerFailures: cfg.Jikan.BreakerFailures,
			BreakerTimeout:  cfg.Jikan.BreakerTimeout,
		}, a.Cache, log)
	}

	a.Tokens = auth.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.JWTDuration,
	}
	a.Hub = sync.NewHub(log)

	a.Users = auth.NewRepo(a.DB)
	a.Activity = activity.NewRepo(a.DB)
	a.Catalog = catalog.NewRepo(a.DB)
	a.Tracking = tracking.NewRepo(a.DB, a.Activity)
	a.Reviews = reviews.NewRepo(a.DB, a.Activity)
	a.Social = social.NewRepo(a.DB, a.Activity)

	a.Stats = stats.NewService(stats.NewRepo(a.DB), a.Cache, cfg.Cache.StatsTTL, log)
	a.Ingest = ingest.NewService(a.DB, a.Catalog, a.Provider, a.Hub, log)
	a.Recommend = recommend.NewEngine(a.Catalog, a.Tracking, a.Provider, a.Ingest, log)
	a.AutoStatus = autostatus.NewService(a.Tracking, a.Catalog, a.Users, a.Stats, a.Hub, log)
	return a, nil
}

// CatalogSyncService wires the periodic job to this App's services.
func (a *App) CatalogSyncService() *jobs.CatalogSyncService {
	return jobs.NewCatalogSyncService(a.Ingest, a.AutoStatus, jobs.CatalogSyncConfig{
		Interval:      a.Config.Jobs.SyncInterval,
		SyncLimit:     a.Config.Jobs.SyncLimit,
		TrendingLimit: a.Config.Jobs.TrendingLimit,
	}, a.log)
}

func (a *App) Close() error {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close cache")
		}
	}
	return a.DB.Close()
}

// Ping checks the database within timeout.
func (a *App) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return a.DB.PingContext(ctx)
}

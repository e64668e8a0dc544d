// Package ingest pulls catalog data from the upstream provider into the
// catalog store. Every write is an upsert keyed by the external id, so
// re-applying the same snapshot converges and concurrent runs are safe.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"animehub/internal/catalog"
	"animehub/internal/jikan"
	"animehub/internal/metrics"
	"animehub/internal/sync"
	"animehub/pkg/database"
	"animehub/pkg/models"
)

var ErrInvalidArgument = errors.New("invalid argument")

// DefaultSeasons is used when a range import names no seasons.
var DefaultSeasons = []string{"winter", "spring", "summer", "fall"}

const MaxPagesPerSeason = 10

type Service struct {
	DB       *sql.DB
	Catalog  *catalog.Repo
	Provider jikan.Provider
	Hub      sync.Publisher
	Now      func() time.Time
	log      zerolog.Logger
}

func NewService(db *sql.DB, repo *catalog.Repo, provider jikan.Provider, hub sync.Publisher, log zerolog.Logger) *Service {
	return &Service{
		DB:       db,
		Catalog:  repo,
		Provider: provider,
		Hub:      hub,
		Now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// IngestTrendingCatalog upserts the top-ranked and current-season listings.
// Items present in both listings are counted twice.
func (s *Service) IngestTrendingCatalog(ctx context.Context, limit int) (int, error) {
	limit = clamp(limit, 1, jikan.MaxListingLimit)

	top, err := s.Provider.FetchListing(ctx, jikan.ListingRequest{Kind: jikan.ListingTop, Limit: limit})
	if err != nil {
		return 0, upstream(err)
	}
	season, err := s.Provider.FetchListing(ctx, jikan.ListingRequest{Kind: jikan.ListingSeasonNow, Limit: limit})
	if err != nil {
		return 0, upstream(err)
	}

	items := make([]models.CatalogItem, 0, len(top.Items)+len(season.Items))
	items = append(items, top.Items...)
	items = append(items, season.Items...)

	touched, err := s.upsertAll(ctx, items)
	if err != nil {
		return 0, err
	}

	metrics.CatalogUpserts.WithLabelValues("trending").Add(float64(touched))
	s.log.Info().Int("limit", limit).Int("touched", touched).Msg("trending catalog ingested")
	s.publish("trending", touched)
	return touched, nil
}

// ImportByExternalID fetches one title and upserts it in its own transaction.
func (s *Service) ImportByExternalID(ctx context.Context, malID int64) (*models.Anime, error) {
	if malID <= 0 {
		return nil, fmt.Errorf("%w: mal_id must be positive", ErrInvalidArgument)
	}

	item, err := s.Provider.FetchItem(ctx, malID)
	if err != nil {
		if errors.Is(err, jikan.ErrNotFound) {
			return nil, err
		}
		return nil, upstream(err)
	}
	if item.MalID == nil {
		item.MalID = &malID
	}

	var out *models.Anime
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		a, err := s.Catalog.UpsertByExternalID(ctx, tx, *item, s.Now())
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CatalogUpserts.WithLabelValues("import").Inc()
	return out, nil
}

// SyncCatalog re-imports up to limit upstream-owned entries, least recently
// synced first. A failing entry is rolled back and skipped.
func (s *Service) SyncCatalog(ctx context.Context, limit int) (int, error) {
	entries, err := s.Catalog.ListForSync(ctx, limit)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, a := range entries {
		if _, err := s.ImportByExternalID(ctx, *a.MalID); err != nil {
			metrics.IngestFailures.WithLabelValues("sync").Inc()
			s.log.Warn().Err(err).Int64("anime_id", a.ID).Int64("mal_id", *a.MalID).Msg("sync of catalog entry failed")
			continue
		}
		synced++
	}

	metrics.CatalogUpserts.WithLabelValues("sync").Add(float64(synced))
	s.log.Info().Int("candidates", len(entries)).Int("synced", synced).Msg("catalog sync finished")
	s.publish("sync", synced)
	return synced, nil
}

// ImportCatalogRange walks every (year, season) pair of the inclusive year
// range. A failing page ends its pair only.
func (s *Service) ImportCatalogRange(ctx context.Context, startYear, endYear int, seasons []string, pagesPerSeason int) (*models.CatalogImportRangeResult, error) {
	if startYear > endYear {
		return nil, fmt.Errorf("%w: start_year must be <= end_year", ErrInvalidArgument)
	}
	seasons, err := NormalizeSeasons(seasons)
	if err != nil {
		return nil, err
	}
	pages := clamp(pagesPerSeason, 1, MaxPagesPerSeason)

	res := &models.CatalogImportRangeResult{
		StartYear:      startYear,
		EndYear:        endYear,
		Seasons:        seasons,
		PagesPerSeason: pages,
	}

	for year := startYear; year <= endYear; year++ {
		for _, season := range seasons {
			for page := 1; page <= pages; page++ {
				listing, err := s.Provider.FetchListing(ctx, jikan.ListingRequest{
					Kind: jikan.ListingSeason, Year: year, Season: season, Page: page,
				})
				if err != nil {
					metrics.IngestFailures.WithLabelValues("range").Inc()
					s.log.Warn().Err(err).Int("year", year).Str("season", season).Int("page", page).
						Msg("season page fetch failed")
					break
				}

				n, err := s.upsertAll(ctx, listing.Items)
				if err != nil {
					return nil, err
				}
				res.InsertedOrUpdated += n

				if !listing.HasNextPage {
					break
				}
			}
		}
	}

	metrics.CatalogUpserts.WithLabelValues("range").Add(float64(res.InsertedOrUpdated))
	s.log.Info().Int("start_year", startYear).Int("end_year", endYear).Strs("seasons", seasons).
		Int("touched", res.InsertedOrUpdated).Msg("catalog range imported")
	s.publish("range", res.InsertedOrUpdated)
	return res, nil
}

// NormalizeSeasons lower-cases and validates season names. Empty input
// means all four seasons.
func NormalizeSeasons(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		sname := strings.ToLower(strings.TrimSpace(raw))
		if sname == "" || seen[sname] {
			continue
		}
		if !isSeason(sname) {
			return nil, fmt.Errorf("%w: unknown season %q", ErrInvalidArgument, raw)
		}
		seen[sname] = true
		out = append(out, sname)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultSeasons...), nil
	}
	return out, nil
}

func isSeason(s string) bool {
	for _, d := range DefaultSeasons {
		if s == d {
			return true
		}
	}
	return false
}

// upsertAll writes every item that carries an external id in one transaction.
func (s *Service) upsertAll(ctx context.Context, items []models.CatalogItem) (int, error) {
	touched := 0
	now := s.Now()
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, it := range items {
			if it.MalID == nil {
				continue
			}
			if _, err := s.Catalog.UpsertByExternalID(ctx, tx, it, now); err != nil {
				return err
			}
			touched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return touched, nil
}

func (s *Service) publish(path string, touched int) {
	if s.Hub == nil || touched == 0 {
		return
	}
	s.Hub.Publish(sync.NewEvent(sync.EventCatalogRefreshed, "", map[string]any{
		"path":    path,
		"touched": touched,
	}))
}

func upstream(err error) error {
	if errors.Is(err, jikan.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", jikan.ErrUpstreamUnavailable, err)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

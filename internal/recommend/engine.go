// Package recommend ranks untracked catalog entries for a user and builds
// the release news feed.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"animehub/internal/catalog"
	"animehub/internal/jikan"
	"animehub/internal/metrics"
	"animehub/internal/tracking"
	"animehub/pkg/models"
)

const (
	// MinCatalogSize triggers a trending ingestion before ranking.
	MinCatalogSize = 25
	SeedLimit      = 40
	MaxResults     = 100
	MaxNewsItems   = 50
)

// Seeder fills a sparse catalog before ranking.
type Seeder interface {
	IngestTrendingCatalog(ctx context.Context, limit int) (int, error)
}

type Engine struct {
	Catalog  *catalog.Repo
	Tracking *tracking.Repo
	Provider jikan.Provider
	Seeder   Seeder
	Now      func() time.Time
	log      zerolog.Logger
}

func NewEngine(cat *catalog.Repo, tr *tracking.Repo, provider jikan.Provider, seeder Seeder, log zerolog.Logger) *Engine {
	return &Engine{
		Catalog:  cat,
		Tracking: tr,
		Provider: provider,
		Seeder:   seeder,
		Now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "recommend").Logger(),
	}
}

type scored struct {
	anime *models.Anime
	total float64
	why   string
}

// RecommendForUser returns the top min(max(limit,1),100) untracked entries.
// Ties keep catalog order.
func (e *Engine) RecommendForUser(ctx context.Context, userID string, limit int) ([]models.Recommendation, error) {
	start := time.Now()
	defer func() { metrics.RecommendationDuration.Observe(time.Since(start).Seconds()) }()

	if err := e.ensureSeed(ctx); err != nil {
		return nil, err
	}

	entries, err := e.Tracking.ListAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := e.Catalog.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Anime, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}
	tracked := make(map[int64]bool, len(entries))
	for _, en := range entries {
		tracked[en.AnimeID] = true
	}
	profile := BuildProfile(entries, byID)

	now := e.Now()
	ranked := make([]scored, 0, len(all))
	for i := range all {
		a := &all[i]
		if tracked[a.ID] {
			continue
		}
		c := Score(a, profile, now)
		ranked = append(ranked, scored{anime: a, total: c.Total(), why: c.Reason()})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].total > ranked[j].total })

	n := min(max(limit, 1), MaxResults)
	if len(ranked) < n {
		n = len(ranked)
	}
	out := make([]models.Recommendation, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, models.Recommendation{Anime: *r.anime, Score: round3(r.total), Reason: r.why})
	}

	e.log.Debug().Str("user_id", userID).Int("candidates", len(ranked)).Int("genres", len(profile)).
		Int("returned", len(out)).Msg("recommendations ranked")
	return out, nil
}

func (e *Engine) ensureSeed(ctx context.Context) error {
	n, err := e.Catalog.CountAll(ctx)
	if err != nil {
		return err
	}
	if n >= MinCatalogSize || e.Seeder == nil {
		return nil
	}
	e.log.Info().Int("catalog_size", n).Msg("catalog below seed size, ingesting trending")
	if _, err := e.Seeder.IngestTrendingCatalog(ctx, SeedLimit); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

// GetNewsFeed maps upcoming releases to news items.
func (e *Engine) GetNewsFeed(ctx context.Context, limit int) ([]models.NewsItem, error) {
	n := min(max(limit, 1), MaxNewsItems)
	listing, err := e.Provider.FetchListing(ctx, jikan.ListingRequest{Kind: jikan.ListingUpcoming, Limit: n})
	if err != nil {
		return nil, err
	}

	items := listing.Items
	if len(items) > n {
		items = items[:n]
	}
	out := make([]models.NewsItem, 0, len(items))
	for _, it := range items {
		title := it.Title
		if title == "" {
			title = "Anime update"
		}
		out = append(out, models.NewsItem{
			Source:      "jikan",
			Title:       title,
			URL:         it.URL,
			Summary:     it.Synopsis,
			PublishedAt: it.AiredFrom,
			Category:    "release",
		})
	}
	return out, nil
}

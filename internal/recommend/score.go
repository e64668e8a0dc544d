package recommend

import (
	"math"
	"time"

	"animehub/pkg/models"
)

const (
	ReasonGenreAffinity = "high affinity with favorite genres"
	ReasonTrending      = "trending among users"
	ReasonNewRelease    = "promising new release"
	ReasonBalanced      = "good balance of rating and popularity"
)

const (
	weightPopularity = 0.45
	weightExternal   = 0.35
	weightGenre      = 0.15
	weightFreshness  = 0.05

	maxGenreBoost  = 2.0
	genreBoostNorm = 5.0
	maxFreshDays   = 30
)

// Profile maps a lower-cased genre token to its accumulated affinity.
type Profile map[string]float64

// BuildProfile accumulates statusWeight * scoreWeight per genre token of
// every tracked title. Entries whose catalog row is missing or has no
// genres are skipped.
func BuildProfile(entries []models.UserAnime, catalog map[int64]*models.Anime) Profile {
	p := Profile{}
	for _, e := range entries {
		a, ok := catalog[e.AnimeID]
		if !ok || a == nil || a.Genre == "" {
			continue
		}
		w := statusWeight(e.Status) * scoreWeight(e.Score)
		for _, g := range a.GenreTokens() {
			p[g] += w
		}
	}
	return p
}

func statusWeight(status string) float64 {
	switch status {
	case models.StatusCompleted:
		return 1.5
	case models.StatusWatching:
		return 1.2
	case models.StatusPlanned:
		return 0.8
	}
	return 1.0
}

func scoreWeight(score *int) float64 {
	if score == nil {
		return 1.0
	}
	return 1.0 + float64(*score)/20.0
}

// Components are the normalized inputs of a candidate's total score.
type Components struct {
	Popularity float64
	External   float64
	GenreBoost float64
	Freshness  float64
}

func (c Components) Total() float64 {
	return weightPopularity*c.Popularity +
		weightExternal*c.External +
		weightGenre*c.GenreBoost +
		weightFreshness*c.Freshness
}

func (c Components) Reason() string {
	switch {
	case c.GenreBoost >= 0.8:
		return ReasonGenreAffinity
	case c.Popularity >= 0.8:
		return ReasonTrending
	case c.Freshness >= 0.03:
		return ReasonNewRelease
	}
	return ReasonBalanced
}

func Score(a *models.Anime, p Profile, now time.Time) Components {
	var c Components

	var members float64
	if a.Members != nil {
		members = float64(*a.Members)
	}
	c.Popularity = math.Log10(math.Max(10, members+10)) / 6

	if a.ExternalScore != nil {
		c.External = float64(*a.ExternalScore) / 10
	}

	if a.LastSyncedAt != nil {
		days := int(now.Sub(*a.LastSyncedAt).Hours() / 24)
		days = max(1, days)
		c.Freshness = 1 / float64(min(maxFreshDays, days))
	}

	var raw float64
	for _, g := range a.GenreTokens() {
		raw += p[g]
	}
	c.GenreBoost = math.Min(maxGenreBoost, raw/genreBoostNorm)

	return c
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

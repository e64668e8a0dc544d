package models

import "time"

type Recommendation struct {
	Anime  Anime   `json:"anime"`
	Score  float64 `json:"recommendation_score"`
	Reason string  `json:"reason"`
}

type NewsItem struct {
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Category    string     `json:"category"`
}

type AutoStatusResult struct {
	UpdatedCount int      `json:"updated_count"`
	Details      []string `json:"details"`
}

type CatalogImportRangeResult struct {
	StartYear         int      `json:"start_year"`
	EndYear           int      `json:"end_year"`
	Seasons           []string `json:"seasons"`
	PagesPerSeason    int      `json:"pages_per_season"`
	InsertedOrUpdated int      `json:"inserted_or_updated"`
}

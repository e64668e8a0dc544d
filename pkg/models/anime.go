package models

import (
	"strings"
	"time"
)

// Anime is one catalog entry. Entries with a MalID are owned by the
// upstream provider and refreshed by ingestion.
type Anime struct {
	ID             int64      `json:"id"`
	MalID          *int64     `json:"mal_id,omitempty"`
	Title          string     `json:"title"`
	Genre          string     `json:"genre"`
	Episodes       int        `json:"episodes"`
	ExternalScore  *int       `json:"external_score,omitempty"`
	Members        *int64     `json:"members,omitempty"`
	ExternalStatus string     `json:"external_status,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Synopsis       string     `json:"synopsis,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GenreTokens splits the stored genre string into lower-cased, trimmed tokens.
func (a Anime) GenreTokens() []string {
	return SplitGenres(a.Genre)
}

func SplitGenres(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CatalogItem is the normalized shape of an upstream catalog record.
type CatalogItem struct {
	MalID          *int64     `json:"mal_id,omitempty"`
	Title          string     `json:"title"`
	Genre          string     `json:"genre"`
	Episodes       int        `json:"episodes"`
	ExternalScore  *int       `json:"external_score,omitempty"`
	Members        *int64     `json:"members,omitempty"`
	ExternalStatus string     `json:"external_status,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Synopsis       string     `json:"synopsis,omitempty"`
	AiredFrom      *time.Time `json:"aired_from,omitempty"`
	URL            string     `json:"url,omitempty"`
}

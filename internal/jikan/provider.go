// Package jikan talks to the Jikan (MyAnimeList) REST API and normalizes
// its payloads into models.CatalogItem.
package jikan

import (
	"context"
	"errors"

	"animehub/pkg/models"
)

var (
	// ErrUpstreamUnavailable covers transport failures, non-retryable
	// statuses, exhausted retries and an open circuit breaker.
	ErrUpstreamUnavailable = errors.New("upstream catalog unavailable")
	// ErrNotFound means the provider answered without data for the id.
	ErrNotFound = errors.New("anime not found upstream")
)

type ListingKind string

const (
	ListingTop       ListingKind = "top"
	ListingSeasonNow ListingKind = "season_now"
	ListingUpcoming  ListingKind = "upcoming"
	ListingSeason    ListingKind = "season"
)

// MaxListingLimit is the provider-side cap on listing page size.
const MaxListingLimit = 50

type ListingRequest struct {
	Kind ListingKind
	// Limit applies to top, season_now and upcoming.
	Limit int
	// Year, Season and Page apply to season.
	Year   int
	Season string
	Page   int
}

type Listing struct {
	Items       []models.CatalogItem `json:"items"`
	HasNextPage bool                 `json:"has_next_page"`
}

// Provider is what ingestion and recommendation need from the upstream.
type Provider interface {
	FetchItem(ctx context.Context, malID int64) (*models.CatalogItem, error)
	FetchListing(ctx context.Context, req ListingRequest) (*Listing, error)
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxListingLimit {
		return MaxListingLimit
	}
	return n
}

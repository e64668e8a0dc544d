// Package jikantest provides an in-memory jikan.Provider for tests.
package jikantest

import (
	"context"
	"fmt"
	gosync "sync"

	"animehub/internal/jikan"
	"animehub/pkg/models"
)

// Stub serves canned items and listings. Listings are keyed by ListingKey.
type Stub struct {
	mu       gosync.Mutex
	Items    map[int64]models.CatalogItem
	Listings map[string]jikan.Listing
	// Errs fails the matching item ("item:<id>") or listing key.
	Errs  map[string]error
	Calls []string
}

func NewStub() *Stub {
	return &Stub{
		Items:    map[int64]models.CatalogItem{},
		Listings: map[string]jikan.Listing{},
		Errs:     map[string]error{},
	}
}

// ListingKey names a request the same way the stub looks it up.
func ListingKey(req jikan.ListingRequest) string {
	if req.Kind == jikan.ListingSeason {
		return fmt.Sprintf("season:%d:%s:%d", req.Year, req.Season, req.Page)
	}
	return string(req.Kind)
}

func (s *Stub) FetchItem(_ context.Context, malID int64) (*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("item:%d", malID)
	s.Calls = append(s.Calls, key)
	if err, ok := s.Errs[key]; ok {
		return nil, err
	}
	it, ok := s.Items[malID]
	if !ok {
		return nil, jikan.ErrNotFound
	}
	return &it, nil
}

func (s *Stub) FetchListing(_ context.Context, req jikan.ListingRequest) (*jikan.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ListingKey(req)
	s.Calls = append(s.Calls, key)
	if err, ok := s.Errs[key]; ok {
		return nil, err
	}
	l := s.Listings[key]
	if req.Limit > 0 && len(l.Items) > req.Limit {
		l.Items = l.Items[:req.Limit]
	}
	return &l, nil
}

// Item builds a catalog item with the fields ingestion cares about.
func Item(malID int64, title, genre string, episodes int, members int64) models.CatalogItem {
	return models.CatalogItem{
		MalID:    &malID,
		Title:    title,
		Genre:    genre,
		Episodes: episodes,
		Members:  &members,
	}
}

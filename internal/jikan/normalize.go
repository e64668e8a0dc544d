package jikan

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"animehub/pkg/models"
)

const (
	UnknownTitle = "Unknown title"
	UnknownGenre = "Unknown"
)

type itemEnvelope struct {
	Data *animePayload `json:"data"`
}

type listEnvelope struct {
	Data       []animePayload `json:"data"`
	Pagination struct {
		HasNextPage bool `json:"has_next_page"`
	} `json:"pagination"`
}

type animePayload struct {
	MalID    *int64          `json:"mal_id"`
	URL      *string         `json:"url"`
	Title    *string         `json:"title"`
	Episodes *int            `json:"episodes"`
	Score    json.RawMessage `json:"score"`
	Members  *int64          `json:"members"`
	Status   *string         `json:"status"`
	Synopsis *string         `json:"synopsis"`
	Genres   []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Images struct {
		JPG struct {
			ImageURL *string `json:"image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Aired struct {
		From *string `json:"from"`
	} `json:"aired"`
}

// empty reports a payload carrying neither an id nor a title, such as
// `{"data":{}}`.
func (p animePayload) empty() bool {
	return p.MalID == nil && strings.TrimSpace(deref(p.Title)) == ""
}

func normalize(p animePayload) models.CatalogItem {
	item := models.CatalogItem{
		MalID:          p.MalID,
		Title:          deref(p.Title),
		Episodes:       0,
		ExternalScore:  normalizeScore(p.Score),
		Members:        p.Members,
		ExternalStatus: deref(p.Status),
		ImageURL:       deref(p.Images.JPG.ImageURL),
		Synopsis:       deref(p.Synopsis),
		AiredFrom:      parseTime(deref(p.Aired.From)),
		URL:            deref(p.URL),
	}
	if item.Title == "" {
		item.Title = UnknownTitle
	}
	if p.Episodes != nil && *p.Episodes > 0 {
		item.Episodes = *p.Episodes
	}

	names := make([]string, 0, len(p.Genres))
	for _, g := range p.Genres {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	item.Genre = strings.Join(names, ", ")
	if item.Genre == "" {
		item.Genre = UnknownGenre
	}
	return item
}

// normalizeScore rounds half to even and clamps to [0, 10]. Anything that
// is not a finite number yields nil.
func normalizeScore(raw json.RawMessage) *int {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(math.Max(0, math.Min(10, math.RoundToEven(f))))
	return &n
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

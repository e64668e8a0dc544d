package models

import "time"

const (
	StatusWatching  = "watching"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
	StatusOnHold    = "on_hold"
	StatusPlanned   = "planned"
)

// ValidStatus reports whether s is one of the tracking statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusDropped, StatusOnHold, StatusPlanned:
		return true
	}
	return false
}

type UserAnime struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	AnimeID         int64      `json:"anime_id"`
	Status          string     `json:"status"`
	Score           *int       `json:"score,omitempty"`
	EpisodesWatched int        `json:"episodes_watched"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	FinishDate      *time.Time `json:"finish_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

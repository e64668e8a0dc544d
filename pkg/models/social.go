package models

import "time"

type Follow struct {
	ID          int64     `json:"id"`
	FollowerID  string    `json:"follower_id"`
	FollowingID string    `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dashboard is the consolidated view of one user.
type Dashboard struct {
	UserStats        *UserStats `json:"user_stats"`
	FollowersCount   int        `json:"followers_count"`
	FollowingCount   int        `json:"following_count"`
	RecentActivities []Activity `json:"recent_activities"`
}

package models

import "time"

const (
	ActivityTrackingCreated = "tracking_created"
	ActivityReviewCreated   = "review_created"
	ActivityCommentCreated  = "comment_created"
	ActivityFollowCreated   = "follow_created"
	ActivityStatusAuto      = "status_auto_updated"
)

type Activity struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	TargetType   string    `json:"target_type"`
	TargetID     int64     `json:"target_id"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

package sync

import "time"

const (
	EventTrackingUpdate   = "tracking.update"
	EventTrackingDelete   = "tracking.delete"
	EventCatalogRefreshed = "catalog.refreshed"
	EventStatusAuto       = "status.auto_updated"
	EventFollowCreated    = "follow.created"
)

// Event is pushed to websocket clients. An empty UserID reaches everyone.
type Event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"user_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher is the sending side of the hub.
type Publisher interface {
	Publish(ev Event)
}

// NewEvent stamps the current time.
func NewEvent(typ, userID string, payload any) Event {
	return Event{Type: typ, UserID: userID, Payload: payload, At: time.Now().UTC()}
}

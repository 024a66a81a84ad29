package ws

import (
	"encoding/json"
	"path"
	"time"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type string          `json:"type"`
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// SubscribeMsg is sent by the client to request replay and, optionally, to
// restrict the event types it receives with glob patterns such as "node.*".
type SubscribeMsg struct {
	Type        string   `json:"type"`
	LastEventID uint64   `json:"last_event_id"`
	Events      []string `json:"events,omitempty"`
}

// ResetMsg tells the client to do a full refresh (requested events too old).
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// matchesAny reports whether eventType matches one of patterns. No patterns
// matches everything.
func matchesAny(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true
	}

	for _, p := range patterns {
		if ok, err := path.Match(p, eventType); err == nil && ok {
			return true
		}
	}

	return false
}

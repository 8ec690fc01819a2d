package domain

import (
	"fmt"
	"time"
)

// EventType is the kind of usage recorded against an item
type EventType string

const (
	// EventEntry is logged when a code resolves
	EventEntry EventType = "entry"
	// EventClick is logged when the visitor follows through to the destination
	EventClick EventType = "click"
)

// ParseEventType accepts the wire names and the legacy names written by the
// first version of the site.
func ParseEventType(s string) (EventType, error) {
	switch s {
	case "entry", "reel_entry":
		return EventEntry, nil
	case "click", "click_through":
		return EventClick, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Event is a single dated usage of an item
type Event struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Package events publishes change notifications for pages: recorded
// interactions, recorded leads and collection changes.
package events

import (
	"context"
	"time"

	"github.com/sells-group/hotspot/internal/model"
)

// Kind names a change notification.
type Kind string

const (
	KindTrack       Kind = "track"
	KindLead        Kind = "lead"
	KindPageAdded   Kind = "page_added"
	KindPageRemoved Kind = "page_removed"
)

// Event is one change notification.
type Event struct {
	Kind     Kind         `json:"kind"`
	PageID   string       `json:"page_id"`
	URL      string       `json:"url,omitempty"`
	Category string       `json:"category,omitempty"`
	Point    *model.Point `json:"point,omitempty"`
	From     string       `json:"from,omitempty"`
	Weight   int64        `json:"weight,omitempty"`
	At       time.Time    `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

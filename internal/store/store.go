// Package store persists page records. Every backend hands out fresh *Page
// values decoded from their stored form; callers that share a page across
// goroutines keep their own registry.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot/internal/model"
)

// ErrExists is returned by AddPage when the id is already taken.
var ErrExists = eris.New("page already exists")

// ListFilter pages through ListPages results ordered by creation.
type ListFilter struct {
	Limit  int `json:"limit,omitempty" schema:"limit"`
	Offset int `json:"offset,omitempty" schema:"offset"`
}

// Store is the page collection.
type Store interface {
	// GetPage returns an error matching model.ErrNotFound when id is unknown.
	GetPage(ctx context.Context, id string) (*model.Page, error)
	// AddPage inserts a new page and fails with ErrExists on a duplicate id.
	AddPage(ctx context.Context, p *model.Page) error
	// SavePage inserts or replaces a page.
	SavePage(ctx context.Context, p *model.Page) error
	// SavePages inserts or replaces a batch of pages.
	SavePages(ctx context.Context, pages []*model.Page) error
	// RemovePage deletes a page and returns its last stored state.
	RemovePage(ctx context.Context, id string) (*model.Page, error)
	ListPages(ctx context.Context, filter ListFilter) ([]model.PageSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}

func alreadyExists(id string) error {
	return eris.Wrapf(ErrExists, "page %s", id)
}

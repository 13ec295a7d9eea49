// Package funnel infers the most likely navigation path into a page by
// walking its strongest referral edges backwards.
package funnel

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/model"
)

// DefaultMaxDepth is the number of referral hops followed when the caller
// does not choose one.
const DefaultMaxDepth = 4

// Lookup resolves a page by id. It returns an error matching
// model.ErrNotFound when the id does not resolve.
type Lookup func(ctx context.Context, id string) (*model.Page, error)

// Infer returns the path [start, heaviest referrer of start, its heaviest
// referrer, ...] of at most maxDepth+1 pages. The walk stops early when a page
// has no leads or its heaviest referrer no longer exists. Only a missing start
// page is an error. Cycles are not detected; maxDepth bounds them.
func Infer(ctx context.Context, startID string, lookup Lookup, maxDepth int) ([]*model.Page, error) {
	current, err := lookup(ctx, startID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, model.NotFound(startID)
	}

	path := []*model.Page{current}
	for range max(maxDepth, 0) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "funnel: infer")
		}
		from, ok := current.Leads.Heaviest()
		if !ok {
			break
		}
		next, err := lookup(ctx, from)
		if errors.Is(err, model.ErrNotFound) || (err == nil && next == nil) {
			zap.L().Debug("funnel: referrer missing, stopping",
				zap.String("page", current.ID),
				zap.String("referrer", from),
			)
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "funnel: lookup %s", from)
		}
		path = append(path, next)
		current = next
	}
	return path, nil
}

// IDs returns the identifiers along a path.
func IDs(path []*model.Page) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = p.ID
	}
	return out
}

// Package tracking mediates a page's heatmaps: lazy initialization through a
// snapshot capture, event recording and activation reads.
package tracking

import (
	"context"
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/hotspot/internal/heatmap"
	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/snapshot"
)

const viewKey = "view"

// State owns the tracking cache of a single page. Concurrent callers that
// find a grid missing share one capture per category instead of racing.
type State struct {
	page     *model.Page
	capturer snapshot.Capturer
	flight   singleflight.Group
}

// NewState binds a page to the capturer used to establish its dimensions.
func NewState(page *model.Page, capturer snapshot.Capturer) *State {
	return &State{page: page, capturer: capturer}
}

// Page returns the tracked page.
func (s *State) Page() *model.Page { return s.page }

// View returns the cached snapshot, capturing a fresh one when none exists or
// nocache is set. A capture also synchronizes every tracked grid with the
// page's view dimensions.
func (s *State) View(ctx context.Context, nocache bool) ([]byte, error) {
	if !nocache {
		if v := s.page.View(); v != nil {
			return v, nil
		}
	}
	v, err, _ := s.flight.Do(viewKey, func() (any, error) {
		return s.capture(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (s *State) capture(ctx context.Context) ([]byte, error) {
	cfg := s.page.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	req := snapshot.Request{
		URL:        s.page.URL,
		Width:      cfg.View.Width,
		Height:     cfg.View.Height,
		Downsample: cfg.View.Downsample,
		Encoding:   cfg.View.Encoding,
	}
	// The capture runs without the page lock; Refresh swaps the result in.
	view, err := s.capturer.Capture(ctx, req)
	if err != nil {
		var ce *model.CaptureError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &model.CaptureError{URL: s.page.URL, Err: err}
	}
	if err := s.page.Refresh(view); err != nil {
		return nil, eris.Wrapf(err, "tracking: refresh %s", s.page.ID)
	}
	zap.L().Debug("tracking: view captured",
		zap.String("page", s.page.ID),
		zap.Int("bytes", len(view)),
	)
	return view, nil
}

// EnsureGrid initializes the grid for cat, or resamples the existing one, at
// the given dimensions.
func (s *State) EnsureGrid(cat model.Category, width, height int) error {
	return s.page.EnsureGrid(cat, width, height)
}

// ensureCaptured makes sure the grid for cat exists, capturing a snapshot at
// most once per category across concurrent callers.
func (s *State) ensureCaptured(ctx context.Context, cat model.Category) error {
	if s.hasGrid(cat) {
		return nil
	}
	_, err, _ := s.flight.Do(cat.String(), func() (any, error) {
		if s.hasGrid(cat) {
			return nil, nil
		}
		if _, err := s.View(ctx, true); err != nil {
			return nil, err
		}
		if !s.hasGrid(cat) {
			return nil, eris.Errorf("tracking: %s grid missing after capture of %s", cat, s.page.ID)
		}
		return nil, nil
	})
	return err
}

func (s *State) hasGrid(cat model.Category) bool {
	g := s.page.Grid(cat)
	return g != nil && !g.Empty()
}

// RecordEvent adds one interaction at point to the category's heatmap. It
// reports false without mutating anything when the category is not tracked.
func (s *State) RecordEvent(ctx context.Context, cat model.Category, point model.Point) (bool, error) {
	if !s.page.Config.Tracks(cat) {
		return false, nil
	}
	if err := s.ensureCaptured(ctx, cat); err != nil {
		return false, err
	}
	x, y := roundCoord(point.X), roundCoord(point.Y)
	var empty bool
	recorded := s.page.WithGrid(cat, func(g *heatmap.Grid) {
		if empty = g.Empty(); !empty {
			g.Increment(x, y)
		}
	})
	if !recorded {
		return false, eris.Errorf("tracking: %s grid of %s vanished", cat, s.page.ID)
	}
	if empty {
		return false, eris.Wrapf(&model.DimensionError{}, "tracking: %s grid of %s has no cells", cat, s.page.ID)
	}
	return true, nil
}

// Activation returns the logistic transform of the category's heatmap. It
// reports false when the category is not tracked.
func (s *State) Activation(ctx context.Context, cat model.Category) ([][]float64, bool, error) {
	if !s.page.Config.Tracks(cat) {
		return nil, false, nil
	}
	if err := s.ensureCaptured(ctx, cat); err != nil {
		return nil, false, err
	}
	var act [][]float64
	s.page.WithGrid(cat, func(g *heatmap.Grid) {
		act = heatmap.Activation(g)
	})
	return act, true, nil
}

func roundCoord(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Round(v))
}

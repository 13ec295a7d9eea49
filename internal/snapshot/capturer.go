// Package snapshot renders page screenshots for the tracking cache.
package snapshot

import (
	"context"

	"github.com/sells-group/hotspot/internal/model"
)

// Request describes one capture.
type Request struct {
	URL        string
	Width      int
	Height     int
	Downsample float64
	Encoding   model.Encoding
}

// Quality maps the downsample factor to a JPEG quality in [1, 100].
func (r Request) Quality() int {
	q := int(r.Downsample*100 + 0.5)
	return max(1, min(q, 100))
}

// Capturer renders a page and returns the complete snapshot payload.
type Capturer interface {
	Capture(ctx context.Context, req Request) ([]byte, error)
}

// CaptureFunc adapts a function to Capturer.
type CaptureFunc func(ctx context.Context, req Request) ([]byte, error)

func (f CaptureFunc) Capture(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

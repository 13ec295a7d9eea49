package model

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot/internal/heatmap"
)

// ErrNotFound is returned when a page identifier does not resolve.
var ErrNotFound = eris.New("page not found")

// DimensionError reports non-positive grid or view dimensions.
type DimensionError = heatmap.DimensionError

// CaptureError wraps a snapshot provider failure for a page URL.
type CaptureError struct {
	URL string
	Err error
}

func (e *CaptureError) Error() string {
	return "capture " + e.URL + ": " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error { return e.Err }

// NotFound wraps ErrNotFound with the missing identifier.
func NotFound(id string) error {
	return eris.Wrapf(ErrNotFound, "page %s", id)
}

func errorf(format string, args ...any) error {
	return eris.Errorf(format, args...)
}

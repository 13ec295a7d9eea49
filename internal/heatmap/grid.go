// Package heatmap holds per-pixel interaction counters for one page and one
// event category.
package heatmap

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rotisserie/eris"
)

// DimensionError reports a request for a grid with a non-positive side.
type DimensionError struct {
	Width  int
	Height int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("heatmap: invalid dimensions %dx%d", e.Width, e.Height)
}

// Grid is a width x height matrix of non-negative counters. Rows are indexed
// by x in [0, width) and columns by y in [0, height). Increments are atomic so
// a grid can be shared between concurrent trackers.
type Grid struct {
	width  int
	height int
	cells  []int64
}

// New returns an all-zero grid. Non-positive dimensions yield an empty grid
// that ignores increments.
func New(width, height int) *Grid {
	if width <= 0 || height <= 0 {
		return &Grid{}
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]int64, width*height),
	}
}

// FromRows builds a grid from nested rows. All rows must have the same,
// non-zero length.
func FromRows(rows [][]int64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, &DimensionError{Width: len(rows), Height: 0}
	}
	g := New(len(rows), len(rows[0]))
	for x, row := range rows {
		if len(row) != g.height {
			return nil, eris.Errorf("heatmap: ragged row %d: got %d cells, want %d", x, len(row), g.height)
		}
		for y, v := range row {
			if v < 0 {
				return nil, eris.Errorf("heatmap: negative counter at (%d,%d)", x, y)
			}
			g.cells[x*g.height+y] = v
		}
	}
	return g, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// Empty reports whether the grid has no cells.
func (g *Grid) Empty() bool { return len(g.cells) == 0 }

// At returns the counter at (x, y). Out-of-range coordinates read as zero.
func (g *Grid) At(x, y int) int64 {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return 0
	}
	return atomic.LoadInt64(&g.cells[x*g.height+y])
}

// Increment adds one to the cell nearest (x, y). Coordinates outside the grid
// saturate to the closest edge.
func (g *Grid) Increment(x, y int) {
	if g.Empty() {
		return
	}
	x = clamp(x, 0, g.width-1)
	y = clamp(y, 0, g.height-1)
	atomic.AddInt64(&g.cells[x*g.height+y], 1)
}

// Total returns the sum of all counters.
func (g *Grid) Total() int64 {
	var sum int64
	for i := range g.cells {
		sum += atomic.LoadInt64(&g.cells[i])
	}
	return sum
}

// Resize resamples g to the new dimensions with nearest-neighbor lookup under
// uniform scaling. Resizing to the current dimensions returns an equal copy.
func Resize(g *Grid, width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, &DimensionError{Width: width, Height: height}
	}
	out := New(width, height)
	if g == nil || g.Empty() {
		return out, nil
	}
	sx := float64(g.width) / float64(width)
	sy := float64(g.height) / float64(height)
	for x := 0; x < width; x++ {
		srcX := min(int(math.Floor(float64(x)*sx)), g.width-1)
		for y := 0; y < height; y++ {
			srcY := min(int(math.Floor(float64(y)*sy)), g.height-1)
			out.cells[x*height+y] = atomic.LoadInt64(&g.cells[srcX*g.height+srcY])
		}
	}
	return out, nil
}

// Activation maps every counter through the logistic function 1/(1+e^-v).
// The result has the grid's shape and values in (0, 1).
func Activation(g *Grid) [][]float64 {
	out := make([][]float64, g.width)
	for x := range out {
		row := make([]float64, g.height)
		for y := range row {
			row[y] = sigmoid(float64(atomic.LoadInt64(&g.cells[x*g.height+y])))
		}
		out[x] = row
	}
	return out
}

// Rows returns a snapshot of the counters as nested rows.
func (g *Grid) Rows() [][]int64 {
	out := make([][]int64, g.width)
	for x := range out {
		row := make([]int64, g.height)
		for y := range row {
			row[y] = atomic.LoadInt64(&g.cells[x*g.height+y])
		}
		out[x] = row
	}
	return out
}

func (g *Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Rows())
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	var rows [][]int64
	if err := json.Unmarshal(data, &rows); err != nil {
		return eris.Wrap(err, "heatmap: decode rows")
	}
	if rows == nil {
		return nil
	}
	parsed, err := FromRows(rows)
	if err != nil {
		return err
	}
	*g = *parsed
	return nil
}

// sigmoid saturates below 1 so large counters stay inside the open interval.
func sigmoid(v float64) float64 {
	s := 1 / (1 + math.Exp(-v))
	if s >= 1 {
		return math.Nextafter(1, 0)
	}
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

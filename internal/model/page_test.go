package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot/internal/heatmap"
)

func TestNewPage_Defaults(t *testing.T) {
	p := NewPage("https://acme.com")
	assert.True(t, strings.HasPrefix(p.ID, "page-"))
	assert.Equal(t, "https://acme.com", p.URL)
	assert.Equal(t, 1024, p.Config.View.Width)
	assert.Equal(t, 768, p.Config.View.Height)
	assert.InDelta(t, 0.8, p.Config.View.Downsample, 1e-9)
	assert.Equal(t, EncodingBinary, p.Config.View.Encoding)
	assert.Equal(t, []Category{CategoryClick}, p.Config.Hotspot.Track)
	assert.Nil(t, p.View())
	for _, c := range AllCategories() {
		assert.Nil(t, p.Grid(c))
	}
	assert.Equal(t, 0, p.Leads.Len())
	assert.NotEqual(t, p.ID, NewPage("https://acme.com").ID)
}

func TestPageConfig_Tracks(t *testing.T) {
	cfg := DefaultPageConfig()
	assert.True(t, cfg.Tracks(CategoryClick))
	assert.False(t, cfg.Tracks(CategoryHover))
}

func TestPageConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PageConfig)
		wantErr string
	}{
		{"defaults", func(*PageConfig) {}, ""},
		{"zero width", func(c *PageConfig) { c.View.Width = 0 }, "invalid dimensions"},
		{"negative height", func(c *PageConfig) { c.View.Height = -5 }, "invalid dimensions"},
		{"bad encoding", func(c *PageConfig) { c.View.Encoding = "png" }, "unknown encoding"},
		{"bad downsample", func(c *PageConfig) { c.View.Downsample = 1.5 }, "downsample"},
		{"bad category", func(c *PageConfig) { c.Hotspot.Track = []Category{9} }, "unknown category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPageConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPageConfig_ValidateDimensionError(t *testing.T) {
	cfg := DefaultPageConfig()
	cfg.View.Width = 0
	var de *DimensionError
	assert.True(t, errors.As(cfg.Validate(), &de))
}

func TestPage_RefreshInitializesTrackedGrids(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width, p.Config.View.Height = 8, 6
	p.Config.Hotspot.Track = []Category{CategoryClick, CategoryHover}

	require.NoError(t, p.Refresh([]byte("shot")))
	assert.Equal(t, []byte("shot"), p.View())
	for _, c := range []Category{CategoryClick, CategoryHover} {
		g := p.Grid(c)
		require.NotNil(t, g)
		assert.Equal(t, 8, g.Width())
		assert.Equal(t, 6, g.Height())
	}
	assert.Nil(t, p.Grid(CategoryContext))
}

func TestPage_RefreshResizesExistingGrid(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width, p.Config.View.Height = 4, 4
	require.NoError(t, p.Refresh([]byte("v1")))
	p.WithGrid(CategoryClick, func(g *heatmap.Grid) { g.Increment(3, 3) })

	// Same dimensions: the counters survive the resync.
	require.NoError(t, p.Refresh([]byte("v2")))
	assert.Equal(t, int64(1), p.Grid(CategoryClick).At(3, 3))

	p.Config.View.Width, p.Config.View.Height = 8, 8
	require.NoError(t, p.Refresh([]byte("v3")))
	g := p.Grid(CategoryClick)
	assert.Equal(t, 8, g.Width())
	assert.Equal(t, int64(1), g.At(7, 7))
	assert.Equal(t, int64(1), g.At(6, 6))
	assert.Equal(t, []byte("v3"), p.View())
}

func TestPage_RefreshInvalidDimensionsKeepsCache(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width = 4
	p.Config.View.Height = 4
	require.NoError(t, p.Refresh([]byte("v1")))

	p.Config.View.Width = 0
	err := p.Refresh([]byte("v2"))
	var de *DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []byte("v1"), p.View(), "snapshot is never partially updated")
}

func TestPage_EnsureGrid(t *testing.T) {
	p := NewPage("https://acme.com")
	require.NoError(t, p.EnsureGrid(CategoryHover, 3, 2))
	g := p.Grid(CategoryHover)
	require.NotNil(t, g)
	assert.Equal(t, 3, g.Width())

	require.NoError(t, p.EnsureGrid(CategoryHover, 3, 2))
	assert.NotSame(t, g, p.Grid(CategoryHover), "existing grids are always resampled")

	err := p.EnsureGrid(CategoryHover, -1, 2)
	require.Error(t, err)
}

func TestPage_WithGridAbsent(t *testing.T) {
	p := NewPage("https://acme.com")
	called := false
	ok := p.WithGrid(CategoryClick, func(*heatmap.Grid) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
}

func TestCategory_ParseAndText(t *testing.T) {
	c, err := ParseCategory(" Hover ")
	require.NoError(t, err)
	assert.Equal(t, CategoryHover, c)

	_, err = ParseCategory("scroll")
	require.Error(t, err)

	cats, err := ParseCategories([]string{"click", "context"})
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryClick, CategoryContext}, cats)

	_, err = ParseCategories([]string{"click", "click"})
	require.Error(t, err)

	data, err := json.Marshal([]Category{CategoryContext})
	require.NoError(t, err)
	assert.JSONEq(t, `["context"]`, string(data))
}

func TestPage_RecordRoundTrip(t *testing.T) {
	p := NewPage("https://acme.com/pricing")
	p.Config.View.Width, p.Config.View.Height = 3, 2
	require.NoError(t, p.Refresh([]byte{0xff, 0xd8}))
	p.WithGrid(CategoryClick, func(g *heatmap.Grid) { g.Increment(2, 1) })
	p.Leads.Record("page-home")

	data, err := EncodePage(p)
	require.NoError(t, err)

	back, err := DecodePage(data)
	require.NoError(t, err)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, p.URL, back.URL)
	assert.Equal(t, p.Config, back.Config)
	assert.Equal(t, p.View(), back.View())
	assert.Equal(t, int64(1), back.Grid(CategoryClick).At(2, 1))
	assert.Nil(t, back.Grid(CategoryHover))
	assert.Equal(t, int64(1), back.Leads.Weight("page-home"))
}

func TestPage_MarshalJSONShape(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width, p.Config.View.Height = 2, 2
	require.NoError(t, p.Refresh(nil))

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.ElementsMatch(t, []string{"id", "url", "config", "cache", "leads"}, keys(raw))

	cache := raw["cache"].(map[string]any)
	tracking := cache["tracking"].(map[string]any)
	assert.Nil(t, tracking["hover"])
	assert.Equal(t, []any{[]any{0.0, 0.0}, []any{0.0, 0.0}}, tracking["click"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestPageFromRecord_EmptySlotIsAbsent(t *testing.T) {
	p := NewPage("https://acme.com")
	rec := p.Record()
	rec.Cache.Tracking.Click = [][]int64{}

	back, err := PageFromRecord(rec)
	require.NoError(t, err)
	assert.Nil(t, back.Grid(CategoryClick))

	rec.Cache.Tracking.Click = [][]int64{{}}
	_, err = PageFromRecord(rec)
	var de *DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestPageFromRecord_ResamplesToViewSize(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width, p.Config.View.Height = 4, 4
	rec := p.Record()
	rec.Cache.Tracking.Context = [][]int64{{1, 0}, {0, 2}}

	back, err := PageFromRecord(rec)
	require.NoError(t, err)
	g := back.Grid(CategoryContext)
	require.NotNil(t, g)
	assert.Equal(t, 4, g.Width())
	assert.Equal(t, 4, g.Height())
	assert.Equal(t, int64(1), g.At(0, 0))
	assert.Equal(t, int64(2), g.At(3, 3))
}

func TestPageFromRecord_GridUnderInvalidView(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width = 0
	rec := p.Record()
	rec.Cache.Tracking.Click = [][]int64{{1}}

	_, err := PageFromRecord(rec)
	var de *DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestDecodePage_EmptyAndMismatchedGrids(t *testing.T) {
	p := NewPage("https://acme.com")
	p.Config.View.Width, p.Config.View.Height = 3, 2
	rec := p.Record()
	rec.Cache.Tracking.Click = [][]int64{}
	rec.Cache.Tracking.Context = [][]int64{{5, 5}, {5, 5}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	back, err := DecodePage(data)
	require.NoError(t, err)
	assert.Nil(t, back.Grid(CategoryClick))
	g := back.Grid(CategoryContext)
	assert.Equal(t, 3, g.Width())
	assert.Equal(t, 2, g.Height())
	assert.Equal(t, int64(30), g.Total())
}

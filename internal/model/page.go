package model

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sells-group/hotspot/internal/heatmap"
)

// Encoding is the snapshot payload encoding.
type Encoding string

const (
	EncodingBinary Encoding = "binary"
	EncodingBase64 Encoding = "base64"
)

// Valid reports whether e is a known encoding.
func (e Encoding) Valid() bool {
	return e == EncodingBinary || e == EncodingBase64
}

// ViewConfig describes how a page is captured.
type ViewConfig struct {
	Width      int      `json:"width" yaml:"width"`
	Height     int      `json:"height" yaml:"height"`
	Downsample float64  `json:"downsample" yaml:"downsample"`
	Encoding   Encoding `json:"encoding" yaml:"encoding"`
}

// HotspotConfig lists the tracked event categories.
type HotspotConfig struct {
	Track []Category `json:"track" yaml:"track"`
}

// PageConfig holds a page's capture and tracking settings.
type PageConfig struct {
	View    ViewConfig    `json:"view" yaml:"view"`
	Hotspot HotspotConfig `json:"hotspot" yaml:"hotspot"`
}

// DefaultPageConfig returns the settings new pages start with.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		View: ViewConfig{
			Width:      1024,
			Height:     768,
			Downsample: 0.8,
			Encoding:   EncodingBinary,
		},
		Hotspot: HotspotConfig{Track: []Category{CategoryClick}},
	}
}

// Tracks reports whether c is among the tracked categories.
func (c PageConfig) Tracks(cat Category) bool {
	for _, t := range c.Hotspot.Track {
		if t == cat {
			return true
		}
	}
	return false
}

// Validate checks the view dimensions and encoding.
func (c PageConfig) Validate() error {
	if c.View.Width <= 0 || c.View.Height <= 0 {
		return &DimensionError{Width: c.View.Width, Height: c.View.Height}
	}
	if !c.View.Encoding.Valid() {
		return errorf("model: unknown encoding %q", c.View.Encoding)
	}
	if c.View.Downsample <= 0 || c.View.Downsample > 1 {
		return errorf("model: downsample must be in (0,1], got %v", c.View.Downsample)
	}
	for _, cat := range c.Hotspot.Track {
		if !cat.Valid() {
			return errorf("model: unknown category %d", cat)
		}
	}
	return nil
}

// PageCache holds the latest snapshot and one heatmap slot per category.
type PageCache struct {
	View     []byte
	Tracking [NumCategories]*heatmap.Grid
}

// Page is the aggregate root: a URL with its capture settings, cached
// snapshot, heatmaps and incoming lead weights. Cache fields are guarded by
// the page lock; grid cells and lead weights carry their own synchronization.
type Page struct {
	ID     string
	URL    string
	Config PageConfig
	Leads  *Leads

	mu    sync.RWMutex
	cache PageCache
}

// NewPage creates a page with default settings, an empty cache and no leads.
func NewPage(url string) *Page {
	return &Page{
		ID:     "page-" + uuid.New().String(),
		URL:    url,
		Config: DefaultPageConfig(),
		Leads:  NewLeads(),
	}
}

// View returns the cached snapshot, or nil when none has been captured.
func (p *Page) View() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache.View
}

// Grid returns the heatmap for cat, or nil when it has not been initialized.
func (p *Page) Grid(cat Category) *heatmap.Grid {
	if !cat.Valid() {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache.Tracking[cat]
}

// WithGrid runs fn against the current grid for cat while holding the read
// lock, so a concurrent resize cannot swap the grid out from under it.
// It reports false when the grid is absent.
func (p *Page) WithGrid(cat Category, fn func(g *heatmap.Grid)) bool {
	if !cat.Valid() {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	g := p.cache.Tracking[cat]
	if g == nil {
		return false
	}
	fn(g)
	return true
}

// Refresh replaces the snapshot and synchronizes every tracked grid with the
// current view dimensions: absent grids are initialized, present ones are
// resized even when the dimensions are unchanged.
func (p *Page) Refresh(view []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, h := p.Config.View.Width, p.Config.View.Height
	next := p.cache.Tracking
	for _, cat := range p.Config.Hotspot.Track {
		g, err := ensureGrid(next[cat], w, h)
		if err != nil {
			return err
		}
		next[cat] = g
	}
	p.cache = PageCache{View: view, Tracking: next}
	return nil
}

// EnsureGrid initializes or resizes the grid for a single category.
func (p *Page) EnsureGrid(cat Category, width, height int) error {
	if !cat.Valid() {
		return errorf("model: unknown category %d", cat)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	g, err := ensureGrid(p.cache.Tracking[cat], width, height)
	if err != nil {
		return err
	}
	p.cache.Tracking[cat] = g
	return nil
}

func ensureGrid(current *heatmap.Grid, width, height int) (*heatmap.Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, &DimensionError{Width: width, Height: height}
	}
	if current == nil {
		return heatmap.New(width, height), nil
	}
	return heatmap.Resize(current, width, height)
}

// Cache returns a shallow copy of the cache. Grids are shared.
func (p *Page) Cache() PageCache {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cache
}

// SetCache replaces the cache wholesale. Used when decoding stored pages.
func (p *Page) SetCache(c PageCache) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = c
}

// PageSummary is the light listing form of a page.
type PageSummary struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Summary returns the page's id and url.
func (p *Page) Summary() PageSummary {
	return PageSummary{ID: p.ID, URL: p.URL}
}

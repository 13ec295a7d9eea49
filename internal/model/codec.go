package model

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot/internal/heatmap"
)

// PageRecord is the plain structural form of a page used for persistence and
// transport. Grids are nested counter rows; absent grids are null.
type PageRecord struct {
	ID     string           `json:"id"`
	URL    string           `json:"url"`
	Config PageConfig       `json:"config"`
	Cache  CacheRecord      `json:"cache"`
	Leads  map[string]int64 `json:"leads"`
}

// CacheRecord is the structural form of PageCache.
type CacheRecord struct {
	View     []byte         `json:"view"`
	Tracking TrackingRecord `json:"tracking"`
}

// TrackingRecord has one slot per category.
type TrackingRecord struct {
	Click   [][]int64 `json:"click"`
	Context [][]int64 `json:"context"`
	Hover   [][]int64 `json:"hover"`
}

func (t *TrackingRecord) slot(c Category) *[][]int64 {
	switch c {
	case CategoryClick:
		return &t.Click
	case CategoryContext:
		return &t.Context
	default:
		return &t.Hover
	}
}

// Record converts the page to its structural form.
func (p *Page) Record() PageRecord {
	cache := p.Cache()
	rec := PageRecord{
		ID:     p.ID,
		URL:    p.URL,
		Config: p.Config,
		Cache:  CacheRecord{View: cache.View},
		Leads:  p.Leads.Snapshot(),
	}
	for _, c := range AllCategories() {
		if g := cache.Tracking[c]; g != nil {
			*rec.Cache.Tracking.slot(c) = g.Rows()
		}
	}
	return rec
}

// PageFromRecord rebuilds a page from its structural form.
func PageFromRecord(rec PageRecord) (*Page, error) {
	leads, err := LeadsFrom(rec.Leads)
	if err != nil {
		return nil, err
	}
	p := &Page{
		ID:     rec.ID,
		URL:    rec.URL,
		Config: rec.Config,
		Leads:  leads,
	}
	cache := PageCache{View: rec.Cache.View}
	for _, c := range AllCategories() {
		rows := *rec.Cache.Tracking.slot(c)
		if len(rows) == 0 {
			continue
		}
		g, err := heatmap.FromRows(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "model: %s grid of %s", c, rec.ID)
		}
		// Grids written under an older view size are resampled to the current one.
		if g.Width() != rec.Config.View.Width || g.Height() != rec.Config.View.Height {
			if g, err = ensureGrid(g, rec.Config.View.Width, rec.Config.View.Height); err != nil {
				return nil, eris.Wrapf(err, "model: %s grid of %s", c, rec.ID)
			}
		}
		cache.Tracking[c] = g
	}
	p.SetCache(cache)
	return p, nil
}

func (p *Page) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Record())
}

// EncodePage serializes a page for storage.
func EncodePage(p *Page) ([]byte, error) {
	data, err := sonic.Marshal(p.Record())
	if err != nil {
		return nil, eris.Wrapf(err, "model: encode page %s", p.ID)
	}
	return data, nil
}

// DecodePage parses a stored page.
func DecodePage(data []byte) (*Page, error) {
	var rec PageRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "model: decode page")
	}
	return PageFromRecord(rec)
}

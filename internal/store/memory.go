package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/sells-group/hotspot/internal/model"
)

type memEntry struct {
	seq  int64
	data []byte
	url  string
}

// MemoryStore keeps encoded pages in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]memEntry
	seq   int64
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{pages: make(map[string]memEntry)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) GetPage(_ context.Context, id string) (*model.Page, error) {
	s.mu.RLock()
	e, ok := s.pages[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NotFound(id)
	}
	return model.DecodePage(e.data)
}

func (s *MemoryStore) AddPage(_ context.Context, p *model.Page) error {
	data, err := model.EncodePage(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[p.ID]; ok {
		return alreadyExists(p.ID)
	}
	s.seq++
	s.pages[p.ID] = memEntry{seq: s.seq, data: data, url: p.URL}
	return nil
}

func (s *MemoryStore) SavePage(ctx context.Context, p *model.Page) error {
	return s.SavePages(ctx, []*model.Page{p})
}

func (s *MemoryStore) SavePages(_ context.Context, pages []*model.Page) error {
	encoded := make([][]byte, len(pages))
	for i, p := range pages {
		data, err := model.EncodePage(p)
		if err != nil {
			return err
		}
		encoded[i] = data
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range pages {
		e, ok := s.pages[p.ID]
		if !ok {
			s.seq++
			e.seq = s.seq
		}
		e.data, e.url = encoded[i], p.URL
		s.pages[p.ID] = e
	}
	return nil
}

func (s *MemoryStore) RemovePage(_ context.Context, id string) (*model.Page, error) {
	s.mu.Lock()
	e, ok := s.pages[id]
	delete(s.pages, id)
	s.mu.Unlock()
	if !ok {
		return nil, model.NotFound(id)
	}
	return model.DecodePage(e.data)
}

func (s *MemoryStore) ListPages(_ context.Context, filter ListFilter) ([]model.PageSummary, error) {
	s.mu.RLock()
	type row struct {
		seq int64
		sum model.PageSummary
	}
	rows := make([]row, 0, len(s.pages))
	for id, e := range s.pages {
		rows = append(rows, row{seq: e.seq, sum: model.PageSummary{ID: id, URL: e.url}})
	}
	s.mu.RUnlock()

	slices.SortFunc(rows, func(a, b row) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]model.PageSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.sum)
	}
	return paginate(out, filter), nil
}

func paginate(in []model.PageSummary, f ListFilter) []model.PageSummary {
	if f.Offset > 0 {
		if f.Offset >= len(in) {
			return []model.PageSummary{}
		}
		in = in[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(in) {
		in = in[:f.Limit]
	}
	return in
}

// Package service is the invocation surface over the page collection: it
// keeps live pages in memory, routes tracking, lead and funnel calls to them,
// and writes changed pages back to the store.
package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/hotspot/internal/events"
	"github.com/sells-group/hotspot/internal/funnel"
	"github.com/sells-group/hotspot/internal/metrics"
	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/snapshot"
	"github.com/sells-group/hotspot/internal/store"
	"github.com/sells-group/hotspot/internal/tracking"
)

// ErrInvalid marks a request the caller can fix.
var ErrInvalid = eris.New("invalid request")

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalid, format, args...)
}

// Options tunes a Service.
type Options struct {
	// DefaultMaxDepth applies when GetFunnel is called with a negative depth.
	// Zero or less means funnel.DefaultMaxDepth.
	DefaultMaxDepth int
	// PageDefaults seeds the config of new pages.
	PageDefaults model.PageConfig
	// FlushInterval is the period of Run's store writes.
	FlushInterval time.Duration
}

type entry struct {
	state *tracking.State
	dirty atomic.Bool
}

// Service owns the live page registry. A page is loaded from the store once
// and shared by every caller afterwards, so concurrent mutations land on the
// same instance; Flush persists the pages that changed.
type Service struct {
	store    store.Store
	capturer snapshot.Capturer
	pub      events.Publisher
	opts     Options

	mu    sync.RWMutex
	live  map[string]*entry
	loads singleflight.Group
	// removals counts completed RemovePage calls. A load registers its page
	// only if no removal happened between its store read and registration.
	removals uint64

	flushMu sync.Mutex
	nowFunc func() time.Time
}

// New creates a Service. A nil publisher disables events.
func New(st store.Store, capturer snapshot.Capturer, pub events.Publisher, opts Options) *Service {
	if pub == nil {
		pub = events.Noop{}
	}
	if opts.DefaultMaxDepth <= 0 {
		opts.DefaultMaxDepth = funnel.DefaultMaxDepth
	}
	if opts.PageDefaults.View.Width == 0 {
		opts.PageDefaults = model.DefaultPageConfig()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}
	return &Service{
		store:    st,
		capturer: capturer,
		pub:      pub,
		opts:     opts,
		live:     make(map[string]*entry),
		nowFunc:  time.Now,
	}
}

// AddPage creates a page for rawURL. A nil cfg takes the service defaults.
func (s *Service) AddPage(ctx context.Context, rawURL string, cfg *model.PageConfig) (*model.Page, error) {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, invalid("service: url %q must be an absolute http(s) url", rawURL)
	}
	p := model.NewPage(u.String())
	p.Config = clonePageConfig(s.opts.PageDefaults)
	if cfg != nil {
		p.Config = clonePageConfig(*cfg)
	}
	if err := p.Config.Validate(); err != nil {
		var de *model.DimensionError
		if errors.As(err, &de) {
			return nil, eris.Wrap(err, "service: page config")
		}
		return nil, invalid("service: page config: %v", err)
	}
	epoch := s.removalEpoch()
	if err := s.store.AddPage(ctx, p); err != nil {
		return nil, err
	}
	s.register(p, epoch)
	s.publish(ctx, events.Event{Kind: events.KindPageAdded, PageID: p.ID, URL: p.URL})
	zap.L().Info("service: page added", zap.String("page", p.ID), zap.String("url", p.URL))
	return p, nil
}

// GetPage returns the live page for id.
func (s *Service) GetPage(ctx context.Context, id string) (*model.Page, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.state.Page(), nil
}

// RemovePage deletes the page from the store and the registry and returns
// its latest state.
func (s *Service) RemovePage(ctx context.Context, id string) (*model.Page, error) {
	// Holding flushMu keeps an in-flight flush from writing the page back.
	s.flushMu.Lock()
	stored, err := s.store.RemovePage(ctx, id)
	if err != nil {
		s.flushMu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	e, ok := s.live[id]
	delete(s.live, id)
	s.removals++
	s.mu.Unlock()
	s.flushMu.Unlock()
	metrics.LivePages.Set(float64(s.LiveCount()))

	removed := stored
	if ok {
		removed = e.state.Page()
	}
	s.publish(ctx, events.Event{Kind: events.KindPageRemoved, PageID: id, URL: removed.URL})
	zap.L().Info("service: page removed", zap.String("page", id))
	return removed, nil
}

// ListPages lists stored pages.
func (s *Service) ListPages(ctx context.Context, filter store.ListFilter) ([]model.PageSummary, error) {
	return s.store.ListPages(ctx, filter)
}

// TrackEvent records one interaction. It reports false, without error, when
// the page does not track cat.
func (s *Service) TrackEvent(ctx context.Context, id string, cat model.Category, point model.Point) (bool, error) {
	if !cat.Valid() {
		return false, invalid("service: unknown category %d", cat)
	}
	e, err := s.entry(ctx, id)
	if err != nil {
		return false, err
	}
	recorded, err := e.state.RecordEvent(ctx, cat, point)
	if err != nil {
		return false, err
	}
	if !recorded {
		metrics.EventsIgnored.WithLabelValues(cat.String()).Inc()
		return false, nil
	}
	e.dirty.Store(true)
	metrics.EventsRecorded.WithLabelValues(cat.String()).Inc()
	s.publish(ctx, events.Event{Kind: events.KindTrack, PageID: id, Category: cat.String(), Point: &point})
	return true, nil
}

// RecordLead counts one referral from fromID to page id and returns the new
// weight. The referrer does not have to exist.
func (s *Service) RecordLead(ctx context.Context, id, fromID string) (int64, error) {
	if fromID == "" {
		return 0, invalid("service: lead source is required")
	}
	e, err := s.entry(ctx, id)
	if err != nil {
		return 0, err
	}
	w := e.state.Page().Leads.Record(fromID)
	e.dirty.Store(true)
	metrics.LeadsRecorded.Inc()
	s.publish(ctx, events.Event{Kind: events.KindLead, PageID: id, From: fromID, Weight: w})
	return w, nil
}

// GetActivation returns the logistic intensity grid for cat, or false when
// cat is not tracked.
func (s *Service) GetActivation(ctx context.Context, id string, cat model.Category) ([][]float64, bool, error) {
	if !cat.Valid() {
		return nil, false, invalid("service: unknown category %d", cat)
	}
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, false, err
	}
	hadGrid := e.state.Page().Grid(cat) != nil
	act, ok, err := e.state.Activation(ctx, cat)
	if err != nil {
		return nil, false, err
	}
	if ok && !hadGrid {
		e.dirty.Store(true)
	}
	return act, ok, nil
}

// GetFunnel walks the strongest referral chain into id. A negative maxDepth
// takes the configured default.
func (s *Service) GetFunnel(ctx context.Context, id string, maxDepth int) ([]*model.Page, error) {
	if maxDepth < 0 {
		maxDepth = s.opts.DefaultMaxDepth
	}
	path, err := funnel.Infer(ctx, id, s.GetPage, maxDepth)
	if err != nil {
		return nil, err
	}
	metrics.FunnelLength.Observe(float64(len(path)))
	return path, nil
}

// View returns the page snapshot, capturing when absent or nocache is set.
func (s *Service) View(ctx context.Context, id string, nocache bool) ([]byte, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	hadView := e.state.Page().View() != nil
	v, err := e.state.View(ctx, nocache)
	if err != nil {
		return nil, err
	}
	if nocache || !hadView {
		e.dirty.Store(true)
	}
	return v, nil
}

// LiveCount returns the number of pages held in memory.
func (s *Service) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

func (s *Service) entry(ctx context.Context, id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.live[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := s.loads.Do(id, func() (any, error) {
		for range maxLoadAttempts {
			epoch := s.removalEpoch()
			p, err := s.store.GetPage(ctx, id)
			if err != nil {
				return nil, err
			}
			if e, ok := s.register(p, epoch); ok {
				return e, nil
			}
		}
		return nil, eris.Errorf("service: load %s: removals kept racing the read", id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

const maxLoadAttempts = 5

func (s *Service) removalEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.removals
}

// register adds p to the registry unless a page with its id is already live,
// in which case the live one wins. It refuses p when a removal completed
// after epoch was taken, since p may then be a deleted page.
func (s *Service) register(p *model.Page, epoch uint64) (*entry, bool) {
	s.mu.Lock()
	e, ok := s.live[p.ID]
	if !ok {
		if s.removals != epoch {
			s.mu.Unlock()
			return nil, false
		}
		e = &entry{state: tracking.NewState(p, s.capturer)}
		s.live[p.ID] = e
	}
	n := len(s.live)
	s.mu.Unlock()
	metrics.LivePages.Set(float64(n))
	return e, true
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	ev.At = s.nowFunc().UTC()
	if err := s.pub.Publish(ctx, ev); err != nil {
		zap.L().Warn("service: publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

func clonePageConfig(c model.PageConfig) model.PageConfig {
	c.Hotspot.Track = append([]model.Category(nil), c.Hotspot.Track...)
	return c
}

// IsInvalid reports whether err is a caller error.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/metrics"
	"github.com/sells-group/hotspot/internal/model"
)

// Flush writes every page changed since the last flush. Pages whose write
// fails stay dirty for the next attempt.
func (s *Service) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	var dirty []*entry
	for _, e := range s.live {
		if e.dirty.CompareAndSwap(true, false) {
			dirty = append(dirty, e)
		}
	}
	s.mu.RUnlock()
	if len(dirty) == 0 {
		return nil
	}

	pages := make([]*model.Page, len(dirty))
	for i, e := range dirty {
		pages[i] = e.state.Page()
	}
	if err := s.store.SavePages(ctx, pages); err != nil {
		for _, e := range dirty {
			e.dirty.Store(true)
		}
		metrics.Flushes.WithLabelValues(metrics.ResultError).Inc()
		return err
	}
	metrics.Flushes.WithLabelValues(metrics.ResultOK).Inc()
	zap.L().Debug("service: flushed pages", zap.Int("count", len(pages)))
	return nil
}

// Run flushes on every FlushInterval tick until ctx is done, then flushes
// once more with a fresh deadline so shutdown does not lose counts.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				zap.L().Error("service: periodic flush failed", zap.Error(err))
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			return s.Flush(final)
		}
	}
}

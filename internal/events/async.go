package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hotspot/internal/metrics"
)

// Async decouples callers from a slow Publisher. Events queue in a bounded
// buffer drained by one worker; when the buffer is full new events are
// dropped and counted.
type Async struct {
	next    Publisher
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the worker. buffer below 1 becomes 1.
func NewAsync(next Publisher, buffer int, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Async{
		next:    next,
		queue:   make(chan Event, max(buffer, 1)),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues ev without blocking. Events published after Close are
// dropped.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.Published.WithLabelValues(metrics.ResultRejected).Inc()
		zap.L().Warn("events: publisher closed, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("page", ev.PageID),
		)
		return nil
	}
	select {
	case a.queue <- ev:
	default:
		metrics.Published.WithLabelValues(metrics.ResultRejected).Inc()
		zap.L().Warn("events: queue full, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("page", ev.PageID),
		)
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.next.Publish(ctx, ev)
		cancel()
		if err != nil {
			metrics.Published.WithLabelValues(metrics.ResultError).Inc()
			zap.L().Warn("events: publish failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
			continue
		}
		metrics.Published.WithLabelValues(metrics.ResultOK).Inc()
	}
}

// Close drains queued events and closes the wrapped publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/hotspot/internal/metrics"
	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/resilience"
)

// GuardConfig throttles and protects a Capturer.
type GuardConfig struct {
	// RatePerSec caps captures across all pages. Zero or less is unlimited.
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryConfig
	Breaker    resilience.CircuitBreakerConfig
}

// Guarded wraps a Capturer with a global rate limit, retries of transient
// failures and a circuit breaker per origin host.
type Guarded struct {
	next     Capturer
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	breakers *resilience.HostBreakers
}

// NewGuarded wraps next.
func NewGuarded(next Capturer, cfg GuardConfig) *Guarded {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := max(cfg.Burst, 1)

	breaker := cfg.Breaker
	if breaker.ShouldTrip == nil {
		breaker.ShouldTrip = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	return &Guarded{
		next:     next,
		limiter:  rate.NewLimiter(limit, burst),
		retry:    cfg.Retry,
		breakers: resilience.NewHostBreakers(breaker),
	}
}

// Capture waits for a rate token, then runs the capture through the host's
// breaker with retries.
func (g *Guarded) Capture(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		metrics.Captures.WithLabelValues(metrics.ResultRejected).Inc()
		return nil, &model.CaptureError{URL: req.URL, Err: eris.Wrap(err, "snapshot: rate limit")}
	}

	retry := g.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("capture", req.URL)
	}
	img, err := resilience.ExecuteVal(ctx, g.breakers.For(req.URL), func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			return g.next.Capture(ctx, req)
		})
	})
	metrics.CaptureDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.Captures.WithLabelValues(metrics.ResultOK).Inc()
		return img, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.Captures.WithLabelValues(metrics.ResultRejected).Inc()
	default:
		metrics.Captures.WithLabelValues(metrics.ResultError).Inc()
	}

	var ce *model.CaptureError
	if errors.As(err, &ce) {
		return nil, err
	}
	return nil, &model.CaptureError{URL: req.URL, Err: err}
}

// Breakers exposes per-host circuit states.
func (g *Guarded) Breakers() map[string]resilience.CircuitState {
	return g.breakers.States()
}

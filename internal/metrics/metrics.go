// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_events_recorded_total",
		Help: "Interaction events added to a heatmap, by category",
	}, []string{"category"})

	EventsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_events_ignored_total",
		Help: "Interaction events dropped because the category is not tracked",
	}, []string{"category"})

	LeadsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotspot_leads_recorded_total",
		Help: "Navigation leads recorded between pages",
	})

	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_captures_total",
		Help: "Snapshot captures by result (ok, error, rejected)",
	}, []string{"result"})

	CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotspot_capture_duration_seconds",
		Help:    "Wall time of snapshot captures including retries",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	FunnelLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotspot_funnel_length",
		Help:    "Number of pages in inferred funnels",
		Buckets: prometheus.LinearBuckets(1, 1, 8),
	})

	LivePages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hotspot_live_pages",
		Help: "Pages currently held in memory",
	})

	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_flushes_total",
		Help: "Dirty page writes to the store by result",
	}, []string{"result"})

	Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_events_published_total",
		Help: "Change notifications published to the broker by result",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_http_requests_total",
		Help: "HTTP requests by route pattern, method and status",
	}, []string{"route", "method", "status"})
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

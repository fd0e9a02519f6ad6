package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service's Prometheus instruments on a private
// registry. A nil *Collector is valid and records nothing, so wiring
// metrics stays optional.
type Collector struct {
	reg *prometheus.Registry

	FeedFetches     *prometheus.CounterVec // status label: ok|error|short_circuit
	VehiclesTracked prometheus.Gauge
	TickDuration    prometheus.Histogram

	NotificationsQueued  prometheus.Counter
	NotificationsRetried prometheus.Counter
	NotificationsDropped prometheus.Counter
	Sends                *prometheus.CounterVec // provider, status labels

	TokensRemoved prometheus.Counter

	RouteCacheHits   prometheus.Counter
	RouteCacheMisses prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitnotify_feed_fetches_total",
			Help: "Feed fetch cycles by outcome.",
		}, []string{"status"}),
		VehiclesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitnotify_vehicles_tracked",
			Help: "Vehicles decoded in the most recent feed tick.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitnotify_tick_duration_seconds",
			Help:    "Duration of one fetch-decode-match-dispatch cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitnotify_notifications_queued_total",
			Help: "Messages added to the outbound queue.",
		}),
		NotificationsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitnotify_notifications_retried_total",
			Help: "Messages re-enqueued after a recoverable send failure.",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitnotify_notifications_dropped_total",
			Help: "Messages dropped after exhausting retries or lacking a provider.",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitnotify_sends_total",
			Help: "Provider send outcomes.",
		}, []string{"provider", "status"}),
		TokensRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitnotify_tokens_removed_total",
			Help: "Push tokens removed after permanent provider failures.",
		}),
		RouteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitnotify_route_cache_hits_total",
			Help: "Route cache lookups served from memory.",
		}),
		RouteCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitnotify_route_cache_misses_total",
			Help: "Route cache lookups that fell through to the store.",
		}),
	}
	reg.MustRegister(
		c.FeedFetches, c.VehiclesTracked, c.TickDuration,
		c.NotificationsQueued, c.NotificationsRetried, c.NotificationsDropped,
		c.Sends, c.TokensRemoved, c.RouteCacheHits, c.RouteCacheMisses,
	)
	return c
}

// Handler serves the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) IncFeedFetch(status string) {
	if c != nil {
		c.FeedFetches.WithLabelValues(status).Inc()
	}
}

func (c *Collector) SetVehiclesTracked(n int) {
	if c != nil {
		c.VehiclesTracked.Set(float64(n))
	}
}

func (c *Collector) ObserveTick(d time.Duration) {
	if c != nil {
		c.TickDuration.Observe(d.Seconds())
	}
}

func (c *Collector) AddQueued(n int) {
	if c != nil {
		c.NotificationsQueued.Add(float64(n))
	}
}

func (c *Collector) AddRetried(n int) {
	if c != nil {
		c.NotificationsRetried.Add(float64(n))
	}
}

func (c *Collector) AddDropped(n int) {
	if c != nil {
		c.NotificationsDropped.Add(float64(n))
	}
}

func (c *Collector) IncSend(provider, status string) {
	if c != nil {
		c.Sends.WithLabelValues(provider, status).Inc()
	}
}

func (c *Collector) IncTokensRemoved() {
	if c != nil {
		c.TokensRemoved.Inc()
	}
}

func (c *Collector) IncRouteCacheHit() {
	if c != nil {
		c.RouteCacheHits.Inc()
	}
}

func (c *Collector) IncRouteCacheMiss() {
	if c != nil {
		c.RouteCacheMisses.Inc()
	}
}

// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "content_pipeline"

// Collector holds the pipeline's Prometheus metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	dispatchOutcomes *prometheus.CounterVec
	claimsLost       *prometheus.CounterVec
	publishDuration  *prometheus.HistogramVec
	healthAlerts     *prometheus.CounterVec
	hashtagFallbacks prometheus.Counter
	notifierFailures prometheus.Counter
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.dispatchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Publish attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)
	c.claimsLost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_lost_total",
			Help:      "Due items skipped because another tick claimed them first",
		},
		[]string{"platform"},
	)
	c.publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Publisher adapter call duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"platform"},
	)
	c.healthAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_alerts_total",
			Help:      "Alerts fired by the health monitor",
		},
		[]string{"condition"},
	)
	c.hashtagFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hashtag_fallbacks_total",
		Help:      "Hashtag suggestions replaced by the static list",
	})
	c.notifierFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifier_failures_total",
		Help:      "Alerts or summaries the notifier failed to deliver",
	})

	c.registry.MustRegister(
		c.dispatchOutcomes,
		c.claimsLost,
		c.publishDuration,
		c.healthAlerts,
		c.hashtagFallbacks,
		c.notifierFailures,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) DispatchOutcome(platform, outcome string) {
	if c == nil {
		return
	}
	c.dispatchOutcomes.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) ClaimLost(platform string) {
	if c == nil {
		return
	}
	c.claimsLost.WithLabelValues(platform).Inc()
}

func (c *Collector) ObservePublish(platform string, d time.Duration) {
	if c == nil {
		return
	}
	c.publishDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (c *Collector) HealthAlert(condition string) {
	if c == nil {
		return
	}
	c.healthAlerts.WithLabelValues(condition).Inc()
}

func (c *Collector) HashtagFallback() {
	if c == nil {
		return
	}
	c.hashtagFallbacks.Inc()
}

func (c *Collector) NotifierFailure() {
	if c == nil {
		return
	}
	c.notifierFailures.Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics stores the collectors shared by the alert engine, the digest scheduler and the sinks.
type Metrics struct {
	AlertCycles        *prometheus.CounterVec
	AlertCycleDuration prometheus.Histogram
	Notifications      *prometheus.CounterVec
	SourceFailures     *prometheus.CounterVec
	DueJobs            prometheus.Counter
	DispatchErrors     prometheus.Counter
	DigestDeliveries   *prometheus.CounterVec
	SeenDealsPurged    prometheus.Counter
	SinkFailures       *prometheus.CounterVec
}

// New registers the collectors with reg. Passing a fresh prometheus.NewRegistry keeps tests isolated.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AlertCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_cycles_total",
			Help:      "Alert matching cycles by outcome.",
		}, []string{"status"}),
		AlertCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_cycle_duration_seconds",
			Help:      "Duration of alert matching cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications produced, by kind.",
		}, []string{"kind"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Deal source failures, by operation.",
		}, []string{"operation"}),
		DueJobs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_due_jobs_total",
			Help:      "Category jobs found due by the minute tick.",
		}),
		DispatchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_dispatch_errors_total",
			Help:      "Category jobs that could not be dispatched.",
		}),
		DigestDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_deliveries_total",
			Help:      "Digest items handed to the sink, by outcome.",
		}, []string{"status"}),
		SeenDealsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seen_deals_purged_total",
			Help:      "Dedup records removed by the retention purge.",
		}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Notification sink failures, by kind.",
		}, []string{"kind"}),
	}
}

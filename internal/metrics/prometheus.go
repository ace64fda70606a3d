package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	openDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tidebase_connection_open_seconds",
		Help:    "Time to open a database connection, including cold-start retries",
		Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 20, 30},
	})
	openAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tidebase_connection_open_attempts",
		Help:    "Attempts needed to open a database connection",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
	openFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidebase_connection_attempt_failures_total",
		Help: "Failed connection attempts",
	})
	tokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidebase_token_refresh_total",
		Help: "Database credential issuances",
	})
	feedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tidebase_feed_subscribers",
		Help: "Connected change-feed subscribers",
	})
	feedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidebase_feed_records_total",
		Help: "Audit records pushed through the change feed",
	})
	feedPollLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tidebase_feed_poll_lag_seconds",
		Help:    "Age of the newest audit record at poll time",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
	})
)

type prometheusObserver struct{}

// NewPrometheusObserver returns the process-wide observer backed by the
// default registry.
func NewPrometheusObserver() interface {
	ConnObserver
	FeedObserver
} {
	return prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (prometheusObserver) ObserveOpen(attempts int, elapsed time.Duration) {
	openDuration.Observe(elapsed.Seconds())
	openAttempts.Observe(float64(attempts))
}

func (prometheusObserver) RecordOpenFailure() {
	openFailures.Inc()
}

func (prometheusObserver) RecordTokenRefresh() {
	tokenRefreshes.Inc()
}

func (prometheusObserver) IncSubscribers() {
	feedSubscribers.Inc()
}

func (prometheusObserver) DecSubscribers() {
	feedSubscribers.Dec()
}

func (prometheusObserver) RecordRecords(n int) {
	feedRecords.Add(float64(n))
}

func (prometheusObserver) ObservePollLag(lag time.Duration) {
	feedPollLag.Observe(lag.Seconds())
}

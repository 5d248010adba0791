package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records what the pipeline did so swallowed per-artifact failures
// remain observable.
type Metrics interface {
	IncIngest(outcome string)
	ObserveIngestDuration(seconds float64)
	IncEvicted(root string)
	IncAnomaly(root string)
	IncSweepError(root string)
	IncSample(status string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncIngest(string)              {}
func (Noop) ObserveIngestDuration(float64) {}
func (Noop) IncEvicted(string)             {}
func (Noop) IncAnomaly(string)             {}
func (Noop) IncSweepError(string)          {}
func (Noop) IncSample(string)              {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	ingests        *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	evicted        *prometheus.CounterVec
	anomalies      *prometheus.CounterVec
	sweepErrors    *prometheus.CounterVec
	samples        *prometheus.CounterVec
}

// NewProm creates the collectors and registers them with reg.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	p := &Prom{
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Ingestion attempts by outcome",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of ingestion attempts",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_evicted_total",
			Help:      "Artifacts removed by the retention sweep per root",
		}, []string{"root"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_anomalies_total",
			Help:      "Store entries skipped because their name is not a timestamp",
		}, []string{"root"}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweep failures per root",
		}, []string{"root"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "point_samples_total",
			Help:      "Point samples by status",
		}, []string{"status"}),
	}
	reg.MustRegister(p.ingests, p.ingestDuration, p.evicted, p.anomalies, p.sweepErrors, p.samples)
	return p
}

func (p *Prom) IncIngest(outcome string) {
	p.ingests.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveIngestDuration(seconds float64) {
	p.ingestDuration.Observe(seconds)
}

func (p *Prom) IncEvicted(root string) {
	p.evicted.WithLabelValues(root).Inc()
}

func (p *Prom) IncAnomaly(root string) {
	p.anomalies.WithLabelValues(root).Inc()
}

func (p *Prom) IncSweepError(root string) {
	p.sweepErrors.WithLabelValues(root).Inc()
}

func (p *Prom) IncSample(status string) {
	p.samples.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler for /metrics serving the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

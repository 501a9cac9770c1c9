package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync outcome labels of SyncTotal.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusInternal = "internal"
)

// SyncMetrics groups the collectors of the sync service. Each instance owns
// its registration so tests can use a private registry.
type SyncMetrics struct {
	// Backlog is the number of due records, sampled at the start of each cycle.
	Backlog prometheus.Gauge

	// RetryBacklog is the number of dormant records. If this number grows,
	// an operator has to look at the downstream rejections.
	RetryBacklog prometheus.Gauge

	// SyncTotal counts resolved records by outcome.
	SyncTotal *prometheus.CounterVec

	BatchDuration prometheus.Histogram
	BatchSize     prometheus.Histogram

	AcousticRequests *prometheus.CounterVec
	AcousticDuration *prometheus.HistogramVec

	// BrokerHealthy is 1 while the RabbitMQ link is up.
	BrokerHealthy prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &SyncMetrics{
		Backlog: f.NewGauge(prometheus.GaugeOpts{
			Name: "ctms_sync_backlog",
			Help: "Number of pending records due for sync",
		}),
		RetryBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "ctms_sync_retry_backlog",
			Help: "Number of pending records that exhausted their retries",
		}),
		SyncTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ctms_sync_total",
			Help: "Total number of pending records resolved, by outcome",
		}, []string{"status"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctms_sync_batch_duration_seconds",
			Help:    "Duration of one drain cycle in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ctms_sync_batch_size",
			Help:    "Number of records processed per drain cycle",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 500, 1000},
		}),
		AcousticRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acoustic_request_total",
			Help: "Total count of requests to Acoustic, by method and status",
		}, []string{"method", "status"}),
		AcousticDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acoustic_requests_duration_seconds",
			Help:    "Histogram of Acoustic request durations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"method", "status"}),
		BrokerHealthy: f.NewGauge(prometheus.GaugeOpts{
			Name: "ctms_sync_broker_healthy",
			Help: "Current health status of the RabbitMQ link (1 for healthy, 0 for unhealthy)",
		}),
	}
}

// ObserveRequest records one Acoustic API call. status is "success" or "failure".
func (m *SyncMetrics) ObserveRequest(method, status string, d time.Duration) {
	m.AcousticRequests.WithLabelValues(method, status).Inc()
	m.AcousticDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func (m *SyncMetrics) SetBrokerHealthy(ok bool) {
	if ok {
		m.BrokerHealthy.Set(1)
		return
	}
	m.BrokerHealthy.Set(0)
}

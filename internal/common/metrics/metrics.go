package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 业务指标集合。只在 main 里创建一次（promauto 注册到默认 registry）。
type Metrics struct {
	ReservationsConfirmed prometheus.Counter
	BookingConflicts      prometheus.Counter
	HoldsCreated          prometheus.Counter
	HoldsExpired          prometheus.Counter
	AvailabilityLatency   prometheus.Histogram
	ErrorsCount           *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ReservationsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_confirmed_total",
			Help:      "Number of reservations confirmed.",
		}),
		BookingConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Number of reservation attempts rejected due to interval conflicts.",
		}),
		HoldsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_created_total",
			Help:      "Number of pending holds created.",
		}),
		HoldsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_expired_total",
			Help:      "Number of pending holds expired by the sweeper.",
		}),
		AvailabilityLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_query_seconds",
			Help:      "Latency of availability queries.",
			Buckets:   prometheus.DefBuckets,
		}),
		ErrorsCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of errors by component.",
		}, []string{"component"}),
	}
}

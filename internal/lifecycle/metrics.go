package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "lifecycle",
		Name:      "loads_total",
		Help:      "Total model load attempts by component and result",
	}, []string{"component", "result"})

	unloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "lifecycle",
		Name:      "unloads_total",
		Help:      "Total successful model unloads by component",
	}, []string{"component"})

	loadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inferd",
		Subsystem: "lifecycle",
		Name:      "load_duration_seconds",
		Help:      "Model load duration by component",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"component"})
)

func init() {
	prometheus.MustRegister(loadsTotal, unloadsTotal, loadDuration)
}

package download

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "download",
		Name:      "tasks_started_total",
		Help:      "Total download tasks started",
	})

	tasksFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "download",
		Name:      "tasks_finished_total",
		Help:      "Total download tasks reaching a terminal state",
	}, []string{"outcome"})

	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "download",
		Name:      "retries_total",
		Help:      "Total retry attempts granted",
	})

	tasksActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "inferd",
		Subsystem: "download",
		Name:      "tasks_active",
		Help:      "Download tasks currently in a non-terminal state",
	})
)

func init() {
	prometheus.MustRegister(tasksStarted, tasksFinished, retriesTotal, tasksActive)
}

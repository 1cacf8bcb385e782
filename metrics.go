package careflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/randalmurphal/careflow/stream"
)

var (
	metricThreadsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "threads_started_total",
		Help:      "Number of exercise threads started.",
	})
	metricThreadsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "threads_completed_total",
		Help:      "Number of exercise threads that completed.",
	})
	metricThreadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "threads_failed_total",
		Help:      "Number of exercise threads that halted with an error.",
	})
	metricCheckpointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "checkpoints_written_total",
		Help:      "Number of state checkpoints persisted.",
	})
	metricNodeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "node_retries_total",
		Help:      "Number of node retry attempts after transient failures.",
	}, []string{"node"})
	metricGatesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "gates_expired_total",
		Help:      "Number of human gates expired by the reaper.",
	})
)

func recordThreadStarted() {
	metricThreadsStarted.Inc()
}

func recordThreadCompleted() {
	metricThreadsCompleted.Inc()
}

func recordThreadFailed() {
	metricThreadsFailed.Inc()
}

func recordCheckpoint() {
	metricCheckpointsWritten.Inc()
}

func recordNodeRetry(node string) {
	metricNodeRetries.WithLabelValues(node).Inc()
}

func recordGateExpired() {
	metricGatesExpired.Inc()
}

// RegisterStreamDropCounter exposes the emitter's dropped-event count as
// careflow_stream_events_dropped_total. Call once per process.
func RegisterStreamDropCounter(e *stream.Emitter) {
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "careflow",
		Name:      "stream_events_dropped_total",
		Help:      "Events dropped from full subscriber buffers.",
	}, func() float64 {
		return float64(e.Dropped())
	})
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_connected_clients",
			Help: "Number of clients currently connected",
		},
	)

	ConnectedSlaves = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_connected_slaves",
			Help: "Number of slaves currently attached to this server",
		},
	)

	CommandsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkv_commands_processed_total",
			Help: "Total number of commands dispatched, by command name",
		},
		[]string{"command"},
	)

	CommandErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memkv_command_errors_total",
			Help: "Total number of commands that replied with an error, by kind",
		},
		[]string{"kind"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memkv_command_duration_seconds",
			Help:    "Time taken to execute a command, by command name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	KeysTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "memkv_keys_total",
			Help: "Number of keys held by each logical database",
		},
		[]string{"db"},
	)

	DirtyKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_dirty_keys",
			Help: "Number of mutations since the last successful save",
		},
	)

	LastSaveTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_last_save_timestamp_seconds",
			Help: "Unix time of the last successful save",
		},
	)

	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memkv_save_duration_seconds",
			Help:    "Time taken to write a snapshot to disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	BGSaveInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_bgsave_in_progress",
			Help: "Whether a background save is currently running (1) or not (0)",
		},
	)

	UsedMemoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_used_memory_bytes",
			Help: "Live bytes allocated through the tracked allocator",
		},
	)

	ReplicationState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memkv_replication_state",
			Help: "Replication state of this node (0=none, 1=must_connect, 2=connected)",
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(ConnectedSlaves)
	prometheus.MustRegister(CommandsProcessedTotal)
	prometheus.MustRegister(CommandErrorsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(KeysTotal)
	prometheus.MustRegister(DirtyKeys)
	prometheus.MustRegister(LastSaveTimestamp)
	prometheus.MustRegister(SaveDuration)
	prometheus.MustRegister(BGSaveInProgress)
	prometheus.MustRegister(UsedMemoryBytes)
	prometheus.MustRegister(ReplicationState)
}

// Handler returns the Prometheus HTTP handler, served on a separate
// listener from the command port (the command port speaks the raw
// line/bulk protocol, not HTTP).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

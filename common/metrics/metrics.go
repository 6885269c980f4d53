package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "prism"

	SubsystemCommon   = "base"
	SubsystemContract = "contract"
	SubsystemState    = "state"
	SubsystemStorage  = "storage"

	LabelModule   = "module"
	LabelDataType = "data_type"
	LabelOutcome  = "outcome"
	LabelDBType   = "db_type"
)

var DefBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// contract
var (
	// deferred deploy tasks queued by invoke
	DeployTaskQueuedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemContract,
			Name:      "deploy_task_queued_total",
			Help:      "Total number of queued deploy tasks.",
		},
		[]string{LabelDataType})
	// deploy task commit results
	DeployTaskCommitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemContract,
			Name:      "deploy_task_commit_total",
			Help:      "Total number of committed deploy tasks by outcome.",
		},
		[]string{LabelDataType, LabelOutcome})
)

// state
var (
	// rollback run duration
	RollbackHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemState,
			Name:      "rollback_seconds",
			Help:      "Rollback cost in seconds.",
			Buckets:   DefBuckets,
		},
		[]string{LabelOutcome})
	// bytes written into write ahead log backup files
	WALBytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemState,
			Name:      "wal_bytes",
			Help:      "Total size of bytes written to WAL files.",
		},
		[]string{LabelDBType})
)

var registerOnce sync.Once

// RegisterMetrics registers all metric vectors with the default
// prometheus registry. It is invoked when an execution context is built
// with the metric switch on and is safe to call more than once
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DeployTaskQueuedCounter)
		prometheus.MustRegister(DeployTaskCommitCounter)
		prometheus.MustRegister(RollbackHistogram)
		prometheus.MustRegister(WALBytesCounter)
	})
}

package domain

import (
	"sync/atomic"
	"time"
)

type ExecutionMetrics struct {
	ExecutionsQueued    int64 `json:"executions_queued"`
	ExecutionsStarted   int64 `json:"executions_started"`
	ExecutionsSucceeded int64 `json:"executions_succeeded"`
	ExecutionsFailed    int64 `json:"executions_failed"`
	ExecutionsCanceled  int64 `json:"executions_canceled"`
	ExecutionsCrashed   int64 `json:"executions_crashed"`
	ExecutionsSuspended int64 `json:"executions_suspended"`
	ExecutionsResumed   int64 `json:"executions_resumed"`
	ExecutionsRecovered int64 `json:"executions_recovered"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`
	NodesRetried   int64 `json:"nodes_retried"`
	NodesSkipped   int64 `json:"nodes_skipped"`
	NodesPanicked  int64 `json:"nodes_panicked"`

	StoreRetries int64 `json:"store_retries"`

	TotalNodeTimeNs    int64 `json:"total_node_time_ns"`
	NodeExecutionCount int64 `json:"node_execution_count"`
}

func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{}
}

func (m *ExecutionMetrics) IncrementExecutionsQueued()    { atomic.AddInt64(&m.ExecutionsQueued, 1) }
func (m *ExecutionMetrics) IncrementExecutionsStarted()   { atomic.AddInt64(&m.ExecutionsStarted, 1) }
func (m *ExecutionMetrics) IncrementExecutionsSucceeded() { atomic.AddInt64(&m.ExecutionsSucceeded, 1) }
func (m *ExecutionMetrics) IncrementExecutionsFailed()    { atomic.AddInt64(&m.ExecutionsFailed, 1) }
func (m *ExecutionMetrics) IncrementExecutionsCanceled()  { atomic.AddInt64(&m.ExecutionsCanceled, 1) }
func (m *ExecutionMetrics) IncrementExecutionsCrashed()   { atomic.AddInt64(&m.ExecutionsCrashed, 1) }
func (m *ExecutionMetrics) IncrementExecutionsSuspended() { atomic.AddInt64(&m.ExecutionsSuspended, 1) }
func (m *ExecutionMetrics) IncrementExecutionsResumed()   { atomic.AddInt64(&m.ExecutionsResumed, 1) }
func (m *ExecutionMetrics) IncrementExecutionsRecovered() { atomic.AddInt64(&m.ExecutionsRecovered, 1) }

func (m *ExecutionMetrics) IncrementNodesExecuted()  { atomic.AddInt64(&m.NodesExecuted, 1) }
func (m *ExecutionMetrics) IncrementNodesSucceeded() { atomic.AddInt64(&m.NodesSucceeded, 1) }
func (m *ExecutionMetrics) IncrementNodesFailed()    { atomic.AddInt64(&m.NodesFailed, 1) }
func (m *ExecutionMetrics) IncrementNodesRetried()   { atomic.AddInt64(&m.NodesRetried, 1) }
func (m *ExecutionMetrics) IncrementNodesSkipped()   { atomic.AddInt64(&m.NodesSkipped, 1) }
func (m *ExecutionMetrics) IncrementNodesPanicked()  { atomic.AddInt64(&m.NodesPanicked, 1) }

func (m *ExecutionMetrics) IncrementStoreRetries() { atomic.AddInt64(&m.StoreRetries, 1) }

// RecordFinished counts a terminal status.
func (m *ExecutionMetrics) RecordFinished(status ExecutionStatus) {
	switch status {
	case StatusSuccess:
		m.IncrementExecutionsSucceeded()
	case StatusError:
		m.IncrementExecutionsFailed()
	case StatusCanceled:
		m.IncrementExecutionsCanceled()
	case StatusCrashed:
		m.IncrementExecutionsCrashed()
	}
}

func (m *ExecutionMetrics) AddNodeTime(duration time.Duration) {
	atomic.AddInt64(&m.TotalNodeTimeNs, int64(duration))
	atomic.AddInt64(&m.NodeExecutionCount, 1)
}

func (m *ExecutionMetrics) GetSnapshot() ExecutionMetrics {
	return ExecutionMetrics{
		ExecutionsQueued:    atomic.LoadInt64(&m.ExecutionsQueued),
		ExecutionsStarted:   atomic.LoadInt64(&m.ExecutionsStarted),
		ExecutionsSucceeded: atomic.LoadInt64(&m.ExecutionsSucceeded),
		ExecutionsFailed:    atomic.LoadInt64(&m.ExecutionsFailed),
		ExecutionsCanceled:  atomic.LoadInt64(&m.ExecutionsCanceled),
		ExecutionsCrashed:   atomic.LoadInt64(&m.ExecutionsCrashed),
		ExecutionsSuspended: atomic.LoadInt64(&m.ExecutionsSuspended),
		ExecutionsResumed:   atomic.LoadInt64(&m.ExecutionsResumed),
		ExecutionsRecovered: atomic.LoadInt64(&m.ExecutionsRecovered),
		NodesExecuted:       atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:      atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:         atomic.LoadInt64(&m.NodesFailed),
		NodesRetried:        atomic.LoadInt64(&m.NodesRetried),
		NodesSkipped:        atomic.LoadInt64(&m.NodesSkipped),
		NodesPanicked:       atomic.LoadInt64(&m.NodesPanicked),
		StoreRetries:        atomic.LoadInt64(&m.StoreRetries),
		TotalNodeTimeNs:     atomic.LoadInt64(&m.TotalNodeTimeNs),
		NodeExecutionCount:  atomic.LoadInt64(&m.NodeExecutionCount),
	}
}

func (m *ExecutionMetrics) GetAverageNodeTime() time.Duration {
	totalNs := atomic.LoadInt64(&m.TotalNodeTimeNs)
	count := atomic.LoadInt64(&m.NodeExecutionCount)
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

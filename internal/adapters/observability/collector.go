package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

type counter struct {
	desc   *prometheus.Desc
	labels []string
	value  func(m domain.ExecutionMetrics) int64
}

// executionCollector reads the engine counters on every scrape, so the
// engine keeps a single source of truth.
type executionCollector struct {
	source   ports.MetricsProvider
	descs    []*prometheus.Desc
	counters []counter
}

func newExecutionCollector(source ports.MetricsProvider) *executionCollector {
	executions := prometheus.NewDesc("loom_executions_total", "Executions by lifecycle transition.", []string{"event"}, nil)
	nodes := prometheus.NewDesc("loom_node_runs_total", "Node invocations by outcome.", []string{"outcome"}, nil)
	storeRetries := prometheus.NewDesc("loom_store_retries_total", "Execution snapshot saves that were retried.", nil, nil)
	nodeTime := prometheus.NewDesc("loom_node_duration_nanoseconds_total", "Cumulative time spent inside node executors.", nil, nil)

	return &executionCollector{
		source: source,
		descs:  []*prometheus.Desc{executions, nodes, storeRetries, nodeTime},
		counters: []counter{
			{executions, []string{"queued"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsQueued }},
			{executions, []string{"started"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsStarted }},
			{executions, []string{"succeeded"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsSucceeded }},
			{executions, []string{"failed"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsFailed }},
			{executions, []string{"canceled"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsCanceled }},
			{executions, []string{"crashed"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsCrashed }},
			{executions, []string{"suspended"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsSuspended }},
			{executions, []string{"resumed"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsResumed }},
			{executions, []string{"recovered"}, func(m domain.ExecutionMetrics) int64 { return m.ExecutionsRecovered }},
			{nodes, []string{"executed"}, func(m domain.ExecutionMetrics) int64 { return m.NodesExecuted }},
			{nodes, []string{"succeeded"}, func(m domain.ExecutionMetrics) int64 { return m.NodesSucceeded }},
			{nodes, []string{"failed"}, func(m domain.ExecutionMetrics) int64 { return m.NodesFailed }},
			{nodes, []string{"retried"}, func(m domain.ExecutionMetrics) int64 { return m.NodesRetried }},
			{nodes, []string{"skipped"}, func(m domain.ExecutionMetrics) int64 { return m.NodesSkipped }},
			{nodes, []string{"panicked"}, func(m domain.ExecutionMetrics) int64 { return m.NodesPanicked }},
			{storeRetries, nil, func(m domain.ExecutionMetrics) int64 { return m.StoreRetries }},
			{nodeTime, nil, func(m domain.ExecutionMetrics) int64 { return m.TotalNodeTimeNs }},
		},
	}
}

func (c *executionCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
}

func (c *executionCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.GetMetrics()
	for _, ctr := range c.counters {
		ch <- prometheus.MustNewConstMetric(ctr.desc, prometheus.CounterValue, float64(ctr.value(snapshot)), ctr.labels...)
	}
}

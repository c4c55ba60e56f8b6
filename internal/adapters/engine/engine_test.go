package engine

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/adapters/memory"
	"github.com/eleven-am/loom/internal/adapters/node_registry"
	"github.com/eleven-am/loom/internal/adapters/queue"
	"github.com/eleven-am/loom/internal/adapters/storage"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
	testclock "github.com/eleven-am/loom/internal/testutil/clock"
	"github.com/eleven-am/loom/internal/testutil/workflow"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t         *testing.T
	engine    *Engine
	registry  *node_registry.Adapter
	workflows *memory.WorkflowRegistry
	store     ports.ExecutionStorePort
	queue     *queue.Queue
	clock     *testclock.Fake
	sink      *workflow.RecordingSink
	metrics   *domain.ExecutionMetrics
}

type harnessOption func(*domain.EngineConfig, *harnessDeps)

type harnessDeps struct {
	store ports.ExecutionStorePort
}

func withConfig(fn func(*domain.EngineConfig)) harnessOption {
	return func(c *domain.EngineConfig, _ *harnessDeps) { fn(c) }
}

func withStore(store ports.ExecutionStorePort) harnessOption {
	return func(_ *domain.EngineConfig, d *harnessDeps) { d.store = store }
}

func testConfig() domain.EngineConfig {
	cfg := domain.DefaultEngineConfig()
	cfg.MaxConcurrentExecutions = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.StoreRetryPolicy = domain.RetryPolicy{MaxAttempts: 3, Backoff: domain.BackoffFixed}
	return cfg
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig()
	deps := &harnessDeps{}
	for _, opt := range opts {
		opt(&cfg, deps)
	}
	if deps.store == nil {
		deps.store = storage.NewMemoryStore(logger)
	}

	clk := testclock.NewFake(epoch)
	metrics := domain.NewExecutionMetrics()
	registry := node_registry.NewAdapter(logger)
	require.NoError(t, node_registry.RegisterBuiltins(registry, clk))

	h := &harness{
		t:         t,
		registry:  registry,
		workflows: memory.NewWorkflowRegistry(logger),
		store:     deps.store,
		queue:     queue.NewQueue("executions", metrics, logger),
		clock:     clk,
		sink:      &workflow.RecordingSink{},
		metrics:   metrics,
	}

	engine, err := NewEngine(cfg, Dependencies{
		Registry:  h.registry,
		Workflows: h.workflows,
		Store:     h.store,
		Queue:     h.queue,
		Events:    h.sink,
		Clock:     h.clock,
		Metrics:   metrics,
		Logger:    logger,
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) register(nodes ...ports.NodeExecutor) {
	h.t.Helper()
	for _, n := range nodes {
		require.NoError(h.t, h.registry.RegisterNode(n))
	}
}

func (h *harness) put(wf *domain.WorkflowGraph) {
	h.t.Helper()
	require.NoError(h.t, h.workflows.Put(context.Background(), wf))
}

func (h *harness) trigger(workflowID string, payload []domain.Item) string {
	h.t.Helper()
	id, err := h.engine.Trigger(context.Background(), workflowID, payload, domain.RunOptions{})
	require.NoError(h.t, err)
	return id
}

// drain runs queued executions on the test goroutine until the queue is empty.
func (h *harness) drain() {
	h.t.Helper()
	for i := 0; i < 10000; i++ {
		processed, err := h.engine.processNextItem()
		require.NoError(h.t, err)
		if !processed {
			return
		}
	}
	h.t.Fatal("queue did not drain")
}

func (h *harness) load(id string) *domain.ExecutionContext {
	h.t.Helper()
	exec, err := h.engine.GetExecution(context.Background(), id)
	require.NoError(h.t, err)
	return exec
}

// runToEnd drains and advances the clock by step until the execution is
// terminal.
func (h *harness) runToEnd(id string, step time.Duration) *domain.ExecutionContext {
	h.t.Helper()
	for i := 0; i < 1000; i++ {
		h.drain()
		exec := h.load(id)
		if exec.Status.IsTerminal() {
			return exec
		}
		h.clock.Advance(step)
	}
	h.t.Fatalf("execution %s never finished", id)
	return nil
}

func TestNewEngine_MissingDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	full := Dependencies{
		Registry:  node_registry.NewAdapter(logger),
		Workflows: memory.NewWorkflowRegistry(logger),
		Store:     storage.NewMemoryStore(logger),
		Queue:     queue.NewQueue("q", nil, logger),
		Clock:     testclock.NewFake(epoch),
	}

	tests := []struct {
		name   string
		mutate func(*Dependencies)
		field  string
	}{
		{"registry", func(d *Dependencies) { d.Registry = nil }, "registry"},
		{"workflows", func(d *Dependencies) { d.Workflows = nil }, "workflows"},
		{"store", func(d *Dependencies) { d.Store = nil }, "store"},
		{"queue", func(d *Dependencies) { d.Queue = nil }, "queue"},
		{"clock", func(d *Dependencies) { d.Clock = nil }, "clock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.mutate(&deps)
			_, err := NewEngine(testConfig(), deps)
			require.Error(t, err)
			assert.True(t, domain.IsInvalidConfig(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("worker count", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxConcurrentExecutions = 0
		_, err := NewEngine(cfg, full)
		assert.True(t, domain.IsInvalidConfig(err))
	})

	t.Run("optional dependencies default", func(t *testing.T) {
		engine, err := NewEngine(testConfig(), full)
		require.NoError(t, err)
		assert.NotNil(t, engine.metrics)
		assert.NotNil(t, engine.events)
		assert.NotNil(t, engine.logger)
	})
}

func TestEngineStartStop(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.Start(context.Background()))
	assert.ErrorIs(t, h.engine.Start(context.Background()), domain.ErrAlreadyStarted)

	require.NoError(t, h.engine.Stop())
	assert.ErrorIs(t, h.engine.Stop(), domain.ErrNotStarted)
}

func TestEngineStart_RunsQueuedExecutions(t *testing.T) {
	h := newHarness(t, withConfig(func(c *domain.EngineConfig) { c.MaxConcurrentExecutions = 2 }))
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a", "b"))

	require.NoError(t, h.engine.Start(context.Background()))
	defer func() { _ = h.engine.Stop() }()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = h.trigger("chain", workflow.Items(map[string]interface{}{"n": float64(i)}))
	}

	for _, id := range ids {
		require.Eventually(t, func() bool {
			exec, err := h.engine.GetExecution(context.Background(), id)
			return err == nil && exec.Status == domain.StatusSuccess
		}, 5*time.Second, 10*time.Millisecond)
	}

	snapshot := h.engine.GetMetrics()
	assert.Equal(t, int64(5), snapshot.ExecutionsSucceeded)
	assert.Equal(t, int64(15), snapshot.NodesSucceeded)
}

func TestEngine_IdleWorkersDoNotAccumulateGoroutines(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.Start(context.Background()))
	defer func() { _ = h.engine.Stop() }()

	time.Sleep(50 * time.Millisecond)
	before := runtime.NumGoroutine()
	time.Sleep(30 * h.engine.config.PollInterval)

	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)
}

func TestEngine_EnqueueWakesIdleWorkers(t *testing.T) {
	h := newHarness(t, withConfig(func(c *domain.EngineConfig) {
		c.MaxConcurrentExecutions = 3
		c.PollInterval = time.Hour
	}))
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))

	require.NoError(t, h.engine.Start(context.Background()))
	defer func() { _ = h.engine.Stop() }()
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		id := h.trigger("chain", nil)
		require.Eventually(t, func() bool {
			exec, err := h.engine.GetExecution(context.Background(), id)
			return err == nil && exec.Status == domain.StatusSuccess
		}, 2*time.Second, 5*time.Millisecond)
	}
}

func TestEngine_FIFOAdmissionWithOneWorker(t *testing.T) {
	h := newHarness(t)
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, h.trigger("chain", nil))
	}
	h.drain()

	var started []string
	for _, e := range h.sink.Events() {
		if e.Type == domain.EventExecutionStarted {
			started = append(started, e.ExecutionID)
		}
	}
	assert.Equal(t, ids, started)
	for _, id := range ids {
		assert.Equal(t, domain.StatusSuccess, h.load(id).Status)
	}
}

func TestEngine_ExecutionIDsAreTimeOrdered(t *testing.T) {
	h := newHarness(t)
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))

	first := h.trigger("chain", nil)
	second := h.trigger("chain", nil)
	assert.Less(t, first, second)
}

func TestErrorLogAttrs(t *testing.T) {
	assert.Nil(t, errorLogAttrs(nil))

	storeErr := domain.NewStoreError("save", "exec-1", assert.AnError)
	attrs := errorLogAttrs(storeErr)
	assert.Contains(t, attrs, "store_op")
	assert.Contains(t, attrs, "exec-1")
	assert.Contains(t, attrs, string(domain.ErrorKindStore))

	nodeErr := &domain.NodeExecutionError{NodeID: "n", Kind: "transient", Attempt: 2}
	attrs = errorLogAttrs(nodeErr)
	assert.Contains(t, attrs, "failure_kind")
	assert.Contains(t, attrs, "transient")
}

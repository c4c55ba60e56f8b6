package core

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/adapters/node_registry"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/testutil/workflow"
)

func testConfig(t *testing.T) *domain.Config {
	t.Helper()
	cfg := domain.NewConfigFromSimple(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg.Engine.PollInterval = 10 * time.Millisecond
	cfg.Engine.StoreRetryPolicy.BaseDelay = time.Millisecond
	return cfg
}

func approvalWorkflow() *domain.WorkflowGraph {
	return workflow.NewBuilder("approval").
		Trigger("trigger").
		Node("await", node_registry.TypeWait).
		Params("await", map[string]interface{}{"signal": "approve"}).
		Node("done", node_registry.TypeNoOp).
		Connect("trigger", "await").
		Connect("await", "done").
		Build()
}

func waitForStatus(t *testing.T, m *Manager, id string, status domain.ExecutionStatus) *domain.ExecutionContext {
	t.Helper()
	var got *domain.ExecutionContext
	require.Eventually(t, func() bool {
		exec, err := m.GetExecution(context.Background(), id)
		if err != nil {
			return false
		}
		got = exec
		return exec.Status == status
	}, 5*time.Second, 10*time.Millisecond, "execution %s never reached %s", id, status)
	return got
}

func TestNewWithConfig_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"workers", func(c *domain.Config) { c.Engine.MaxConcurrentExecutions = 0 }},
		{"failure policy", func(c *domain.Config) { c.Engine.FailurePolicy = "explode" }},
		{"backend", func(c *domain.Config) { c.Storage.Backend = "etcd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			m, err := NewWithConfig(cfg)
			require.Error(t, err)
			assert.Nil(t, m)
		})
	}

	_, err := NewWithConfig(nil)
	assert.True(t, domain.IsInvalidConfig(err))
}

func TestManager_RunsWorkflowEndToEnd(t *testing.T) {
	ctx := context.Background()
	m, err := NewWithConfig(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, m.RegisterFunc("test.double", func(_ context.Context, input []domain.Item, _ map[string]interface{}, _ *domain.RuntimeContext) domain.ExecutionResult {
		out := make([]domain.Item, 0, len(input))
		for _, item := range input {
			n, _ := item.JSON["n"].(float64)
			out = append(out, domain.NewItem(map[string]interface{}{"n": n * 2}))
		}
		return domain.Success(out)
	}))
	require.NoError(t, m.RegisterWorkflow(ctx, workflow.Chain("double", "test.double", "first", "second")))

	var mu sync.Mutex
	var finished []domain.ExecutionStatus
	m.OnExecutionFinished(func(e *domain.Event) {
		mu.Lock()
		finished = append(finished, e.Status)
		mu.Unlock()
	})
	var nodeEvents int
	unsubscribe := m.SubscribePattern("node.*", func(domain.Event) {
		mu.Lock()
		nodeEvents++
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, m.Start(ctx))
	assert.ErrorIs(t, m.Start(ctx), domain.ErrAlreadyStarted)

	id, err := m.TriggerExecution(ctx, "double", workflow.Items(map[string]interface{}{"n": float64(3)}), domain.RunOptions{})
	require.NoError(t, err)

	exec := waitForStatus(t, m, id, domain.StatusSuccess)
	last, ok := exec.LastRun("second")
	require.True(t, ok)
	assert.Equal(t, float64(12), last.Output[0][0].JSON["n"])

	require.NoError(t, m.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ExecutionStatus{domain.StatusSuccess}, finished)
	assert.Equal(t, 6, nodeEvents, "started and completed for three nodes")
	assert.Equal(t, int64(1), m.GetMetrics().ExecutionsSucceeded)
}

func TestManager_RegisterWorkflowRejectsInvalidGraph(t *testing.T) {
	ctx := context.Background()
	m, err := NewWithConfig(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = m.Stop() }()

	err = m.RegisterWorkflow(ctx, workflow.Chain("broken", "test.missing", "a"))
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	_, err = m.GetWorkflow(ctx, "broken")
	assert.True(t, domain.IsNotFound(err))

	assert.Error(t, m.RegisterWorkflow(ctx, nil))
}

func TestManager_LoadWorkflows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	definition := `id: greet
name: Greet
nodes:
  - id: start
    type: core.manualTrigger
    trigger: true
  - id: pass
    type: core.noOp
connections:
  - source: start
    target: pass
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(definition), 0o644))

	m, err := NewWithConfig(testConfig(t))
	require.NoError(t, err)
	defer func() { _ = m.Stop() }()

	ids, err := m.LoadWorkflows(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, ids)

	listed, err := m.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Contains(t, listed, "greet")

	t.Run("invalid definition registers nothing", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("id: bad\nnodes:\n  - id: x\n    type: core.noOp\n"), 0o644))

		_, err := m.LoadWorkflows(ctx, bad)
		require.Error(t, err)
		_, err = m.GetWorkflow(ctx, "bad")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := m.LoadWorkflows(ctx, filepath.Join(dir, "nope"))
		assert.Error(t, err)
	})
}

func TestManager_BadgerStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.WithBadgerStorage("executions")

	first, err := NewWithConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, first.RegisterWorkflow(ctx, approvalWorkflow()))
	require.NoError(t, first.Start(ctx))

	id, err := first.TriggerExecution(ctx, "approval", nil, domain.RunOptions{})
	require.NoError(t, err)
	waitForStatus(t, first, id, domain.StatusWaiting)
	require.NoError(t, first.Stop())

	second, err := NewWithConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	defer func() { _ = second.Stop() }()

	waiting, err := second.GetExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, waiting.Status)

	require.NoError(t, second.ResumeExecution(ctx, id, domain.ResumeSignal{
		SignalID: "approve",
		Payload:  workflow.Items(map[string]interface{}{"approved_by": "ops"}),
	}))
	exec := waitForStatus(t, second, id, domain.StatusSuccess)
	done, ok := exec.LastRun("done")
	require.True(t, ok)
	assert.Equal(t, "ops", done.Output[0][0].JSON["approved_by"])

	count, err := second.CountExecutions(ctx, domain.ExecutionFilter{Statuses: []domain.ExecutionStatus{domain.StatusSuccess}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_ExecutionLifecycleOperations(t *testing.T) {
	ctx := context.Background()
	m, err := NewWithConfig(testConfig(t))
	require.NoError(t, err)

	var attempts atomic.Int32
	require.NoError(t, m.RegisterFunc("test.flaky", func(context.Context, []domain.Item, map[string]interface{}, *domain.RuntimeContext) domain.ExecutionResult {
		if attempts.Add(1) == 1 {
			return domain.Failure("permanent", "first call fails", false)
		}
		return domain.Success(workflow.Items(map[string]interface{}{"ok": true}))
	}))
	require.NoError(t, m.RegisterWorkflow(ctx, workflow.Chain("flaky", "test.flaky", "step")))
	require.NoError(t, m.RegisterWorkflow(ctx, approvalWorkflow()))
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop() }()

	failedID, err := m.TriggerExecution(ctx, "flaky", nil, domain.RunOptions{})
	require.NoError(t, err)
	waitForStatus(t, m, failedID, domain.StatusError)

	retryID, err := m.RetryExecution(ctx, failedID)
	require.NoError(t, err)
	retried := waitForStatus(t, m, retryID, domain.StatusSuccess)
	assert.Equal(t, failedID, retried.RetryOf)
	assert.Equal(t, domain.ModeRetry, retried.Mode)

	waitingID, err := m.TriggerExecution(ctx, "approval", nil, domain.RunOptions{})
	require.NoError(t, err)
	waitForStatus(t, m, waitingID, domain.StatusWaiting)

	require.NoError(t, m.CancelExecution(ctx, waitingID))
	waitForStatus(t, m, waitingID, domain.StatusCanceled)

	summaries, err := m.ListExecutions(ctx, domain.ExecutionFilter{WorkflowIDs: []string{"flaky"}})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, retryID, summaries[0].ID, "newest first")

	scoped, err := m.GetExecutionInWorkflows(ctx, retryID, []string{"flaky"})
	require.NoError(t, err)
	assert.Equal(t, "flaky", scoped.WorkflowID)
	_, err = m.GetExecutionInWorkflows(ctx, retryID, []string{"approval"})
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, m.DeleteExecution(ctx, failedID))
	_, err = m.GetExecution(ctx, failedID)
	assert.True(t, domain.IsNotFound(err))
}

func TestManager_StopIsFinal(t *testing.T) {
	m, err := NewWithConfig(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), domain.ErrNotStarted)
	assert.ErrorIs(t, m.Start(context.Background()), domain.ErrClosed)
}

func TestManager_HealthAndObservability(t *testing.T) {
	cfg := testConfig(t)
	cfg.WithObservability("127.0.0.1:0")

	m, err := NewWithConfig(cfg)
	require.NoError(t, err)

	before := m.GetHealth()
	assert.False(t, before.Healthy)
	assert.Equal(t, "stopped", before.Details["engine"])
	assert.Empty(t, m.ObservabilityAddr())

	require.NoError(t, m.Start(context.Background()))

	health := m.GetHealth()
	assert.True(t, health.Healthy)
	assert.Equal(t, "ok", health.Details["store"])
	assert.Equal(t, 0, health.Details["active_executions"])

	addr := m.ObservabilityAddr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, m.Stop())
	assert.False(t, m.GetHealth().Healthy)
}

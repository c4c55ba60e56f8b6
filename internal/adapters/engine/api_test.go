package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/loom/internal/adapters/node_registry"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/testutil/workflow"
)

func approvalWorkflow() *domain.WorkflowGraph {
	return workflow.NewBuilder("approval").
		Trigger("trigger").
		Node("request", node_registry.TypeNoOp).
		Node("await", node_registry.TypeWait).
		Params("await", map[string]interface{}{"signal": "approve"}).
		Node("ship", "test.ship").
		Connect("trigger", "request").
		Connect("request", "await").
		Connect("await", "ship").
		Build()
}

func TestTrigger_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown workflow", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Trigger(ctx, "missing", nil, domain.RunOptions{})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("invalid graph creates no execution", func(t *testing.T) {
		h := newHarness(t)
		h.put(workflow.Chain("broken", "test.unknown", "a"))

		_, err := h.engine.Trigger(ctx, "broken", nil, domain.RunOptions{})
		require.Error(t, err)
		assert.True(t, domain.IsValidationError(err))
		assert.Equal(t, domain.ErrorKindValidation, domain.KindOf(err))

		count, err := h.engine.CountExecutions(ctx, domain.ExecutionFilter{})
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Zero(t, h.queue.Size())
	})

	t.Run("start node must be a trigger", func(t *testing.T) {
		h := newHarness(t)
		h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))
		_, err := h.engine.Trigger(ctx, "chain", nil, domain.RunOptions{StartNode: "a"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown failure policy", func(t *testing.T) {
		h := newHarness(t)
		h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))
		_, err := h.engine.Trigger(ctx, "chain", nil, domain.RunOptions{FailurePolicy: "explode"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestTrigger_PersistsNewExecution(t *testing.T) {
	h := newHarness(t)
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))

	payload := workflow.Items(map[string]interface{}{"id": "42"})
	id, err := h.engine.Trigger(context.Background(), "chain", payload, domain.RunOptions{Metadata: map[string]string{"source": "test"}})
	require.NoError(t, err)
	payload[0].JSON["id"] = "mutated"

	exec := h.load(id)
	assert.Equal(t, domain.StatusNew, exec.Status)
	assert.Equal(t, "trigger", exec.StartNode)
	assert.Equal(t, domain.ModeManual, exec.Mode)
	assert.Equal(t, "42", exec.TriggerPayload[0].JSON["id"])
	assert.Equal(t, "test", exec.Options.Metadata["source"])
	assert.True(t, h.queue.Contains(id))
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("queued execution", func(t *testing.T) {
		h := newHarness(t)
		h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))
		id := h.trigger("chain", nil)

		require.NoError(t, h.engine.Cancel(ctx, id))

		exec := h.load(id)
		assert.Equal(t, domain.StatusCanceled, exec.Status)
		require.NotNil(t, exec.Error)
		assert.Equal(t, domain.ErrorKindCancellation, exec.Error.Kind)
		assert.NotNil(t, exec.StoppedAt)
		assert.False(t, h.queue.Contains(id))
		assert.Equal(t, []domain.EventType{domain.EventExecutionFinished}, h.sink.Types(id))

		require.NoError(t, h.engine.Cancel(ctx, id), "canceling twice is a no-op")
	})

	t.Run("active execution stops at next tick", func(t *testing.T) {
		h := newHarness(t)
		var id string
		first := workflow.NewScriptedNode("test.first").OnCall(func(workflow.Call) {
			require.NoError(t, h.engine.Cancel(ctx, id))
		})
		second := workflow.NewScriptedNode("test.second")
		h.register(first, second)
		h.put(workflow.NewBuilder("cancel").
			Trigger("trigger").
			Node("first", "test.first").
			Node("second", "test.second").
			Connect("trigger", "first").
			Connect("first", "second").
			Build())

		id = h.trigger("cancel", nil)
		h.drain()

		exec := h.load(id)
		assert.Equal(t, domain.StatusCanceled, exec.Status)
		assert.Equal(t, domain.NodeCompleted, exec.Nodes["first"].Status, "in-flight nodes finish")
		assert.Zero(t, second.CallCount())
		assert.False(t, h.engine.isCancelRequested(id))
	})

	t.Run("waiting execution", func(t *testing.T) {
		h := newHarness(t)
		h.register(workflow.NewScriptedNode("test.ship"))
		h.put(approvalWorkflow())
		id := h.trigger("approval", nil)
		h.drain()
		require.Equal(t, domain.StatusWaiting, h.load(id).Status)

		require.NoError(t, h.engine.Cancel(ctx, id))
		exec := h.load(id)
		assert.Equal(t, domain.StatusCanceled, exec.Status)
		assert.Nil(t, exec.Wait)
	})

	t.Run("finished execution conflicts", func(t *testing.T) {
		h := newHarness(t)
		h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))
		id := h.trigger("chain", nil)
		h.drain()

		err := h.engine.Cancel(ctx, id)
		assert.True(t, domain.IsConflict(err))
		assert.False(t, h.engine.isCancelRequested(id))
	})

	t.Run("unknown execution", func(t *testing.T) {
		h := newHarness(t)
		assert.True(t, domain.IsNotFound(h.engine.Cancel(ctx, "nope")))
	})
}

func TestResume_Signal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ship := workflow.NewScriptedNode("test.ship")
	h.register(ship)
	h.put(approvalWorkflow())

	id := h.trigger("approval", workflow.Items(map[string]interface{}{"order": "o-1"}))
	h.drain()

	exec := h.load(id)
	require.Equal(t, domain.StatusWaiting, exec.Status)
	require.NotNil(t, exec.Wait)
	assert.Equal(t, "approve", exec.Wait.SignalID)
	assert.Nil(t, exec.Wait.Until)
	assert.Zero(t, h.clock.Pending(), "signal-only waits arm no timer")

	err := h.engine.Resume(ctx, id, domain.ResumeSignal{SignalID: "reject"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	h.clock.Advance(5 * time.Minute)
	approval := workflow.Items(map[string]interface{}{"approved_by": "ops"})
	require.NoError(t, h.engine.Resume(ctx, id, domain.ResumeSignal{SignalID: "approve", Payload: approval}))
	assert.True(t, domain.IsConflict(h.engine.Resume(ctx, id, domain.ResumeSignal{SignalID: "approve"})))

	h.drain()

	exec = h.load(id)
	assert.Equal(t, domain.StatusSuccess, exec.Status)
	assert.Equal(t, 5*time.Minute, exec.WaitedFor)
	require.Equal(t, 1, ship.CallCount())
	assert.Equal(t, "ops", ship.Calls()[0].Input[0].JSON["approved_by"])
	assert.Equal(t, int64(1), h.engine.GetMetrics().ExecutionsResumed)

	resumed := 0
	for _, e := range h.sink.Events() {
		if e.Type == domain.EventExecutionResumed {
			resumed++
			assert.Equal(t, "await", e.NodeID)
		}
	}
	assert.Equal(t, 1, resumed)
}

func TestResume_NotWaiting(t *testing.T) {
	h := newHarness(t)
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))
	id := h.trigger("chain", nil)

	err := h.engine.Resume(context.Background(), id, domain.ResumeSignal{SignalID: "x"})
	assert.True(t, domain.IsConflict(err))
}

func TestRetryExecution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	fetch := workflow.NewScriptedNode("test.fetch")
	charge := workflow.NewScriptedNode("test.charge",
		workflow.Permanent("gateway down"),
		domain.Success(workflow.Items(map[string]interface{}{"charged": true})),
	)
	notify := workflow.NewScriptedNode("test.notify")
	h.register(fetch, charge, notify)
	h.put(workflow.NewBuilder("billing").
		Trigger("trigger").
		Node("fetch", "test.fetch").
		Node("charge", "test.charge").
		Node("notify", "test.notify").
		Connect("trigger", "fetch").
		Connect("fetch", "charge").
		Connect("charge", "notify").
		Build())

	origID := h.trigger("billing", workflow.Items(map[string]interface{}{"invoice": "inv-7"}))
	h.drain()
	require.Equal(t, domain.StatusError, h.load(origID).Status)

	_, err := h.engine.Retry(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))

	retryID, err := h.engine.Retry(ctx, origID)
	require.NoError(t, err)
	assert.NotEqual(t, origID, retryID)
	h.drain()

	retried := h.load(retryID)
	assert.Equal(t, domain.StatusSuccess, retried.Status)
	assert.Equal(t, domain.ModeRetry, retried.Mode)
	assert.Equal(t, origID, retried.RetryOf)
	assert.Equal(t, []string{"trigger", "fetch", "charge", "notify"}, retried.ExecutionOrder)

	assert.Equal(t, 1, fetch.CallCount(), "completed nodes are reused")
	assert.Equal(t, 2, charge.CallCount())
	assert.Equal(t, 1, notify.CallCount())
	assert.Equal(t, "inv-7", charge.Calls()[1].Input[0].JSON["invoice"])

	orig := h.load(origID)
	assert.Equal(t, retryID, orig.RetrySuccessID)
	assert.Equal(t, domain.StatusError, orig.Status)

	_, err = h.engine.Retry(ctx, origID)
	assert.True(t, domain.IsConflict(err), "already retried successfully")
	_, err = h.engine.Retry(ctx, retryID)
	assert.True(t, domain.IsConflict(err), "only failed executions can be retried")
}

func TestDeleteExecution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(workflow.Chain("chain", node_registry.TypeNoOp, "a"))
	id := h.trigger("chain", nil)

	assert.True(t, domain.IsConflict(h.engine.DeleteExecution(ctx, id)), "queued executions cannot be deleted")

	h.drain()
	require.NoError(t, h.engine.DeleteExecution(ctx, id))

	_, err := h.engine.GetExecution(ctx, id)
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(h.engine.DeleteExecution(ctx, id)))
}

func TestGetExecutionInWorkflows(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(workflow.Chain("orders", node_registry.TypeNoOp, "a"))
	id := h.trigger("orders", nil)

	tests := []struct {
		name      string
		workflows []string
		wantFound bool
	}{
		{"member of set", []string{"billing", "orders"}, true},
		{"outside set", []string{"billing"}, false},
		{"empty set", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := h.engine.GetExecutionInWorkflows(ctx, id, tt.workflows)
			if !tt.wantFound {
				assert.True(t, domain.IsNotFound(err))
				assert.Nil(t, exec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "orders", exec.WorkflowID)
		})
	}

	_, err := h.engine.GetExecutionInWorkflows(ctx, "missing", []string{"orders"})
	assert.True(t, domain.IsNotFound(err))
}

func TestListAndCountExecutions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(workflow.NewScriptedNode("test.fail", workflow.Permanent("no")))
	h.put(workflow.Chain("ok", node_registry.TypeNoOp, "a"))
	h.put(workflow.Chain("bad", "test.fail", "a"))

	okIDs := []string{h.trigger("ok", nil), h.trigger("ok", nil)}
	badID := h.trigger("bad", nil)
	h.drain()
	pendingID := h.trigger("ok", nil)

	all, err := h.engine.ListExecutions(ctx, domain.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, pendingID, all[0].ID, "newest first")
	assert.Equal(t, okIDs[0], all[3].ID)

	failed, err := h.engine.ListExecutions(ctx, domain.ExecutionFilter{Statuses: []domain.ExecutionStatus{domain.StatusError}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, badID, failed[0].ID)

	count, err := h.engine.CountExecutions(ctx, domain.ExecutionFilter{WorkflowIDs: []string{"ok"}})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := h.engine.ListExecutions(ctx, domain.ExecutionFilter{LastID: badID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, okIDs[1], page[0].ID)

	_, err = h.engine.ListExecutions(ctx, domain.ExecutionFilter{Limit: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

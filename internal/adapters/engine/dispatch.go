package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// invocation carries one node call from prepare through apply. Only invoke
// runs off the scheduler goroutine and it touches nothing but result and
// finishedAt.
type invocation struct {
	nodeID    string
	node      *domain.Node
	executor  ports.NodeExecutor
	input     nodeInput
	rc        *domain.RuntimeContext
	iteration int
	attempt   int

	startedAt  time.Time
	finishedAt time.Time
	result     domain.ExecutionResult
}

func (r *run) dispatch(runnable []string) {
	if r.e.config.BranchConcurrency && len(runnable) > 1 {
		r.dispatchConcurrent(runnable)
		return
	}

	planned := make(map[string]int, len(runnable))
	for _, id := range runnable {
		planned[id] = r.exec.State(id).Iteration
	}

	for _, id := range runnable {
		if r.superseded(id, planned[id]) {
			continue
		}
		inv := r.prepare(id)
		r.invoke(inv)
		r.apply(inv)

		if r.exec.Error != nil || inv.result.Kind == domain.ResultWaiting {
			return
		}
	}
}

// dispatchConcurrent runs the wave on an errgroup and applies results in
// declared order once every branch has returned. Results of nodes a loop
// re-entered meanwhile are dropped.
func (r *run) dispatchConcurrent(runnable []string) {
	invocations := make([]*invocation, 0, len(runnable))
	for _, id := range runnable {
		invocations = append(invocations, r.prepare(id))
	}

	var g errgroup.Group
	if limit := r.e.config.MaxBranchParallelism; limit > 0 {
		g.SetLimit(limit)
	}
	for _, inv := range invocations {
		g.Go(func() error {
			r.invoke(inv)
			return nil
		})
	}
	_ = g.Wait()

	for _, inv := range invocations {
		if r.superseded(inv.nodeID, inv.iteration) {
			continue
		}
		r.apply(inv)
	}
}

// superseded reports whether a loop re-entry earlier in the wave moved the
// node to a later iteration. Its inputs for that iteration are not recorded
// yet, so it is left for the next tick to plan again.
func (r *run) superseded(id string, iteration int) bool {
	if r.exec.State(id).Iteration == iteration {
		return false
	}
	r.logger.Debug("node re-entered by loop, deferred to next tick", "node_id", id, "planned_iteration", iteration)
	return true
}

func (r *run) prepare(id string) *invocation {
	node := r.g.Node(id)
	st := r.exec.State(id)

	if st.Resume == nil {
		st.Attempts++
	}

	inv := &invocation{
		nodeID:    id,
		node:      node,
		input:     r.input(id),
		iteration: st.Iteration,
		attempt:   st.Attempts,
		startedAt: r.now(),
	}

	executor, err := r.e.registry.Resolve(node.Type)
	if err != nil {
		inv.result = domain.Failure("unknown_node_type", err.Error(), false)
	} else {
		inv.executor = executor
	}

	var resume *domain.ResumeInfo
	if st.Resume != nil {
		cp := *st.Resume
		cp.Payload = domain.CloneItems(st.Resume.Payload)
		resume = &cp
	}
	inv.rc = &domain.RuntimeContext{
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
		NodeID:      id,
		NodeType:    node.Type,
		Mode:        r.exec.Mode,
		Iteration:   st.Iteration,
		Attempt:     st.Attempts,
		Inputs:      inv.input.byIndex,
		Resume:      resume,
	}

	r.e.metrics.IncrementNodesExecuted()
	r.e.publish(domain.Event{
		Type:        domain.EventNodeStarted,
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
		NodeID:      id,
		Status:      r.exec.Status,
		Attempt:     inv.attempt,
		Iteration:   inv.iteration,
	})
	r.logger.Debug("executing node",
		"node_id", id,
		"node_type", node.Type,
		"attempt", inv.attempt,
		"iteration", inv.iteration,
		"input_items", len(inv.input.items),
	)
	return inv
}

// invoke calls the executor under a context detached from engine shutdown and
// bounded by the node execution timeout. Panics become non-retryable failures.
func (r *run) invoke(inv *invocation) {
	if inv.executor == nil {
		inv.finishedAt = r.now()
		return
	}

	ctx := context.WithoutCancel(r.e.ctx)
	if timeout := r.e.config.NodeExecutionTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx = domain.WithRuntimeContext(ctx, inv.rc)

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.e.metrics.IncrementNodesPanicked()
			r.logger.Error("node execution panicked",
				"node_id", inv.nodeID,
				"node_type", inv.node.Type,
				"panic_value", rec,
				"stack_trace", string(debug.Stack()),
			)
			inv.result = domain.Failure(domain.FailureKindPanic, fmt.Sprintf("node panicked: %v", rec), false)
		}
		r.e.metrics.AddNodeTime(time.Since(start))
		inv.finishedAt = r.now()
	}()

	inv.result = inv.executor.Execute(
		ctx,
		domain.CloneItems(inv.input.items),
		domain.CloneParameters(inv.node.Parameters),
		inv.rc,
	)

	if inv.result.Kind != domain.ResultSuccess && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		inv.result = domain.Failure(string(domain.ErrorKindTimeout), "node execution timed out", true)
	}
}

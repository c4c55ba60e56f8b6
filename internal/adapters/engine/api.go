package engine

import (
	"context"
	"fmt"

	"github.com/eleven-am/loom/internal/adapters/graph"
	"github.com/eleven-am/loom/internal/domain"
)

// Trigger validates the workflow, persists a new execution and queues it.
// Invalid workflows are rejected before any execution is created.
func (e *Engine) Trigger(ctx context.Context, workflowID string, payload []domain.Item, opts domain.RunOptions) (string, error) {
	stored, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		return "", err
	}

	wf := graph.Normalize(stored, e.registry)
	if res := graph.Validate(wf, e.registry); !res.Valid {
		err := res.Err(wf.ID)
		e.logger.Warn("workflow rejected", append(errorLogAttrs(err), "workflow_id", wf.ID)...)
		return "", err
	}

	if !opts.FailurePolicy.Valid() {
		return "", domain.NewConfigError("options.failure_policy", domain.ErrInvalidInput)
	}
	if opts.TimeoutSeconds < 0 {
		return "", domain.NewConfigError("options.timeout_seconds", domain.ErrInvalidInput)
	}
	if opts.StartNode != "" {
		node, ok := wf.Node(opts.StartNode)
		if !ok || !node.Trigger {
			return "", fmt.Errorf("start node %q is not a trigger of workflow %s: %w", opts.StartNode, wf.ID, domain.ErrInvalidInput)
		}
	} else {
		opts.StartNode = wf.TriggerNodes()[0]
	}

	id, err := e.newID()
	if err != nil {
		return "", err
	}

	exec := domain.NewExecutionContext(id, wf, opts, e.clock.Now())
	exec.StartNode = opts.StartNode
	exec.TriggerPayload = domain.CloneItems(payload)

	if err := e.saveWithRetry(exec); err != nil {
		return "", fmt.Errorf("persist execution %s: %w", id, err)
	}
	e.enqueue(id)

	e.logger.Debug("execution triggered", "execution_id", id, "workflow_id", wf.ID, "mode", exec.Mode, "start_node", exec.StartNode)
	return id, nil
}

// Cancel flags an active execution so its scheduler stops at the next tick;
// queued and waiting executions are canceled directly.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	e.mu.Lock()
	e.cancelRequested[executionID] = true
	active := e.active[executionID]
	e.mu.Unlock()

	if active {
		e.logger.Debug("cancellation requested for active execution", "execution_id", executionID)
		return nil
	}
	defer e.clearCancel(executionID)

	unlock := e.locks.Lock(executionID)
	defer unlock()

	exec, err := e.store.Load(ctx, executionID)
	if err != nil {
		return err
	}
	switch {
	case exec.Status == domain.StatusCanceled:
		return nil
	case exec.Status.IsTerminal():
		return fmt.Errorf("execution %s already finished with status %s: %w", executionID, exec.Status, domain.ErrConflict)
	}

	e.queue.Remove(executionID)
	e.stopTimer(executionID)

	now := e.clock.Now()
	cancelErr := &domain.CancellationError{ExecutionID: executionID}
	exec.Error = &domain.ExecutionError{Kind: domain.ErrorKindCancellation, Message: cancelErr.Error()}
	exec.Status = domain.StatusCanceled
	exec.Wait = nil
	exec.SuspendedAt = nil
	exec.CleanShutdown = false
	exec.StoppedAt = &now
	exec.UpdatedAt = now
	exec.Sequence++

	if err := e.saveWithRetry(exec); err != nil {
		return err
	}

	e.metrics.RecordFinished(domain.StatusCanceled)
	e.publish(domain.Event{Type: domain.EventExecutionFinished, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, Status: exec.Status, Error: exec.Error.Error()})
	e.logger.Info("execution canceled", "execution_id", executionID)
	return nil
}

// Resume delivers a signal to the first waiting node expecting it. An empty
// signal id resumes the first waiting node regardless of its condition.
func (e *Engine) Resume(ctx context.Context, executionID string, signal domain.ResumeSignal) error {
	unlock := e.locks.Lock(executionID)
	defer unlock()

	exec, err := e.store.Load(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != domain.StatusWaiting {
		return fmt.Errorf("execution %s is %s, not waiting: %w", executionID, exec.Status, domain.ErrConflict)
	}

	target := ""
	for _, id := range exec.WaitingNodes() {
		st := exec.Nodes[id]
		if st.Resume != nil || st.Wait == nil {
			continue
		}
		if signal.SignalID == "" || st.Wait.SignalID == signal.SignalID {
			target = id
			break
		}
	}
	if target == "" {
		return fmt.Errorf("no node of execution %s waits for signal %q: %w", executionID, signal.SignalID, domain.ErrInvalidInput)
	}

	now := e.clock.Now()
	exec.Nodes[target].Resume = &domain.ResumeInfo{
		SignalID:  signal.SignalID,
		Payload:   domain.CloneItems(signal.Payload),
		ResumedAt: now,
	}
	if exec.SuspendedAt != nil {
		exec.WaitedFor += now.Sub(*exec.SuspendedAt)
	}
	exec.SuspendedAt = nil
	exec.Wait = nil
	exec.Status = domain.StatusRunning
	exec.UpdatedAt = now
	exec.Sequence++

	if err := e.saveWithRetry(exec); err != nil {
		return err
	}

	e.stopTimer(executionID)
	e.metrics.IncrementExecutionsResumed()
	e.publish(domain.Event{Type: domain.EventExecutionResumed, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, NodeID: target, Status: exec.Status})
	e.logger.Info("execution resumed by signal", "execution_id", executionID, "node_id", target, "signal_id", signal.SignalID)
	e.enqueue(executionID)
	return nil
}

// Retry starts a new execution from a failed one. Settled nodes keep their
// state and outputs; everything else runs again.
func (e *Engine) Retry(ctx context.Context, executionID string) (string, error) {
	unlock := e.locks.Lock(executionID)
	orig, err := e.store.Load(ctx, executionID)
	unlock()
	if err != nil {
		return "", err
	}
	if orig.Status != domain.StatusError {
		return "", fmt.Errorf("execution %s is %s, only failed executions can be retried: %w", executionID, orig.Status, domain.ErrConflict)
	}
	if orig.RetrySuccessID != "" {
		return "", fmt.Errorf("execution %s was already retried successfully by %s: %w", executionID, orig.RetrySuccessID, domain.ErrConflict)
	}

	id, err := e.newID()
	if err != nil {
		return "", err
	}

	opts := orig.Options
	opts.Mode = domain.ModeRetry
	exec := domain.NewExecutionContext(id, orig.Workflow.Clone(), opts, e.clock.Now())
	exec.RetryOf = orig.ID
	exec.StartNode = orig.StartNode
	exec.TriggerPayload = domain.CloneItems(orig.TriggerPayload)

	kept := make(map[string]bool)
	for nodeID, st := range orig.Nodes {
		if st.Status.Settled() {
			cp := *st
			cp.LoopInput = domain.CloneItems(st.LoopInput)
			exec.Nodes[nodeID] = &cp
			exec.RunData[nodeID] = append([]domain.NodeRun(nil), orig.RunData[nodeID]...)
			kept[nodeID] = true
			continue
		}
		exec.Nodes[nodeID] = &domain.NodeState{
			Status:    domain.NodePending,
			Iteration: st.Iteration,
			LoopInput: domain.CloneItems(st.LoopInput),
		}
	}
	for _, nodeID := range orig.ExecutionOrder {
		if kept[nodeID] {
			exec.ExecutionOrder = append(exec.ExecutionOrder, nodeID)
		}
	}

	if err := e.saveWithRetry(exec); err != nil {
		return "", fmt.Errorf("persist execution %s: %w", id, err)
	}
	e.enqueue(id)

	e.logger.Info("execution retried", "execution_id", id, "retry_of", orig.ID, "reused_nodes", len(kept))
	return id, nil
}

func (e *Engine) markRetrySucceeded(originalID, retryID string) {
	unlock := e.locks.Lock(originalID)
	defer unlock()

	ctx := context.WithoutCancel(e.ctx)
	orig, err := e.store.Load(ctx, originalID)
	if err != nil {
		e.logger.Warn("failed to load retried execution", append(errorLogAttrs(err), "execution_id", originalID)...)
		return
	}
	orig.RetrySuccessID = retryID
	orig.UpdatedAt = e.clock.Now()
	orig.Sequence++
	if err := e.saveWithRetry(orig); err != nil {
		e.logger.Error("failed to record retry success", append(errorLogAttrs(err), "execution_id", originalID, "retry_id", retryID)...)
	}
}

func (e *Engine) GetExecution(ctx context.Context, executionID string) (*domain.ExecutionContext, error) {
	return e.store.Load(ctx, executionID)
}

// GetExecutionInWorkflows loads an execution only when it belongs to one of
// workflowIDs. Executions outside the set are reported as not found.
func (e *Engine) GetExecutionInWorkflows(ctx context.Context, executionID string, workflowIDs []string) (*domain.ExecutionContext, error) {
	exec, err := e.store.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	for _, id := range workflowIDs {
		if exec.WorkflowID == id {
			return exec, nil
		}
	}
	return nil, fmt.Errorf("execution %s in workflows %v: %w", executionID, workflowIDs, domain.ErrNotFound)
}

func (e *Engine) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error) {
	if filter.Limit < 0 {
		return nil, domain.NewConfigError("filter.limit", domain.ErrInvalidInput)
	}
	return e.store.List(ctx, filter)
}

func (e *Engine) CountExecutions(ctx context.Context, filter domain.ExecutionFilter) (int, error) {
	return e.store.Count(ctx, filter)
}

// DeleteExecution removes a stored execution. Executions that are running or
// queued are refused.
func (e *Engine) DeleteExecution(ctx context.Context, executionID string) error {
	e.mu.Lock()
	active := e.active[executionID]
	e.mu.Unlock()
	if active || e.queue.Contains(executionID) {
		return fmt.Errorf("execution %s is in progress: %w", executionID, domain.ErrConflict)
	}

	unlock := e.locks.Lock(executionID)
	defer unlock()

	if err := e.store.Delete(ctx, executionID); err != nil {
		return err
	}
	e.stopTimer(executionID)
	e.logger.Debug("execution deleted", "execution_id", executionID)
	return nil
}

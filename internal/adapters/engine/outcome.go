package engine

import (
	"fmt"

	"github.com/eleven-am/loom/internal/domain"
)

// apply folds an invocation result into the execution state.
func (r *run) apply(inv *invocation) {
	result := normalizeResult(inv.result)
	st := r.exec.State(inv.nodeID)

	nodeRun := domain.NodeRun{
		Iteration:  inv.iteration,
		Attempt:    inv.attempt,
		Input:      inv.input.items,
		StartedAt:  inv.startedAt,
		FinishedAt: inv.finishedAt,
	}

	switch result.Kind {
	case domain.ResultSuccess:
		nodeRun.Status = domain.RunSuccess
		nodeRun.Output = r.padOutputs(inv.node, result.Outputs)
		r.exec.RunData[inv.nodeID] = append(r.exec.RunData[inv.nodeID], nodeRun)
		r.complete(inv, st)
		r.handleLoops(inv.nodeID, nodeRun.Output)

	case domain.ResultWaiting:
		nodeRun.Status = domain.RunWaiting
		r.exec.RunData[inv.nodeID] = append(r.exec.RunData[inv.nodeID], nodeRun)
		wait := *result.Wait
		st.Status = domain.NodeWaiting
		st.Wait = &wait
		st.Resume = nil
		st.RetryAt = nil
		r.logger.Debug("node waiting", "node_id", inv.nodeID, "signal_id", wait.SignalID, "until", wait.Until)

	default:
		nodeRun.Status = domain.RunError
		nodeRun.Error = result.Failure
		r.exec.RunData[inv.nodeID] = append(r.exec.RunData[inv.nodeID], nodeRun)
		r.fail(inv, st, result.Failure)
	}
}

// normalizeResult turns malformed executor results into failures.
func normalizeResult(result domain.ExecutionResult) domain.ExecutionResult {
	switch result.Kind {
	case domain.ResultSuccess:
		return result
	case domain.ResultWaiting:
		if result.Wait == nil || result.Wait.IsZero() {
			return domain.Failure("invalid_result", "waiting result without a wait condition", false)
		}
		return result
	case domain.ResultFailure:
		if result.Failure == nil {
			return domain.Failure("", "node failed", false)
		}
		return result
	default:
		return domain.Failure("invalid_result", fmt.Sprintf("unknown result kind %q", result.Kind), false)
	}
}

func (r *run) complete(inv *invocation, st *domain.NodeState) {
	st.Status = domain.NodeCompleted
	st.RetryAt = nil
	st.Wait = nil
	st.Resume = nil
	st.LoopInput = nil
	r.exec.ExecutionOrder = append(r.exec.ExecutionOrder, inv.nodeID)

	r.e.metrics.IncrementNodesSucceeded()
	r.e.publish(domain.Event{
		Type:        domain.EventNodeCompleted,
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
		NodeID:      inv.nodeID,
		Status:      r.exec.Status,
		Attempt:     inv.attempt,
		Iteration:   inv.iteration,
	})
}

func (r *run) fail(inv *invocation, st *domain.NodeState, failure *domain.NodeFailure) {
	now := r.now()
	r.e.metrics.IncrementNodesFailed()
	st.Wait = nil
	st.Resume = nil

	event := domain.Event{
		Type:        domain.EventNodeFailed,
		ExecutionID: r.exec.ID,
		WorkflowID:  r.exec.WorkflowID,
		NodeID:      inv.nodeID,
		Status:      r.exec.Status,
		Attempt:     inv.attempt,
		Iteration:   inv.iteration,
		Error:       failure.Message,
	}

	policy := r.retryPolicy(inv.node)
	if failure.Kind != domain.FailureKindPanic && policy.ShouldRetry(failure, st.Attempts) {
		at := now.Add(policy.Delay(st.Attempts))
		st.Status = domain.NodePending
		st.RetryAt = &at

		r.e.metrics.IncrementNodesRetried()
		event.Retrying = true
		r.e.publish(event)
		r.logger.Info("node failed, retry scheduled",
			"node_id", inv.nodeID,
			"attempt", st.Attempts,
			"max_attempts", policy.MaxAttempts,
			"retry_at", at,
			"failure_kind", failure.Kind,
		)
		return
	}

	st.RetryAt = nil
	r.e.publish(event)

	nodeErr := &domain.NodeExecutionError{
		ExecutionID: r.exec.ID,
		NodeID:      inv.nodeID,
		Kind:        failure.Kind,
		Message:     failure.Message,
		Retryable:   failure.Retryable,
		Attempt:     st.Attempts,
	}

	switch r.nodeFailurePolicy(inv.node) {
	case domain.FailurePolicyContinueOnFail:
		if inv.node.ErrorOutput != nil {
			outputs := make([][]domain.Item, *inv.node.ErrorOutput+1)
			outputs[*inv.node.ErrorOutput] = []domain.Item{{
				JSON:  map[string]interface{}{},
				Error: &domain.ItemError{NodeID: inv.nodeID, Kind: failure.Kind, Message: failure.Message},
			}}
			last := &r.exec.RunData[inv.nodeID][len(r.exec.RunData[inv.nodeID])-1]
			last.Output = r.padOutputs(inv.node, outputs)
			st.Handled = true
			r.complete(inv, st)
			r.logger.Warn("node failed, routed to error output", append(errorLogAttrs(nodeErr), "node_id", inv.nodeID, "error_output", *inv.node.ErrorOutput)...)
			return
		}
		st.Status = domain.NodeFailed
		r.logger.Warn("node failed, continuing", append(errorLogAttrs(nodeErr), "node_id", inv.nodeID)...)

	default:
		st.Status = domain.NodeFailed
		r.exec.Error = &domain.ExecutionError{
			Kind:    domain.ErrorKindNodeExecution,
			NodeID:  inv.nodeID,
			Message: failure.Message,
		}
		r.logger.Warn("node failed, stopping workflow", append(errorLogAttrs(nodeErr), "node_id", inv.nodeID)...)
	}
}

// handleLoops re-enters the targets of loop-back edges that carried data.
func (r *run) handleLoops(source string, outputs [][]domain.Item) {
	for _, edge := range r.g.LoopEdges(source) {
		if edge.SourceOutput < 0 || edge.SourceOutput >= len(outputs) || len(outputs[edge.SourceOutput]) == 0 {
			continue
		}
		if r.exec.Error != nil {
			return
		}

		target := r.exec.State(edge.Target)
		next := target.Iteration + 1
		if next > r.maxIterations {
			r.exec.Error = &domain.ExecutionError{
				Kind:    domain.ErrorKindValidation,
				NodeID:  edge.Target,
				Message: "max iterations exceeded",
			}
			r.logger.Warn("loop iteration limit reached", "node_id", edge.Target, "max_iterations", r.maxIterations)
			return
		}

		for _, id := range append([]string{edge.Target}, r.g.Descendants(edge.Target)...) {
			st := r.exec.State(id)
			st.Iteration = next
			st.Status = domain.NodePending
			st.Attempts = 0
			st.RetryAt = nil
			st.Wait = nil
			st.Resume = nil
			st.LoopInput = nil
			st.Handled = false
		}
		target.LoopInput = domain.CloneItems(outputs[edge.SourceOutput])

		r.logger.Debug("loop re-entry", "source", source, "node_id", edge.Target, "iteration", next)
	}
}

// retryPolicy layers the node type's policy and then the node's own override
// onto the engine default.
func (r *run) retryPolicy(node *domain.Node) domain.RetryPolicy {
	var typePolicy *domain.RetryPolicy
	if desc, ok := r.e.registry.Describe(node.Type); ok {
		typePolicy = desc.RetryPolicy
	}
	policy, err := domain.ResolveRetryPolicy(r.e.config.DefaultRetryPolicy, typePolicy, node.RetryPolicy)
	if err != nil {
		r.logger.Error("failed to resolve retry policy", "node_id", node.ID, "error", err)
		return r.e.config.DefaultRetryPolicy
	}
	return policy
}

func (r *run) nodeFailurePolicy(node *domain.Node) domain.FailurePolicy {
	if node.FailurePolicy != "" {
		return node.FailurePolicy
	}
	return r.failurePolicy
}

// padOutputs extends outputs to the node type's declared output count.
func (r *run) padOutputs(node *domain.Node, outputs [][]domain.Item) [][]domain.Item {
	desc, ok := r.e.registry.Describe(node.Type)
	if !ok || len(outputs) >= desc.Outputs {
		return outputs
	}
	padded := make([][]domain.Item, desc.Outputs)
	copy(padded, outputs)
	return padded
}

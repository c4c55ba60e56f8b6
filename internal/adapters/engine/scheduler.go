package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eleven-am/loom/internal/adapters/graph"
	"github.com/eleven-am/loom/internal/domain"
)

// run drives one execution from the moment a worker claims it until it
// finishes, suspends or releases the worker.
type run struct {
	e      *Engine
	exec   *domain.ExecutionContext
	g      *graph.Graph
	logger *slog.Logger

	failurePolicy domain.FailurePolicy
	maxIterations int
	timeout       time.Duration
}

func (e *Engine) newRun(exec *domain.ExecutionContext) (*run, error) {
	if exec.Workflow == nil {
		return nil, fmt.Errorf("execution %s has no workflow snapshot: %w", exec.ID, domain.ErrInvalidInput)
	}
	r := &run{
		e:      e,
		exec:   exec,
		g:      graph.New(exec.Workflow),
		logger: e.logger.With("execution_id", exec.ID, "workflow_id", exec.WorkflowID),
	}

	settings := exec.Workflow.Settings
	r.failurePolicy = firstPolicy(exec.Options.FailurePolicy, settings.FailurePolicy, e.config.FailurePolicy)

	r.maxIterations = settings.MaxLoopIterations
	if r.maxIterations <= 0 {
		r.maxIterations = e.config.MaxLoopIterations
	}

	switch {
	case exec.Options.TimeoutSeconds > 0:
		r.timeout = time.Duration(exec.Options.TimeoutSeconds) * time.Second
	case settings.TimeoutSeconds > 0:
		r.timeout = time.Duration(settings.TimeoutSeconds) * time.Second
	default:
		r.timeout = e.config.ExecutionTimeout()
	}
	return r, nil
}

func firstPolicy(policies ...domain.FailurePolicy) domain.FailurePolicy {
	for _, p := range policies {
		if p != "" {
			return p
		}
	}
	return domain.FailurePolicyStopWorkflow
}

func (r *run) now() time.Time {
	return r.e.clock.Now()
}

func (r *run) execute(ctx context.Context) {
	if r.canceled() || !r.begin() {
		return
	}

	for {
		if r.interrupted(ctx) {
			return
		}

		runnable := r.plan()
		if len(runnable) == 0 {
			r.settle()
			return
		}

		r.dispatch(runnable)

		if !r.persist() {
			return
		}
	}
}

// begin moves the execution into running. It returns false when a waiting
// execution was woken early and has nothing due.
func (r *run) begin() bool {
	exec := r.exec
	now := r.now()

	switch exec.Status {
	case domain.StatusWaiting:
		if !r.hasDueWork(now) {
			if at := wakeAt(waitUntil(exec.Wait), exec.EarliestRetry()); at != nil {
				r.e.armTimer(exec.ID, *at)
			}
			r.logger.Debug("waiting execution woken with nothing due")
			return false
		}
		if exec.SuspendedAt != nil {
			exec.WaitedFor += now.Sub(*exec.SuspendedAt)
		}
		exec.SuspendedAt = nil
		exec.Wait = nil
		exec.Status = domain.StatusRunning
		r.e.metrics.IncrementExecutionsResumed()
		r.e.publish(domain.Event{Type: domain.EventExecutionResumed, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, Status: exec.Status})
		r.logger.Info("execution resumed", "waited_for", exec.WaitedFor)

	case domain.StatusCrashed:
		exec.Status = domain.StatusRunning
		r.e.metrics.IncrementExecutionsRecovered()
		r.logger.Info("recovering crashed execution", "sequence", exec.Sequence)

	case domain.StatusNew:
		exec.Status = domain.StatusRunning
	}

	exec.CleanShutdown = false
	if exec.StartedAt == nil {
		started := now
		exec.StartedAt = &started
		r.initializeTriggers()
		r.e.metrics.IncrementExecutionsStarted()
		r.e.publish(domain.Event{Type: domain.EventExecutionStarted, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, Status: exec.Status})
		r.logger.Info("execution started", "start_node", exec.StartNode, "mode", exec.Mode)
	}
	return true
}

// initializeTriggers skips every trigger except the start node.
func (r *run) initializeTriggers() {
	for _, id := range r.g.Nodes() {
		if !r.g.IsTrigger(id) || id == r.exec.StartNode {
			continue
		}
		st := r.exec.State(id)
		if st.Status == domain.NodePending {
			st.Status = domain.NodeSkipped
		}
	}
}

func (r *run) hasDueWork(now time.Time) bool {
	for _, id := range r.exec.WaitingNodes() {
		st := r.exec.Nodes[id]
		if st.Resume != nil || (st.Wait != nil && st.Wait.Due(now)) {
			return true
		}
	}
	if at := r.exec.EarliestRetry(); at != nil && !now.Before(*at) {
		return true
	}
	return false
}

// interrupted applies the top-of-tick checks: cancellation, engine shutdown
// and the execution timeout.
func (r *run) interrupted(ctx context.Context) bool {
	exec := r.exec

	if r.canceled() {
		return true
	}

	if ctx.Err() != nil {
		exec.CleanShutdown = true
		if r.persist() {
			r.logger.Info("execution released for shutdown", "sequence", exec.Sequence)
		}
		return true
	}

	if r.timeout > 0 && exec.Elapsed(r.now()) > r.timeout {
		timeoutErr := &domain.TimeoutError{ExecutionID: exec.ID, Limit: r.timeout}
		exec.Error = &domain.ExecutionError{Kind: domain.ErrorKindTimeout, Message: timeoutErr.Error()}
		r.logger.Warn("execution timed out", "limit", r.timeout)
		r.finish(domain.StatusError)
		return true
	}
	return false
}

// canceled finishes the execution when a cancellation was requested.
func (r *run) canceled() bool {
	if !r.e.isCancelRequested(r.exec.ID) {
		return false
	}
	r.e.clearCancel(r.exec.ID)
	cancelErr := &domain.CancellationError{ExecutionID: r.exec.ID}
	r.exec.Error = &domain.ExecutionError{Kind: domain.ErrorKindCancellation, Message: cancelErr.Error()}
	r.finish(domain.StatusCanceled)
	return true
}

// plan computes the runnable nodes for this tick. Nodes with no input whose
// inbound sources have all settled are skipped, which can cascade, so the
// ready set is recomputed until it is stable.
func (r *run) plan() []string {
	if r.exec.Error != nil {
		return nil
	}
	now := r.now()

	for {
		settled := r.exec.SettledNodes()
		var runnable []string
		skipped := false

		for _, id := range r.g.ReadySet(settled) {
			st := r.exec.State(id)
			switch st.Status {
			case domain.NodeFailed, domain.NodeCompleted, domain.NodeSkipped:
				continue

			case domain.NodeWaiting:
				if st.Resume == nil && st.Wait != nil && st.Wait.Due(now) {
					st.Resume = &domain.ResumeInfo{TimedOut: true, ResumedAt: now}
				}
				if st.Resume != nil {
					runnable = append(runnable, id)
				}
				continue
			}

			if st.RetryAt != nil && now.Before(*st.RetryAt) {
				continue
			}
			if r.g.IsTrigger(id) {
				if id == r.exec.StartNode {
					runnable = append(runnable, id)
				}
				continue
			}

			in := r.input(id)
			if in.hasData() {
				runnable = append(runnable, id)
				continue
			}
			if r.allSourcesSettled(id, settled) {
				st.Status = domain.NodeSkipped
				skipped = true
				r.e.metrics.IncrementNodesSkipped()
				r.logger.Debug("node skipped, no input data", "node_id", id)
			}
		}

		if !skipped {
			return runnable
		}
	}
}

func (r *run) allSourcesSettled(id string, settled map[string]bool) bool {
	for _, src := range r.g.Sources(id) {
		if !settled[src] {
			return false
		}
	}
	return true
}

// settle decides what happens when nothing is runnable.
func (r *run) settle() {
	exec := r.exec
	now := r.now()

	if exec.Error != nil {
		r.finish(domain.StatusError)
		return
	}

	if len(exec.WaitingNodes()) > 0 {
		r.suspend(now)
		return
	}

	if at := exec.EarliestRetry(); at != nil {
		exec.CleanShutdown = true
		if !r.persist() {
			return
		}
		r.e.armTimer(exec.ID, *at)
		r.logger.Debug("execution deferred until retry", "retry_at", *at)
		return
	}

	for _, id := range r.g.Nodes() {
		st := exec.State(id)
		if st.Status != domain.NodeFailed {
			continue
		}
		message := "node failed"
		if run, ok := exec.LastRun(id); ok && run.Error != nil {
			message = run.Error.Message
		}
		exec.Error = &domain.ExecutionError{Kind: domain.ErrorKindNodeExecution, NodeID: id, Message: message}
		r.finish(domain.StatusError)
		return
	}

	var dangling []string
	for _, id := range r.g.Nodes() {
		if !exec.State(id).Status.Settled() {
			dangling = append(dangling, id)
		}
	}
	if len(dangling) > 0 {
		exec.Error = &domain.ExecutionError{
			Kind:    domain.ErrorKindInternal,
			NodeID:  dangling[0],
			Message: "nodes never became runnable: " + strings.Join(dangling, ", "),
		}
		r.finish(domain.StatusError)
		return
	}

	r.finish(domain.StatusSuccess)
}

func (r *run) suspend(now time.Time) {
	exec := r.exec
	exec.Status = domain.StatusWaiting
	exec.Wait = exec.AggregateWait()
	suspended := now
	exec.SuspendedAt = &suspended
	exec.CleanShutdown = true

	if !r.persist() {
		return
	}

	r.e.metrics.IncrementExecutionsSuspended()
	r.e.publish(domain.Event{Type: domain.EventExecutionWaiting, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, Status: exec.Status, Wait: exec.Wait})
	r.logger.Info("execution waiting", "waiting_nodes", exec.WaitingNodes())

	if at := wakeAt(waitUntil(exec.Wait), exec.EarliestRetry()); at != nil {
		r.e.armTimer(exec.ID, *at)
	}
}

func (r *run) finish(status domain.ExecutionStatus) {
	exec := r.exec
	now := r.now()
	exec.Status = status
	exec.Wait = nil
	exec.SuspendedAt = nil
	exec.CleanShutdown = false
	stopped := now
	exec.StoppedAt = &stopped

	if !r.persist() {
		return
	}
	r.e.stopTimer(exec.ID)
	r.e.metrics.RecordFinished(status)

	event := domain.Event{Type: domain.EventExecutionFinished, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, Status: status}
	if exec.Error != nil {
		event.Error = exec.Error.Error()
		event.NodeID = exec.Error.NodeID
	}
	r.e.publish(event)

	if exec.Error != nil {
		r.logger.Info("execution finished", "status", status, "error_kind", exec.Error.Kind, "error", exec.Error.Message)
	} else {
		r.logger.Info("execution finished", "status", status, "nodes_run", len(exec.ExecutionOrder))
	}

	if status == domain.StatusSuccess && exec.RetryOf != "" {
		r.e.markRetrySucceeded(exec.RetryOf, exec.ID)
	}
}

package engine

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// persist snapshots the execution. When the store stays unavailable past the
// store retry policy the execution is marked crashed and the run released;
// persist then reports false.
func (r *run) persist() bool {
	exec := r.exec
	exec.Sequence++
	exec.UpdatedAt = r.now()

	err := r.e.saveWithRetry(exec)
	if err == nil {
		return true
	}

	exec.Status = domain.StatusCrashed
	r.e.clearCancel(exec.ID)
	r.e.metrics.IncrementExecutionsCrashed()
	r.e.publish(domain.Event{
		Type:        domain.EventExecutionCrashed,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
		Error:       err.Error(),
	})
	r.logger.Error("execution crashed, snapshot could not be saved", append(errorLogAttrs(err), "sequence", exec.Sequence)...)
	return false
}

func (e *Engine) saveWithRetry(exec *domain.ExecutionContext) error {
	policy := e.config.StoreRetryPolicy
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	ctx := context.WithoutCancel(e.ctx)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = e.store.Save(ctx, exec); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		e.metrics.IncrementStoreRetries()
		e.logger.Warn("execution save failed, retrying",
			"execution_id", exec.ID,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		<-e.clock.After(policy.Delay(attempt))
	}
	return err
}

package engine

import (
	"context"
	"fmt"

	"github.com/eleven-am/loom/internal/domain"
)

// recover re-admits every unfinished execution found in the store. A running
// snapshot without CleanShutdown belongs to a process that died mid-run and
// is marked crashed first; waiting executions get their wake-up timer back.
func (e *Engine) recover(ctx context.Context) error {
	executions, err := e.store.ListRecoverable(ctx)
	if err != nil {
		return fmt.Errorf("list recoverable executions: %w", err)
	}
	if len(executions) == 0 {
		return nil
	}

	var queued, crashed, waiting int
	for _, exec := range executions {
		switch exec.Status {
		case domain.StatusRunning:
			if !exec.CleanShutdown {
				exec.Status = domain.StatusCrashed
				exec.UpdatedAt = e.clock.Now()
				exec.Sequence++
				if err := e.saveWithRetry(exec); err != nil {
					e.logger.Error("failed to mark execution crashed", append(errorLogAttrs(err), "execution_id", exec.ID)...)
					continue
				}
				crashed++
				e.metrics.IncrementExecutionsCrashed()
				e.publish(domain.Event{Type: domain.EventExecutionCrashed, ExecutionID: exec.ID, WorkflowID: exec.WorkflowID, Status: exec.Status})
				e.logger.Warn("execution crashed in a previous run", "execution_id", exec.ID, "sequence", exec.Sequence)
			}
			e.enqueue(exec.ID)
			queued++

		case domain.StatusNew, domain.StatusCrashed:
			e.enqueue(exec.ID)
			queued++

		case domain.StatusWaiting:
			waiting++
			if at := wakeAt(waitUntil(exec.Wait), exec.EarliestRetry()); at != nil {
				e.armTimer(exec.ID, *at)
			}
		}
	}

	e.logger.Info("recovered executions",
		"total", len(executions),
		"queued", queued,
		"crashed", crashed,
		"waiting", waiting,
	)
	return nil
}

package memory

import (
	"github.com/eleven-am/loom/internal/domain"
)

func validateWorkflow(workflow *domain.WorkflowGraph) error {
	if workflow == nil {
		return domain.NewConfigError("workflow", domain.ErrInvalidInput)
	}
	return validateWorkflowID(workflow.ID)
}

func validateWorkflowID(workflowID string) error {
	if workflowID == "" {
		return domain.NewConfigError("workflow.id", domain.ErrInvalidInput)
	}
	return nil
}

package domain

// ExecutionFilter selects executions for listing. Results are ordered newest
// first; LastID and FirstID are exclusive id cursors.
type ExecutionFilter struct {
	Statuses            []ExecutionStatus `json:"statuses,omitempty"`
	WorkflowIDs         []string          `json:"workflow_ids,omitempty"`
	ExcludedWorkflowIDs []string          `json:"excluded_workflow_ids,omitempty"`
	LastID              string            `json:"last_id,omitempty"`
	FirstID             string            `json:"first_id,omitempty"`
	Limit               int               `json:"limit,omitempty"`
}

func (f ExecutionFilter) Matches(s ExecutionSummary) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
		return false
	}
	if len(f.WorkflowIDs) > 0 && !containsString(f.WorkflowIDs, s.WorkflowID) {
		return false
	}
	if containsString(f.ExcludedWorkflowIDs, s.WorkflowID) {
		return false
	}
	if f.LastID != "" && s.ID >= f.LastID {
		return false
	}
	if f.FirstID != "" && s.ID <= f.FirstID {
		return false
	}
	return true
}

func containsStatus(list []ExecutionStatus, s ExecutionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package domain

import "time"

type EventType string

const (
	EventExecutionStarted  EventType = "execution.started"
	EventExecutionResumed  EventType = "execution.resumed"
	EventExecutionWaiting  EventType = "execution.waiting"
	EventExecutionCrashed  EventType = "execution.crashed"
	EventExecutionFinished EventType = "execution.finished"
	EventNodeStarted       EventType = "node.started"
	EventNodeCompleted     EventType = "node.completed"
	EventNodeFailed        EventType = "node.failed"
)

type Event struct {
	Type        EventType       `json:"type"`
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	NodeID      string          `json:"node_id,omitempty"`
	Status      ExecutionStatus `json:"status,omitempty"`
	Attempt     int             `json:"attempt,omitempty"`
	Iteration   int             `json:"iteration,omitempty"`
	Retrying    bool            `json:"retrying,omitempty"`
	Error       string          `json:"error,omitempty"`
	Wait        *WaitCondition  `json:"wait,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/eleven-am/loom/internal/xjson"
)

type ExecutionStatus string

const (
	StatusNew      ExecutionStatus = "new"
	StatusRunning  ExecutionStatus = "running"
	StatusWaiting  ExecutionStatus = "waiting"
	StatusSuccess  ExecutionStatus = "success"
	StatusError    ExecutionStatus = "error"
	StatusCrashed  ExecutionStatus = "crashed"
	StatusCanceled ExecutionStatus = "canceled"
)

func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCanceled
}

// IsRecoverable reports whether a stored execution must be picked up again
// after a restart.
func (s ExecutionStatus) IsRecoverable() bool {
	return s == StatusNew || s == StatusRunning || s == StatusWaiting || s == StatusCrashed
}

func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	status := ExecutionStatus(s)
	switch status {
	case StatusNew, StatusRunning, StatusWaiting, StatusSuccess, StatusError, StatusCrashed, StatusCanceled:
		return status, nil
	}
	return "", fmt.Errorf("unknown execution status %q: %w", s, ErrInvalidInput)
}

type ExecutionMode string

const (
	ModeManual  ExecutionMode = "manual"
	ModeTrigger ExecutionMode = "trigger"
	ModeWebhook ExecutionMode = "webhook"
	ModeRetry   ExecutionMode = "retry"
)

type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeCompleted NodeStatus = "completed"
	NodeSkipped   NodeStatus = "skipped"
	NodeFailed    NodeStatus = "failed"
	NodeWaiting   NodeStatus = "waiting"
)

// Settled nodes count as completed for readiness.
func (s NodeStatus) Settled() bool {
	return s == NodeCompleted || s == NodeSkipped
}

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
	RunWaiting RunStatus = "waiting"
)

// NodeRun records a single invocation of a node.
type NodeRun struct {
	Iteration  int          `json:"iteration"`
	Attempt    int          `json:"attempt"`
	Status     RunStatus    `json:"status"`
	Input      []Item       `json:"input,omitempty"`
	Output     [][]Item     `json:"output,omitempty"`
	Error      *NodeFailure `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

type ResumeInfo struct {
	SignalID  string    `json:"signal_id,omitempty"`
	Payload   []Item    `json:"payload,omitempty"`
	TimedOut  bool      `json:"timed_out,omitempty"`
	ResumedAt time.Time `json:"resumed_at"`
}

type NodeState struct {
	Status    NodeStatus     `json:"status"`
	Iteration int            `json:"iteration"`
	Attempts  int            `json:"attempts"`
	RetryAt   *time.Time     `json:"retry_at,omitempty"`
	Wait      *WaitCondition `json:"wait,omitempty"`
	Resume    *ResumeInfo    `json:"resume,omitempty"`
	LoopInput []Item         `json:"loop_input,omitempty"`
	Handled   bool           `json:"handled,omitempty"`
}

type RunOptions struct {
	Mode           ExecutionMode     `json:"mode,omitempty"`
	StartNode      string            `json:"start_node,omitempty"`
	FailurePolicy  FailurePolicy     `json:"failure_policy,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ResumeSignal struct {
	SignalID string `json:"signal_id"`
	Payload  []Item `json:"payload,omitempty"`
}

// ExecutionContext is the persisted state of one workflow run.
type ExecutionContext struct {
	ID             string                `json:"id"`
	WorkflowID     string                `json:"workflow_id"`
	Workflow       *WorkflowGraph        `json:"workflow"`
	Mode           ExecutionMode         `json:"mode"`
	Status         ExecutionStatus       `json:"status"`
	Options        RunOptions            `json:"options"`
	StartNode      string                `json:"start_node"`
	TriggerPayload []Item                `json:"trigger_payload,omitempty"`
	RunData        map[string][]NodeRun  `json:"run_data"`
	Nodes          map[string]*NodeState `json:"nodes"`
	ExecutionOrder []string              `json:"execution_order,omitempty"`
	Wait           *WaitCondition        `json:"wait,omitempty"`
	Error          *ExecutionError       `json:"error,omitempty"`
	RetryOf        string                `json:"retry_of,omitempty"`
	RetrySuccessID string                `json:"retry_success_id,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	StoppedAt      *time.Time            `json:"stopped_at,omitempty"`
	SuspendedAt    *time.Time            `json:"suspended_at,omitempty"`
	WaitedFor      time.Duration         `json:"waited_for,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
	CleanShutdown  bool                  `json:"clean_shutdown,omitempty"`
	Sequence       int64                 `json:"sequence"`
}

func NewExecutionContext(id string, workflow *WorkflowGraph, opts RunOptions, now time.Time) *ExecutionContext {
	mode := opts.Mode
	if mode == "" {
		mode = ModeManual
	}
	opts.Mode = mode
	exec := &ExecutionContext{
		ID:         id,
		WorkflowID: workflow.ID,
		Workflow:   workflow,
		Mode:       mode,
		Status:     StatusNew,
		Options:    opts,
		RunData:    make(map[string][]NodeRun),
		Nodes:      make(map[string]*NodeState, len(workflow.Nodes)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, n := range workflow.Nodes {
		exec.Nodes[n.ID] = &NodeState{Status: NodePending, Iteration: 1}
	}
	return exec
}

func (e *ExecutionContext) State(nodeID string) *NodeState {
	st, ok := e.Nodes[nodeID]
	if !ok {
		st = &NodeState{Status: NodePending, Iteration: 1}
		e.Nodes[nodeID] = st
	}
	return st
}

// LastRun returns the most recent run of a node, if any.
func (e *ExecutionContext) LastRun(nodeID string) (*NodeRun, bool) {
	runs := e.RunData[nodeID]
	if len(runs) == 0 {
		return nil, false
	}
	return &runs[len(runs)-1], true
}

// Output returns the items a settled node emitted on an output index during
// its current iteration.
func (e *ExecutionContext) Output(nodeID string, output int) []Item {
	st, ok := e.Nodes[nodeID]
	if !ok || st.Status != NodeCompleted {
		return nil
	}
	run, ok := e.LastRun(nodeID)
	if !ok || run.Iteration != st.Iteration || output < 0 || output >= len(run.Output) {
		return nil
	}
	return run.Output[output]
}

func (e *ExecutionContext) SettledNodes() map[string]bool {
	settled := make(map[string]bool, len(e.Nodes))
	for id, st := range e.Nodes {
		if st.Status.Settled() {
			settled[id] = true
		}
	}
	return settled
}

// WaitingNodes lists waiting nodes in declaration order.
func (e *ExecutionContext) WaitingNodes() []string {
	var ids []string
	for _, n := range e.Workflow.Nodes {
		if st, ok := e.Nodes[n.ID]; ok && st.Status == NodeWaiting {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// AggregateWait folds node wait conditions into the execution-level one:
// the earliest deadline and the first signal in declaration order.
func (e *ExecutionContext) AggregateWait() *WaitCondition {
	var agg WaitCondition
	for _, id := range e.WaitingNodes() {
		st := e.Nodes[id]
		if st.Wait == nil || st.Resume != nil {
			continue
		}
		if st.Wait.Until != nil && (agg.Until == nil || st.Wait.Until.Before(*agg.Until)) {
			until := *st.Wait.Until
			agg.Until = &until
		}
		if agg.SignalID == "" {
			agg.SignalID = st.Wait.SignalID
		}
	}
	if agg.IsZero() {
		return nil
	}
	return &agg
}

// EarliestRetry returns the soonest pending retry deadline.
func (e *ExecutionContext) EarliestRetry() *time.Time {
	var earliest *time.Time
	ids := make([]string, 0, len(e.Nodes))
	for id := range e.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := e.Nodes[id]
		if st.Status != NodePending || st.RetryAt == nil {
			continue
		}
		if earliest == nil || st.RetryAt.Before(*earliest) {
			at := *st.RetryAt
			earliest = &at
		}
	}
	return earliest
}

// Elapsed is the active running time, excluding time spent waiting.
func (e *ExecutionContext) Elapsed(now time.Time) time.Duration {
	if e.StartedAt == nil {
		return 0
	}
	return now.Sub(*e.StartedAt) - e.WaitedFor
}

func (e *ExecutionContext) Clone() (*ExecutionContext, error) {
	data, err := xjson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution %s: %w", e.ID, err)
	}
	var out ExecutionContext
	if err := xjson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode execution %s: %w", e.ID, err)
	}
	if out.RunData == nil {
		out.RunData = make(map[string][]NodeRun)
	}
	if out.Nodes == nil {
		out.Nodes = make(map[string]*NodeState)
	}
	return &out, nil
}

// ExecutionSummary is the listing view of an execution.
type ExecutionSummary struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	Mode           ExecutionMode   `json:"mode"`
	Status         ExecutionStatus `json:"status"`
	RetryOf        string          `json:"retry_of,omitempty"`
	RetrySuccessID string          `json:"retry_success_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	StoppedAt      *time.Time      `json:"stopped_at,omitempty"`
	WaitTill       *time.Time      `json:"wait_till,omitempty"`
}

func (e *ExecutionContext) Summary() ExecutionSummary {
	s := ExecutionSummary{
		ID:             e.ID,
		WorkflowID:     e.WorkflowID,
		Mode:           e.Mode,
		Status:         e.Status,
		RetryOf:        e.RetryOf,
		RetrySuccessID: e.RetrySuccessID,
		CreatedAt:      e.CreatedAt,
		StartedAt:      e.StartedAt,
		StoppedAt:      e.StoppedAt,
	}
	if e.Wait != nil {
		s.WaitTill = e.Wait.Until
	}
	return s
}

package domain

import "time"

// Item is one unit of data flowing along a connection.
type Item struct {
	JSON  map[string]interface{} `json:"json"`
	Error *ItemError             `json:"error,omitempty"`
}

// ItemError marks an item emitted in place of output by a failed node.
type ItemError struct {
	NodeID  string `json:"node_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewItem(data map[string]interface{}) Item {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Item{JSON: data}
}

func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = Item{JSON: CloneParameters(item.JSON)}
		if item.Error != nil {
			e := *item.Error
			out[i].Error = &e
		}
	}
	return out
}

type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
	ResultWaiting ResultKind = "waiting"
)

const FailureKindPanic = "panic"

type NodeFailure struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// WaitCondition describes what resumes a waiting node: a point in time, an
// external signal, or whichever comes first when both are set.
type WaitCondition struct {
	Until    *time.Time `json:"until,omitempty"`
	SignalID string     `json:"signal_id,omitempty"`
}

func (w WaitCondition) IsZero() bool {
	return w.Until == nil && w.SignalID == ""
}

func (w WaitCondition) Due(now time.Time) bool {
	return w.Until != nil && !now.Before(*w.Until)
}

// ExecutionResult is what a node executor reports for one invocation.
type ExecutionResult struct {
	Kind    ResultKind
	Outputs [][]Item
	Failure *NodeFailure
	Wait    *WaitCondition
}

func Success(outputs ...[]Item) ExecutionResult {
	return ExecutionResult{Kind: ResultSuccess, Outputs: outputs}
}

func Failure(kind, message string, retryable bool) ExecutionResult {
	if kind == "" {
		kind = string(ErrorKindNodeExecution)
	}
	return ExecutionResult{
		Kind:    ResultFailure,
		Failure: &NodeFailure{Kind: kind, Message: message, Retryable: retryable},
	}
}

func Waiting(cond WaitCondition) ExecutionResult {
	return ExecutionResult{Kind: ResultWaiting, Wait: &cond}
}

func WaitUntil(t time.Time) ExecutionResult {
	return Waiting(WaitCondition{Until: &t})
}

func WaitForSignal(signalID string) ExecutionResult {
	return Waiting(WaitCondition{SignalID: signalID})
}

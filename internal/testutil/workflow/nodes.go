package workflow

import (
	"context"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
)

// ScriptedNode returns queued results in order, repeating the last one once
// the script is exhausted. It records every call.
type ScriptedNode struct {
	nodeType    string
	description domain.NodeDescription

	mu      sync.Mutex
	script  []domain.ExecutionResult
	calls   []Call
	onCall  func(Call)
	panicOn map[int]interface{}
}

type Call struct {
	NodeID    string
	Input     []domain.Item
	Params    map[string]interface{}
	Iteration int
	Attempt   int
	Resume    *domain.ResumeInfo
}

func NewScriptedNode(nodeType string, results ...domain.ExecutionResult) *ScriptedNode {
	return &ScriptedNode{
		nodeType:    nodeType,
		description: domain.NodeDescription{Type: nodeType, Inputs: 1, Outputs: 1},
		script:      results,
		panicOn:     make(map[int]interface{}),
	}
}

func (n *ScriptedNode) WithOutputs(outputs int) *ScriptedNode {
	n.description.Outputs = outputs
	return n
}

func (n *ScriptedNode) WithRetryPolicy(policy domain.RetryPolicy) *ScriptedNode {
	n.description.RetryPolicy = &policy
	return n
}

// PanicOnCall makes the nth call (1-based) panic with value.
func (n *ScriptedNode) PanicOnCall(call int, value interface{}) *ScriptedNode {
	n.panicOn[call] = value
	return n
}

func (n *ScriptedNode) OnCall(fn func(Call)) *ScriptedNode {
	n.onCall = fn
	return n
}

func (n *ScriptedNode) Type() string {
	return n.nodeType
}

func (n *ScriptedNode) Describe() domain.NodeDescription {
	return n.description
}

func (n *ScriptedNode) Execute(_ context.Context, input []domain.Item, params map[string]interface{}, rc *domain.RuntimeContext) domain.ExecutionResult {
	call := Call{Input: domain.CloneItems(input), Params: params}
	if rc != nil {
		call.NodeID = rc.NodeID
		call.Iteration = rc.Iteration
		call.Attempt = rc.Attempt
		call.Resume = rc.Resume
	}

	n.mu.Lock()
	n.calls = append(n.calls, call)
	count := len(n.calls)
	var result domain.ExecutionResult
	switch {
	case len(n.script) == 0:
		result = domain.Success(input)
	case count <= len(n.script):
		result = n.script[count-1]
	default:
		result = n.script[len(n.script)-1]
	}
	panicValue, shouldPanic := n.panicOn[count]
	onCall := n.onCall
	n.mu.Unlock()

	if onCall != nil {
		onCall(call)
	}
	if shouldPanic {
		panic(panicValue)
	}
	return result
}

func (n *ScriptedNode) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

func (n *ScriptedNode) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// Items builds one item per map.
func Items(values ...map[string]interface{}) []domain.Item {
	out := make([]domain.Item, 0, len(values))
	for _, v := range values {
		out = append(out, domain.NewItem(v))
	}
	return out
}

func Transient(message string) domain.ExecutionResult {
	return domain.Failure("transient", message, true)
}

func Permanent(message string) domain.ExecutionResult {
	return domain.Failure("permanent", message, false)
}

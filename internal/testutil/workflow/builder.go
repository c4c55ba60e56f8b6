package workflow

import (
	"github.com/eleven-am/loom/internal/domain"
)

// Builder assembles workflow graphs for tests in declaration order.
type Builder struct {
	wf *domain.WorkflowGraph
}

func NewBuilder(id string) *Builder {
	return &Builder{wf: &domain.WorkflowGraph{ID: id, Name: id}}
}

func (b *Builder) Trigger(id string) *Builder {
	b.wf.Nodes = append(b.wf.Nodes, domain.Node{ID: id, Type: "core.manualTrigger", Trigger: true})
	return b
}

func (b *Builder) Node(id, nodeType string) *Builder {
	b.wf.Nodes = append(b.wf.Nodes, domain.Node{ID: id, Type: nodeType})
	return b
}

func (b *Builder) NodeWith(node domain.Node) *Builder {
	b.wf.Nodes = append(b.wf.Nodes, node)
	return b
}

func (b *Builder) Params(id string, params map[string]interface{}) *Builder {
	if n, ok := b.wf.Node(id); ok {
		n.Parameters = params
	}
	return b
}

func (b *Builder) Retry(id string, policy domain.RetryPolicy) *Builder {
	if n, ok := b.wf.Node(id); ok {
		n.RetryPolicy = &policy
	}
	return b
}

func (b *Builder) OnFailure(id string, policy domain.FailurePolicy, errorOutput *int) *Builder {
	if n, ok := b.wf.Node(id); ok {
		n.FailurePolicy = policy
		n.ErrorOutput = errorOutput
	}
	return b
}

func (b *Builder) Connect(source, target string) *Builder {
	return b.ConnectPorts(source, 0, target, 0)
}

func (b *Builder) ConnectPorts(source string, sourceOutput int, target string, targetInput int) *Builder {
	b.wf.Connections = append(b.wf.Connections, domain.Connection{
		Source: source, SourceOutput: sourceOutput, Target: target, TargetInput: targetInput,
	})
	return b
}

func (b *Builder) Loop(source string, sourceOutput int, target string) *Builder {
	b.wf.Connections = append(b.wf.Connections, domain.Connection{
		Source: source, SourceOutput: sourceOutput, Target: target, Loop: true,
	})
	return b
}

func (b *Builder) Settings(settings domain.WorkflowSettings) *Builder {
	b.wf.Settings = settings
	return b
}

func (b *Builder) Build() *domain.WorkflowGraph {
	return b.wf.Clone()
}

// Chain builds trigger -> n1 -> n2 ... with every node of nodeType.
func Chain(id, nodeType string, nodes ...string) *domain.WorkflowGraph {
	b := NewBuilder(id).Trigger("trigger")
	prev := "trigger"
	for _, n := range nodes {
		b.Node(n, nodeType).Connect(prev, n)
		prev = n
	}
	return b.Build()
}

func IntPtr(v int) *int {
	return &v
}

package node_registry

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

type ExecuteFunc func(ctx context.Context, input []domain.Item, params map[string]interface{}, rc *domain.RuntimeContext) domain.ExecutionResult

// FuncNode adapts a plain function into a NodeExecutor.
type FuncNode struct {
	description domain.NodeDescription
	fn          ExecuteFunc
}

var (
	_ ports.NodeExecutor  = (*FuncNode)(nil)
	_ ports.NodeDescriber = (*FuncNode)(nil)
)

func NewFuncNode(nodeType string, fn ExecuteFunc) *FuncNode {
	return &FuncNode{
		description: domain.NodeDescription{Type: nodeType, Inputs: 1, Outputs: 1, InputMode: domain.InputModeAll},
		fn:          fn,
	}
}

func (n *FuncNode) WithDescription(desc domain.NodeDescription) *FuncNode {
	desc.Type = n.description.Type
	n.description = desc
	return n
}

func (n *FuncNode) Type() string {
	return n.description.Type
}

func (n *FuncNode) Describe() domain.NodeDescription {
	return n.description
}

func (n *FuncNode) Execute(ctx context.Context, input []domain.Item, params map[string]interface{}, rc *domain.RuntimeContext) domain.ExecutionResult {
	if n.fn == nil {
		return domain.Success(input)
	}
	return n.fn(ctx, input, params, rc)
}

package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// NodeExecutor is the capability every node type implements. Executors must
// not retry internally; they report failures and the scheduler decides.
type NodeExecutor interface {
	Type() string
	Execute(ctx context.Context, input []domain.Item, params map[string]interface{}, rc *domain.RuntimeContext) domain.ExecutionResult
}

// NodeDescriber is implemented by executors that publish static metadata.
type NodeDescriber interface {
	Describe() domain.NodeDescription
}

type NodeRegistryPort interface {
	RegisterNode(executor NodeExecutor) error
	Resolve(nodeType string) (NodeExecutor, error)
	Describe(nodeType string) (domain.NodeDescription, bool)
	ListNodes() []string
	UnregisterNode(nodeType string) error
	HasNode(nodeType string) bool
	GetNodeCount() int
}

type NodeRegistrationError struct {
	NodeType string
	Reason   string
}

func (e NodeRegistrationError) Error() string {
	return "node registration failed for '" + e.NodeType + "': " + e.Reason
}

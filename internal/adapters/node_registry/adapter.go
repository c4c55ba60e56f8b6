package node_registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

type entry struct {
	executor    ports.NodeExecutor
	description domain.NodeDescription
}

type Adapter struct {
	nodes  map[string]entry
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		nodes:  make(map[string]entry),
		logger: logger.With("component", "node-registry"),
	}
}

func (r *Adapter) RegisterNode(executor ports.NodeExecutor) error {
	if executor == nil {
		r.logger.Error("attempted to register nil node executor")
		return &ports.NodeRegistrationError{
			NodeType: "<nil>",
			Reason:   "executor cannot be nil",
		}
	}

	nodeType := executor.Type()
	r.logger.Debug("attempting to register node type", "node_type", nodeType)

	if nodeType == "" {
		r.logger.Error("attempted to register node with empty type")
		return &ports.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "node type cannot be empty",
		}
	}

	desc := describe(executor)
	if desc.Inputs < 0 || desc.Outputs < 0 || !desc.InputMode.Valid() {
		return &ports.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "invalid node description",
		}
	}
	if desc.RetryPolicy != nil {
		if err := desc.RetryPolicy.Validate(); err != nil {
			return &ports.NodeRegistrationError{
				NodeType: nodeType,
				Reason:   err.Error(),
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeType]; exists {
		r.logger.Debug("node registration failed - already exists", "node_type", nodeType)
		return &ports.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "node type already registered",
		}
	}

	r.nodes[nodeType] = entry{executor: executor, description: desc}
	r.logger.Debug("node type registered", "node_type", nodeType, "total_nodes", len(r.nodes))
	return nil
}

func describe(executor ports.NodeExecutor) domain.NodeDescription {
	desc := domain.NodeDescription{Inputs: 1, Outputs: 1, InputMode: domain.InputModeAll}
	if describer, ok := executor.(ports.NodeDescriber); ok {
		desc = describer.Describe()
		if desc.InputMode == "" {
			desc.InputMode = domain.InputModeAll
		}
	}
	desc.Type = executor.Type()
	return desc
}

func (r *Adapter) Resolve(nodeType string) (ports.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.nodes[nodeType]
	if !exists {
		r.logger.Debug("node type not found", "node_type", nodeType)
		return nil, fmt.Errorf("node type %q: %w", nodeType, domain.ErrNotFound)
	}
	return e.executor, nil
}

func (r *Adapter) Describe(nodeType string) (domain.NodeDescription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.nodes[nodeType]
	return e.description, exists
}

func (r *Adapter) ListNodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodeTypes := make([]string, 0, len(r.nodes))
	for nodeType := range r.nodes {
		nodeTypes = append(nodeTypes, nodeType)
	}
	sort.Strings(nodeTypes)
	return nodeTypes
}

func (r *Adapter) UnregisterNode(nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeType]; !exists {
		r.logger.Debug("node unregistration failed - not found", "node_type", nodeType)
		return fmt.Errorf("node type %q: %w", nodeType, domain.ErrNotFound)
	}

	delete(r.nodes, nodeType)
	r.logger.Debug("node type unregistered", "node_type", nodeType, "remaining_nodes", len(r.nodes))
	return nil
}

func (r *Adapter) HasNode(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.nodes[nodeType]
	return exists
}

func (r *Adapter) GetNodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.nodes)
}

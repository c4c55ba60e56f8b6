package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// WorkflowRegistry is the in-memory workflow repository. It stores clones so
// later edits by the caller never reach a running execution.
type WorkflowRegistry struct {
	workflows map[string]*domain.WorkflowGraph
	mu        sync.RWMutex
	logger    *slog.Logger
}

var _ ports.WorkflowRepositoryPort = (*WorkflowRegistry)(nil)

func NewWorkflowRegistry(logger *slog.Logger) *WorkflowRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	return &WorkflowRegistry{
		workflows: make(map[string]*domain.WorkflowGraph),
		logger:    logger.With("component", "registry", "type", "memory"),
	}
}

// Put stores or replaces a workflow definition.
func (r *WorkflowRegistry) Put(ctx context.Context, workflow *domain.WorkflowGraph) error {
	if err := validateWorkflow(workflow); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.workflows[workflow.ID]
	r.workflows[workflow.ID] = workflow.Clone()
	r.logger.Info("workflow registered", "workflow_id", workflow.ID, "nodes", len(workflow.Nodes), "replaced", replaced)
	return nil
}

func (r *WorkflowRegistry) Get(ctx context.Context, workflowID string) (*domain.WorkflowGraph, error) {
	if err := validateWorkflowID(workflowID); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, exists := r.workflows[workflowID]
	if !exists {
		r.logger.Debug("workflow not found", "workflow_id", workflowID)
		return nil, fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	return wf.Clone(), nil
}

func (r *WorkflowRegistry) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *WorkflowRegistry) Delete(ctx context.Context, workflowID string) error {
	if err := validateWorkflowID(workflowID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[workflowID]; !exists {
		r.logger.Warn("attempt to delete unknown workflow", "workflow_id", workflowID)
		return fmt.Errorf("workflow %s: %w", workflowID, domain.ErrNotFound)
	}
	delete(r.workflows, workflowID)
	r.logger.Info("workflow removed", "workflow_id", workflowID)
	return nil
}

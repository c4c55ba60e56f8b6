package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

type WorkflowRepositoryPort interface {
	Put(ctx context.Context, workflow *domain.WorkflowGraph) error
	Get(ctx context.Context, workflowID string) (*domain.WorkflowGraph, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, workflowID string) error
}

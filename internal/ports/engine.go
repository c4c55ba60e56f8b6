package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

type EnginePort interface {
	Start(ctx context.Context) error
	Stop() error

	Trigger(ctx context.Context, workflowID string, payload []domain.Item, opts domain.RunOptions) (string, error)
	Cancel(ctx context.Context, executionID string) error
	Resume(ctx context.Context, executionID string, signal domain.ResumeSignal) error
	Retry(ctx context.Context, executionID string) (string, error)

	GetExecution(ctx context.Context, executionID string) (*domain.ExecutionContext, error)
	GetExecutionInWorkflows(ctx context.Context, executionID string, workflowIDs []string) (*domain.ExecutionContext, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error)
	CountExecutions(ctx context.Context, filter domain.ExecutionFilter) (int, error)
	DeleteExecution(ctx context.Context, executionID string) error

	GetMetrics() domain.ExecutionMetrics
}

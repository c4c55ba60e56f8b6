package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// ExecutionStorePort persists execution snapshots. Save is atomic per
// execution id: readers never observe a partially written snapshot.
type ExecutionStorePort interface {
	Save(ctx context.Context, exec *domain.ExecutionContext) error
	Load(ctx context.Context, executionID string) (*domain.ExecutionContext, error)
	ListRecoverable(ctx context.Context) ([]*domain.ExecutionContext, error)

	List(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error)
	Count(ctx context.Context, filter domain.ExecutionFilter) (int, error)
	Delete(ctx context.Context, executionID string) error

	Close() error
}

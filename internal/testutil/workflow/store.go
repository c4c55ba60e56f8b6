package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// MockExecutionStore is a testify mock of ports.ExecutionStorePort.
type MockExecutionStore struct {
	mock.Mock
}

var _ ports.ExecutionStorePort = (*MockExecutionStore)(nil)

func NewMockExecutionStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockExecutionStore {
	m := &MockExecutionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockExecutionStore) Save(ctx context.Context, exec *domain.ExecutionContext) error {
	args := m.Called(ctx, exec)
	return args.Error(0)
}

func (m *MockExecutionStore) Load(ctx context.Context, executionID string) (*domain.ExecutionContext, error) {
	args := m.Called(ctx, executionID)
	exec, _ := args.Get(0).(*domain.ExecutionContext)
	return exec, args.Error(1)
}

func (m *MockExecutionStore) ListRecoverable(ctx context.Context) ([]*domain.ExecutionContext, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*domain.ExecutionContext)
	return list, args.Error(1)
}

func (m *MockExecutionStore) List(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]domain.ExecutionSummary)
	return list, args.Error(1)
}

func (m *MockExecutionStore) Count(ctx context.Context, filter domain.ExecutionFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockExecutionStore) Delete(ctx context.Context, executionID string) error {
	args := m.Called(ctx, executionID)
	return args.Error(0)
}

func (m *MockExecutionStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

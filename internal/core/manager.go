package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/loom/internal/adapters/clock"
	"github.com/eleven-am/loom/internal/adapters/definition"
	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/adapters/events"
	"github.com/eleven-am/loom/internal/adapters/graph"
	"github.com/eleven-am/loom/internal/adapters/memory"
	"github.com/eleven-am/loom/internal/adapters/node_registry"
	"github.com/eleven-am/loom/internal/adapters/observability"
	"github.com/eleven-am/loom/internal/adapters/queue"
	"github.com/eleven-am/loom/internal/adapters/storage"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Manager wires the registry, workflow repository, execution store, queue,
// event manager and engine into one process-local runtime. A stopped
// Manager cannot be started again.
type Manager struct {
	engine       ports.EnginePort
	store        ports.ExecutionStorePort
	nodeRegistry ports.NodeRegistryPort
	workflows    ports.WorkflowRepositoryPort
	eventManager *events.Manager
	loader       *definition.Loader
	ops          *observability.Server

	config *domain.Config
	logger *slog.Logger

	mu      sync.Mutex
	running atomic.Bool
	stopped bool
}

func New(dataDir string, logger *slog.Logger) (*Manager, error) {
	return NewWithConfig(domain.NewConfigFromSimple(dataDir, logger))
}

func NewWithConfig(config *domain.Config) (*Manager, error) {
	return newManager(config, clock.New())
}

func newManager(config *domain.Config, clk ports.Clock) (*Manager, error) {
	if config == nil {
		return nil, domain.NewConfigError("config", domain.ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.BuildLogger(nil).With("component", "loom")

	store, err := openStore(config, logger)
	if err != nil {
		logger.Error("failed to open execution store", "backend", config.Storage.Backend, "error", err)
		return nil, err
	}

	metrics := domain.NewExecutionMetrics()
	registry := node_registry.NewAdapter(logger)
	if err := node_registry.RegisterBuiltins(registry, clk); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register builtin nodes: %w", err)
	}

	workflows := memory.NewWorkflowRegistry(logger)
	eventManager := events.NewManager(config.Events.BufferSize, logger)

	engineAdapter, err := engine.NewEngine(config.Engine, engine.Dependencies{
		Registry:  registry,
		Workflows: workflows,
		Store:     store,
		Queue:     queue.NewQueue("executions", metrics, logger),
		Events:    eventManager,
		Clock:     clk,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := &Manager{
		engine:       engineAdapter,
		store:        store,
		nodeRegistry: registry,
		workflows:    workflows,
		eventManager: eventManager,
		loader:       definition.NewLoader(logger),
		config:       config,
		logger:       logger,
	}
	if config.Observability.Enabled {
		m.ops = observability.NewServer(config.Observability, m, m, logger)
	}
	return m, nil
}

func openStore(config *domain.Config, logger *slog.Logger) (ports.ExecutionStorePort, error) {
	switch config.Storage.Backend {
	case domain.StorageBadger:
		return storage.NewBadgerStore(storage.BadgerConfig{
			Path:       config.StoragePath(),
			InMemory:   config.Storage.InMemory,
			SyncWrites: config.Storage.SyncWrites,
			GCInterval: config.Storage.GCInterval,
		}, logger)
	default:
		return storage.NewMemoryStore(logger), nil
	}
}

// Start begins event delivery, recovers stored executions and starts the
// workers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Load() {
		return domain.ErrAlreadyStarted
	}
	if m.stopped {
		return domain.ErrClosed
	}

	if err := m.eventManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event manager: %w", err)
	}
	if err := m.engine.Start(ctx); err != nil {
		_ = m.eventManager.Stop()
		return fmt.Errorf("failed to start engine: %w", err)
	}
	if m.ops != nil {
		if err := m.ops.Start(); err != nil {
			_ = m.engine.Stop()
			_ = m.eventManager.Stop()
			return fmt.Errorf("failed to start observability server: %w", err)
		}
	}

	m.running.Store(true)
	m.logger.Info("loom started", "storage", m.config.Storage.Backend, "node_types", m.nodeRegistry.GetNodeCount())
	return nil
}

// Stop releases running executions with a clean snapshot, drains pending
// events and closes the store.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return domain.ErrNotStarted
	}
	m.stopped = true

	var errs []error
	if m.running.CompareAndSwap(true, false) {
		if m.ops != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.ops.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop observability server: %w", err))
			}
			cancel()
		}
		if err := m.engine.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop engine: %w", err))
		}
		if err := m.eventManager.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop event manager: %w", err))
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	m.logger.Info("loom stopped")
	return errors.Join(errs...)
}

func (m *Manager) RegisterNode(executor ports.NodeExecutor) error {
	return m.nodeRegistry.RegisterNode(executor)
}

func (m *Manager) RegisterFunc(nodeType string, fn node_registry.ExecuteFunc) error {
	return m.nodeRegistry.RegisterNode(node_registry.NewFuncNode(nodeType, fn))
}

func (m *Manager) UnregisterNode(nodeType string) error {
	return m.nodeRegistry.UnregisterNode(nodeType)
}

func (m *Manager) ListNodes() []string {
	return m.nodeRegistry.ListNodes()
}

// RegisterWorkflow validates workflow against the registered node types and
// stores it. Validation failures return a *domain.ValidationError.
func (m *Manager) RegisterWorkflow(ctx context.Context, workflow *domain.WorkflowGraph) error {
	if workflow == nil {
		return domain.NewConfigError("workflow", domain.ErrInvalidInput)
	}
	normalized := graph.Normalize(workflow, m.nodeRegistry)
	if err := graph.Validate(normalized, m.nodeRegistry).Err(workflow.ID); err != nil {
		m.logger.Warn("workflow rejected", "workflow_id", workflow.ID, "error", err)
		return err
	}
	if err := m.workflows.Put(ctx, workflow); err != nil {
		return err
	}
	m.logger.Debug("workflow registered", "workflow_id", workflow.ID, "node_count", len(workflow.Nodes))
	return nil
}

// LoadWorkflows registers every definition found at path, a single file or
// a directory walked recursively. Nothing is registered when any
// definition fails to parse or validate.
func (m *Manager) LoadWorkflows(ctx context.Context, path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var loaded []*domain.WorkflowGraph
	if info.IsDir() {
		loaded, err = m.loader.LoadDir(path)
	} else {
		loaded, err = m.loader.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}

	for _, wf := range loaded {
		if err := graph.Validate(graph.Normalize(wf, m.nodeRegistry), m.nodeRegistry).Err(wf.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	ids := make([]string, 0, len(loaded))
	for _, wf := range loaded {
		if err := m.workflows.Put(ctx, wf); err != nil {
			return ids, err
		}
		ids = append(ids, wf.ID)
	}
	m.logger.Info("workflows loaded", "path", path, "count", len(ids))
	return ids, nil
}

func (m *Manager) GetWorkflow(ctx context.Context, workflowID string) (*domain.WorkflowGraph, error) {
	return m.workflows.Get(ctx, workflowID)
}

func (m *Manager) ListWorkflows(ctx context.Context) ([]string, error) {
	return m.workflows.List(ctx)
}

func (m *Manager) RemoveWorkflow(ctx context.Context, workflowID string) error {
	return m.workflows.Delete(ctx, workflowID)
}

func (m *Manager) TriggerExecution(ctx context.Context, workflowID string, payload []domain.Item, opts domain.RunOptions) (string, error) {
	return m.engine.Trigger(ctx, workflowID, payload, opts)
}

func (m *Manager) CancelExecution(ctx context.Context, executionID string) error {
	return m.engine.Cancel(ctx, executionID)
}

func (m *Manager) ResumeExecution(ctx context.Context, executionID string, signal domain.ResumeSignal) error {
	return m.engine.Resume(ctx, executionID, signal)
}

// RetryExecution starts a new execution from a failed one, reusing the
// outputs of every node that already completed.
func (m *Manager) RetryExecution(ctx context.Context, executionID string) (string, error) {
	return m.engine.Retry(ctx, executionID)
}

func (m *Manager) GetExecution(ctx context.Context, executionID string) (*domain.ExecutionContext, error) {
	return m.engine.GetExecution(ctx, executionID)
}

// GetExecutionInWorkflows returns the execution only when it belongs to one
// of workflowIDs, for callers scoped to a set of workflows.
func (m *Manager) GetExecutionInWorkflows(ctx context.Context, executionID string, workflowIDs []string) (*domain.ExecutionContext, error) {
	return m.engine.GetExecutionInWorkflows(ctx, executionID, workflowIDs)
}

func (m *Manager) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error) {
	return m.engine.ListExecutions(ctx, filter)
}

func (m *Manager) CountExecutions(ctx context.Context, filter domain.ExecutionFilter) (int, error) {
	return m.engine.CountExecutions(ctx, filter)
}

func (m *Manager) DeleteExecution(ctx context.Context, executionID string) error {
	return m.engine.DeleteExecution(ctx, executionID)
}

func (m *Manager) GetMetrics() domain.ExecutionMetrics {
	return m.engine.GetMetrics()
}

// ObservabilityAddr reports the address of the health and metrics server,
// empty when it is disabled or not running.
func (m *Manager) ObservabilityAddr() string {
	if m.ops == nil {
		return ""
	}
	return m.ops.Addr()
}

// GetHealth reports whether the workers are running and the execution store
// answers queries.
func (m *Manager) GetHealth() ports.HealthStatus {
	running := m.running.Load()
	status := ports.HealthStatus{
		Healthy: running,
		Details: map[string]interface{}{
			"engine":     "stopped",
			"storage":    string(m.config.Storage.Backend),
			"node_types": m.nodeRegistry.GetNodeCount(),
		},
	}
	if running {
		status.Details["engine"] = "running"
	} else {
		status.Error = "engine not running"
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	active, err := m.store.Count(ctx, domain.ExecutionFilter{
		Statuses: []domain.ExecutionStatus{domain.StatusRunning, domain.StatusWaiting},
	})
	if err != nil {
		status.Healthy = false
		status.Error = err.Error()
		status.Details["store"] = "unreachable"
		return status
	}
	status.Details["store"] = "ok"
	status.Details["active_executions"] = active
	return status
}

// Package engine runs workflow executions: a pool of workers claims execution
// ids from the admission queue and drives each through the scheduler until it
// finishes, suspends or is released.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

type Dependencies struct {
	Registry  ports.NodeRegistryPort
	Workflows ports.WorkflowRepositoryPort
	Store     ports.ExecutionStorePort
	Queue     ports.QueuePort
	Events    ports.EventSink
	Clock     ports.Clock
	Metrics   *domain.ExecutionMetrics
	Logger    *slog.Logger
}

type Engine struct {
	config    domain.EngineConfig
	registry  ports.NodeRegistryPort
	workflows ports.WorkflowRepositoryPort
	store     ports.ExecutionStorePort
	queue     ports.QueuePort
	events    ports.EventSink
	clock     ports.Clock
	metrics   *domain.ExecutionMetrics
	logger    *slog.Logger
	locks     *keyedLocks
	newID     func() (string, error)

	mu              sync.Mutex
	started         bool
	active          map[string]bool
	rerun           map[string]bool
	cancelRequested map[string]bool
	timers          map[string]ports.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ ports.EnginePort = (*Engine)(nil)

func NewEngine(config domain.EngineConfig, deps Dependencies) (*Engine, error) {
	switch {
	case deps.Registry == nil:
		return nil, domain.NewConfigError("registry", domain.ErrInvalidConfig)
	case deps.Workflows == nil:
		return nil, domain.NewConfigError("workflows", domain.ErrInvalidConfig)
	case deps.Store == nil:
		return nil, domain.NewConfigError("store", domain.ErrInvalidConfig)
	case deps.Queue == nil:
		return nil, domain.NewConfigError("queue", domain.ErrInvalidConfig)
	case deps.Clock == nil:
		return nil, domain.NewConfigError("clock", domain.ErrInvalidConfig)
	}
	if config.MaxConcurrentExecutions <= 0 {
		return nil, domain.NewConfigError("engine.max_concurrent_executions", domain.ErrInvalidConfig)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = domain.NewExecutionMetrics()
	}
	events := deps.Events
	if events == nil {
		events = discardSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:          config,
		registry:        deps.Registry,
		workflows:       deps.Workflows,
		store:           deps.Store,
		queue:           deps.Queue,
		events:          events,
		clock:           deps.Clock,
		metrics:         metrics,
		logger:          logger.With("component", "engine"),
		locks:           newKeyedLocks(),
		newID:           newExecutionID,
		active:          make(map[string]bool),
		rerun:           make(map[string]bool),
		cancelRequested: make(map[string]bool),
		timers:          make(map[string]ports.Timer),
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// newExecutionID returns a UUIDv7, so lexical id order is creation order.
func newExecutionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate execution id: %w", err)
	}
	return id.String(), nil
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.logger.Info("starting workflow engine", "worker_count", e.config.MaxConcurrentExecutions, "branch_concurrency", e.config.BranchConcurrency)

	if err := e.recover(e.ctx); err != nil {
		e.logger.Error("failed to recover executions", errorLogAttrs(err)...)
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		e.cancel()
		return err
	}

	for i := 0; i < e.config.MaxConcurrentExecutions; i++ {
		e.wg.Add(1)
		go e.processWork(i)
	}

	e.logger.Debug("workflow engine started", "workers_launched", e.config.MaxConcurrentExecutions)
	return nil
}

// Stop cancels the workers and waits for them. Executions mid-run snapshot
// with CleanShutdown at their next tick and resume on the next Start.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return domain.ErrNotStarted
	}
	e.started = false
	e.mu.Unlock()

	e.logger.Debug("stopping workflow engine")
	e.cancel()
	e.wg.Wait()
	e.stopAllTimers()

	if err := e.queue.Close(); err != nil {
		e.logger.Error("failed to close queue", "error", err)
		return err
	}

	e.logger.Debug("workflow engine stopped")
	return nil
}

func (e *Engine) processWork(worker int) {
	defer e.wg.Done()
	logger := e.logger.With("worker", worker)
	logger.Debug("worker started")

	poll := e.config.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			logger.Debug("worker stopped")
			return
		case <-e.queue.Ready():
			e.drain(logger)
		case <-ticker.C:
			e.drain(logger)
		}
	}
}

func (e *Engine) drain(logger *slog.Logger) {
	for {
		processed, err := e.processNextItem()
		if err != nil {
			logger.Error("failed to process execution", errorLogAttrs(err)...)
		}
		if !processed {
			return
		}
	}
}

// processNextItem claims one execution id and runs it until it releases the
// worker. It reports whether an id was claimed.
func (e *Engine) processNextItem() (bool, error) {
	select {
	case <-e.ctx.Done():
		return false, nil
	default:
	}

	id, exists, err := e.queue.Claim()
	if err != nil {
		if errors.Is(err, domain.ErrClosed) {
			return false, nil
		}
		return false, fmt.Errorf("claim execution: %w", err)
	}
	if !exists {
		return false, nil
	}

	e.mu.Lock()
	if e.active[id] {
		e.rerun[id] = true
		e.mu.Unlock()
		return true, nil
	}
	e.active[id] = true
	e.mu.Unlock()

	runErr := e.processExecution(e.ctx, id)

	e.mu.Lock()
	delete(e.active, id)
	rerun := e.rerun[id] || (runErr == nil && e.cancelRequested[id])
	delete(e.rerun, id)
	e.mu.Unlock()

	if rerun {
		e.enqueue(id)
	}
	return true, runErr
}

func (e *Engine) processExecution(ctx context.Context, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	exec, err := e.store.Load(context.WithoutCancel(ctx), id)
	if err != nil {
		if domain.IsNotFound(err) {
			e.logger.Warn("queued execution no longer exists", "execution_id", id)
			e.clearCancel(id)
			return nil
		}
		return err
	}
	if exec.Status.IsTerminal() {
		e.clearCancel(id)
		return nil
	}

	r, err := e.newRun(exec)
	if err != nil {
		return err
	}
	r.execute(ctx)
	return nil
}

func (e *Engine) enqueue(id string) {
	if _, err := e.queue.Enqueue(id); err != nil {
		e.logger.Error("failed to enqueue execution", "execution_id", id, "error", err)
	}
}

func (e *Engine) isCancelRequested(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRequested[id]
}

func (e *Engine) clearCancel(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cancelRequested, id)
}

func (e *Engine) publish(event domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now()
	}
	e.events.Publish(context.WithoutCancel(e.ctx), event)
}

func (e *Engine) GetMetrics() domain.ExecutionMetrics {
	return e.metrics.GetSnapshot()
}

type discardSink struct{}

func (discardSink) Publish(context.Context, domain.Event) {}

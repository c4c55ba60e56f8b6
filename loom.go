// Package loom provides an embeddable workflow execution engine.
//
// A workflow is a graph of typed nodes joined by connections. Loom runs the
// nodes of an execution in dependency order, persists a snapshot after every
// scheduling pass, and supports:
//   - Retries with fixed or exponential backoff, decided by the scheduler
//   - Waits on timers or external signals, resumed without holding a worker
//   - Counted loop-back edges
//   - Crash recovery from the last snapshot on Start
//   - Retry-from-failure reusing the outputs of completed nodes
//
// Basic usage:
//
//	manager, err := loom.New("./data", logger)
//	manager.RegisterFunc("app.greet", greet)
//	manager.LoadWorkflows(ctx, "./workflows")
//	manager.Start(ctx)
//
//	id, err := manager.TriggerExecution(ctx, "hello", payload, loom.RunOptions{})
package loom

import (
	"context"
	"log/slog"

	"github.com/eleven-am/loom/internal/adapters/node_registry"
	"github.com/eleven-am/loom/internal/core"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Manager owns the node registry, the workflow repository, the execution
// store and the worker pool.
type Manager = core.Manager

// NodeExecutor is the capability every node type implements. Executors
// report failures through their result; retries belong to the scheduler.
type NodeExecutor = ports.NodeExecutor

// NodeDescriber is optionally implemented by executors to publish their
// port counts, input mode and default retry policy.
type NodeDescriber = ports.NodeDescriber

// ExecuteFunc is the signature accepted by Manager.RegisterFunc.
type ExecuteFunc = node_registry.ExecuteFunc

type NodeDescription = domain.NodeDescription

// Workflow graph types

type WorkflowGraph = domain.WorkflowGraph
type Node = domain.Node
type Connection = domain.Connection
type WorkflowSettings = domain.WorkflowSettings
type InputMode = domain.InputMode
type FailurePolicy = domain.FailurePolicy

const (
	InputModeAll = domain.InputModeAll
	InputModeAny = domain.InputModeAny

	FailurePolicyStopWorkflow   = domain.FailurePolicyStopWorkflow
	FailurePolicyContinueOnFail = domain.FailurePolicyContinueOnFail
)

// Data and results

// Item is one unit of data flowing along a connection.
type Item = domain.Item
type ItemError = domain.ItemError

// ExecutionResult is what a node returns: success with per-output items,
// a failure, or a wait condition.
type ExecutionResult = domain.ExecutionResult
type NodeFailure = domain.NodeFailure
type WaitCondition = domain.WaitCondition

// RuntimeContext describes the invocation a node is running in.
type RuntimeContext = domain.RuntimeContext
type ResumeInfo = domain.ResumeInfo

type RetryPolicy = domain.RetryPolicy
type BackoffKind = domain.BackoffKind

const (
	BackoffFixed       = domain.BackoffFixed
	BackoffExponential = domain.BackoffExponential
)

// Executions

type ExecutionContext = domain.ExecutionContext
type ExecutionSummary = domain.ExecutionSummary
type ExecutionFilter = domain.ExecutionFilter
type ExecutionStatus = domain.ExecutionStatus
type ExecutionMode = domain.ExecutionMode
type ExecutionError = domain.ExecutionError
type ExecutionMetrics = domain.ExecutionMetrics
type NodeRun = domain.NodeRun
type NodeState = domain.NodeState
type NodeStatus = domain.NodeStatus
type RunOptions = domain.RunOptions
type ResumeSignal = domain.ResumeSignal

const (
	StatusNew      = domain.StatusNew
	StatusRunning  = domain.StatusRunning
	StatusWaiting  = domain.StatusWaiting
	StatusSuccess  = domain.StatusSuccess
	StatusError    = domain.StatusError
	StatusCrashed  = domain.StatusCrashed
	StatusCanceled = domain.StatusCanceled

	ModeManual  = domain.ModeManual
	ModeTrigger = domain.ModeTrigger
	ModeWebhook = domain.ModeWebhook
	ModeRetry   = domain.ModeRetry
)

// HealthStatus is reported by Manager.GetHealth and the /health endpoint.
type HealthStatus = ports.HealthStatus

// Events

type Event = domain.Event
type EventType = domain.EventType

const (
	EventExecutionStarted  = domain.EventExecutionStarted
	EventExecutionResumed  = domain.EventExecutionResumed
	EventExecutionWaiting  = domain.EventExecutionWaiting
	EventExecutionCrashed  = domain.EventExecutionCrashed
	EventExecutionFinished = domain.EventExecutionFinished
	EventNodeStarted       = domain.EventNodeStarted
	EventNodeCompleted     = domain.EventNodeCompleted
	EventNodeFailed        = domain.EventNodeFailed
)

// Built-in node types registered on every Manager.
const (
	NodeTypeManualTrigger = node_registry.TypeManualTrigger
	NodeTypeNoOp          = node_registry.TypeNoOp
	NodeTypeWait          = node_registry.TypeWait
	NodeTypeMerge         = node_registry.TypeMerge
	NodeTypeIf            = node_registry.TypeIf
)

// New creates a Manager with default settings and in-memory storage.
func New(dataDir string, logger *slog.Logger) (*Manager, error) {
	return core.New(dataDir, logger)
}

// NewWithConfig creates a Manager from a full configuration. The
// configuration is validated first; storage is opened immediately.
//
// Example:
//
//	config := loom.NewConfigBuilder("./data").
//	    WithBadgerStorage("executions").
//	    WithEngineSettings(4, 10*time.Minute, loom.FailurePolicyStopWorkflow).
//	    Build()
//	manager, err := loom.NewWithConfig(config)
func NewWithConfig(config *Config) (*Manager, error) {
	return core.NewWithConfig(config)
}

// Success builds a successful result. Each argument is the item list of
// one output, in output order.
func Success(outputs ...[]Item) ExecutionResult {
	return domain.Success(outputs...)
}

// Failure builds a failed result. Retryable failures are re-invoked
// according to the node's retry policy.
func Failure(kind, message string, retryable bool) ExecutionResult {
	return domain.Failure(kind, message, retryable)
}

// Waiting suspends the execution until the condition is met.
func Waiting(cond WaitCondition) ExecutionResult {
	return domain.Waiting(cond)
}

func NewItem(data map[string]interface{}) Item {
	return domain.NewItem(data)
}

// GetRuntimeContext extracts the invocation details from the context passed
// to a node's Execute method.
func GetRuntimeContext(ctx context.Context) (*RuntimeContext, bool) {
	return domain.GetRuntimeContext(ctx)
}

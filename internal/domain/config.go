package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Events  EventsConfig  `json:"events" yaml:"events"`

	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

type EngineConfig struct {
	MaxConcurrentExecutions int           `json:"max_concurrent_executions" yaml:"max_concurrent_executions"`
	DefaultRetryPolicy      RetryPolicy   `json:"default_retry_policy" yaml:"default_retry_policy"`
	ExecutionTimeoutSeconds int           `json:"execution_timeout_seconds" yaml:"execution_timeout_seconds"`
	FailurePolicy           FailurePolicy `json:"failure_policy" yaml:"failure_policy"`
	MaxLoopIterations       int           `json:"max_loop_iterations" yaml:"max_loop_iterations"`
	BranchConcurrency       bool          `json:"branch_concurrency" yaml:"branch_concurrency"`
	MaxBranchParallelism    int           `json:"max_branch_parallelism" yaml:"max_branch_parallelism"`
	NodeExecutionTimeout    time.Duration `json:"node_execution_timeout" yaml:"node_execution_timeout"`
	StoreRetryPolicy        RetryPolicy   `json:"store_retry_policy" yaml:"store_retry_policy"`
	PollInterval            time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

func (c EngineConfig) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageBadger StorageBackend = "badger"
)

type StorageConfig struct {
	Backend    StorageBackend `json:"backend" yaml:"backend"`
	Path       string         `json:"path,omitempty" yaml:"path,omitempty"`
	InMemory   bool           `json:"in_memory" yaml:"in_memory"`
	SyncWrites bool           `json:"sync_writes" yaml:"sync_writes"`
	GCInterval time.Duration  `json:"gc_interval" yaml:"gc_interval"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type EventsConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// ObservabilityConfig controls the HTTP server exposing health probes and
// metrics.
type ObservabilityConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

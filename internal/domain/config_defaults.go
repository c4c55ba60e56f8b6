package domain

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Logging: DefaultLoggingConfig(),
		Engine:  DefaultEngineConfig(),
		Storage: DefaultStorageConfig(),
		Events:  DefaultEventsConfig(),

		Observability: DefaultObservabilityConfig(),
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrentExecutions: 10,
		DefaultRetryPolicy:      DefaultRetryPolicy(),
		ExecutionTimeoutSeconds: 0,
		FailurePolicy:           FailurePolicyStopWorkflow,
		MaxLoopIterations:       100,
		BranchConcurrency:       false,
		MaxBranchParallelism:    4,
		NodeExecutionTimeout:    5 * time.Minute,
		StoreRetryPolicy: RetryPolicy{
			MaxAttempts: 5,
			Backoff:     BackoffExponential,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		PollInterval: time.Second,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:    StorageMemory,
		GCInterval: 5 * time.Minute,
	}
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
	}
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{BufferSize: 256}
}

func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:      false,
		Addr:         ":9090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// LoadConfigFile reads a YAML config file and layers it over the defaults.
// Zero values in the file leave the defaults untouched.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, NewConfigError("yaml", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	cfg := DefaultConfig()
	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	return cfg, nil
}

func NewConfigFromSimple(dataDir string, logger *slog.Logger) *Config {
	config := DefaultConfig()
	config.DataDir = dataDir
	config.Logger = logger
	if logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return config
}

func (c *Config) WithEngineSettings(maxConcurrent int, executionTimeout time.Duration, failurePolicy FailurePolicy) *Config {
	c.Engine.MaxConcurrentExecutions = maxConcurrent
	c.Engine.ExecutionTimeoutSeconds = int(executionTimeout / time.Second)
	if failurePolicy != "" {
		c.Engine.FailurePolicy = failurePolicy
	}
	return c
}

func (c *Config) WithRetryPolicy(policy RetryPolicy) *Config {
	c.Engine.DefaultRetryPolicy = policy
	return c
}

func (c *Config) WithBranchConcurrency(enabled bool, maxParallel int) *Config {
	c.Engine.BranchConcurrency = enabled
	if maxParallel > 0 {
		c.Engine.MaxBranchParallelism = maxParallel
	}
	return c
}

func (c *Config) WithBadgerStorage(path string) *Config {
	c.Storage.Backend = StorageBadger
	c.Storage.Path = path
	return c
}

func (c *Config) WithObservability(addr string) *Config {
	c.Observability.Enabled = true
	if addr != "" {
		c.Observability.Addr = addr
	}
	return c
}

func (c *Config) WithMemoryStorage() *Config {
	c.Storage.Backend = StorageMemory
	return c
}

// StoragePath resolves the badger directory relative to DataDir.
func (c *Config) StoragePath() string {
	path := c.Storage.Path
	if path == "" {
		path = "executions"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.DataDir, path)
	}
	return path
}

// BuildLogger returns the configured logger or builds one from Logging.
func (c *Config) BuildLogger(w io.Writer) *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Logging.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) Validate() error {
	if c.Engine.MaxConcurrentExecutions <= 0 {
		return NewConfigError("engine.max_concurrent_executions", ErrInvalidInput)
	}
	if c.Engine.ExecutionTimeoutSeconds < 0 {
		return NewConfigError("engine.execution_timeout_seconds", ErrInvalidInput)
	}
	if !c.Engine.FailurePolicy.Valid() {
		return NewConfigError("engine.failure_policy", ErrInvalidInput)
	}
	if c.Engine.MaxLoopIterations < 0 {
		return NewConfigError("engine.max_loop_iterations", ErrInvalidInput)
	}
	if c.Engine.BranchConcurrency && c.Engine.MaxBranchParallelism <= 0 {
		return NewConfigError("engine.max_branch_parallelism", ErrInvalidInput)
	}
	if c.Engine.NodeExecutionTimeout < 0 {
		return NewConfigError("engine.node_execution_timeout", ErrInvalidInput)
	}
	if err := c.Engine.DefaultRetryPolicy.Validate(); err != nil {
		return NewConfigError("engine.default_retry_policy", err)
	}
	if err := c.Engine.StoreRetryPolicy.Validate(); err != nil {
		return NewConfigError("engine.store_retry_policy", err)
	}
	if c.Engine.StoreRetryPolicy.MaxAttempts < 1 {
		return NewConfigError("engine.store_retry_policy.max_attempts", ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageBadger:
		if !c.Storage.InMemory && c.DataDir == "" && !filepath.IsAbs(c.Storage.Path) {
			return NewConfigError("storage.path", ErrInvalidInput)
		}
	default:
		return NewConfigError("storage.backend", ErrInvalidInput)
	}
	if c.Events.BufferSize < 0 {
		return NewConfigError("events.buffer_size", ErrInvalidInput)
	}
	if c.Observability.Enabled && c.Observability.Addr == "" {
		return NewConfigError("observability.addr", ErrInvalidInput)
	}
	return nil
}

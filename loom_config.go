package loom

import (
	"log/slog"
	"time"

	"github.com/eleven-am/loom/internal/domain"
)

type Config = domain.Config

type EngineConfig = domain.EngineConfig

type StorageConfig = domain.StorageConfig

type LoggingConfig = domain.LoggingConfig

type EventsConfig = domain.EventsConfig

type ObservabilityConfig = domain.ObservabilityConfig

type StorageBackend = domain.StorageBackend

const (
	StorageMemory StorageBackend = domain.StorageMemory
	StorageBadger StorageBackend = domain.StorageBadger
)

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

func DefaultEngineConfig() EngineConfig {
	return domain.DefaultEngineConfig()
}

func DefaultStorageConfig() StorageConfig {
	return domain.DefaultStorageConfig()
}

func DefaultRetryPolicy() RetryPolicy {
	return domain.DefaultRetryPolicy()
}

// LoadConfigFile reads a YAML configuration and layers it over the defaults.
func LoadConfigFile(path string) (*Config, error) {
	return domain.LoadConfigFile(path)
}

type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder(dataDir string) *ConfigBuilder {
	config := DefaultConfig()
	config.DataDir = dataDir
	return &ConfigBuilder{config: config}
}

func (cb *ConfigBuilder) WithLogger(logger *slog.Logger) *ConfigBuilder {
	cb.config.Logger = logger
	return cb
}

// WithLogging sets the level and format ("text" or "json") of the logger
// built when no logger is supplied.
func (cb *ConfigBuilder) WithLogging(level, format string) *ConfigBuilder {
	cb.config.Logging = LoggingConfig{Level: level, Format: format}
	return cb
}

func (cb *ConfigBuilder) WithEngineSettings(maxConcurrent int, executionTimeout time.Duration, failurePolicy FailurePolicy) *ConfigBuilder {
	cb.config.WithEngineSettings(maxConcurrent, executionTimeout, failurePolicy)
	return cb
}

func (cb *ConfigBuilder) WithRetryPolicy(policy RetryPolicy) *ConfigBuilder {
	cb.config.WithRetryPolicy(policy)
	return cb
}

func (cb *ConfigBuilder) WithBranchConcurrency(enabled bool, maxParallel int) *ConfigBuilder {
	cb.config.WithBranchConcurrency(enabled, maxParallel)
	return cb
}

func (cb *ConfigBuilder) WithMaxLoopIterations(max int) *ConfigBuilder {
	cb.config.Engine.MaxLoopIterations = max
	return cb
}

func (cb *ConfigBuilder) WithNodeTimeout(timeout time.Duration) *ConfigBuilder {
	cb.config.Engine.NodeExecutionTimeout = timeout
	return cb
}

// WithBadgerStorage persists executions in BadgerDB at path, resolved
// against the data directory when relative.
func (cb *ConfigBuilder) WithBadgerStorage(path string) *ConfigBuilder {
	cb.config.WithBadgerStorage(path)
	return cb
}

func (cb *ConfigBuilder) WithMemoryStorage() *ConfigBuilder {
	cb.config.WithMemoryStorage()
	return cb
}

// WithObservability serves health probes and metrics on addr.
func (cb *ConfigBuilder) WithObservability(addr string) *ConfigBuilder {
	cb.config.WithObservability(addr)
	return cb
}

func (cb *ConfigBuilder) WithEventBuffer(size int) *ConfigBuilder {
	cb.config.Events.BufferSize = size
	return cb
}

func (cb *ConfigBuilder) Build() *Config {
	return cb.config
}

// Errors

type ValidationError = domain.ValidationError
type ValidationIssue = domain.ValidationIssue
type NodeExecutionError = domain.NodeExecutionError
type StoreError = domain.StoreError
type TimeoutError = domain.TimeoutError
type CancellationError = domain.CancellationError
type ConfigError = domain.ConfigError
type ErrorKind = domain.ErrorKind

var (
	ErrAlreadyStarted = domain.ErrAlreadyStarted
	ErrNotStarted     = domain.ErrNotStarted
	ErrNotFound       = domain.ErrNotFound
	ErrInvalidConfig  = domain.ErrInvalidConfig
	ErrInvalidInput   = domain.ErrInvalidInput
	ErrConflict       = domain.ErrConflict
	ErrClosed         = domain.ErrClosed
)

func IsNotFound(err error) bool {
	return domain.IsNotFound(err)
}

func IsConflict(err error) bool {
	return domain.IsConflict(err)
}

func IsValidationError(err error) bool {
	return domain.IsValidationError(err)
}

func IsStoreError(err error) bool {
	return domain.IsStoreError(err)
}

func KindOf(err error) ErrorKind {
	return domain.KindOf(err)
}

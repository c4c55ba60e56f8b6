package domain

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Engine.MaxConcurrentExecutions)
	assert.Equal(t, FailurePolicyStopWorkflow, cfg.Engine.FailurePolicy)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.False(t, cfg.Engine.BranchConcurrency)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero concurrency", func(c *Config) { c.Engine.MaxConcurrentExecutions = 0 }, "engine.max_concurrent_executions"},
		{"negative timeout", func(c *Config) { c.Engine.ExecutionTimeoutSeconds = -1 }, "engine.execution_timeout_seconds"},
		{"unknown failure policy", func(c *Config) { c.Engine.FailurePolicy = "explode" }, "engine.failure_policy"},
		{"negative loop guard", func(c *Config) { c.Engine.MaxLoopIterations = -1 }, "engine.max_loop_iterations"},
		{"parallel without width", func(c *Config) {
			c.Engine.BranchConcurrency = true
			c.Engine.MaxBranchParallelism = 0
		}, "engine.max_branch_parallelism"},
		{"bad retry backoff", func(c *Config) { c.Engine.DefaultRetryPolicy.Backoff = "linear" }, "engine.default_retry_policy"},
		{"store retries disabled", func(c *Config) { c.Engine.StoreRetryPolicy.MaxAttempts = 0 }, "engine.store_retry_policy.max_attempts"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseConfigOverlaysDefaults(t *testing.T) {
	data := []byte(`
data_dir: /var/lib/loom
logging:
  level: debug
engine:
  max_concurrent_executions: 3
  execution_timeout_seconds: 30
  branch_concurrency: true
  default_retry_policy:
    max_attempts: 4
    base_delay: 250ms
storage:
  backend: badger
  path: exec
`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/loom", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 3, cfg.Engine.MaxConcurrentExecutions)
	assert.Equal(t, 30*time.Second, cfg.Engine.ExecutionTimeout())
	assert.True(t, cfg.Engine.BranchConcurrency)
	assert.Equal(t, 4, cfg.Engine.MaxBranchParallelism)
	assert.Equal(t, 4, cfg.Engine.DefaultRetryPolicy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.DefaultRetryPolicy.BaseDelay)
	assert.Equal(t, BackoffExponential, cfg.Engine.DefaultRetryPolicy.Backoff)
	assert.Equal(t, 100, cfg.Engine.MaxLoopIterations)
	assert.Equal(t, StorageBadger, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join("/var/lib/loom", "exec"), cfg.StoragePath())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_loop_iterations: 7\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxLoopIterations)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfigRejectsMalformedYAML(t *testing.T) {
	_, err := ParseConfig([]byte("engine: [unterminated"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))
}

func TestBuildLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logging = LoggingConfig{Level: "warn", Format: "json"}

	logger := cfg.BuildLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "execution_id", "e1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"execution_id":"e1"`)
}

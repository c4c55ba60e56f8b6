package definition

import (
	"fmt"
	"time"

	"github.com/eleven-am/loom/internal/domain"
)

// document is the on-disk shape shared by the JSON and YAML formats.
// Durations are written as Go duration strings ("1s", "2m30s").
type document struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name,omitempty" yaml:"name,omitempty"`
	Settings    settingsDocument    `json:"settings,omitempty" yaml:"settings,omitempty"`
	Nodes       []nodeDocument      `json:"nodes" yaml:"nodes"`
	Connections []domain.Connection `json:"connections,omitempty" yaml:"connections,omitempty"`
}

type settingsDocument struct {
	FailurePolicy     string `json:"failure_policy,omitempty" yaml:"failure_policy,omitempty"`
	MaxLoopIterations int    `json:"max_loop_iterations,omitempty" yaml:"max_loop_iterations,omitempty"`
	TimeoutSeconds    int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

type nodeDocument struct {
	ID            string                 `json:"id" yaml:"id"`
	Type          string                 `json:"type" yaml:"type"`
	Parameters    map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Position      []float64              `json:"position,omitempty" yaml:"position,omitempty"`
	Trigger       bool                   `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	InputMode     string                 `json:"input_mode,omitempty" yaml:"input_mode,omitempty"`
	FailurePolicy string                 `json:"failure_policy,omitempty" yaml:"failure_policy,omitempty"`
	ErrorOutput   *int                   `json:"error_output,omitempty" yaml:"error_output,omitempty"`
	Retry         *retryDocument         `json:"retry,omitempty" yaml:"retry,omitempty"`
}

type retryDocument struct {
	MaxAttempts    int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Backoff        string   `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	BaseDelay      string   `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
	MaxDelay       string   `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	RetryableKinds []string `json:"retryable_kinds,omitempty" yaml:"retryable_kinds,omitempty"`
}

func (d document) toGraph() (*domain.WorkflowGraph, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("workflow id is required: %w", domain.ErrInvalidInput)
	}
	wf := &domain.WorkflowGraph{
		ID:          d.ID,
		Name:        d.Name,
		Connections: append([]domain.Connection(nil), d.Connections...),
		Settings: domain.WorkflowSettings{
			FailurePolicy:     domain.FailurePolicy(d.Settings.FailurePolicy),
			MaxLoopIterations: d.Settings.MaxLoopIterations,
			TimeoutSeconds:    d.Settings.TimeoutSeconds,
		},
	}
	for _, n := range d.Nodes {
		node := domain.Node{
			ID:            n.ID,
			Type:          n.Type,
			Parameters:    normalizeParameters(n.Parameters),
			Position:      n.Position,
			Trigger:       n.Trigger,
			InputMode:     domain.InputMode(n.InputMode),
			FailurePolicy: domain.FailurePolicy(n.FailurePolicy),
			ErrorOutput:   n.ErrorOutput,
		}
		if n.Retry != nil {
			policy, err := n.Retry.toPolicy()
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.ID, err)
			}
			node.RetryPolicy = &policy
		}
		wf.Nodes = append(wf.Nodes, node)
	}
	return wf, nil
}

func (r retryDocument) toPolicy() (domain.RetryPolicy, error) {
	policy := domain.RetryPolicy{
		MaxAttempts:    r.MaxAttempts,
		Backoff:        domain.BackoffKind(r.Backoff),
		RetryableKinds: r.RetryableKinds,
	}
	var err error
	if policy.BaseDelay, err = parseDuration("base_delay", r.BaseDelay); err != nil {
		return policy, err
	}
	if policy.MaxDelay, err = parseDuration("max_delay", r.MaxDelay); err != nil {
		return policy, err
	}
	return policy, policy.Validate()
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, raw, domain.ErrInvalidInput)
	}
	return d, nil
}

// normalizeParameters rewrites the map[interface{}]interface{} and int values
// some decoders produce into the JSON-shaped values nodes expect.
func normalizeParameters(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return normalizeParameters(val)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[fmt.Sprint(k)] = normalizeValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = normalizeValue(inner)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return v
	}
}

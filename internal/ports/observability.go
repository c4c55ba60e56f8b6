package ports

import "github.com/eleven-am/loom/internal/domain"

type HealthStatus struct {
	Healthy bool                   `json:"healthy"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type HealthCheckProvider interface {
	GetHealth() HealthStatus
}

type MetricsProvider interface {
	GetMetrics() domain.ExecutionMetrics
}

package storage

import (
	"fmt"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/xjson"
)

const (
	snapshotVersion = 1

	dataPrefix    = "execution:data:"
	summaryPrefix = "execution:summary:"
	statusPrefix  = "execution:status:"
)

type snapshotEnvelope struct {
	Version   int                      `json:"version"`
	Execution *domain.ExecutionContext `json:"execution"`
}

func dataKey(id string) string {
	return dataPrefix + id
}

func summaryKey(id string) string {
	return summaryPrefix + id
}

func statusKey(status domain.ExecutionStatus, id string) string {
	return statusPrefix + string(status) + ":" + id
}

func statusIndexPrefix(status domain.ExecutionStatus) string {
	return statusPrefix + string(status) + ":"
}

func encodeSnapshot(exec *domain.ExecutionContext) ([]byte, error) {
	data, err := xjson.Marshal(snapshotEnvelope{Version: snapshotVersion, Execution: exec})
	if err != nil {
		return nil, fmt.Errorf("encode execution %s: %w", exec.ID, err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*domain.ExecutionContext, error) {
	var env snapshotEnvelope
	if err := xjson.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode execution snapshot: %w", err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d: %w", env.Version, domain.ErrInvalidInput)
	}
	if env.Execution == nil {
		return nil, fmt.Errorf("snapshot carries no execution: %w", domain.ErrInvalidInput)
	}
	exec := env.Execution
	if exec.RunData == nil {
		exec.RunData = make(map[string][]domain.NodeRun)
	}
	if exec.Nodes == nil {
		exec.Nodes = make(map[string]*domain.NodeState)
	}
	return exec, nil
}

func encodeSummary(s domain.ExecutionSummary) ([]byte, error) {
	return xjson.Marshal(s)
}

func decodeSummary(data []byte) (domain.ExecutionSummary, error) {
	var s domain.ExecutionSummary
	err := xjson.Unmarshal(data, &s)
	return s, err
}

func validateForSave(exec *domain.ExecutionContext) error {
	if exec == nil || exec.ID == "" {
		return domain.NewStoreError("save", "", fmt.Errorf("execution id is required: %w", domain.ErrInvalidInput))
	}
	return nil
}

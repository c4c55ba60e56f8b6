package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

type memoryRecord struct {
	data    []byte
	summary domain.ExecutionSummary
}

// MemoryStore keeps encoded snapshots in process memory. Snapshots are
// encoded on save so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	closed  bool
	logger  *slog.Logger
}

var _ ports.ExecutionStorePort = (*MemoryStore)(nil)

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		logger:  logger.With("component", "memory-store"),
	}
}

func (s *MemoryStore) Save(ctx context.Context, exec *domain.ExecutionContext) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("save", "", err)
	}
	if err := validateForSave(exec); err != nil {
		return err
	}
	data, err := encodeSnapshot(exec)
	if err != nil {
		return domain.NewStoreError("save", dataKey(exec.ID), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.NewStoreError("save", dataKey(exec.ID), domain.ErrClosed)
	}
	s.records[exec.ID] = memoryRecord{data: data, summary: exec.Summary()}
	s.logger.Debug("saved execution snapshot", "execution_id", exec.ID, "status", exec.Status, "sequence", exec.Sequence)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, executionID string) (*domain.ExecutionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("load", dataKey(executionID), err)
	}
	s.mu.RLock()
	rec, ok := s.records[executionID]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, domain.NewStoreError("load", dataKey(executionID), domain.ErrClosed)
	}
	if !ok {
		return nil, domain.NewStoreError("load", dataKey(executionID), domain.ErrNotFound)
	}
	exec, err := decodeSnapshot(rec.data)
	if err != nil {
		return nil, domain.NewStoreError("load", dataKey(executionID), err)
	}
	return exec, nil
}

func (s *MemoryStore) ListRecoverable(ctx context.Context) ([]*domain.ExecutionContext, error) {
	s.mu.RLock()
	var ids []string
	for id, rec := range s.records {
		if rec.summary.Status.IsRecoverable() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*domain.ExecutionContext, 0, len(ids))
	for _, id := range ids {
		exec, err := s.Load(ctx, id)
		if err != nil {
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("list", summaryPrefix, err)
	}
	s.mu.RLock()
	summaries := make([]domain.ExecutionSummary, 0, len(s.records))
	for _, rec := range s.records {
		summaries = append(summaries, rec.summary)
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID > summaries[j].ID })

	var out []domain.ExecutionSummary
	for _, sum := range summaries {
		if !filter.Matches(sum) {
			continue
		}
		out = append(out, sum)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, filter domain.ExecutionFilter) (int, error) {
	filter.Limit = 0
	list, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func (s *MemoryStore) Delete(ctx context.Context, executionID string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("delete", dataKey(executionID), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[executionID]; !ok {
		return domain.NewStoreError("delete", dataKey(executionID), fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound))
	}
	delete(s.records, executionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.NewStoreError("close", "", domain.ErrClosed)
	}
	s.closed = true
	return nil
}

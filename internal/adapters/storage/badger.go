package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration
}

// BadgerStore persists executions in BadgerDB. Each save writes the
// snapshot, its summary and its status index entry in one transaction.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger

	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

var _ ports.ExecutionStorePort = (*BadgerStore)(nil)

func NewBadgerStore(config BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger-store")

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, domain.NewConfigError("storage.path", domain.ErrInvalidInput)
		}
		if err := os.MkdirAll(config.Path, 0755); err != nil {
			return nil, domain.NewStoreError("open", config.Path, err)
		}
		opts = badger.DefaultOptions(config.Path)
	}
	opts.SyncWrites = config.SyncWrites
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewStoreError("open", config.Path, err)
	}

	s := &BadgerStore{
		db:     db,
		logger: logger,
		stopGC: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	if config.GCInterval > 0 && !config.InMemory {
		go s.runGarbageCollection(config.GCInterval)
	} else {
		close(s.gcDone)
	}
	return s, nil
}

func (s *BadgerStore) Save(ctx context.Context, exec *domain.ExecutionContext) error {
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
	summary := exec.Summary()
	summaryData, err := encodeSummary(summary)
	if err != nil {
		return domain.NewStoreError("save", summaryKey(exec.ID), err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		prev, found, err := getSummary(txn, exec.ID)
		if err != nil {
			return err
		}
		if found && prev.Status != summary.Status {
			if err := txn.Delete([]byte(statusKey(prev.Status, exec.ID))); err != nil {
				return err
			}
		}
		if err := txn.Set([]byte(dataKey(exec.ID)), data); err != nil {
			return err
		}
		if err := txn.Set([]byte(summaryKey(exec.ID)), summaryData); err != nil {
			return err
		}
		return txn.Set([]byte(statusKey(summary.Status, exec.ID)), nil)
	})
	if err != nil {
		s.logger.Error("failed to save execution", "execution_id", exec.ID, "error", err)
		return domain.NewStoreError("save", dataKey(exec.ID), err)
	}
	s.logger.Debug("saved execution snapshot", "execution_id", exec.ID, "status", exec.Status, "sequence", exec.Sequence, "bytes", len(data))
	return nil
}

func getSummary(txn *badger.Txn, id string) (domain.ExecutionSummary, bool, error) {
	item, err := txn.Get([]byte(summaryKey(id)))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ExecutionSummary{}, false, nil
		}
		return domain.ExecutionSummary{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return domain.ExecutionSummary{}, false, err
	}
	summary, err := decodeSummary(raw)
	if err != nil {
		return domain.ExecutionSummary{}, false, err
	}
	return summary, true, nil
}

func (s *BadgerStore) Load(ctx context.Context, executionID string) (*domain.ExecutionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("load", dataKey(executionID), err)
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataKey(executionID)))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.NewStoreError("load", dataKey(executionID), domain.ErrNotFound)
		}
		return nil, domain.NewStoreError("load", dataKey(executionID), err)
	}
	exec, err := decodeSnapshot(raw)
	if err != nil {
		return nil, domain.NewStoreError("load", dataKey(executionID), err)
	}
	return exec, nil
}

func (s *BadgerStore) ListRecoverable(ctx context.Context) ([]*domain.ExecutionContext, error) {
	statuses := []domain.ExecutionStatus{domain.StatusNew, domain.StatusRunning, domain.StatusWaiting, domain.StatusCrashed}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		for _, status := range statuses {
			prefix := []byte(statusIndexPrefix(status))
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				key := it.Item().Key()
				ids = append(ids, string(bytes.TrimPrefix(key, prefix)))
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("list_recoverable", statusPrefix, err)
	}
	sort.Strings(ids)

	out := make([]*domain.ExecutionContext, 0, len(ids))
	for _, id := range ids {
		exec, err := s.Load(ctx, id)
		if err != nil {
			if domain.IsNotFound(err) {
				s.logger.Warn("status index points at missing execution", "execution_id", id)
				continue
			}
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

// List walks summaries newest first. Execution ids are time ordered, so key
// order is creation order.
func (s *BadgerStore) List(ctx context.Context, filter domain.ExecutionFilter) ([]domain.ExecutionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStoreError("list", summaryPrefix, err)
	}
	var out []domain.ExecutionSummary
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(summaryPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		if filter.LastID != "" {
			seek = []byte(summaryKey(filter.LastID))
		}
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			summary, err := decodeSummary(raw)
			if err != nil {
				return err
			}
			if filter.FirstID != "" && summary.ID <= filter.FirstID {
				break
			}
			if !filter.Matches(summary) {
				continue
			}
			out = append(out, summary)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("list", summaryPrefix, err)
	}
	return out, nil
}

// Count walks the status index when the filter selects by status alone, so
// no summary is decoded. Other filters fall back to List.
func (s *BadgerStore) Count(ctx context.Context, filter domain.ExecutionFilter) (int, error) {
	if isStatusOnly(filter) {
		return s.countByStatus(ctx, filter.Statuses)
	}
	filter.Limit = 0
	list, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

func isStatusOnly(filter domain.ExecutionFilter) bool {
	return len(filter.Statuses) > 0 &&
		len(filter.WorkflowIDs) == 0 &&
		len(filter.ExcludedWorkflowIDs) == 0 &&
		filter.LastID == "" &&
		filter.FirstID == ""
}

func (s *BadgerStore) countByStatus(ctx context.Context, statuses []domain.ExecutionStatus) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStoreError("count", statusPrefix, err)
	}
	count := 0
	seen := make(map[domain.ExecutionStatus]bool, len(statuses))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, status := range statuses {
			if seen[status] {
				continue
			}
			seen[status] = true

			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(statusIndexPrefix(status))
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				count++
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return 0, domain.NewStoreError("count", statusPrefix, err)
	}
	return count, nil
}

func (s *BadgerStore) Delete(ctx context.Context, executionID string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("delete", dataKey(executionID), err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		summary, found, err := getSummary(txn, executionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("execution %s: %w", executionID, domain.ErrNotFound)
		}
		for _, key := range []string{dataKey(executionID), summaryKey(executionID), statusKey(summary.Status, executionID)} {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError("delete", dataKey(executionID), err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopGC)
		<-s.gcDone
		err = s.db.Close()
	})
	if err != nil {
		return domain.NewStoreError("close", "", err)
	}
	return nil
}

func (s *BadgerStore) runGarbageCollection(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			lsm, vlog := s.db.Size()
			s.logger.Debug("running garbage collection", "lsm_size", lsm, "vlog_size", vlog)
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Error("garbage collection failed", "error", err)
			}
		}
	}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}

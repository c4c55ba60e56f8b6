package queue

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Queue is the FIFO admission queue of execution ids. An id is held at
// most once; re-enqueueing a queued id is a no-op.
type Queue struct {
	name    string
	logger  *slog.Logger
	mu      sync.Mutex
	items   *list.List
	index   map[string]*list.Element
	ready   chan struct{}
	closed  bool
	metrics *domain.ExecutionMetrics
}

var _ ports.QueuePort = (*Queue)(nil)

func NewQueue(name string, metrics *domain.ExecutionMetrics, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		name:    name,
		logger:  logger.With("component", "queue", "queue", name),
		items:   list.New(),
		index:   make(map[string]*list.Element),
		ready:   make(chan struct{}),
		metrics: metrics,
	}
}

// Enqueue appends the id and reports whether it was added.
func (q *Queue) Enqueue(executionID string) (bool, error) {
	if executionID == "" {
		return false, domain.NewConfigError("execution_id", domain.ErrInvalidInput)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, domain.ErrClosed
	}
	if _, exists := q.index[executionID]; exists {
		q.mu.Unlock()
		return false, nil
	}
	q.index[executionID] = q.items.PushBack(executionID)
	size := q.items.Len()
	q.signalLocked()
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.IncrementExecutionsQueued()
	}
	q.logger.Debug("execution enqueued", "execution_id", executionID, "size", size)
	return true, nil
}

func (q *Queue) Claim() (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", false, domain.ErrClosed
	}
	front := q.items.Front()
	if front == nil {
		return "", false, nil
	}
	id := q.items.Remove(front).(string)
	delete(q.index, id)
	return id, true, nil
}

func (q *Queue) Remove(executionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	el, exists := q.index[executionID]
	if !exists {
		return false
	}
	q.items.Remove(el)
	delete(q.index, executionID)
	return true
}

func (q *Queue) Contains(executionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.index[executionID]
	return exists
}

var closedReady = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Ready returns a channel that is closed once an item may be available or
// the queue closes. Every waiter holding the channel is released together.
func (q *Queue) Ready() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.items.Len() > 0 {
		return closedReady
	}
	return q.ready
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrClosed
	}
	q.closed = true
	close(q.ready)
	return nil
}

// signalLocked must be called with q.mu held.
func (q *Queue) signalLocked() {
	if q.closed {
		return
	}
	close(q.ready)
	q.ready = make(chan struct{})
}

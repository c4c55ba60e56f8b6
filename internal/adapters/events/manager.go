package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Manager fans lifecycle events out to registered handlers. Before Start,
// Publish delivers inline; after Start a single dispatcher goroutine
// delivers events in publish order.
type Manager struct {
	logger     *slog.Logger
	bufferSize int

	mu       sync.RWMutex
	typed    map[domain.EventType][]func(*domain.Event)
	generic  []genericSubscription
	running  bool
	queue    chan domain.Event
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

type genericSubscription struct {
	id      string
	pattern string
	handler func(domain.Event)
}

var _ ports.EventManager = (*Manager)(nil)

func NewManager(bufferSize int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = domain.DefaultEventsConfig().BufferSize
	}
	return &Manager{
		logger:     logger.With("component", "event-manager"),
		bufferSize: bufferSize,
		typed:      make(map[domain.EventType][]func(*domain.Event)),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return domain.ErrAlreadyStarted
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.queue = make(chan domain.Event, m.bufferSize)
	m.done = make(chan struct{})
	m.running = true

	go m.dispatch(m.queue, m.done)

	m.logger.Debug("event manager started", "buffer_size", m.bufferSize)
	return nil
}

// Stop delivers everything already published, then returns.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return domain.ErrNotStarted
	}
	m.running = false
	queue, done, cancel := m.queue, m.done, m.cancel
	m.mu.Unlock()

	m.inflight.Wait()
	close(queue)
	<-done
	cancel()

	m.logger.Debug("event manager stopped")
	return nil
}

func (m *Manager) Publish(ctx context.Context, event domain.Event) {
	m.mu.RLock()
	running := m.running
	queue := m.queue
	if running {
		m.inflight.Add(1)
	}
	m.mu.RUnlock()

	if !running {
		m.deliver(event)
		return
	}
	defer m.inflight.Done()

	select {
	case queue <- event:
	case <-ctx.Done():
		m.logger.Warn("event dropped, publisher context done", "type", event.Type, "execution_id", event.ExecutionID)
	}
}

func (m *Manager) dispatch(queue <-chan domain.Event, done chan<- struct{}) {
	defer close(done)
	for event := range queue {
		m.deliver(event)
	}
}

func (m *Manager) deliver(event domain.Event) {
	m.mu.RLock()
	typed := append([]func(*domain.Event){}, m.typed[event.Type]...)
	var generic []func(domain.Event)
	for _, sub := range m.generic {
		if patternMatches(sub.pattern, string(event.Type)) {
			generic = append(generic, sub.handler)
		}
	}
	m.mu.RUnlock()

	for _, handler := range typed {
		ev := event
		m.safeCall(event, func() { handler(&ev) })
	}
	for _, handler := range generic {
		m.safeCall(event, func() { handler(event) })
	}
}

// Subscribe registers a handler for every event.
func (m *Manager) Subscribe(handler func(event domain.Event)) func() {
	return m.SubscribePattern("*", handler)
}

// SubscribePattern registers a handler for event types matching pattern;
// a trailing "*" matches by prefix, e.g. "node.*".
func (m *Manager) SubscribePattern(pattern string, handler func(event domain.Event)) func() {
	id := uuid.New().String()

	m.mu.Lock()
	m.generic = append(m.generic, genericSubscription{id: id, pattern: pattern, handler: handler})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		filtered := m.generic[:0]
		for _, sub := range m.generic {
			if sub.id != id {
				filtered = append(filtered, sub)
			}
		}
		m.generic = filtered
	}
}

func (m *Manager) on(eventType domain.EventType, handler func(*domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typed[eventType] = append(m.typed[eventType], handler)
}

func (m *Manager) OnExecutionStarted(handler func(event *domain.Event)) {
	m.on(domain.EventExecutionStarted, handler)
}

func (m *Manager) OnExecutionFinished(handler func(event *domain.Event)) {
	m.on(domain.EventExecutionFinished, handler)
}

func (m *Manager) OnExecutionWaiting(handler func(event *domain.Event)) {
	m.on(domain.EventExecutionWaiting, handler)
}

func (m *Manager) OnExecutionResumed(handler func(event *domain.Event)) {
	m.on(domain.EventExecutionResumed, handler)
}

func (m *Manager) OnExecutionCrashed(handler func(event *domain.Event)) {
	m.on(domain.EventExecutionCrashed, handler)
}

func (m *Manager) OnNodeStarted(handler func(event *domain.Event)) {
	m.on(domain.EventNodeStarted, handler)
}

func (m *Manager) OnNodeCompleted(handler func(event *domain.Event)) {
	m.on(domain.EventNodeCompleted, handler)
}

func (m *Manager) OnNodeFailed(handler func(event *domain.Event)) {
	m.on(domain.EventNodeFailed, handler)
}

func patternMatches(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}

func (m *Manager) safeCall(event domain.Event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked", "panic", r, "type", event.Type, "execution_id", event.ExecutionID)
		}
	}()
	fn()
}

package core

import "github.com/eleven-am/loom/internal/domain"

// Subscribe registers handler for every lifecycle event and returns a
// function that removes it.
func (m *Manager) Subscribe(handler func(event domain.Event)) func() {
	return m.eventManager.Subscribe(handler)
}

// SubscribePattern registers handler for event types matching pattern,
// e.g. "node.*".
func (m *Manager) SubscribePattern(pattern string, handler func(event domain.Event)) func() {
	return m.eventManager.SubscribePattern(pattern, handler)
}

func (m *Manager) OnExecutionStarted(handler func(event *domain.Event)) {
	m.eventManager.OnExecutionStarted(handler)
}

func (m *Manager) OnExecutionFinished(handler func(event *domain.Event)) {
	m.eventManager.OnExecutionFinished(handler)
}

func (m *Manager) OnExecutionWaiting(handler func(event *domain.Event)) {
	m.eventManager.OnExecutionWaiting(handler)
}

func (m *Manager) OnExecutionResumed(handler func(event *domain.Event)) {
	m.eventManager.OnExecutionResumed(handler)
}

func (m *Manager) OnExecutionCrashed(handler func(event *domain.Event)) {
	m.eventManager.OnExecutionCrashed(handler)
}

func (m *Manager) OnNodeStarted(handler func(event *domain.Event)) {
	m.eventManager.OnNodeStarted(handler)
}

func (m *Manager) OnNodeCompleted(handler func(event *domain.Event)) {
	m.eventManager.OnNodeCompleted(handler)
}

func (m *Manager) OnNodeFailed(handler func(event *domain.Event)) {
	m.eventManager.OnNodeFailed(handler)
}

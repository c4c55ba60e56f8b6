package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// EventSink receives lifecycle events. Publish must not block the scheduler
// for long and must not fail it.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event)
}

type EventManager interface {
	EventSink

	Start(ctx context.Context) error
	Stop() error

	Subscribe(handler func(event domain.Event)) (unsubscribe func())

	OnExecutionStarted(handler func(event *domain.Event))
	OnExecutionFinished(handler func(event *domain.Event))
	OnExecutionWaiting(handler func(event *domain.Event))
	OnExecutionResumed(handler func(event *domain.Event))
	OnExecutionCrashed(handler func(event *domain.Event))

	OnNodeStarted(handler func(event *domain.Event))
	OnNodeCompleted(handler func(event *domain.Event))
	OnNodeFailed(handler func(event *domain.Event))
}

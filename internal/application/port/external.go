package port

import (
	"context"

	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/internal/domain/event"
)

// NotificationEmitter records a directed message between two agencies
type NotificationEmitter interface {
	Send(ctx context.Context, intent entity.NotificationIntent) (string, error)
}

// EventPublisher forwards domain events to an external topic
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
}

// ChatRelay delivers a text message to a chat user and returns the remote message id
type ChatRelay interface {
	SendText(ctx context.Context, openID, text string) (string, error)
}

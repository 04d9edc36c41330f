package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/event"
	"go.uber.org/zap"
)

// Metadata keys set on every published message
const (
	MetadataEventType = "event_type"
	MetadataProjectID = "project_id"
)

// DefaultTopic carries every workflow event
const DefaultTopic = "workflow.events"

// Config holds event bus configuration
type Config struct {
	Topic  string
	Buffer int64
}

// EventBus publishes domain events to an in-process watermill topic that
// dashboard streams subscribe to. Subscribers that are not reading do not
// block publishers beyond the output buffer.
type EventBus struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger *zap.Logger
}

// NewEventBus creates a gochannel-backed event bus
func NewEventBus(cfg Config, logger *zap.Logger) *EventBus {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.Buffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		NewZapAdapter(logger.Named("watermill")),
	)

	return &EventBus{
		pubSub: pubSub,
		topic:  cfg.Topic,
		logger: logger,
	}
}

// Publish encodes the event as JSON and sends it to the topic
func (b *EventBus) Publish(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(MetadataEventType, string(evt.Type))
	msg.Metadata.Set(MetadataProjectID, evt.ProjectID)
	msg.SetContext(ctx)

	if err := b.pubSub.Publish(b.topic, msg); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("project_id", evt.ProjectID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe streams decoded events until ctx is cancelled or the bus closes.
// Undecodable messages are acked and dropped.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan *event.Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *event.Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var evt event.Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Warn("Dropping undecodable event",
					zap.String("message_uuid", msg.UUID),
					zap.Error(err))
				msg.Ack()
				continue
			}

			select {
			case out <- &evt:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the topic down and ends every subscription
func (b *EventBus) Close() error {
	return b.pubSub.Close()
}

var _ port.EventPublisher = (*EventBus)(nil)

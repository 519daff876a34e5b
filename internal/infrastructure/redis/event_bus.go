package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"procflow/internal/domain"
)

const transitionChannel = "procflow:events:transitions"

// EventBus broadcasts committed workflow transitions over Redis Pub/Sub.
// Publishing is best-effort from the engine's point of view; durability
// lives in the checkpoint store, not here.
type EventBus struct {
	client  *redis.Client
	channel string
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{
		client:  client,
		channel: transitionChannel,
	}
}

func (b *EventBus) PublishTransition(ctx context.Context, event domain.TransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// SubscribeToTransitions opens a continuous stream of transition events.
// The returned channel closes when ctx is cancelled.
func (b *EventBus) SubscribeToTransitions(ctx context.Context) (<-chan domain.TransitionEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	events := make(chan domain.TransitionEvent)

	go func() {
		defer close(events)
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			var event domain.TransitionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

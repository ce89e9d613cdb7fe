package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"callfeed-backend/internal/database"
	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
)

// Channel is the Redis pub/sub channel carrying call record events
const Channel = "callfeed:records"

// Kind discriminates the event payloads on the feed
type Kind string

const (
	KindRecordInserted   Kind = "record_inserted"
	KindRecordChanged    Kind = "record_status_changed"
	KindCallStateChanged Kind = "call_state_changed"
)

// Event is the wire format of a call record event. Events may arrive at
// any time; consumers must drain them without blocking the emitter.
type Event struct {
	Kind Kind `json:"kind"`

	// Key of the affected record (inserted / changed)
	Key *domain.CallRecordKey `json:"key,omitempty"`

	// Local call-state transition (call_state_changed)
	OldCallID *uint64 `json:"old_call_id,omitempty"`
	NewCallID *uint64 `json:"new_call_id,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// Publisher broadcasts record events over Redis pub/sub
type Publisher struct {
	client *database.RedisClient
}

// NewPublisher creates a publisher over the given Redis client
func NewPublisher(client *database.RedisClient) *Publisher {
	return &Publisher{client: client}
}

// RecordInserted publishes a record-inserted event
func (p *Publisher) RecordInserted(ctx context.Context, key domain.CallRecordKey) error {
	return p.publish(ctx, Event{Kind: KindRecordInserted, Key: &key})
}

// RecordChanged publishes a record-status-changed event
func (p *Publisher) RecordChanged(ctx context.Context, key domain.CallRecordKey) error {
	return p.publish(ctx, Event{Kind: KindRecordChanged, Key: &key})
}

// CallStateChanged publishes a local call-state transition
func (p *Publisher) CallStateChanged(ctx context.Context, oldCallID, newCallID *uint64) error {
	return p.publish(ctx, Event{Kind: KindCallStateChanged, OldCallID: oldCallID, NewCallID: newCallID})
}

func (p *Publisher) publish(ctx context.Context, event Event) error {
	event.EmittedAt = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal record event: %w", err)
	}
	if err := p.client.SafePublish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish record event: %w", err)
	}
	return nil
}

// Subscriber receives record events from Redis pub/sub and hands them to
// a callback. Malformed payloads are logged and skipped.
type Subscriber struct {
	client *database.RedisClient
}

// NewSubscriber creates a subscriber over the given Redis client
func NewSubscriber(client *database.RedisClient) *Subscriber {
	return &Subscriber{client: client}
}

// Run subscribes to the record channel and invokes handle for every event
// until the context is cancelled. handle must not block: it is expected
// to enqueue onto a control-thread queue and return.
func (s *Subscriber) Run(ctx context.Context, handle func(Event)) error {
	sub := s.client.SafeSubscribe(ctx, Channel)
	if sub == nil {
		return fmt.Errorf("failed to subscribe to %s", Channel)
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("record event subscription closed")
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("skipping malformed record event",
					zap.Error(err),
					zap.String("payload", msg.Payload),
				)
				continue
			}
			handle(event)
		}
	}
}

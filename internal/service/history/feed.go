package history

import (
	"context"

	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
)

// Event is a message marshaled onto the control goroutine before it may
// touch the window. Emitting goroutines never block on delivery.
type Event interface{ isEvent() }

// SetFilterEvent applies a filter configuration
type SetFilterEvent struct{ Filter Filter }

// LoadMoreEvent requests one page in a direction
type LoadMoreEvent struct{ Direction PageDirection }

// ViewportEvent reports whether the presentation shows the top edge
type ViewportEvent struct{ AtTop bool }

// RecordInsertedEvent signals a new record in the store
type RecordInsertedEvent struct{ Key domain.CallRecordKey }

// RecordChangedEvent signals status changes for existing records
type RecordChangedEvent struct{ Keys []domain.CallRecordKey }

// CallStateChangedEvent signals a local active-call transition
type CallStateChangedEvent struct{ OldCallID, NewCallID *uint64 }

func (SetFilterEvent) isEvent()        {}
func (LoadMoreEvent) isEvent()         {}
func (ViewportEvent) isEvent()         {}
func (RecordInsertedEvent) isEvent()   {}
func (RecordChangedEvent) isEvent()    {}
func (CallStateChangedEvent) isEvent() {}

const feedQueueSize = 256

// Feed owns a Controller and serializes all state transitions onto a
// single control goroutine. Events are applied in arrival order; each is
// independently idempotent.
type Feed struct {
	ctrl   *Controller
	events chan Event
	done   chan struct{}
}

// NewFeed wraps a controller in an event pump
func NewFeed(ctrl *Controller) *Feed {
	return &Feed{
		ctrl:   ctrl,
		events: make(chan Event, feedQueueSize),
		done:   make(chan struct{}),
	}
}

// Handle enqueues an event without blocking the emitting goroutine.
// It reports false if the queue is full and the event was dropped.
func (f *Feed) Handle(event Event) bool {
	select {
	case f.events <- event:
		return true
	default:
		logger.Warn("call feed queue full, dropping event",
			zap.String("event", eventName(event)),
		)
		return false
	}
}

// Run drains the event queue until the context is cancelled. It must be
// the only goroutine touching the controller.
func (f *Feed) Run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-f.events:
			f.apply(ctx, event)
		}
	}
}

// Done is closed when Run has returned
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) apply(ctx context.Context, event Event) {
	var err error
	switch ev := event.(type) {
	case SetFilterEvent:
		err = f.ctrl.SetFilter(ctx, ev.Filter)
	case LoadMoreEvent:
		err = f.ctrl.LoadMore(ctx, ev.Direction)
	case ViewportEvent:
		f.ctrl.OnViewportChanged(ev.AtTop)
	case RecordInsertedEvent:
		err = f.ctrl.OnRecordInserted(ctx)
	case RecordChangedEvent:
		err = f.ctrl.OnRecordChanged(ctx, ev.Keys)
	case CallStateChangedEvent:
		err = f.ctrl.OnCallStateChanged(ctx, ev.OldCallID, ev.NewCallID)
	default:
		logger.Warn("call feed received unknown event type")
	}
	if err != nil {
		logger.Error("call feed event failed",
			zap.String("event", eventName(event)),
			zap.Error(err),
		)
	}
}

func eventName(event Event) string {
	switch event.(type) {
	case SetFilterEvent:
		return "set_filter"
	case LoadMoreEvent:
		return "load_more"
	case ViewportEvent:
		return "viewport"
	case RecordInsertedEvent:
		return "record_inserted"
	case RecordChangedEvent:
		return "record_changed"
	case CallStateChangedEvent:
		return "call_state_changed"
	default:
		return "unknown"
	}
}

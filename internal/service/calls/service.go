package calls

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
)

// RecordWriter is the slice of the call record store this service writes
type RecordWriter interface {
	Create(ctx context.Context, rec *domain.CallRecord) error
	UpdateStatus(ctx context.Context, key domain.CallRecordKey, status domain.CallStatus) error
	GetByKey(ctx context.Context, key domain.CallRecordKey) (*domain.CallRecord, error)
}

// ConversationLookup verifies the owning conversation exists before a
// record is written
type ConversationLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Conversation, error)
}

// LivenessStore maintains the companion liveness flag for group calls
type LivenessStore interface {
	MarkLive(ctx context.Context, callID uint64) error
	RefreshLiveness(ctx context.Context, callID uint64) error
	MarkEnded(ctx context.Context, callID uint64) error
}

// EventSink broadcasts record events to the history feeds
type EventSink interface {
	RecordInserted(ctx context.Context, key domain.CallRecordKey) error
	RecordChanged(ctx context.Context, key domain.CallRecordKey) error
	CallStateChanged(ctx context.Context, oldCallID, newCallID *uint64) error
}

// Service handles call lifecycle writes: every transition lands in the
// record store first, then goes out on the event feed.
type Service struct {
	records       RecordWriter
	conversations ConversationLookup
	liveness      LivenessStore
	events        EventSink
}

// NewService creates a new call lifecycle service
func NewService(records RecordWriter, conversations ConversationLookup, liveness LivenessStore, events EventSink) *Service {
	return &Service{
		records:       records,
		conversations: conversations,
		liveness:      liveness,
		events:        events,
	}
}

// StartCallInput describes an incoming or outgoing call being recorded
type StartCallInput struct {
	CallID         uint64
	ConversationID int64
	Direction      domain.CallDirection
	Medium         domain.CallMedium
	Category       domain.CallCategory
}

// StartCall records the beginning of a call. Group calls additionally get
// their liveness flag raised.
func (s *Service) StartCall(ctx context.Context, input *StartCallInput) (*domain.CallRecord, error) {
	if _, err := s.conversations.GetByID(ctx, input.ConversationID); err != nil {
		return nil, fmt.Errorf("conversation not found: %w", err)
	}

	rec := &domain.CallRecord{
		CallID:         input.CallID,
		ConversationID: input.ConversationID,
		Direction:      input.Direction,
		Medium:         input.Medium,
		Category:       input.Category,
		Status:         domain.StatusPending,
		StartedAtMS:    time.Now().UnixMilli(),
	}

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create call record: %w", err)
	}

	if rec.Category == domain.CategoryGroup {
		if err := s.liveness.MarkLive(ctx, rec.CallID); err != nil {
			return nil, fmt.Errorf("failed to mark group call live: %w", err)
		}
	}

	if err := s.events.RecordInserted(ctx, rec.Key()); err != nil {
		// The record is durable; a lost event only delays the feed until
		// the next full reload.
		logger.Warn("failed to publish record-inserted event",
			zap.Uint64("call_id", rec.CallID),
			zap.Error(err),
		)
	}

	return rec, nil
}

// AcceptCall marks a call accepted
func (s *Service) AcceptCall(ctx context.Context, key domain.CallRecordKey) error {
	return s.transition(ctx, key, domain.StatusAccepted)
}

// DeclineCall marks a call declined
func (s *Service) DeclineCall(ctx context.Context, key domain.CallRecordKey) error {
	return s.transition(ctx, key, domain.StatusDeclined)
}

// MarkMissed marks a call missed
func (s *Service) MarkMissed(ctx context.Context, key domain.CallRecordKey) error {
	return s.transition(ctx, key, domain.StatusMissed)
}

// DeleteCall marks a record deleted. The row stays in the store; readers
// filter it out of range queries.
func (s *Service) DeleteCall(ctx context.Context, key domain.CallRecordKey) error {
	return s.transition(ctx, key, domain.StatusDeleted)
}

// EndCall finishes a call. For group calls the liveness flag is cleared
// so derivation flips the row to ended.
func (s *Service) EndCall(ctx context.Context, key domain.CallRecordKey) error {
	rec, err := s.records.GetByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("call not found: %w", err)
	}

	if rec.Category == domain.CategoryGroup {
		if err := s.liveness.MarkEnded(ctx, rec.CallID); err != nil {
			return fmt.Errorf("failed to clear group call liveness: %w", err)
		}
	}

	if err := s.events.RecordChanged(ctx, key); err != nil {
		logger.Warn("failed to publish record-changed event",
			zap.Uint64("call_id", key.CallID),
			zap.Error(err),
		)
	}

	return nil
}

// SetActiveCall records a local call-state transition and broadcasts it
// to the history feeds
func (s *Service) SetActiveCall(ctx context.Context, oldCallID, newCallID *uint64) error {
	if err := s.events.CallStateChanged(ctx, oldCallID, newCallID); err != nil {
		return fmt.Errorf("failed to publish call-state-changed event: %w", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, key domain.CallRecordKey, status domain.CallStatus) error {
	if err := s.records.UpdateStatus(ctx, key, status); err != nil {
		return fmt.Errorf("failed to update call status: %w", err)
	}

	if err := s.events.RecordChanged(ctx, key); err != nil {
		logger.Warn("failed to publish record-changed event",
			zap.Uint64("call_id", key.CallID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}

	return nil
}

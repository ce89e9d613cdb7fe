package history

import (
	"context"
	"errors"
	"fmt"

	"callfeed-backend/internal/domain"
	apperrors "callfeed-backend/pkg/errors"
)

// ErrRecordNotFound is returned by store point lookups for absent keys
var ErrRecordNotFound = errors.New("call record not found")

// ErrConversationNotFound is returned by conversation point lookups
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationLookup resolves the conversation a record belongs to
type ConversationLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Conversation, error)
}

// GroupCallLiveness reads the companion liveness flag for a group call.
// The flag is written by a separate peeking process; an absent flag means
// the call has ended.
type GroupCallLiveness interface {
	IsLive(ctx context.Context, callID uint64) (bool, error)
}

// Ambient is the local call state threaded into derivation. It is an
// explicit parameter, never a global read.
type Ambient struct {
	// ActiveCallID is the call the local user is currently in, if any
	ActiveCallID *uint64
}

// Joined reports whether the local user is currently in the given call
func (a Ambient) Joined(callID uint64) bool {
	return a.ActiveCallID != nil && *a.ActiveCallID == callID
}

// Deriver turns call records into view rows. The same derivation runs at
// load time and at targeted refresh time.
type Deriver struct {
	conversations ConversationLookup
	liveness      GroupCallLiveness
}

// NewDeriver creates a deriver over the given collaborators
func NewDeriver(conversations ConversationLookup, liveness GroupCallLiveness) *Deriver {
	return &Deriver{conversations: conversations, liveness: liveness}
}

// Derive materializes a view row from a record snapshot plus ambient state.
// A record whose owning conversation is missing indicates a corrupted
// store; that is fatal, not recoverable.
func (d *Deriver) Derive(ctx context.Context, rec *domain.CallRecord, ambient Ambient) (*ViewRow, error) {
	conv, err := d.conversations.GetByID(ctx, rec.ConversationID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, apperrors.DataCorruptionError(
				fmt.Sprintf("call %d references missing conversation %d", rec.CallID, rec.ConversationID))
		}
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	row := &ViewRow{
		Key:         rec.Key(),
		Title:       conv.Title,
		Medium:      rec.Medium,
		Direction:   classifyDirection(rec),
		StartedAtMS: rec.StartedAtMS,
	}

	if conv.IsGroup() {
		row.Recipient = RecipientGroup
		state, err := d.groupState(ctx, rec, ambient)
		if err != nil {
			return nil, err
		}
		row.State = state
		return row, nil
	}

	row.Recipient = RecipientIndividual
	if ambient.Joined(rec.CallID) {
		row.State = StateJoined
	} else {
		row.State = StateEnded
	}
	return row, nil
}

// groupState derives the lifecycle state of a group call: ended when the
// companion liveness flag is down, joined when the local user is in it,
// otherwise ongoing-not-joined.
func (d *Deriver) groupState(ctx context.Context, rec *domain.CallRecord, ambient Ambient) (LifecycleState, error) {
	live, err := d.liveness.IsLive(ctx, rec.CallID)
	if err != nil {
		return "", fmt.Errorf("failed to read group call liveness: %w", err)
	}
	switch {
	case !live:
		return StateEnded, nil
	case ambient.Joined(rec.CallID):
		return StateJoined, nil
	default:
		return StateActive, nil
	}
}

func classifyDirection(rec *domain.CallRecord) DirectionClass {
	switch {
	case rec.IsMissed():
		return ClassMissed
	case rec.Direction == domain.DirectionOutgoing:
		return ClassOutgoing
	default:
		return ClassIncoming
	}
}

package domain

import "fmt"

// CallDirection indicates who placed the call
type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)

// CallMedium is the media type of a call
type CallMedium string

const (
	MediumAudio CallMedium = "audio"
	MediumVideo CallMedium = "video"
)

// CallCategory distinguishes 1-1 calls from group calls
type CallCategory string

const (
	CategoryIndividual CallCategory = "individual"
	CategoryGroup      CallCategory = "group"
)

// CallStatus is the lifecycle status of a call record
type CallStatus string

const (
	StatusPending  CallStatus = "pending"
	StatusAccepted CallStatus = "accepted"
	StatusMissed   CallStatus = "missed"
	StatusDeclined CallStatus = "declined"
	StatusDeleted  CallStatus = "deleted"
)

// CallRecordKey is the composite identity of a call record:
// the call identifier plus the owning conversation's row id.
// The tuple is unique within the store.
type CallRecordKey struct {
	CallID         uint64 `json:"call_id"`
	ConversationID int64  `json:"conversation_id"`
}

// String returns a stable textual form of the key, usable as a map key
func (k CallRecordKey) String() string {
	return fmt.Sprintf("%d:%d", k.CallID, k.ConversationID)
}

// CallRecord is an immutable snapshot of a call history entry.
// The owning conversation is guaranteed to exist; a record without one
// indicates a corrupted store.
type CallRecord struct {
	CallID         uint64        `json:"call_id"`
	ConversationID int64         `json:"conversation_id"`
	Direction      CallDirection `json:"direction"`
	Medium         CallMedium    `json:"medium"`
	Category       CallCategory  `json:"category"`
	Status         CallStatus    `json:"status"`
	StartedAtMS    int64         `json:"started_at_ms"` // milliseconds since epoch
}

// Key returns the record's composite identity
func (r *CallRecord) Key() CallRecordKey {
	return CallRecordKey{CallID: r.CallID, ConversationID: r.ConversationID}
}

// IsMissed reports whether the record counts as a missed call.
// Missed is derived from status, never stored as a separate flag.
func (r *CallRecord) IsMissed() bool {
	return r.Direction == DirectionIncoming &&
		(r.Status == StatusMissed || r.Status == StatusDeclined)
}

// IsDeleted reports whether the record is present but marked deleted
func (r *CallRecord) IsDeleted() bool {
	return r.Status == StatusDeleted
}

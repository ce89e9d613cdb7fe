package history

import (
	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
)

// PageDirection is the direction a page load grows the window
type PageDirection string

const (
	DirectionOlder PageDirection = "older"
	DirectionNewer PageDirection = "newer"
)

// RecipientKind classifies what a row is displayed as
type RecipientKind string

const (
	RecipientIndividual RecipientKind = "individual"
	RecipientGroup      RecipientKind = "group"
)

// DirectionClass is the per-row direction classification shown in the list
type DirectionClass string

const (
	ClassIncoming DirectionClass = "incoming"
	ClassOutgoing DirectionClass = "outgoing"
	ClassMissed   DirectionClass = "missed"
)

// LifecycleState is the live state of the call behind a row
type LifecycleState string

const (
	// StateActive means the call is ongoing but the local user has not joined
	StateActive LifecycleState = "active"
	// StateJoined means the local user is currently in the call
	StateJoined LifecycleState = "joined"
	// StateEnded means the call is over
	StateEnded LifecycleState = "ended"
)

// ViewRow is a materialized list row derived from a CallRecord plus
// ambient state. Rows are replaced wholesale on refresh, never mutated
// field by field.
type ViewRow struct {
	Key         domain.CallRecordKey `json:"key"`
	Title       string               `json:"title"`
	Recipient   RecipientKind        `json:"recipient"`
	Medium      domain.CallMedium    `json:"medium"`
	Direction   DirectionClass       `json:"direction"`
	State       LifecycleState       `json:"state"`
	StartedAtMS int64                `json:"started_at_ms"`
}

// Window is the bounded, newest-first, in-memory set of materialized rows.
// Not safe for concurrent use; the control loop owns it.
type Window struct {
	capacity int
	rows     []ViewRow
	index    map[domain.CallRecordKey]int
}

// NewWindow creates an empty window with the given capacity
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &Window{
		capacity: capacity,
		index:    make(map[domain.CallRecordKey]int),
	}
}

// DefaultWindowCapacity bounds the number of rows kept in memory
const DefaultWindowCapacity = 150

// Len returns the number of rows currently in the window
func (w *Window) Len() int {
	return len(w.rows)
}

// Capacity returns the maximum number of rows the window holds
func (w *Window) Capacity() int {
	return w.capacity
}

// Rows returns the rows in window order (newest first).
// The returned slice must not be mutated by the caller.
func (w *Window) Rows() []ViewRow {
	return w.rows
}

// Lookup returns the row for a key, if present
func (w *Window) Lookup(key domain.CallRecordKey) (ViewRow, bool) {
	i, ok := w.index[key]
	if !ok {
		return ViewRow{}, false
	}
	return w.rows[i], true
}

// Newest returns the row at the head (most recent), if any
func (w *Window) Newest() (ViewRow, bool) {
	if len(w.rows) == 0 {
		return ViewRow{}, false
	}
	return w.rows[0], true
}

// Oldest returns the row at the tail, if any
func (w *Window) Oldest() (ViewRow, bool) {
	if len(w.rows) == 0 {
		return ViewRow{}, false
	}
	return w.rows[len(w.rows)-1], true
}

// ReplaceAll discards the previous contents and rebuilds the identity
// index from the given rows (newest first). Rows beyond capacity are
// dropped from the tail.
func (w *Window) ReplaceAll(rows []ViewRow) {
	w.rows = w.rows[:0]
	w.index = make(map[domain.CallRecordKey]int, len(rows))
	for _, row := range rows {
		if _, dup := w.index[row.Key]; dup {
			continue
		}
		if len(w.rows) >= w.capacity {
			break
		}
		w.index[row.Key] = len(w.rows)
		w.rows = append(w.rows, row)
	}
}

// Clear empties the window
func (w *Window) Clear() {
	w.ReplaceAll(nil)
}

// MergeOlder appends a page of older rows (newest first) to the tail.
// If the combined size exceeds capacity, the overage is dropped from the
// front (the newest end): an older-direction load keeps the window
// anchored to the edge the user is scrolling toward.
func (w *Window) MergeOlder(rows []ViewRow) {
	appended := 0
	for _, row := range rows {
		if _, dup := w.index[row.Key]; dup {
			continue
		}
		w.index[row.Key] = len(w.rows)
		w.rows = append(w.rows, row)
		appended++
	}
	w.truncate(DirectionOlder)
	if appended > 0 {
		logger.Debug("call window merged older page",
			zap.Int("appended", appended),
			zap.Int("size", len(w.rows)),
		)
	}
}

// MergeNewer prepends a page of newer rows (newest first) at the head.
// Overflow is dropped from the back (the oldest end).
func (w *Window) MergeNewer(rows []ViewRow) {
	fresh := make([]ViewRow, 0, len(rows))
	for _, row := range rows {
		if _, dup := w.index[row.Key]; dup {
			continue
		}
		fresh = append(fresh, row)
	}
	if len(fresh) == 0 {
		return
	}
	w.rows = append(fresh, w.rows...)
	w.reindex()
	w.truncate(DirectionNewer)
	logger.Debug("call window merged newer page",
		zap.Int("prepended", len(fresh)),
		zap.Int("size", len(w.rows)),
	)
}

// ReplaceMany re-derives the rows for the given keys in place. The
// rederive callback may return (nil, nil) to signal that the backing
// record vanished; the stale row is then left untouched and the key is
// excluded from the returned set. Size and ordering never change.
func (w *Window) ReplaceMany(keys []domain.CallRecordKey, rederive func(domain.CallRecordKey) (*ViewRow, error)) ([]domain.CallRecordKey, error) {
	var replaced []domain.CallRecordKey
	for _, key := range keys {
		i, ok := w.index[key]
		if !ok {
			continue
		}
		row, err := rederive(key)
		if err != nil {
			return replaced, err
		}
		if row == nil {
			// Record deleted between event and refresh; removal is
			// deferred to the next full reload.
			logger.Warn("call record vanished before refresh, keeping stale row",
				zap.Uint64("call_id", key.CallID),
				zap.Int64("conversation_id", key.ConversationID),
			)
			continue
		}
		row.Key = key
		w.rows[i] = *row
		replaced = append(replaced, key)
	}
	return replaced, nil
}

// truncate enforces the capacity bound. The triggering load direction
// decides the eviction edge: older-direction overflow drops from the
// front (newest end), newer-direction overflow drops from the back
// (oldest end).
func (w *Window) truncate(trigger PageDirection) {
	overage := len(w.rows) - w.capacity
	if overage <= 0 {
		return
	}
	if trigger == DirectionOlder {
		for _, row := range w.rows[:overage] {
			delete(w.index, row.Key)
		}
		w.rows = append(w.rows[:0], w.rows[overage:]...)
	} else {
		for _, row := range w.rows[len(w.rows)-overage:] {
			delete(w.index, row.Key)
		}
		w.rows = w.rows[:len(w.rows)-overage]
	}
	w.reindex()
	logger.Debug("call window truncated",
		zap.String("trigger", string(trigger)),
		zap.Int("evicted", overage),
		zap.Int("size", len(w.rows)),
	)
}

func (w *Window) reindex() {
	for i, row := range w.rows {
		w.index[row.Key] = i
	}
}

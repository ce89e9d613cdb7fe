package history

import (
	"context"
	"fmt"
	"sort"

	"callfeed-backend/internal/domain"
)

// DefaultPageSize is the number of records fetched per page load
const DefaultPageSize = 50

// Query restricts a range read over the record store
type Query struct {
	MissedOnly bool
	// ConversationIDs limits results to the given conversations.
	// nil means no restriction; an empty slice matches nothing.
	ConversationIDs []int64
}

// RecordStore is the transactional call-record store the loader reads from
type RecordStore interface {
	// LoadOlder returns up to limit records strictly before the watermark,
	// newest first. A nil watermark means "most recent page".
	LoadOlder(ctx context.Context, q Query, before *int64, limit int) ([]domain.CallRecord, error)
	// LoadNewer returns up to limit records strictly after the watermark,
	// in any internal order.
	LoadNewer(ctx context.Context, q Query, after int64, limit int) ([]domain.CallRecord, error)
	// GetByKey returns the record for a composite key, or ErrRecordNotFound
	GetByKey(ctx context.Context, key domain.CallRecordKey) (*domain.CallRecord, error)
}

// SearchIndex resolves a free-text term to matching conversation row ids
type SearchIndex interface {
	MatchConversations(ctx context.Context, term string) ([]int64, error)
}

// PageRequest asks for one page of records in a direction relative to a
// watermark timestamp (milliseconds since epoch). A nil watermark is only
// meaningful for older-direction loads and means "most recent page".
type PageRequest struct {
	Direction PageDirection
	Watermark *int64
	PageSize  int
}

// Loader fetches bounded, filtered pages of call records. A failed store
// read aborts the whole load; there is no partial-page result.
type Loader struct {
	store  RecordStore
	search SearchIndex
}

// NewLoader creates a loader over the given store and search collaborator
func NewLoader(store RecordStore, search SearchIndex) *Loader {
	return &Loader{store: store, search: search}
}

// LoadPage fetches one page of records under the given filter. Results are
// always returned newest first regardless of direction, so older pages can
// be appended and newer pages prepended as-is.
func (l *Loader) LoadPage(ctx context.Context, filter Filter, req PageRequest) ([]domain.CallRecord, error) {
	filter = filter.Normalize()

	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	q := Query{MissedOnly: filter.MissedOnly}
	if filter.SearchTerm != "" {
		ids, err := l.search.MatchConversations(ctx, filter.SearchTerm)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve search term: %w", err)
		}
		if len(ids) == 0 {
			// Nothing matches; skip the record query entirely
			return nil, nil
		}
		q.ConversationIDs = ids
	}

	switch req.Direction {
	case DirectionOlder:
		records, err := l.store.LoadOlder(ctx, q, req.Watermark, size)
		if err != nil {
			return nil, fmt.Errorf("failed to load older page: %w", err)
		}
		return records, nil

	case DirectionNewer:
		if req.Watermark == nil {
			return nil, fmt.Errorf("newer page load requires a watermark")
		}
		records, err := l.store.LoadNewer(ctx, q, *req.Watermark, size)
		if err != nil {
			return nil, fmt.Errorf("failed to load newer page: %w", err)
		}
		sortNewestFirst(records)
		return records, nil

	default:
		return nil, fmt.Errorf("unknown page direction %q", req.Direction)
	}
}

// GetRecord is a point lookup through to the store
func (l *Loader) GetRecord(ctx context.Context, key domain.CallRecordKey) (*domain.CallRecord, error) {
	return l.store.GetByKey(ctx, key)
}

// sortNewestFirst orders records by descending start timestamp, keeping
// insertion order for equal timestamps
func sortNewestFirst(records []domain.CallRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAtMS > records[j].StartedAtMS
	})
}

package history

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"callfeed-backend/internal/domain"
)

// recordingRenderer captures presentation signals. Guarded by a mutex so
// feed tests can poll it from the test goroutine.
type recordingRenderer struct {
	mu             sync.Mutex
	windowReplaced int
	rowsUpdated    [][]domain.CallRecordKey
}

func (r *recordingRenderer) WindowReplaced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowReplaced++
}

func (r *recordingRenderer) RowsUpdated(keys []domain.CallRecordKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowsUpdated = append(r.rowsUpdated, keys)
}

func (r *recordingRenderer) replacedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windowReplaced
}

func (r *recordingRenderer) updates() [][]domain.CallRecordKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.CallRecordKey(nil), r.rowsUpdated...)
}

type controllerFixture struct {
	store    *MockRecordStore
	search   *MockSearchIndex
	conv     *MockConversationLookup
	liveness *MockGroupCallLiveness
	renderer *recordingRenderer
	ctrl     *Controller
}

func newControllerFixture(pageSize, capacity int) *controllerFixture {
	f := &controllerFixture{
		store:    new(MockRecordStore),
		search:   new(MockSearchIndex),
		conv:     new(MockConversationLookup),
		liveness: new(MockGroupCallLiveness),
		renderer: &recordingRenderer{},
	}
	f.conv.On("GetByID", mock.Anything, int64(1)).Return(individualConversation(1, "Alice"), nil).Maybe()
	f.ctrl = NewController(
		NewLoader(f.store, f.search),
		NewDeriver(f.conv, f.liveness),
		f.renderer,
		nil,
		ControllerConfig{PageSize: pageSize, WindowCapacity: capacity},
	)
	return f
}

func TestSetFilterIssuesInitialLoad(t *testing.T) {
	f := newControllerFixture(3, 10)
	page := []domain.CallRecord{recordAt(30), recordAt(20), recordAt(10)}
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).Return(page, nil).Once()

	err := f.ctrl.SetFilter(context.Background(), Filter{})

	assert.NoError(t, err)
	assert.Equal(t, StateLoaded, f.ctrl.State())
	assert.Equal(t, 3, f.ctrl.Window().Len())
	// One signal for the clear, one for the loaded page
	assert.Equal(t, 2, f.renderer.replacedCount())
	f.store.AssertExpectations(t)
}

func TestSetFilterUnchangedIsNoOp(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(10)}, nil).Once()

	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{SearchTerm: "  "}))
	signals := f.renderer.replacedCount()

	// Normalized-equal filter: no reload, no clear
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))

	assert.Equal(t, signals, f.renderer.replacedCount())
	assert.Equal(t, 1, f.ctrl.Window().Len())
	f.store.AssertExpectations(t)
}

func TestSetFilterChangeClearsAndReloads(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(10)}, nil).Once()
	f.store.On("LoadOlder", mock.Anything, Query{MissedOnly: true}, (*int64)(nil), 3).
		Return([]domain.CallRecord{}, nil).Once()

	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{MissedOnly: true}))

	assert.Equal(t, 0, f.ctrl.Window().Len())
	assert.Equal(t, Filter{MissedOnly: true}, f.ctrl.Filter())
	f.store.AssertExpectations(t)
}

func TestLoadMoreOlderUsesOldestWatermark(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30), recordAt(20)}, nil).Once()

	watermark := int64(20)
	f.store.On("LoadOlder", mock.Anything, Query{}, &watermark, 3).
		Return([]domain.CallRecord{recordAt(15)}, nil).Once()

	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))
	assert.NoError(t, f.ctrl.LoadMore(context.Background(), DirectionOlder))

	assert.Equal(t, 3, f.ctrl.Window().Len())
	oldest, _ := f.ctrl.Window().Oldest()
	assert.Equal(t, int64(15), oldest.StartedAtMS)
	f.store.AssertExpectations(t)
}

func TestLoadMoreNewerUsesNewestWatermark(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30), recordAt(20)}, nil).Once()

	watermark := int64(30)
	f.store.On("LoadNewer", mock.Anything, Query{}, watermark, 3).
		Return([]domain.CallRecord{recordAt(40)}, nil).Once()

	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))
	assert.NoError(t, f.ctrl.LoadMore(context.Background(), DirectionNewer))

	newest, _ := f.ctrl.Window().Newest()
	assert.Equal(t, int64(40), newest.StartedAtMS)
	f.store.AssertExpectations(t)
}

func TestLoadMoreBeforeFilterFails(t *testing.T) {
	f := newControllerFixture(3, 10)

	err := f.ctrl.LoadMore(context.Background(), DirectionOlder)

	assert.Error(t, err)
}

func TestRecordInsertedOnlyLoadsAtTopEdge(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30)}, nil).Once()
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))

	// Scrolled away: insert event is ignored
	f.ctrl.OnViewportChanged(false)
	assert.NoError(t, f.ctrl.OnRecordInserted(context.Background()))
	f.store.AssertNotCalled(t, "LoadNewer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Back at the top edge: the newer page is fetched
	watermark := int64(30)
	f.store.On("LoadNewer", mock.Anything, Query{}, watermark, 3).
		Return([]domain.CallRecord{recordAt(40)}, nil).Once()
	f.ctrl.OnViewportChanged(true)
	assert.NoError(t, f.ctrl.OnRecordInserted(context.Background()))

	newest, _ := f.ctrl.Window().Newest()
	assert.Equal(t, int64(40), newest.StartedAtMS)
	f.store.AssertExpectations(t)
}

func TestRecordChangedRefreshesRow(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30), recordAt(20)}, nil).Once()
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))

	key := domain.CallRecordKey{CallID: 20, ConversationID: 1}
	updated := recordAt(20)
	updated.Status = domain.StatusDeclined
	f.store.On("GetByKey", mock.Anything, key).Return(&updated, nil).Once()

	assert.NoError(t, f.ctrl.OnRecordChanged(context.Background(), []domain.CallRecordKey{key}))

	row, found := f.ctrl.Window().Lookup(key)
	assert.True(t, found)
	assert.Equal(t, ClassMissed, row.Direction)
	assert.Equal(t, [][]domain.CallRecordKey{{key}}, f.renderer.updates())
	f.store.AssertExpectations(t)
}

func TestRecordChangedForUnknownKeyIsSilent(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30)}, nil).Once()
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))

	absent := domain.CallRecordKey{CallID: 999, ConversationID: 1}
	assert.NoError(t, f.ctrl.OnRecordChanged(context.Background(), []domain.CallRecordKey{absent}))

	assert.Empty(t, f.renderer.updates())
	f.store.AssertNotCalled(t, "GetByKey", mock.Anything, mock.Anything)
}

func TestRecordChangedKeepsStaleRowOnVanishedRecord(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30)}, nil).Once()
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))

	key := domain.CallRecordKey{CallID: 30, ConversationID: 1}
	f.store.On("GetByKey", mock.Anything, key).Return(nil, ErrRecordNotFound).Once()

	assert.NoError(t, f.ctrl.OnRecordChanged(context.Background(), []domain.CallRecordKey{key}))

	_, found := f.ctrl.Window().Lookup(key)
	assert.True(t, found)
	assert.Empty(t, f.renderer.updates())
}

func TestCallStateChangedRederivesAffectedRows(t *testing.T) {
	f := newControllerFixture(3, 10)
	f.store.On("LoadOlder", mock.Anything, Query{}, (*int64)(nil), 3).
		Return([]domain.CallRecord{recordAt(30), recordAt(20)}, nil).Once()
	assert.NoError(t, f.ctrl.SetFilter(context.Background(), Filter{}))

	key := domain.CallRecordKey{CallID: 30, ConversationID: 1}
	rec := recordAt(30)
	f.store.On("GetByKey", mock.Anything, key).Return(&rec, nil)

	newActive := uint64(30)
	assert.NoError(t, f.ctrl.OnCallStateChanged(context.Background(), nil, &newActive))

	row, _ := f.ctrl.Window().Lookup(key)
	assert.Equal(t, StateJoined, row.State)

	// Leaving the call flips it back
	assert.NoError(t, f.ctrl.OnCallStateChanged(context.Background(), &newActive, nil))
	row, _ = f.ctrl.Window().Lookup(key)
	assert.Equal(t, StateEnded, row.State)
}

package history

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	logger.Sugar = logger.Log.Sugar()
	os.Exit(m.Run())
}

// rowAt builds a row whose call id doubles as its timestamp, so ordering
// assertions can be written against either.
func rowAt(ts int64) ViewRow {
	return ViewRow{
		Key:         domain.CallRecordKey{CallID: uint64(ts), ConversationID: 1},
		Title:       fmt.Sprintf("call %d", ts),
		Recipient:   RecipientIndividual,
		Medium:      domain.MediumAudio,
		Direction:   ClassIncoming,
		State:       StateEnded,
		StartedAtMS: ts,
	}
}

// rowsDescending builds rows for timestamps [from, from+count) newest first
func rowsDescending(from int64, count int) []ViewRow {
	rows := make([]ViewRow, 0, count)
	for ts := from + int64(count) - 1; ts >= from; ts-- {
		rows = append(rows, rowAt(ts))
	}
	return rows
}

func TestReplaceAllDeduplicatesAndCaps(t *testing.T) {
	w := NewWindow(3)

	rows := []ViewRow{rowAt(30), rowAt(20), rowAt(20), rowAt(10), rowAt(5)}
	w.ReplaceAll(rows)

	assert.Equal(t, 3, w.Len())
	newest, _ := w.Newest()
	oldest, _ := w.Oldest()
	assert.Equal(t, int64(30), newest.StartedAtMS)
	assert.Equal(t, int64(10), oldest.StartedAtMS)

	_, found := w.Lookup(rowAt(5).Key)
	assert.False(t, found)
}

func TestMergeOlderAppendsToTail(t *testing.T) {
	w := NewWindow(10)
	w.ReplaceAll(rowsDescending(100, 3)) // 102, 101, 100

	w.MergeOlder(rowsDescending(50, 2)) // 51, 50

	assert.Equal(t, 5, w.Len())
	oldest, _ := w.Oldest()
	assert.Equal(t, int64(50), oldest.StartedAtMS)
	newest, _ := w.Newest()
	assert.Equal(t, int64(102), newest.StartedAtMS)
}

func TestMergeOlderEvictsFromNewestEnd(t *testing.T) {
	w := NewWindow(150)
	w.ReplaceAll(rowsDescending(1000, 150)) // [1000..1150) newest first

	w.MergeOlder(rowsDescending(850, 50)) // [850..900)

	assert.Equal(t, 150, w.Len())
	newest, _ := w.Newest()
	oldest, _ := w.Oldest()
	assert.Equal(t, int64(1099), newest.StartedAtMS)
	assert.Equal(t, int64(850), oldest.StartedAtMS)

	// The 50 newest rows were evicted and their identities dropped
	_, found := w.Lookup(rowAt(1149).Key)
	assert.False(t, found)
	_, found = w.Lookup(rowAt(1100).Key)
	assert.False(t, found)
	_, found = w.Lookup(rowAt(1099).Key)
	assert.True(t, found)
}

func TestMergeNewerPrependsAndEvictsFromOldestEnd(t *testing.T) {
	w := NewWindow(5)
	w.ReplaceAll(rowsDescending(10, 5)) // 14..10

	w.MergeNewer(rowsDescending(20, 2)) // 21, 20

	assert.Equal(t, 5, w.Len())
	newest, _ := w.Newest()
	oldest, _ := w.Oldest()
	assert.Equal(t, int64(21), newest.StartedAtMS)
	assert.Equal(t, int64(12), oldest.StartedAtMS)

	_, found := w.Lookup(rowAt(10).Key)
	assert.False(t, found)
	_, found = w.Lookup(rowAt(11).Key)
	assert.False(t, found)
}

func TestMergeSkipsDuplicateKeys(t *testing.T) {
	w := NewWindow(10)
	w.ReplaceAll(rowsDescending(10, 3)) // 12, 11, 10

	w.MergeOlder([]ViewRow{rowAt(11), rowAt(9)})
	assert.Equal(t, 4, w.Len())

	w.MergeNewer([]ViewRow{rowAt(12), rowAt(13)})
	assert.Equal(t, 5, w.Len())
	newest, _ := w.Newest()
	assert.Equal(t, int64(13), newest.StartedAtMS)
}

func TestMergeNewerAllDuplicatesIsNoOp(t *testing.T) {
	w := NewWindow(3)
	w.ReplaceAll(rowsDescending(10, 3))
	before := w.Rows()[0]

	w.MergeNewer([]ViewRow{rowAt(12), rowAt(11)})

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, before, w.Rows()[0])
}

func TestReplaceManyRederivesInPlace(t *testing.T) {
	w := NewWindow(10)
	w.ReplaceAll(rowsDescending(10, 3)) // 12, 11, 10

	target := rowAt(11).Key
	replaced, err := w.ReplaceMany([]domain.CallRecordKey{target}, func(key domain.CallRecordKey) (*ViewRow, error) {
		row := rowAt(11)
		row.State = StateJoined
		return &row, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []domain.CallRecordKey{target}, replaced)

	row, found := w.Lookup(target)
	assert.True(t, found)
	assert.Equal(t, StateJoined, row.State)

	// Position unchanged
	assert.Equal(t, int64(11), w.Rows()[1].StartedAtMS)
	assert.Equal(t, 3, w.Len())
}

func TestReplaceManyIgnoresAbsentKeys(t *testing.T) {
	w := NewWindow(10)
	w.ReplaceAll(rowsDescending(10, 3))

	absent := domain.CallRecordKey{CallID: 999, ConversationID: 42}
	replaced, err := w.ReplaceMany([]domain.CallRecordKey{absent}, func(key domain.CallRecordKey) (*ViewRow, error) {
		t.Fatal("rederive must not run for keys outside the window")
		return nil, nil
	})

	assert.NoError(t, err)
	assert.Empty(t, replaced)
	assert.Equal(t, 3, w.Len())
}

func TestReplaceManyKeepsStaleRowWhenRecordVanished(t *testing.T) {
	w := NewWindow(10)
	w.ReplaceAll(rowsDescending(10, 3))

	target := rowAt(10).Key
	replaced, err := w.ReplaceMany([]domain.CallRecordKey{target}, func(key domain.CallRecordKey) (*ViewRow, error) {
		return nil, nil
	})

	assert.NoError(t, err)
	assert.Empty(t, replaced)

	// Stale row still present until the next full reload
	row, found := w.Lookup(target)
	assert.True(t, found)
	assert.Equal(t, int64(10), row.StartedAtMS)
	assert.Equal(t, 3, w.Len())
}

func TestClearEmptiesWindow(t *testing.T) {
	w := NewWindow(10)
	w.ReplaceAll(rowsDescending(10, 3))

	w.Clear()

	assert.Equal(t, 0, w.Len())
	_, found := w.Lookup(rowAt(10).Key)
	assert.False(t, found)
}

package queue_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/queue"
	"github.com/lumenctl/lumen/internal/testutil"
)

func eventID(n uint32) model.ItemID { return model.ItemIDFromWire(n) }

func TestPopReadyMonotoneOrder(t *testing.T) {
	base := time.Unix(1000, 0)
	clk := testutil.NewClock(base)
	q := queue.New(clk.Now)

	q.Enqueue(eventID(3), 300*time.Millisecond)
	q.Enqueue(eventID(1), 100*time.Millisecond)
	q.Enqueue(eventID(2), 200*time.Millisecond)

	now := clk.Advance(250 * time.Millisecond)
	ready := q.PopReady(now)
	require.Len(t, ready, 2)
	assert.Equal(t, eventID(1), ready[0].EventID)
	assert.Equal(t, eventID(2), ready[1].EventID)
	assert.Equal(t, 1, q.Len())
}

func TestPopReadyTieBreaksOnInsertionOrder(t *testing.T) {
	clk := testutil.NewClock(time.Unix(2000, 0))
	q := queue.New(clk.Now)

	q.Enqueue(eventID(5), 0)
	q.Enqueue(eventID(6), 0)
	q.Enqueue(eventID(7), 0)

	ready := q.PopReady(clk.Now())
	require.Len(t, ready, 3)
	assert.Equal(t, []model.ItemID{eventID(5), eventID(6), eventID(7)},
		[]model.ItemID{ready[0].EventID, ready[1].EventID, ready[2].EventID})
}

func TestCancelRemovesAllMatchingEntries(t *testing.T) {
	clk := testutil.NewClock(time.Unix(3000, 0))
	q := queue.New(clk.Now)

	q.Enqueue(eventID(9), time.Second)
	q.Enqueue(eventID(9), 2*time.Second)
	q.Enqueue(eventID(8), time.Second)

	removed := q.Cancel(eventID(9))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, q.Len())

	// Idempotent: cancelling again is a harmless no-op.
	assert.Equal(t, 0, q.Cancel(eventID(9)))
}

func TestClearEmptiesQueue(t *testing.T) {
	clk := testutil.NewClock(time.Unix(4000, 0))
	q := queue.New(clk.Now)
	q.Enqueue(eventID(1), time.Second)
	q.Enqueue(eventID(2), 2*time.Second)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok := q.PeekNext()
	assert.False(t, ok)
}

func TestTimeUntilMillisClampsNegativeToZero(t *testing.T) {
	clk := testutil.NewClock(time.Unix(5000, 0))
	q := queue.New(clk.Now)
	q.Enqueue(eventID(4), 50*time.Millisecond)

	clk.Advance(500 * time.Millisecond) // already past trigger time
	ms, ok := q.TimeUntilMillis(eventID(4))
	require.True(t, ok)
	assert.Equal(t, int64(0), ms)
}

func TestTimeUntilMillisNoMatch(t *testing.T) {
	clk := testutil.NewClock(time.Unix(6000, 0))
	q := queue.New(clk.Now)
	ms, ok := q.TimeUntilMillis(eventID(42))
	assert.False(t, ok)
	assert.Equal(t, int64(0), ms)
}

func TestSnapshotDoesNotMutatePopOrder(t *testing.T) {
	clk := testutil.NewClock(time.Unix(7000, 0))
	q := queue.New(clk.Now)
	q.Enqueue(eventID(1), 3*time.Second)
	q.Enqueue(eventID(2), time.Second)

	snap1 := q.Snapshot()
	snap2 := q.Snapshot()
	require.Len(t, snap1, 2)
	assert.Equal(t, snap1, snap2)
	assert.Equal(t, eventID(2), snap1[0].EventID)

	ready := q.PopReady(clk.Advance(5 * time.Second))
	require.Len(t, ready, 2)
	assert.Equal(t, eventID(2), ready[0].EventID)
}

// snapshotOrder projects a Snapshot down to its EventID/Delay order,
// dropping the per-entry OriginToken (a fresh uuid every Enqueue, so it
// can never structurally equal a hand-written expectation).
func snapshotOrder(snap []queue.UpcomingEvent) []struct {
	EventID model.ItemID
	Delay   time.Duration
} {
	out := make([]struct {
		EventID model.ItemID
		Delay   time.Duration
	}, len(snap))
	for i, e := range snap {
		out[i].EventID = e.EventID
		out[i].Delay = e.Delay
	}
	return out
}

func TestSnapshotOrdersByTriggerTimeViaStructuralDiff(t *testing.T) {
	clk := testutil.NewClock(time.Unix(8000, 0))
	q := queue.New(clk.Now)
	q.Enqueue(eventID(30), 3*time.Second)
	q.Enqueue(eventID(10), time.Second)
	q.Enqueue(eventID(20), 2*time.Second)

	want := []struct {
		EventID model.ItemID
		Delay   time.Duration
	}{
		{eventID(10), time.Second},
		{eventID(20), 2 * time.Second},
		{eventID(30), 3 * time.Second},
	}
	got := snapshotOrder(q.Snapshot())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot order mismatch (-want +got):\n%s", diff)
	}
}

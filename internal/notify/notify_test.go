package notify_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/notify"
	"github.com/lumenctl/lumen/internal/queue"
)

func TestSubscribeReceivesEmittedUpdates(t *testing.T) {
	n := notify.New(nil)
	ch, unsub := n.Subscribe(4)
	defer unsub()

	n.Emit(notify.Update{Kind: notify.KindCurrentScene, SceneID: 7})

	select {
	case u := <-ch:
		assert.Equal(t, notify.KindCurrentScene, u.Kind)
		assert.Equal(t, uint32(7), uint32(u.SceneID))
	default:
		t.Fatal("expected a buffered update")
	}
}

func TestEmitDropsOldestOnOverflow(t *testing.T) {
	n := notify.New(nil)
	ch, unsub := n.Subscribe(2)
	defer unsub()

	n.Emit(notify.Update{Kind: notify.KindStatusChanged, NewState: 1})
	n.Emit(notify.Update{Kind: notify.KindStatusChanged, NewState: 2})
	n.Emit(notify.Update{Kind: notify.KindStatusChanged, NewState: 3}) // overflow: drops NewState 1

	first := <-ch
	second := <-ch
	assert.Equal(t, uint32(2), first.NewState)
	assert.Equal(t, uint32(3), second.NewState)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	n := notify.New(nil)
	ch, unsub := n.Subscribe(1)
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestCloseClosesEverySubscriber(t *testing.T) {
	n := notify.New(nil)
	ch1, _ := n.Subscribe(1)
	ch2, _ := n.Subscribe(1)

	n.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestSubscribeDefaultsCapacity(t *testing.T) {
	n := notify.New(nil)
	ch, unsub := n.Subscribe(0)
	defer unsub()
	require.NotNil(t, ch)
}

// TestUpcomingEventsSnapshotSurvivesEmitUnchanged guards against the
// Update struct copying or reordering a Snapshot on its way through Emit —
// a structural diff catches a field-by-field regression a field-at-a-time
// assert.Equal chain would miss.
func TestUpcomingEventsSnapshotSurvivesEmitUnchanged(t *testing.T) {
	q := queue.New(func() time.Time { return time.Unix(9000, 0) })
	q.Enqueue(event.EventID(1), time.Second)
	q.Enqueue(event.EventID(2), 2*time.Second)
	want := q.Snapshot()

	n := notify.New(nil)
	ch, unsub := n.Subscribe(4)
	defer unsub()

	n.Emit(notify.Update{Kind: notify.KindUpcomingEvents, Snapshot: want})

	u := <-ch
	if diff := cmp.Diff(want, u.Snapshot); diff != "" {
		t.Fatalf("snapshot mutated across Emit (-want +got):\n%s", diff)
	}
}

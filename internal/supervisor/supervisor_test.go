package supervisor

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/dispatch"
	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
)

// recordingDispatcher is a dispatcherTarget fake that records every Trigger
// it receives, for asserting what routeInbound forwards (or withholds).
type recordingDispatcher struct {
	mu       sync.Mutex
	messages []dispatch.Message
}

func (r *recordingDispatcher) Send(msg dispatch.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return true
}

func (r *recordingDispatcher) all() []dispatch.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dispatch.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// TestRouteInboundAppliesIdentifierFilter covers spec.md §4.8: an inbound
// event whose data1 (game_id) doesn't match the configured identifier must
// never reach the Dispatcher.
func TestRouteInboundAppliesIdentifierFilter(t *testing.T) {
	rec := &recordingDispatcher{}
	s := New(rec, WithIdentifier(42))

	s.routeInbound(5, 99) // mismatched game_id
	assert.Empty(t, rec.all(), "mismatched identifier must be dropped, not forwarded")

	s.routeInbound(5, 42) // matching game_id
	msgs := rec.all()
	require.Len(t, msgs, 1)
	trig, ok := msgs[0].(dispatch.Trigger)
	require.True(t, ok, "routeInbound must forward a dispatch.Trigger")
	assert.Equal(t, event.EventID(model.ItemIDFromWire(5)), trig.EventID)
	assert.True(t, trig.CheckScene)
	assert.False(t, trig.Broadcast)
}

// TestRouteInboundWithNoIdentifierForwardsEverything covers the "nil
// disables the check" case: no WithIdentifier means every inbound event is
// forwarded regardless of data1.
func TestRouteInboundWithNoIdentifierForwardsEverything(t *testing.T) {
	rec := &recordingDispatcher{}
	s := New(rec)

	s.routeInbound(7, 0)
	s.routeInbound(7, 12345)

	assert.Len(t, rec.all(), 2)
}

// TestSendWithRetrySucceedsWithoutRetryOnFirstTry covers spec.md §4.8: a
// send that succeeds on the first attempt must not sleep or retry.
func TestSendWithRetrySucceedsWithoutRetryOnFirstTry(t *testing.T) {
	s := New(&recordingDispatcher{})
	attempts := 0
	err := s.sendWithRetry(func() error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

// TestSendWithRetryRetriesExactlyOnceOnFailure covers the retry-once policy:
// a send that fails once then succeeds must be retried exactly once and
// report success.
func TestSendWithRetryRetriesExactlyOnceOnFailure(t *testing.T) {
	s := New(&recordingDispatcher{})
	attempts := 0
	err := s.sendWithRetry(func() error {
		attempts++
		if attempts == 1 {
			return errors.New("transient failure")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts, "must retry exactly once")
}

// TestSendWithRetryGivesUpAfterSecondFailure covers the "second failure is
// logged and returned" half of the policy: no third attempt is made, and
// the error propagates to the caller.
func TestSendWithRetryGivesUpAfterSecondFailure(t *testing.T) {
	s := New(&recordingDispatcher{})
	attempts := 0
	wantErr := errors.New("persistent failure")
	err := s.sendWithRetry(func() error {
		attempts++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 2, attempts, "must not retry a second time")
}

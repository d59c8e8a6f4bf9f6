package pubsub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenctl/lumen/internal/pubsub"
	"github.com/lumenctl/lumen/internal/testutil"
)

// newFabric starts a binding Link as the authoritative fabric and two
// connecting peers dialed against it, mirroring spec.md §8 scenario 6
// ("two connecting peers A, B share a publish/subscribe fabric").
func newFabric(t *testing.T) (fabric, a, b *pubsub.Link) {
	t.Helper()
	const subject = "lumen.events.test"

	// Port -1 is the nats-server convention for "pick any open port" (its
	// RANDOM_PORT constant); port 0 would instead fall back to the default
	// 4222 and risk colliding with a real broker on the test host.
	fabric, err := pubsub.NewBinding("127.0.0.1:-1", subject)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fabric.Close() })

	a, err = pubsub.NewConnecting(fabric.ClientURL(), subject)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err = pubsub.NewConnecting(fabric.ClientURL(), subject)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return fabric, a, b
}

func awaitMessage(t *testing.T, ch <-chan pubsub.Message, timeout time.Duration) (pubsub.Message, bool) {
	t.Helper()
	select {
	case m := <-ch:
		return m, true
	case <-time.After(timeout):
		return pubsub.Message{}, false
	}
}

func assertNoMessage(t *testing.T, ch <-chan pubsub.Message) {
	t.Helper()
	testutil.WaitForStability()
	select {
	case m := <-ch:
		t.Fatalf("expected no message, got %+v", m)
	default:
	}
}

// TestEchoSuppressionLoopSurfacesOnceAtPeerNeverAtSender covers spec.md §8's
// echo-suppression invariant and its worked scenario 6: A's outbound event
// surfaces at B exactly once and never at A, and B's subsequent echo_event
// still does not surface at A.
func TestEchoSuppressionLoopSurfacesOnceAtPeerNeverAtSender(t *testing.T) {
	_, a, b := newFabric(t)

	msg := pubsub.Message{ID: 5, Data1: 1, Data2: 2}
	require.NoError(t, a.Send(msg))

	got, ok := awaitMessage(t, b.Incoming, 2*time.Second)
	require.True(t, ok, "B never saw A's event")
	assert.Equal(t, msg, got)

	// A must never surface its own event.
	assertNoMessage(t, a.Incoming)

	// B's Dispatcher echoes the event back out; it was the head of B's
	// filter_in, so Echo drops it instead of republishing.
	require.NoError(t, b.Echo(got))
	assertNoMessage(t, a.Incoming)
	assertNoMessage(t, b.Incoming)
}

// TestBindingLinkDoesNotFilter checks spec.md §4.7's "a binding link does
// no filtering; primary instances are expected to be the authority": the
// fabric itself surfaces every event, including ones it could in principle
// have originated.
func TestBindingLinkDoesNotFilter(t *testing.T) {
	fabric, a, _ := newFabric(t)

	msg := pubsub.Message{ID: 7, Data1: 0, Data2: 0}
	require.NoError(t, a.Send(msg))

	got, ok := awaitMessage(t, fabric.Incoming, 2*time.Second)
	require.True(t, ok, "binding link never surfaced the event")
	assert.Equal(t, msg, got)
}

// Package supervisor implements the Connection Supervisor of spec.md §4.8:
// it owns every external link, routes inbound events into the Dispatcher,
// and fans outbound Send/Broadcast calls out across all links. Mirrors the
// teacher's pattern of a small owning struct with one goroutine per
// collaborator and a single retry policy at the seam (teacher's
// realtime/runtime.go task fan-out).
package supervisor

import (
	"time"

	"github.com/lumenctl/lumen/internal/dispatch"
	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/pubsub"
	"github.com/lumenctl/lumen/internal/serial"
	"go.uber.org/zap"
)

// RetryDelay is the outbound retry policy's single backoff (spec.md §4.8,
// §5).
const RetryDelay = 100 * time.Millisecond

// serialLink and pubsubLink are the minimal surfaces Supervisor needs;
// *serial.Link and *pubsub.Link both satisfy them.
type serialLink interface {
	Send(id, data1, data2 uint32) error
}

type pubsubLink interface {
	Send(m pubsub.Message) error
	Echo(m pubsub.Message) error
}

// dispatcherTarget is the subset of *dispatch.Dispatcher the Supervisor
// drives; tests substitute a recorder.
type dispatcherTarget interface {
	Send(msg dispatch.Message) bool
}

// Supervisor owns every live link and bridges them to the Dispatcher. It
// implements dispatch.OutboundSink.
type Supervisor struct {
	dispatcher dispatcherTarget
	logger     *zap.Logger

	identifier    *uint32 // optional game_id filter; nil disables the check
	serialLinks   []*serial.Link
	pubsubLinks   []*pubsub.Link
	done          chan struct{}
}

// Option configures a Supervisor via functional options.
type Option func(*Supervisor)

// WithLogger configures the Supervisor's structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithIdentifier sets the per-instance game_id filter (spec.md §4.8).
func WithIdentifier(id uint32) Option {
	return func(s *Supervisor) { v := id; s.identifier = &v }
}

// New constructs a Supervisor bound to dispatcher. Register links with
// AddSerialLink/AddPubSubLink; each starts routing as soon as it is added.
func New(dispatcher dispatcherTarget, opts ...Option) *Supervisor {
	s := &Supervisor{
		dispatcher: dispatcher,
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSerialLink registers a serial Link and starts routing its inbound
// events.
func (s *Supervisor) AddSerialLink(l *serial.Link) {
	s.serialLinks = append(s.serialLinks, l)
	go s.routeSerial(l)
}

// AddPubSubLink registers a pub/sub Link and starts routing its inbound
// events.
func (s *Supervisor) AddPubSubLink(l *pubsub.Link) {
	s.pubsubLinks = append(s.pubsubLinks, l)
	go s.routePubSub(l)
}

// Stop signals every routing goroutine to exit. It does not close the
// links themselves; callers close each link directly so link-local
// cleanup (embedded server shutdown, stream close) stays with the link.
func (s *Supervisor) Stop() {
	close(s.done)
}

func (s *Supervisor) routeSerial(l *serial.Link) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-l.Incoming:
			if !ok {
				return
			}
			s.routeInbound(ev.ID, ev.Data1)
		}
	}
}

func (s *Supervisor) routePubSub(l *pubsub.Link) {
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-l.Incoming:
			if !ok {
				return
			}
			s.routeInbound(m.ID, m.Data1)
		}
	}
}

// routeInbound applies the identifier filter (data1 carries game_id) and
// forwards a surviving event to the Dispatcher as a scene-gated Trigger.
func (s *Supervisor) routeInbound(id, data1 uint32) {
	if s.identifier != nil && data1 != *s.identifier {
		s.logger.Warn("inbound event dropped: identifier mismatch",
			zap.Uint32("event_id", id), zap.Uint32("game_id", data1), zap.Uint32("want", *s.identifier))
		return
	}
	s.dispatcher.Send(dispatch.Trigger{
		EventID:    event.EventID(model.ItemIDFromWire(id)),
		CheckScene: true,
		Broadcast:  false,
	})
}

// Send implements dispatch.OutboundSink: an external send (spec.md §4.5
// SendData) on every registered link, using each pub/sub link's Send
// rather than Echo.
func (s *Supervisor) Send(eventID event.EventID, data *event.ResolvedData) error {
	return s.fanOut(eventID, data, false)
}

// Broadcast implements dispatch.OutboundSink: every link transmits the
// event (spec.md §4.5 Broadcast action, §4.8 "fans broadcasts out").
func (s *Supervisor) Broadcast(eventID event.EventID, data *event.ResolvedData) error {
	return s.fanOut(eventID, data, true)
}

func (s *Supervisor) fanOut(eventID event.EventID, data *event.ResolvedData, broadcast bool) error {
	id := uint32(eventID)
	var d1 uint32
	if data != nil {
		d1 = uint32(data.Value)
	}

	var lastErr error
	for _, l := range s.serialLinks {
		if err := s.sendWithRetry(func() error { return l.Send(id, d1, 0) }); err != nil {
			lastErr = err
		}
	}
	msg := pubsub.Message{ID: id, Data1: d1}
	for _, l := range s.pubsubLinks {
		send := l.Send
		if broadcast {
			send = l.Echo
		}
		if err := s.sendWithRetry(func() error { return send(msg) }); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// sendWithRetry is the outbound retry policy of spec.md §4.8: on failure,
// sleep RetryDelay and retry once; a second failure is logged and
// returned but does not touch the link (its own state machine recovers).
func (s *Supervisor) sendWithRetry(send func() error) error {
	err := send()
	if err == nil {
		return nil
	}
	time.Sleep(RetryDelay)
	err = send()
	if err != nil {
		s.logger.Error("outbound send failed after retry", zap.Error(err))
	}
	return err
}

// Package dispatch implements the Dispatcher: the central reducer that
// interprets an event's action list against the Status/Scene Registries
// and the Event Queue (spec.md §4.5). It is built the way the teacher's
// internal/core.Machine is built — a single goroutine owning all mutable
// state, reachable only through one inbound channel, configured via
// functional options — but the reduction rule itself is this spec's, not
// SCXML's: a flat action list per event rather than hierarchical state
// transitions.
package dispatch

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/notify"
	"github.com/lumenctl/lumen/internal/queue"
	"github.com/lumenctl/lumen/internal/scene"
	"github.com/lumenctl/lumen/internal/status"
)

// DefaultDepthLimit is the default SelectEvent chain evaluation depth
// (spec.md §4.5). Cued events are dispatched from the queue at depth 0, so
// CueEvent chains do not count against it.
const DefaultDepthLimit = 64

// DefaultInboundCapacity is the default bounded inbound channel size
// (spec.md §5).
const DefaultInboundCapacity = 128

// Dispatcher is the single-threaded cooperative reducer of spec.md §4.5.
// All Registry and Queue mutation happens inside its run loop; there is no
// locking because there is exactly one goroutine touching this state
// (spec.md §9 "one mutable owner per registry").
type Dispatcher struct {
	events map[event.EventID]event.Event

	statusReg *status.Registry
	sceneReg  *scene.Registry
	queue     *queue.Queue
	notifier  *notify.Notifier

	logSink  LogSink
	outbound OutboundSink
	logger   *zap.Logger

	depthLimit      int
	inboundCapacity int

	inbound chan Message
	done    chan struct{}
	stopped chan struct{}

	now func() time.Time
}

// New constructs a Dispatcher. events is the configuration's event-id ->
// action-list map; statusReg/sceneReg/q are configuration-sized Registries
// already validated by internal/config.
func New(events map[event.EventID]event.Event, statusReg *status.Registry, sceneReg *scene.Registry, q *queue.Queue, notifier *notify.Notifier, nowFn func() time.Time, opts ...Option) *Dispatcher {
	if nowFn == nil {
		nowFn = time.Now
	}
	d := &Dispatcher{
		events:          events,
		statusReg:       statusReg,
		sceneReg:        sceneReg,
		queue:           q,
		notifier:        notifier,
		logSink:         NopLogSink{},
		outbound:        NopOutboundSink{},
		logger:          zap.NewNop(),
		depthLimit:      DefaultDepthLimit,
		inboundCapacity: DefaultInboundCapacity,
		now:             nowFn,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.inbound = make(chan Message, d.inboundCapacity)
	return d
}

// SetOutboundSink rewires the Dispatcher's OutboundSink after
// construction. Exists because the Supervisor that is usually the
// OutboundSink itself needs a Dispatcher to route inbound events into
// (see engine.go) — call this once, before Start.
func (d *Dispatcher) SetOutboundSink(sink OutboundSink) {
	d.outbound = sink
}

// Start launches the Dispatcher's run loop. The loop selects across the
// inbound channel, a timer armed to the queue's next trigger time, and the
// shutdown signal (spec.md §5 task 1).
func (d *Dispatcher) Start() {
	go d.run()
}

// Send enqueues msg for processing. Blocks briefly on inbound backpressure;
// returns false if the Dispatcher has already stopped.
func (d *Dispatcher) Send(msg Message) bool {
	select {
	case d.inbound <- msg:
		return true
	case <-d.done:
		return false
	}
}

// Stop signals graceful shutdown and waits for the run loop to exit.
// Pending queue entries are discarded (spec.md §5).
func (d *Dispatcher) Stop() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	<-d.stopped
}

func (d *Dispatcher) run() {
	defer close(d.stopped)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	d.rearm(timer)

	for {
		select {
		case <-d.done:
			return
		case msg := <-d.inbound:
			d.safeHandle(msg)
			d.rearm(timer)
		case t := <-timer.C:
			d.safeHandle(TickMsg{Now: t})
			d.rearm(timer)
		}
	}
}

func (d *Dispatcher) rearm(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	next, ok := d.queue.PeekNext()
	if !ok {
		timer.Reset(time.Hour)
		return
	}
	d.at(timer, next)
}

func (d *Dispatcher) at(timer *time.Timer, when time.Time) {
	delay := when.Sub(d.now())
	if delay < 0 {
		delay = 0
	}
	timer.Reset(delay)
}

// safeHandle recovers a panic from a single message's processing so one
// malformed action list cannot take down the whole run loop (spec.md §7
// "evaluation of the offending event is abandoned").
func (d *Dispatcher) safeHandle(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher recovered from panic", zap.Any("panic", r))
		}
	}()
	d.handle(msg)
}

func (d *Dispatcher) handle(msg Message) {
	switch m := msg.(type) {
	case Trigger:
		d.dispatchTrigger(m, 0)
		d.emitUpcomingEvents()
	case StatusChangeMsg:
		d.applyStatusChange(m.StatusID, m.NewState)
		d.emitUpcomingEvents()
	case SceneChangeMsg:
		d.applySceneChange(m.SceneID)
		d.emitUpcomingEvents()
	case CancelAllMsg:
		d.queue.Clear()
		d.emitUpcomingEvents()
	case TickMsg:
		d.processTick(m.Now)
		d.emitUpcomingEvents()
	default:
		d.warn(fmt.Sprintf("unrecognized message type %T", msg), 0, false)
	}
}

// processTick pops every ready entry and dispatches each as an inlined
// Trigger{check_scene:false, broadcast:true} (spec.md §4.5).
func (d *Dispatcher) processTick(now time.Time) {
	ready := d.queue.PopReady(now)
	for _, e := range ready {
		d.dispatchTrigger(Trigger{EventID: e.EventID, CheckScene: false, Broadcast: true}, 0)
	}
}


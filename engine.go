// Package lumen is the public facade over the show-control event-dispatch
// engine: configuration loading, the Dispatcher, the Reactive Notifier,
// and the Connection Supervisor, wired together the way the teacher wires
// Runtime/RealtimeRuntime around a Machine (statechart.go, realtime/
// runtime.go) — construct once from a validated configuration document,
// then Start/Stop it as a unit.
package lumen

import (
	"time"

	"go.uber.org/zap"

	"github.com/lumenctl/lumen/internal/config"
	"github.com/lumenctl/lumen/internal/dispatch"
	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/gamelog"
	"github.com/lumenctl/lumen/internal/metrics"
	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/notify"
	"github.com/lumenctl/lumen/internal/notify/wsfeed"
	"github.com/lumenctl/lumen/internal/pubsub"
	"github.com/lumenctl/lumen/internal/serial"
	"github.com/lumenctl/lumen/internal/supervisor"
)

// Engine is the assembled runtime: one Dispatcher, one Notifier, and an
// optional Supervisor owning whatever links the caller registers.
type Engine struct {
	dispatcher *dispatch.Dispatcher
	notifier   *notify.Notifier
	supervisor *supervisor.Supervisor
	gameLog    *gamelog.Writer
	logger     *zap.Logger
}

type settings struct {
	logger          *zap.Logger
	now             func() time.Time
	depthLimit      int
	inboundCapacity int
	gameLogPath     string
	identifier      *uint32
	registerMetrics bool
}

// Option configures an Engine via the functional-options pattern shared by
// every constructor in this module.
type Option func(*settings)

// WithLogger sets the structured logger used by the Dispatcher, Notifier,
// and Supervisor.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock substitutes a deterministic clock (see internal/testutil.Clock).
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithDepthLimit overrides the Dispatcher's SelectEvent recursion limit
// (default 64). CueEvent chains do not count against it.
func WithDepthLimit(limit int) Option {
	return func(s *settings) { s.depthLimit = limit }
}

// WithInboundCapacity overrides the Dispatcher's inbound channel capacity
// (default 128).
func WithInboundCapacity(capacity int) Option {
	return func(s *settings) { s.inboundCapacity = capacity }
}

// WithGameLog enables an append-only game log at path (spec.md §6).
func WithGameLog(path string) Option {
	return func(s *settings) { s.gameLogPath = path }
}

// WithIdentifier sets the Supervisor's per-instance game_id filter
// (spec.md §4.8).
func WithIdentifier(id uint32) Option {
	return func(s *settings) { v := id; s.identifier = &v }
}

// WithMetrics registers the engine's Prometheus collectors with the
// default registry.
func WithMetrics() Option {
	return func(s *settings) { s.registerMetrics = true }
}

// New validates doc, builds the Registries and Queue, and wires a
// Dispatcher, Notifier, and Supervisor into a ready-to-Start Engine.
func New(doc *config.Document, opts ...Option) (*Engine, error) {
	s := &settings{
		logger:          zap.NewNop(),
		now:             time.Now,
		depthLimit:      dispatch.DefaultDepthLimit,
		inboundCapacity: dispatch.DefaultInboundCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registerMetrics {
		metrics.Register()
	}

	built, err := config.Build(doc, s.now)
	if err != nil {
		return nil, err
	}

	notifier := notify.New(s.logger)

	var gameLog *gamelog.Writer
	if s.gameLogPath != "" {
		gameLog, err = gamelog.Open(s.gameLogPath)
		if err != nil {
			return nil, err
		}
	}

	dispatcherOpts := []dispatch.Option{
		dispatch.WithLogger(s.logger),
		dispatch.WithDepthLimit(s.depthLimit),
		dispatch.WithInboundCapacity(s.inboundCapacity),
	}
	if gameLog != nil {
		dispatcherOpts = append(dispatcherOpts, dispatch.WithLogSink(gameLog))
	}

	// The Supervisor is the Dispatcher's OutboundSink, but the Supervisor
	// itself routes inbound link events into the Dispatcher: construct the
	// Dispatcher first (with its default no-op sink), build the Supervisor
	// against it, then rewire the sink before anything Starts.
	d := dispatch.New(built.Events, built.StatusReg, built.SceneReg, built.Queue, notifier, s.now, dispatcherOpts...)

	var supervisorOpts []supervisor.Option
	supervisorOpts = append(supervisorOpts, supervisor.WithLogger(s.logger))
	if s.identifier != nil {
		supervisorOpts = append(supervisorOpts, supervisor.WithIdentifier(*s.identifier))
	}
	sup := supervisor.New(d, supervisorOpts...)
	d.SetOutboundSink(sup)

	if gameLog != nil {
		updates, _ := notifier.Subscribe(0)
		go func() {
			for u := range updates {
				if err := gameLog.NotifyRecord(u); err != nil {
					s.logger.Warn("game log write failed", zap.Error(err))
				}
			}
		}()
	}

	return &Engine{
		dispatcher: d,
		notifier:   notifier,
		supervisor: sup,
		gameLog:    gameLog,
		logger:     s.logger,
	}, nil
}

// Start launches the Dispatcher's run loop. Register links with
// AddSerialLink/AddPubSubLink before or after Start.
func (e *Engine) Start() {
	e.dispatcher.Start()
}

// Stop shuts the Dispatcher and Supervisor down and flushes the game log.
func (e *Engine) Stop() {
	e.supervisor.Stop()
	e.dispatcher.Stop()
	e.notifier.Close()
	if e.gameLog != nil {
		if err := e.gameLog.Close(); err != nil {
			e.logger.Warn("game log close failed", zap.Error(err))
		}
	}
}

// Subscribe registers a Reactive Notifier subscriber (spec.md §4.9).
func (e *Engine) Subscribe(capacity int) (<-chan notify.Update, func()) {
	return e.notifier.Subscribe(capacity)
}

// WebSocketHandler returns an http.Handler that upgrades each incoming
// request to a WebSocket connection and feeds it the Reactive Notifier's
// update stream (spec.md §1 — the UI's control panel is out of scope, but
// the stream it dials into is this engine's responsibility). Mount it at
// whatever path the surrounding application chooses.
func (e *Engine) WebSocketHandler() *wsfeed.Server {
	return wsfeed.NewServer(e.notifier, wsfeed.WithLogger(e.logger))
}

// Trigger requests evaluation of event id's action list, gated by the
// current scene (the UI/external-link path, spec.md §4.5).
func (e *Engine) Trigger(id uint32) bool {
	return e.dispatcher.Send(dispatch.Trigger{EventID: event.EventID(model.ItemIDFromWire(id)), CheckScene: true, Broadcast: true})
}

// AnswerPrompt re-triggers id carrying a previously prompted UserString
// answer (spec.md §9 open question 1; see DESIGN.md).
func (e *Engine) AnswerPrompt(id uint32, answer event.ResolvedData) bool {
	return e.dispatcher.Send(dispatch.Trigger{EventID: event.EventID(model.ItemIDFromWire(id)), CheckScene: true, Broadcast: true, AnswerData: &answer})
}

// SetStatus directly pokes a status, bypassing event dispatch.
func (e *Engine) SetStatus(statusID, newState uint32) bool {
	return e.dispatcher.Send(dispatch.StatusChangeMsg{StatusID: model.ItemIDFromWire(statusID), NewState: model.ItemIDFromWire(newState)})
}

// SetScene directly pokes the current scene, bypassing event dispatch.
func (e *Engine) SetScene(sceneID uint32) bool {
	return e.dispatcher.Send(dispatch.SceneChangeMsg{SceneID: model.ItemIDFromWire(sceneID)})
}

// CancelAll clears the event queue.
func (e *Engine) CancelAll() bool {
	return e.dispatcher.Send(dispatch.CancelAllMsg{})
}

// AddSerialLink registers a serial Link with the Supervisor.
func (e *Engine) AddSerialLink(l *serial.Link) {
	e.supervisor.AddSerialLink(l)
}

// AddPubSubLink registers a pub/sub Link with the Supervisor.
func (e *Engine) AddPubSubLink(l *pubsub.Link) {
	e.supervisor.AddPubSubLink(l)
}

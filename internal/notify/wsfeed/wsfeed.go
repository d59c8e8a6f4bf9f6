// Package wsfeed exposes the Reactive Notifier's update stream to remote
// UI subscribers over WebSocket (spec.md §1 "the reactive state stream
// consumed by a UI" — the UI itself is out of scope, but the transport it
// dials is not). Grounded on the overseer package's persistent client/
// server WebSocket split (whisper-darkly-sticky-dvr/overseer/client.go):
// one JSON frame per event, serialized writes, clean teardown on either
// side closing.
package wsfeed

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/notify"
	"github.com/lumenctl/lumen/internal/queue"
)

// WriteTimeout bounds a single frame write so one stalled UI client cannot
// wedge the feeding goroutine.
const WriteTimeout = 5 * time.Second

// SubscriberCapacity is the bounded channel size handed to
// notify.Notifier.Subscribe for each WebSocket client (spec.md §5 "all
// channels are bounded (default 128)").
const SubscriberCapacity = 128

// frame is the wire encoding of a notify.Update. Only the fields relevant
// to Kind are populated, mirroring Update itself; this is a distinct type
// from notify.Update (rather than adding json tags to it) since the core
// package owns no wire format of its own (spec.md §1 "out of scope:
// graphical control panel ... UI").
type frame struct {
	Kind string `json:"kind"`

	SceneID  *uint32 `json:"scene_id,omitempty"`
	StatusID *uint32 `json:"status_id,omitempty"`
	NewState *uint32 `json:"new_state,omitempty"`

	Snapshot []upcomingEventWire `json:"snapshot,omitempty"`

	Level     string     `json:"level,omitempty"`
	Message   string     `json:"message,omitempty"`
	EventID   *uint32    `json:"event_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	Data *dataWire `json:"data,omitempty"`
}

type upcomingEventWire struct {
	EventID   uint32        `json:"event_id"`
	StartTime time.Time     `json:"start_time"`
	Delay     time.Duration `json:"delay_ns"`
}

type dataWire struct {
	Kind  string `json:"kind"`
	Text  string `json:"text,omitempty"`
	Value int64  `json:"value,omitempty"`
}

func kindName(k notify.Kind) string {
	switch k {
	case notify.KindCurrentScene:
		return "current_scene"
	case notify.KindStatusChanged:
		return "status_changed"
	case notify.KindUpcomingEvents:
		return "upcoming_events"
	case notify.KindNotification:
		return "notification"
	case notify.KindBroadcast:
		return "broadcast"
	case notify.KindPromptString:
		return "prompt_string"
	default:
		return "unknown"
	}
}

func u32p(v uint32) *uint32 { return &v }

func toFrame(u notify.Update) frame {
	f := frame{Kind: kindName(u.Kind)}
	switch u.Kind {
	case notify.KindCurrentScene:
		f.SceneID = u32p(uint32(u.SceneID))
	case notify.KindStatusChanged:
		f.StatusID = u32p(uint32(u.StatusID))
		f.NewState = u32p(u.NewState)
	case notify.KindUpcomingEvents:
		f.Snapshot = make([]upcomingEventWire, len(u.Snapshot))
		for i, e := range u.Snapshot {
			f.Snapshot[i] = toUpcomingWire(e)
		}
	case notify.KindNotification:
		f.Level = u.Level.String()
		f.Message = u.Message
		ts := u.Timestamp
		f.Timestamp = &ts
		if u.HasEvent {
			f.EventID = u32p(uint32(u.EventID))
		}
	case notify.KindBroadcast:
		if u.HasEvent {
			f.EventID = u32p(uint32(u.EventID))
		}
		if u.HasData {
			f.Data = toDataWire(u.Data)
		}
	case notify.KindPromptString:
		if u.HasEvent {
			f.EventID = u32p(uint32(u.EventID))
		}
	}
	return f
}

func toUpcomingWire(e queue.UpcomingEvent) upcomingEventWire {
	return upcomingEventWire{EventID: uint32(e.EventID), StartTime: e.StartTime, Delay: e.Delay}
}

func toDataWire(d event.ResolvedData) *dataWire {
	return &dataWire{Kind: d.Kind.String(), Text: d.Text, Value: d.Value}
}

// Server upgrades incoming HTTP requests to WebSocket connections and
// feeds each one the Reactive Notifier's update stream as one JSON frame
// per Update, in emission order, until the client disconnects or the
// Notifier is closed.
type Server struct {
	notifier *notify.Notifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// Option configures a Server via functional options.
type Option func(*Server)

// WithLogger configures the Server's structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCheckOrigin overrides the upgrader's origin check, e.g. to allow a
// local control-panel UI served from a different port in development.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer constructs a Server feeding from notifier.
func NewServer(notifier *notify.Notifier, opts ...Option) *Server {
	s := &Server{
		notifier: notifier,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP implements http.Handler: it upgrades the connection, subscribes
// to the Notifier, and streams Updates until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("wsfeed: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsub := s.notifier.Subscribe(SubscriberCapacity)
	defer unsub()

	// A read loop is required so gorilla/websocket processes control
	// frames (ping/close) and notices the client hanging up; this feed is
	// one-directional, so any payload the client sends is discarded.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			data, err := json.Marshal(toFrame(u))
			if err != nil {
				s.logger.Warn("wsfeed: marshal failed", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("wsfeed: write failed", zap.Error(err))
				return
			}
		}
	}
}

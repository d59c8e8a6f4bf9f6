// Package notify implements the Reactive Notifier: a typed stream of
// updates fanned out to UI subscribers over a bounded channel. Adapted
// from the teacher's internal/production.ChannelPublisher (non-blocking
// publish) but widened to drop the OLDEST pending item rather than the
// newest on overflow, per spec.md §4.9 ("bounded channel with overflow =
// drop-oldest-and-log") — a stream of scene/status updates is more useful
// to a UI if it keeps the freshest update than if it keeps stale ones.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/queue"
)

// Level discriminates Notification severities.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelEventNow
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelEventNow:
		return "event_now"
	default:
		return "unknown"
	}
}

// Kind discriminates the Update variants.
type Kind int

const (
	KindCurrentScene Kind = iota
	KindStatusChanged
	KindUpcomingEvents
	KindNotification
	KindBroadcast
	KindPromptString
)

// Update is the single typed message the Notifier emits. Only the fields
// relevant to Kind are populated; this mirrors the teacher's
// PublishedEvent{Event, Metadata} bundling pattern but as one flat struct
// since the six variants here share no common payload shape worth
// factoring into an embedded type.
type Update struct {
	Kind Kind

	SceneID  event.SceneID     // KindCurrentScene
	StatusID event.StatusID    // KindStatusChanged
	NewState uint32            // KindStatusChanged

	Snapshot []queue.UpcomingEvent // KindUpcomingEvents

	Level     Level      // KindNotification
	Message   string     // KindNotification
	HasEvent  bool       // KindNotification, KindBroadcast, KindPromptString
	EventID   event.EventID
	Timestamp time.Time // KindNotification

	Data    event.ResolvedData // KindBroadcast
	HasData bool               // KindBroadcast
}

// Notifier owns the subscriber fan-out. It is write-from-one-task (the
// Dispatcher); subscribers read without blocking it.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[chan Update]struct{}
	logger      *zap.Logger
}

// New constructs an empty Notifier. A nil logger defaults to zap.NewNop(),
// matching the rest of the engine's functional-option logging convention.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{subscribers: make(map[chan Update]struct{}), logger: logger}
}

// Subscribe registers a new bounded subscriber channel of the given
// capacity (default 128 per spec.md §5 "all channels are bounded (default
// 128)"). The returned func unsubscribes and closes the channel.
func (n *Notifier) Subscribe(capacity int) (<-chan Update, func()) {
	if capacity <= 0 {
		capacity = 128
	}
	ch := make(chan Update, capacity)
	n.mu.Lock()
	n.subscribers[ch] = struct{}{}
	n.mu.Unlock()

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subscribers[ch]; ok {
			delete(n.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsub
}

// Emit fans an Update out to every subscriber, dropping the oldest queued
// item (and logging) for any subscriber whose buffer is full.
func (n *Notifier) Emit(u Update) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers {
		select {
		case ch <- u:
		default:
			// Buffer full: drop the oldest pending item to make room, then
			// retry once. If a concurrent reader already drained it, the
			// retry still succeeds non-blockingly.
			select {
			case <-ch:
				n.logger.Warn("notifier subscriber overflow, dropped oldest update", zap.Int("kind", int(u.Kind)))
			default:
			}
			select {
			case ch <- u:
			default:
				n.logger.Warn("notifier subscriber still full after drop, discarding update")
			}
		}
	}
}

// Close unsubscribes and closes every live subscriber channel.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers {
		close(ch)
	}
	n.subscribers = make(map[chan Update]struct{})
}

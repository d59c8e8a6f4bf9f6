package dispatch

import (
	"time"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
)

// Message is the sum type of everything the Dispatcher's single inbound
// channel accepts (spec.md §4.5). A small sealed interface with one marker
// method is the idiomatic Go sum type; the teacher's Machine instead feeds
// a single concrete primitives.Event because its interpreter has only one
// inbound shape. This Dispatcher has five.
type Message interface {
	isMessage()
}

// Trigger requests that an event's action list be evaluated.
type Trigger struct {
	EventID    event.EventID
	CheckScene bool
	Broadcast  bool

	// AnswerData carries a UserString prompt's answer back in on a later
	// Trigger (spec.md §4.5 SaveData/SendData, §9 open question 1). Nil for
	// every other Trigger.
	AnswerData *event.ResolvedData
}

func (Trigger) isMessage() {}

// StatusChangeMsg directly pokes a status, bypassing event dispatch.
type StatusChangeMsg struct {
	StatusID model.ItemID
	NewState model.ItemID
}

func (StatusChangeMsg) isMessage() {}

// SceneChangeMsg directly pokes the current scene, bypassing event dispatch.
type SceneChangeMsg struct {
	SceneID model.ItemID
}

func (SceneChangeMsg) isMessage() {}

// CancelAllMsg clears the queue.
type CancelAllMsg struct{}

func (CancelAllMsg) isMessage() {}

// TickMsg drives time-based expiry against now.
type TickMsg struct {
	Now time.Time
}

func (TickMsg) isMessage() {}

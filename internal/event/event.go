// Package event defines the event/action primitives the Dispatcher
// interprets: EventAction, EventDelay, and DataType, plus the Event itself
// (an ordered action list). Every identifier here (event, status, scene) is
// an model.ItemID drawn from the single configuration-wide namespace
// (spec.md §3 configuration invariant 1).
package event

import "github.com/lumenctl/lumen/internal/model"

// EventID, StatusID and SceneID are all model.ItemID: the configuration
// keeps one namespace for every reference (spec.md §3).
type (
	EventID  = model.ItemID
	StatusID = model.ItemID
	SceneID  = model.ItemID
)

// KeyCode identifies a physical key bound within a scene.
type KeyCode uint32

// ActionKind discriminates the EventAction variants.
type ActionKind int

const (
	ActionNewScene ActionKind = iota
	ActionModifyStatus
	ActionCueEvent
	ActionCancelEvent
	ActionSaveData
	ActionSendData
	ActionSelectEvent
)

func (k ActionKind) String() string {
	switch k {
	case ActionNewScene:
		return "new_scene"
	case ActionModifyStatus:
		return "modify_status"
	case ActionCueEvent:
		return "cue_event"
	case ActionCancelEvent:
		return "cancel_event"
	case ActionSaveData:
		return "save_data"
	case ActionSendData:
		return "send_data"
	case ActionSelectEvent:
		return "select_event"
	default:
		return "unknown_action"
	}
}

// EventAction is one step of an Event's action list. Exactly one of the
// payload fields is meaningful for a given Kind; this mirrors a tagged
// union using a discriminant plus payload fields rather than an interface,
// since the Dispatcher needs to marshal this through YAML configuration
// (see internal/config) where Go's typed-union idiom is a kind tag.
type EventAction struct {
	Kind ActionKind

	SceneID      SceneID      // ActionNewScene
	StatusID     StatusID     // ActionModifyStatus, ActionSelectEvent
	NewState     model.ItemID // ActionModifyStatus
	Delay        EventDelay   // ActionCueEvent
	EventID      EventID      // ActionCancelEvent
	Data         DataType     // ActionSaveData, ActionSendData
	SelectTable  map[model.ItemID]EventID // ActionSelectEvent: state_id -> event_id
}

// NewSceneAction builds a NewScene action.
func NewSceneAction(scene SceneID) EventAction {
	return EventAction{Kind: ActionNewScene, SceneID: scene}
}

// ModifyStatusAction builds a ModifyStatus action.
func ModifyStatusAction(status StatusID, newState model.ItemID) EventAction {
	return EventAction{Kind: ActionModifyStatus, StatusID: status, NewState: newState}
}

// CueEventAction builds a CueEvent action.
func CueEventAction(delay EventDelay) EventAction {
	return EventAction{Kind: ActionCueEvent, Delay: delay}
}

// CancelEventAction builds a CancelEvent action.
func CancelEventAction(id EventID) EventAction {
	return EventAction{Kind: ActionCancelEvent, EventID: id}
}

// SaveDataAction builds a SaveData action.
func SaveDataAction(d DataType) EventAction {
	return EventAction{Kind: ActionSaveData, Data: d}
}

// SendDataAction builds a SendData action.
func SendDataAction(d DataType) EventAction {
	return EventAction{Kind: ActionSendData, Data: d}
}

// SelectEventAction builds a SelectEvent action.
func SelectEventAction(status StatusID, table map[model.ItemID]EventID) EventAction {
	return EventAction{Kind: ActionSelectEvent, StatusID: status, SelectTable: table}
}

// Event is the ordered action list a Trigger dispatches.
type Event struct {
	Actions []EventAction
}

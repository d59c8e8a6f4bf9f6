// Package config decodes the structured configuration document of spec.md
// §6 and enforces the four load-time invariants of spec.md §3. It mirrors
// the teacher's internal/primitives.MachineConfig.Validate() shape — a
// struct plus a Validate() method returning wrapped sentinel errors — but
// validates a flat item/event/status/scene graph instead of a hierarchical
// state tree.
package config

import (
	"fmt"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/scene"
	"github.com/lumenctl/lumen/internal/status"
)

// Document is the fully decoded, not-yet-validated configuration. YAML tags
// follow the teacher's production.YAMLPersister convention of round-
// tripping through gopkg.in/yaml.v3.
type Document struct {
	Items       map[uint32]model.ItemDescription  `yaml:"items"`
	Events      map[uint32]event.Event             `yaml:"events"`
	Statuses    map[uint32]status.Definition        `yaml:"statuses"`
	Scenes      map[uint32]scene.Definition          `yaml:"scenes"`
	InitialScene uint32                              `yaml:"initial_scene"`
	AllStop     []event.EventAction                   `yaml:"all_stop,omitempty"`
}

// ErrConfig is the sentinel wrapped by every configuration validation
// failure. Configuration errors are fatal (spec.md §7): the engine refuses
// to start.
var ErrConfig = fmt.Errorf("configuration error")

// Validate enforces the four invariants of spec.md §3:
//  1. every ItemID in a MultiState allowed set, a scene set or a key
//     binding, and every ModifyStatus status, CueEvent/CancelEvent target
//     and SelectEvent target, has a description entry. NewScene targets
//     are checked against the scene map instead. ModifyStatus new states,
//     SaveData/SendData event ids, CountedState trigger/anti-trigger ids
//     and the AllStop action list are not checked;
//  2. every SelectEvent map key of a MultiState status is in its allowed
//     set;
//  3. every MultiState.current is in allowed;
//  4. the current scene (InitialScene) exists.
func (doc *Document) Validate() error {
	described := func(id uint32) bool {
		if id == uint32(model.AllStopItemID) {
			return true
		}
		_, ok := doc.Items[id]
		return ok
	}

	for id, def := range doc.Statuses {
		if def.Kind == status.KindMultiState {
			if _, ok := def.Allowed[def.Initial]; !ok {
				return fmt.Errorf("%w: status %d: current %v not in allowed set", ErrConfig, id, def.Initial)
			}
			for item := range def.Allowed {
				if !described(uint32(item)) {
					return fmt.Errorf("%w: status %d: allowed item %v has no description", ErrConfig, id, item)
				}
			}
		}
	}

	for id, ev := range doc.Events {
		for i, action := range ev.Actions {
			if err := doc.validateAction(id, i, action, described); err != nil {
				return err
			}
		}
	}

	for id, sc := range doc.Scenes {
		for item := range sc.Items {
			if !described(uint32(item)) {
				return fmt.Errorf("%w: scene %d: item %v has no description", ErrConfig, id, item)
			}
		}
		for key, item := range sc.Bindings {
			if !described(uint32(item)) {
				return fmt.Errorf("%w: scene %d: key binding %v -> item %v has no description", ErrConfig, id, key, item)
			}
		}
	}

	if _, ok := doc.Scenes[doc.InitialScene]; !ok {
		return fmt.Errorf("%w: initial scene %d does not exist", ErrConfig, doc.InitialScene)
	}

	return nil
}

func (doc *Document) validateAction(eventID uint32, index int, action event.EventAction, described func(uint32) bool) error {
	switch action.Kind {
	case event.ActionNewScene:
		if _, ok := doc.Scenes[uint32(action.SceneID)]; !ok {
			return fmt.Errorf("%w: event %d action %d: unknown scene %v", ErrConfig, eventID, index, action.SceneID)
		}
	case event.ActionModifyStatus:
		if !described(uint32(action.StatusID)) {
			return fmt.Errorf("%w: event %d action %d: status %v has no description", ErrConfig, eventID, index, action.StatusID)
		}
	case event.ActionCueEvent, event.ActionCancelEvent:
		target := action.EventID
		if action.Kind == event.ActionCueEvent {
			target = action.Delay.EventID
		}
		if !described(uint32(target)) {
			return fmt.Errorf("%w: event %d action %d: referenced event %v has no description", ErrConfig, eventID, index, target)
		}
	case event.ActionSelectEvent:
		def, ok := doc.Statuses[uint32(action.StatusID)]
		if !ok {
			return fmt.Errorf("%w: event %d action %d: unknown status %v", ErrConfig, eventID, index, action.StatusID)
		}
		for state, target := range action.SelectTable {
			if def.Kind == status.KindMultiState {
				if _, ok := def.Allowed[state]; !ok {
					return fmt.Errorf("%w: event %d action %d: select_event state %v not in status %v allowed set", ErrConfig, eventID, index, state, action.StatusID)
				}
			}
			if !described(uint32(target)) {
				return fmt.Errorf("%w: event %d action %d: select_event target %v has no description", ErrConfig, eventID, index, target)
			}
		}
	}
	return nil
}

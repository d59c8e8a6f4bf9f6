package config

import (
	"time"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/queue"
	"github.com/lumenctl/lumen/internal/scene"
	"github.com/lumenctl/lumen/internal/status"
)

// Built bundles the runtime Registries constructed from a validated
// Document, ready to hand to dispatch.New.
type Built struct {
	Events    map[event.EventID]event.Event
	StatusReg *status.Registry
	SceneReg  *scene.Registry
	Queue     *queue.Queue
}

// Build validates doc and constructs fresh Registries + an empty Queue
// (spec.md §3 "The Queue is empty at load and at scene change.").
func Build(doc *Document, nowFn func() time.Time) (*Built, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	statusDefs := make(map[status.StatusID]status.Definition, len(doc.Statuses))
	for id, def := range doc.Statuses {
		statusDefs[model.ItemIDFromWire(id)] = def
	}
	statusReg, err := status.NewRegistry(statusDefs)
	if err != nil {
		return nil, err
	}

	sceneDefs := make(map[scene.SceneID]scene.Definition, len(doc.Scenes))
	for id, def := range doc.Scenes {
		sceneDefs[model.ItemIDFromWire(id)] = def
	}
	sceneReg, err := scene.NewRegistry(sceneDefs, model.ItemIDFromWire(doc.InitialScene))
	if err != nil {
		return nil, err
	}

	events := make(map[event.EventID]event.Event, len(doc.Events))
	for id, ev := range doc.Events {
		events[model.ItemIDFromWire(id)] = ev
	}
	if len(doc.AllStop) > 0 {
		events[model.AllStopItemID] = event.Event{Actions: doc.AllStop}
	}

	return &Built{
		Events:    events,
		StatusReg: statusReg,
		SceneReg:  sceneReg,
		Queue:     queue.New(nowFn),
	}, nil
}

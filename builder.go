package lumen

import (
	"github.com/lumenctl/lumen/internal/config"
	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/scene"
	"github.com/lumenctl/lumen/internal/status"
)

// ConfigBuilder is a fluent API for constructing a configuration Document
// programmatically, in the style of the teacher's MachineBuilder
// (builder.go) — chained calls returning the receiver — but over a flat
// item/event/status/scene graph rather than a hierarchical state tree.
type ConfigBuilder struct {
	doc config.Document
}

// NewConfigBuilder starts a builder whose initial scene is initialScene.
func NewConfigBuilder(initialScene uint32) *ConfigBuilder {
	return &ConfigBuilder{doc: config.Document{
		Items:        make(map[uint32]model.ItemDescription),
		Events:       make(map[uint32]event.Event),
		Statuses:     make(map[uint32]status.Definition),
		Scenes:       make(map[uint32]scene.Definition),
		InitialScene: initialScene,
	}}
}

// Item attaches display metadata to id.
func (b *ConfigBuilder) Item(id uint32, desc model.ItemDescription) *ConfigBuilder {
	b.doc.Items[id] = desc
	return b
}

// Event registers id's action list.
func (b *ConfigBuilder) Event(id uint32, actions ...event.EventAction) *ConfigBuilder {
	b.doc.Events[id] = event.Event{Actions: actions}
	return b
}

// Status registers a status definition.
func (b *ConfigBuilder) Status(id uint32, def status.Definition) *ConfigBuilder {
	b.doc.Statuses[id] = def
	return b
}

// Scene registers a scene definition.
func (b *ConfigBuilder) Scene(id uint32, def scene.Definition) *ConfigBuilder {
	b.doc.Scenes[id] = def
	return b
}

// AllStop sets the action list executed on ItemId(0) (spec.md §6).
func (b *ConfigBuilder) AllStop(actions ...event.EventAction) *ConfigBuilder {
	b.doc.AllStop = actions
	return b
}

// Build validates the accumulated document and returns it.
func (b *ConfigBuilder) Build() (*config.Document, error) {
	if err := b.doc.Validate(); err != nil {
		return nil, err
	}
	doc := b.doc
	return &doc, nil
}

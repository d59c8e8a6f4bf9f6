// Package scene implements the Scene Registry: per-scene item visibility
// sets, key bindings, and the single current-scene pointer.
package scene

import (
	"errors"
	"fmt"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/model"
)

// SceneID identifies a scene within the configuration-wide namespace.
type SceneID = model.ItemID

// ErrUnknownScene is returned by SetCurrent for a scene absent from the
// registry.
var ErrUnknownScene = errors.New("unknown scene")

// Definition is the immutable, configuration-authored shape of a scene.
type Definition struct {
	Items    map[model.ItemID]struct{}      `yaml:"items,omitempty"`
	Bindings map[event.KeyCode]model.ItemID `yaml:"bindings,omitempty"`
}

// Registry owns every scene's visibility set and key bindings, plus the
// single current-scene pointer. Single mutable owner: the Dispatcher.
type Registry struct {
	scenes  map[SceneID]Definition
	current SceneID
}

// NewRegistry builds a Registry. initial must be a key of defs (spec.md §3
// configuration invariant 4); internal/config enforces this at load time,
// but NewRegistry re-checks defensively since it is also usable directly in
// tests.
func NewRegistry(defs map[SceneID]Definition, initial SceneID) (*Registry, error) {
	if _, ok := defs[initial]; !ok {
		return nil, fmt.Errorf("%w: initial scene %v", ErrUnknownScene, initial)
	}
	return &Registry{scenes: defs, current: initial}, nil
}

// Current returns the current scene id.
func (r *Registry) Current() SceneID {
	return r.current
}

// SetCurrent switches the current scene. Fails ErrUnknownScene if id is not
// registered.
func (r *Registry) SetCurrent(id SceneID) error {
	if _, ok := r.scenes[id]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownScene, id)
	}
	r.current = id
	return nil
}

// IsVisible reports whether item is in scene's visibility set.
func (r *Registry) IsVisible(scene SceneID, item model.ItemID) bool {
	def, ok := r.scenes[scene]
	if !ok {
		return false
	}
	_, visible := def.Items[item]
	return visible
}

// Binding resolves key against the current scene only.
func (r *Registry) Binding(key event.KeyCode) (model.ItemID, bool) {
	def, ok := r.scenes[r.current]
	if !ok {
		return 0, false
	}
	id, bound := def.Bindings[key]
	return id, bound
}

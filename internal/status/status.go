// Package status implements the Status Registry: every status's allowed
// states, current state, and the two state-change semantics (multi-state,
// counted). Adapted from the teacher's internal/core.Registry split between
// mutation (Apply) and drained change notifications (IterChanges), so the
// registry itself never knows how changes reach the UI.
package status

import (
	"errors"
	"fmt"

	"github.com/lumenctl/lumen/internal/model"
)

// StatusID identifies a status within the configuration-wide namespace.
type StatusID = model.ItemID

var (
	// ErrUnknownStatus is returned by Apply/Get for an unregistered StatusID.
	ErrUnknownStatus = errors.New("unknown status")
	// ErrInvalidState is returned when a requested state is not valid for
	// the status's kind.
	ErrInvalidState = errors.New("invalid status state")
)

// Kind discriminates the two Status variants.
type Kind int

const (
	KindMultiState Kind = iota
	KindCounted
)

// Definition is the immutable, configuration-authored shape of a status.
// NewRegistry copies Definition into mutable runtime state.
type Definition struct {
	Kind Kind

	// MultiState fields.
	Allowed map[model.ItemID]struct{}
	Initial model.ItemID

	// Counted fields.
	Trigger      model.ItemID
	AntiTrigger  model.ItemID
	DefaultCount uint32
}

// state is the mutable runtime record for one status.
type state struct {
	def     Definition
	current model.ItemID
	count   uint32 // meaningful only for KindCounted
}

// View is a read-only snapshot of a status's current value.
type View struct {
	ID      StatusID
	Kind    Kind
	Current model.ItemID
	Count   uint32 // meaningful only for KindCounted
}

// Change records one successful Apply, queued for the Reactive Notifier.
type Change struct {
	StatusID StatusID
	Current  model.ItemID
}

// Registry owns every status's allowed states and current value. It has a
// single mutable owner (the Dispatcher); spec.md §9 design notes call this
// out explicitly ("one mutable owner per registry. No locks.").
type Registry struct {
	statuses map[StatusID]*state
	changes  []Change
}

// NewRegistry builds a Registry from the configuration-authored
// definitions. It does not validate cross-references (scene sets,
// SelectEvent tables); that belongs to internal/config, which has visibility
// into the whole configuration document.
func NewRegistry(defs map[StatusID]Definition) (*Registry, error) {
	r := &Registry{statuses: make(map[StatusID]*state, len(defs))}
	for id, def := range defs {
		switch def.Kind {
		case KindMultiState:
			if _, ok := def.Allowed[def.Initial]; !ok {
				return nil, fmt.Errorf("status %v: initial state %v not in allowed set", id, def.Initial)
			}
			r.statuses[id] = &state{def: def, current: def.Initial}
		case KindCounted:
			r.statuses[id] = &state{def: def, current: def.AntiTrigger, count: def.DefaultCount}
			if def.DefaultCount == 0 {
				r.statuses[id].current = def.Trigger
			}
		default:
			return nil, fmt.Errorf("status %v: unknown kind %v", id, def.Kind)
		}
	}
	return r, nil
}

// Get returns a read-only snapshot of status id.
func (r *Registry) Get(id StatusID) (View, error) {
	st, ok := r.statuses[id]
	if !ok {
		return View{}, fmt.Errorf("%w: %v", ErrUnknownStatus, id)
	}
	return View{ID: id, Kind: st.def.Kind, Current: st.current, Count: st.count}, nil
}

// Apply applies the variant's state-change rule and returns the resulting
// Change. For KindCounted, newState must be Trigger or AntiTrigger; it is
// interpreted as a pulse, not a direct write (spec.md §4.2).
func (r *Registry) Apply(id StatusID, newState model.ItemID) (Change, error) {
	st, ok := r.statuses[id]
	if !ok {
		return Change{}, fmt.Errorf("%w: %v", ErrUnknownStatus, id)
	}

	switch st.def.Kind {
	case KindMultiState:
		if _, ok := st.def.Allowed[newState]; !ok {
			return Change{}, fmt.Errorf("%w: %v not allowed for status %v", ErrInvalidState, newState, id)
		}
		st.current = newState
	case KindCounted:
		switch newState {
		case st.def.Trigger:
			if st.count > 0 {
				st.count--
			}
			if st.count == 0 {
				st.current = st.def.Trigger
			}
		case st.def.AntiTrigger:
			st.count = st.def.DefaultCount
			st.current = st.def.AntiTrigger
			if st.count == 0 {
				st.current = st.def.Trigger
			}
		default:
			return Change{}, fmt.Errorf("%w: %v is neither trigger nor anti-trigger for status %v", ErrInvalidState, newState, id)
		}
	}

	change := Change{StatusID: id, Current: st.current}
	r.changes = append(r.changes, change)
	return change, nil
}

// IterChanges drains and returns every Change recorded since the last call.
func (r *Registry) IterChanges() []Change {
	if len(r.changes) == 0 {
		return nil
	}
	out := r.changes
	r.changes = nil
	return out
}

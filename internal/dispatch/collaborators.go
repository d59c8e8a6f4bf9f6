package dispatch

import "github.com/lumenctl/lumen/internal/event"

// LogSink receives SaveData payloads (spec.md §4.5, §6 "append-only game
// log"). internal/gamelog provides the production implementation; tests
// substitute an in-memory recorder. Mirrors the teacher's Persister
// interface shape (internal/core.Persister).
type LogSink interface {
	Save(record event.ResolvedData, eventID event.EventID) error
}

// OutboundSink receives SendData payloads and Broadcast events for fan-out
// to external links (spec.md §4.5, §4.8). internal/supervisor provides the
// production implementation.
type OutboundSink interface {
	Send(eventID event.EventID, data *event.ResolvedData) error
	Broadcast(eventID event.EventID, data *event.ResolvedData) error
}

// NopLogSink discards every record. Default when no LogSink is configured.
type NopLogSink struct{}

func (NopLogSink) Save(event.ResolvedData, event.EventID) error { return nil }

// NopOutboundSink discards every send/broadcast. Default when no
// OutboundSink is configured.
type NopOutboundSink struct{}

func (NopOutboundSink) Send(event.EventID, *event.ResolvedData) error     { return nil }
func (NopOutboundSink) Broadcast(event.EventID, *event.ResolvedData) error { return nil }

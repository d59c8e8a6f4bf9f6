// Package gamelog implements the append-only game log of spec.md §6: one
// record per line, each carrying a monotonic timestamp, level, message, and
// optional event id. Adapted from the teacher's internal/production
// persisters (directory creation, os.WriteFile error wrapping) but append-
// mode and line-oriented rather than whole-file JSON/YAML snapshots, since
// spec.md explicitly calls the log "append-only" and "line-oriented" while
// leaving the exact encoding implementation-defined.
package gamelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/notify"
)

// Record is one line of the game log.
type Record struct {
	Timestamp time.Time       `json:"ts"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	HasEvent  bool            `json:"has_event,omitempty"`
	EventID   uint32          `json:"event_id,omitempty"`
	Data      *event.ResolvedData `json:"data,omitempty"`
}

// Writer appends Records to a file, one JSON object per line. Safe for
// concurrent Save/NotifyRecord calls.
type Writer struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
}

// Open creates (or appends to) the game log at path.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open game log %s: %w", path, err)
	}
	return &Writer{f: f, buf: bufio.NewWriter(f)}, nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

func (w *Writer) appendRecord(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal game log record: %w", err)
	}
	if _, err := w.buf.Write(data); err != nil {
		return fmt.Errorf("write game log record: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Save implements dispatch.LogSink: it is the SaveData destination.
func (w *Writer) Save(data event.ResolvedData, eventID event.EventID) error {
	return w.appendRecord(Record{
		Timestamp: time.Now(),
		Level:     "data",
		HasEvent:  true,
		EventID:   uint32(eventID),
		Data:      &data,
	})
}

// NotifyRecord appends a Reactive Notifier Update as a game log line; wire
// this as a Notifier subscriber to persist the same Warning/Error/Info
// stream the UI sees (spec.md §6 "an append-only game log of
// notifications").
func (w *Writer) NotifyRecord(u notify.Update) error {
	if u.Kind != notify.KindNotification {
		return nil
	}
	r := Record{
		Timestamp: u.Timestamp,
		Level:     u.Level.String(),
		Message:   u.Message,
		HasEvent:  u.HasEvent,
		EventID:   uint32(u.EventID),
	}
	return w.appendRecord(r)
}

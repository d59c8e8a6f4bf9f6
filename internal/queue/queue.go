// Package queue implements the Event Queue: a min-heap of pending
// (trigger_time, event_id, origin_token) entries with cancellation, keyed
// on container/heap rather than a sorted slice, since entries need
// out-of-order removal (CancelEvent) as well as ordered pop. The teacher's
// realtime package gets away with a one-shot sort.Slice of a batch
// (realtime/tick.go); this queue additionally needs true priority-queue
// insert/remove because entries linger across many ticks.
package queue

import (
	"container/heap"
	"time"

	"github.com/google/uuid"

	"github.com/lumenctl/lumen/internal/event"
)

// Entry is the queue's internal record and the externally visible
// UpcomingEvent projection combined; Snapshot strips the heap bookkeeping
// fields before handing entries to callers.
type Entry struct {
	EventID     event.EventID
	TriggerTime time.Time
	OriginToken uuid.UUID

	seq   uint64 // insertion order, for stable tie-break
	index int    // heap.Interface bookkeeping
}

// UpcomingEvent is the externally visible projection of a queue entry
// (spec.md §3).
type UpcomingEvent struct {
	EventID     event.EventID
	OriginToken uuid.UUID
	StartTime   time.Time
	Delay       time.Duration
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].TriggerTime.Equal(h[j].TriggerTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].TriggerTime.Before(h[j].TriggerTime)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the Event Queue of spec.md §4.4. It is single-owner: the
// Dispatcher is the only caller, so no internal locking is needed (spec.md
// §9 "one mutable owner per registry").
type Queue struct {
	h       entryHeap
	nextSeq uint64
	now     func() time.Time
}

// New constructs an empty Queue. nowFn defaults to time.Now; tests may
// substitute a deterministic clock.
func New(nowFn func() time.Time) *Queue {
	if nowFn == nil {
		nowFn = time.Now
	}
	q := &Queue{now: nowFn}
	heap.Init(&q.h)
	return q
}

// Enqueue inserts id to trigger at now+delay (delay 0 if absent) and
// returns the origin token minted for this entry.
func (q *Queue) Enqueue(id event.EventID, delay time.Duration) uuid.UUID {
	token := uuid.New()
	start := q.now()
	e := &Entry{
		EventID:     id,
		TriggerTime: start.Add(delay),
		OriginToken: token,
		seq:         q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.h, e)
	return token
}

// Cancel removes every entry matching id and returns the count removed
// (spec.md Q2: idempotent — calling again on an already-empty match is a
// harmless no-op returning 0).
func (q *Queue) Cancel(id event.EventID) int {
	removed := 0
	// Rebuild rather than repeatedly heap.Remove-by-index-while-iterating,
	// since removing arbitrary indices invalidates iteration order.
	kept := make(entryHeap, 0, len(q.h))
	for _, e := range q.h {
		if e.EventID == id {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.h = kept
	heap.Init(&q.h)
	return removed
}

// Clear empties the queue (used by NewScene, spec.md §4.5).
func (q *Queue) Clear() {
	q.h = nil
}

// PopReady yields every entry with TriggerTime <= now, in non-decreasing
// TriggerTime order (spec.md Q1: monotone, each entry surfaces exactly
// once).
func (q *Queue) PopReady(now time.Time) []Entry {
	var ready []Entry
	for q.h.Len() > 0 && !q.h[0].TriggerTime.After(now) {
		e := heap.Pop(&q.h).(*Entry)
		ready = append(ready, *e)
	}
	return ready
}

// PeekNext returns the earliest TriggerTime for sleep sizing, or false if
// the queue is empty.
func (q *Queue) PeekNext() (time.Time, bool) {
	if q.h.Len() == 0 {
		return time.Time{}, false
	}
	return q.h[0].TriggerTime, true
}

// Len reports the number of pending entries.
func (q *Queue) Len() int {
	return q.h.Len()
}

// TimeUntilMillis scans the queue (in trigger-time order) for the first
// entry matching id and returns the milliseconds remaining until it fires.
// Returns 0, false if no match exists — the Dispatcher treats "no match" as
// a resolved value of 0 per spec.md §4.5.
func (q *Queue) TimeUntilMillis(id event.EventID) (int64, bool) {
	for _, e := range q.Snapshot() {
		if e.EventID == id {
			ms := e.Delay.Milliseconds()
			if ms < 0 {
				ms = 0
			}
			return ms, true
		}
	}
	return 0, false
}

// Snapshot returns the ordered UpcomingEvent projection for the Reactive
// Notifier. Ordering matches pop order (earliest trigger time first).
func (q *Queue) Snapshot() []UpcomingEvent {
	if q.h.Len() == 0 {
		return nil
	}
	sorted := make(entryHeap, len(q.h))
	copy(sorted, q.h)
	// Re-heapify a scratch copy so Snapshot never mutates pop order of q.h.
	scratch := &entryHeap{}
	*scratch = append(*scratch, sorted...)
	heap.Init(scratch)

	now := q.now()
	out := make([]UpcomingEvent, 0, scratch.Len())
	for scratch.Len() > 0 {
		e := heap.Pop(scratch).(*Entry)
		out = append(out, UpcomingEvent{
			EventID:     e.EventID,
			OriginToken: e.OriginToken,
			StartTime:   e.TriggerTime,
			Delay:       e.TriggerTime.Sub(now),
		})
	}
	return out
}

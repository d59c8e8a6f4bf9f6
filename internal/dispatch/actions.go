package dispatch

import (
	"go.uber.org/zap"

	"github.com/lumenctl/lumen/internal/event"
	"github.com/lumenctl/lumen/internal/metrics"
	"github.com/lumenctl/lumen/internal/model"
	"github.com/lumenctl/lumen/internal/notify"
)

// dispatchTrigger evaluates msg's event action list at the given recursion
// depth (0 for every externally-originated Trigger and Tick expiry; depth+1
// for a SelectEvent tail-dispatch). Individual action failures are
// recoverable (spec.md §4.5 "Failure semantics"); only three conditions
// halt the whole event: an exceeded depth limit, scene visibility failure,
// and a missing event.
func (d *Dispatcher) dispatchTrigger(t Trigger, depth int) {
	if depth == 0 {
		start := d.now()
		outcome := "ok"
		defer func() {
			metrics.DispatchLatency.WithLabelValues(outcome).Observe(d.now().Sub(start).Seconds())
		}()
		outcome = d.dispatchTriggerTimed(t, depth)
		return
	}
	d.dispatchTriggerTimed(t, depth)
}

// dispatchTriggerTimed is the actual reduction rule; it returns an outcome
// label for the top-level call's DispatchLatency observation.
func (d *Dispatcher) dispatchTriggerTimed(t Trigger, depth int) string {
	if depth >= d.depthLimit {
		d.errorf("dispatch depth exceeded", t.EventID, true)
		return "depth_exceeded"
	}

	if t.CheckScene && !d.sceneReg.IsVisible(d.sceneReg.Current(), t.EventID) {
		d.warn("event not in current scene", t.EventID, true)
		return "scene_blocked"
	}

	ev, ok := d.events[t.EventID]
	if !ok {
		d.warn("unknown event", t.EventID, true)
		return "unknown_event"
	}

	for _, action := range ev.Actions {
		d.runAction(t, action, depth)
	}

	if t.Broadcast {
		if err := d.outbound.Broadcast(t.EventID, nil); err != nil {
			d.logger.Warn("broadcast send failed", zap.Uint32("event_id", uint32(t.EventID)), zap.Error(err))
		}
	}
	return "ok"
}

func (d *Dispatcher) runAction(t Trigger, action event.EventAction, depth int) {
	switch action.Kind {
	case event.ActionNewScene:
		d.doNewScene(action.SceneID)
	case event.ActionModifyStatus:
		d.applyStatusChange(action.StatusID, action.NewState)
	case event.ActionCueEvent:
		d.queue.Enqueue(action.Delay.EventID, action.Delay.Resolve())
	case event.ActionCancelEvent:
		d.queue.Cancel(action.EventID)
	case event.ActionSaveData:
		d.doSaveData(t, action.Data)
	case event.ActionSendData:
		d.doSendData(t, action.Data)
	case event.ActionSelectEvent:
		d.doSelectEvent(action.StatusID, action.SelectTable, depth)
	default:
		d.warn("unrecognized action kind", t.EventID, false)
	}
}

func (d *Dispatcher) doNewScene(id model.ItemID) {
	if err := d.sceneReg.SetCurrent(id); err != nil {
		d.warn("unknown scene", id, false)
		return
	}
	d.queue.Clear()
	d.notifier.Emit(notify.Update{Kind: notify.KindCurrentScene, SceneID: id})
}

func (d *Dispatcher) applyStatusChange(statusID, newState model.ItemID) {
	change, err := d.statusReg.Apply(statusID, newState)
	if err != nil {
		d.warn(err.Error(), statusID, false)
		return
	}
	d.notifier.Emit(notify.Update{
		Kind:     notify.KindStatusChanged,
		StatusID: change.StatusID,
		NewState: uint32(change.Current),
	})
}

func (d *Dispatcher) applySceneChange(id model.ItemID) {
	d.doNewScene(id)
}

// resolveData computes a DataType's concrete value. For DataUserString it
// either consumes the Trigger's carried answer (a later round-trip) or
// signals that a PromptString notification is owed and the action is
// otherwise a no-op (spec.md §4.5, §9 open question 1 — see DESIGN.md).
func (d *Dispatcher) resolveData(t Trigger, dt event.DataType) (resolved event.ResolvedData, skip bool) {
	switch dt.Kind {
	case event.DataStaticString:
		return event.ResolvedData{Kind: dt.Kind, Text: dt.Text}, false
	case event.DataTimeUntil:
		ms, _ := d.queue.TimeUntilMillis(dt.EventID)
		return event.ResolvedData{Kind: dt.Kind, Value: ms}, false
	case event.DataTimePassedUntil:
		ms, _ := d.queue.TimeUntilMillis(dt.EventID)
		return event.ResolvedData{Kind: dt.Kind, Value: dt.TotalMillis - ms}, false
	case event.DataUserString:
		if t.AnswerData != nil {
			return *t.AnswerData, false
		}
		d.notifier.Emit(notify.Update{Kind: notify.KindPromptString, HasEvent: true, EventID: t.EventID})
		return event.ResolvedData{}, true
	default:
		return event.ResolvedData{}, true
	}
}

func (d *Dispatcher) doSaveData(t Trigger, dt event.DataType) {
	resolved, skip := d.resolveData(t, dt)
	if skip {
		return
	}
	if err := d.logSink.Save(resolved, t.EventID); err != nil {
		d.logger.Warn("save data failed", zap.Uint32("event_id", uint32(t.EventID)), zap.Error(err))
	}
}

func (d *Dispatcher) doSendData(t Trigger, dt event.DataType) {
	resolved, skip := d.resolveData(t, dt)
	if skip {
		return
	}
	if err := d.outbound.Send(t.EventID, &resolved); err != nil {
		d.logger.Warn("send data failed", zap.Uint32("event_id", uint32(t.EventID)), zap.Error(err))
	}
}

func (d *Dispatcher) doSelectEvent(statusID model.ItemID, table map[model.ItemID]event.EventID, depth int) {
	view, err := d.statusReg.Get(statusID)
	if err != nil {
		d.warn("unknown status", statusID, false)
		return
	}
	target, ok := table[view.Current]
	if !ok {
		d.warn("select event missing state", statusID, false)
		return
	}
	d.dispatchTrigger(Trigger{EventID: target, CheckScene: false, Broadcast: false}, depth+1)
}

func (d *Dispatcher) emitUpcomingEvents() {
	snapshot := d.queue.Snapshot()
	metrics.QueueDepth.Set(float64(len(snapshot)))
	d.notifier.Emit(notify.Update{Kind: notify.KindUpcomingEvents, Snapshot: snapshot})
}

func (d *Dispatcher) warn(message string, id model.ItemID, hasEvent bool) {
	metrics.DispatchWarnings.WithLabelValues(message).Inc()
	d.notifier.Emit(notify.Update{
		Kind:      notify.KindNotification,
		Level:     notify.LevelWarning,
		Message:   message,
		HasEvent:  hasEvent,
		EventID:   id,
		Timestamp: d.now(),
	})
	d.logger.Warn(message, zap.Uint32("item_id", uint32(id)))
}

func (d *Dispatcher) errorf(message string, id model.ItemID, hasEvent bool) {
	metrics.DispatchErrors.WithLabelValues(message).Inc()
	d.notifier.Emit(notify.Update{
		Kind:      notify.KindNotification,
		Level:     notify.LevelError,
		Message:   message,
		HasEvent:  hasEvent,
		EventID:   id,
		Timestamp: d.now(),
	})
	d.logger.Error(message, zap.Uint32("item_id", uint32(id)))
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"subflow/engine/internal/objtable"
	"subflow/engine/internal/routing"
	"subflow/engine/internal/state"
	"subflow/engine/internal/substrate"
)

// Scheduler is the scheduling loop of spec.md 4.G: a single Tick call
// services every tracker's SJRS/SJS transitions, considers auto-starting a
// waiting substrate, harvests a completed routing sequence, and dispatches
// the next one. Grounded on the teacher's worker-loop shape (one part, one
// goroutine, a periodic tick) the same way transferperm.Module.run and
// routing.Manager.execute are each a single-threaded actor over their own
// slice of state.
type Scheduler struct {
	table      *objtable.Table
	routingMgr *routing.Manager
	now        func() time.Time

	// cfgMu guards behavior/settings, which a configwatch reload may
	// overwrite from a different goroutine between ticks.
	cfgMu    sync.RWMutex
	behavior state.Behavior
	settings state.Settings

	trackers []*ProcessTracker

	// activeSeq is the one routing.Action the scheduler allows in flight at
	// a time (spec.md 4.G step 5: "only one sequence in flight"). Only the
	// tracker idleDispatch routed points RunningAction at it.
	activeSeq *routing.Action
}

// NewScheduler constructs a Scheduler over tbl, dispatching routing work
// through routingMgr.
func NewScheduler(tbl *objtable.Table, routingMgr *routing.Manager, behavior state.Behavior, settings state.Settings) *Scheduler {
	return &Scheduler{
		table:      tbl,
		routingMgr: routingMgr,
		behavior:   behavior,
		settings:   settings,
		now:        time.Now,
	}
}

// AddTracker registers t with the scheduler.
func (s *Scheduler) AddTracker(t *ProcessTracker) { s.trackers = append(s.trackers, t) }

// Trackers returns the currently registered trackers.
func (s *Scheduler) Trackers() []*ProcessTracker { return s.trackers }

// UpdateBehavior replaces the Behavior mask used by subsequent ticks. Safe
// to call from a different goroutine than the one driving Tick (a
// configwatch reload, typically).
func (s *Scheduler) UpdateBehavior(b state.Behavior) {
	s.cfgMu.Lock()
	s.behavior = b
	s.cfgMu.Unlock()
}

// UpdateSettings replaces the Settings used by subsequent ticks.
func (s *Scheduler) UpdateSettings(st state.Settings) {
	s.cfgMu.Lock()
	s.settings = st
	s.cfgMu.Unlock()
}

func (s *Scheduler) currentBehaviorAndSettings() (state.Behavior, state.Settings) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.behavior, s.settings
}

// SetStepSpec replaces the step program for the tracker tracking substID,
// for a configwatch reload that changes a process recipe in flight. No-op
// if substID is not currently tracked.
func (s *Scheduler) SetStepSpec(substID objtable.ObjectID, spec []StepSpec) bool {
	for _, t := range s.trackers {
		if t.SubstID == substID {
			t.Spec = spec
			return true
		}
	}
	return false
}

// Tick runs one pass of the loop: refresh observers, service SJRS/SJS
// transitions, consider auto-starting a waiting substrate, harvest a
// completed sequence, and dispatch the next idle routing work.
func (s *Scheduler) Tick(ctx context.Context) error {
	for _, t := range s.trackers {
		t.Observer.Update()
	}

	for _, t := range s.trackers {
		if err := s.serviceSJRS(t); err != nil {
			return err
		}
	}

	var anyAtSource, anyWaitingForStart bool
	for _, t := range s.trackers {
		info, ok := t.Info()
		if !ok {
			continue
		}
		if info.STS == state.STSAtSource {
			anyAtSource = true
		}
		if info.SJS == state.SJSWaitingForStart {
			anyWaitingForStart = true
		}
	}
	if s.fullyOnline() && anyAtSource && anyWaitingForStart {
		if err := s.autoStart(); err != nil {
			return err
		}
	}

	s.harvestCompletedSequence()

	if _, err := s.idleDispatch(ctx); err != nil {
		return err
	}
	return nil
}

// fullyOnline reports whether every transfer-permission module the routing
// manager knows about currently reports itself available. A scheduler with
// no registered modules (a bare object-table-only setup) is vacuously
// online.
func (s *Scheduler) fullyOnline() bool {
	for _, mod := range s.routingMgr.AutoLocNameToITPR {
		st := mod.StatePublisher().Snapshot()
		if st == nil || !st.IsAvailable() {
			return false
		}
	}
	return true
}

// serviceSJRS applies spec.md 4.G step 1: the basic SJRS -> SJS triggers.
func (s *Scheduler) serviceSJRS(t *ProcessTracker) error {
	info, ok := t.Info()
	if !ok {
		return nil
	}
	next := info.SJS

	switch info.SJRS {
	case state.SJRSRun:
		switch info.SJS {
		case state.SJSInitial:
			next = state.SJSWaitingForStart
		case state.SJSPaused, state.SJSPausing:
			next = state.SJSRunning
		}
	case state.SJRSPause:
		switch info.SJS {
		case state.SJSRunning:
			next = state.SJSPausing
		case state.SJSPausing:
			if t.RunningAction == nil {
				next = state.SJSPaused
			}
		}
	case state.SJRSStop:
		switch info.SJS {
		case state.SJSStopped:
		case state.SJSStopping:
			if t.RunningAction == nil {
				next = state.SJSStopped
			}
		default:
			next = state.SJSStopping
		}
	case state.SJRSAbort:
		switch info.SJS {
		case state.SJSAborted:
		case state.SJSAborting:
			if t.RunningAction == nil {
				next = state.SJSAborted
			}
		default:
			next = state.SJSAborting
		}
	case state.SJRSReturn:
		switch info.SJS {
		case state.SJSReturned:
		case state.SJSReturning:
			if t.RunningAction == nil {
				next = state.SJSReturned
			}
		default:
			next = state.SJSReturning
		}
	case state.SJRSNone:
		if (info.SJS == state.SJSInitial || info.SJS == state.SJSWaitingForStart) && info.STS != state.STSAtSource {
			next = state.SJSHeld
		}
	}

	if next == info.SJS {
		return nil
	}
	return s.table.Update([]objtable.UpdateItem{objtable.SetAttributes{
		ID:    t.SubstID,
		Attrs: map[string]objtable.AttrValue{objtable.AttrSJS: objtable.EnumAttr(next.String())},
		Merge: objtable.MergeAddAndUpdate,
	}})
}

// autoStart implements spec.md 4.G step 3: pick the first AtSource substrate
// waiting to start, and if its next location has room, let it run.
func (s *Scheduler) autoStart() error {
	for _, t := range s.trackers {
		info, ok := t.Info()
		if !ok || info.STS != state.STSAtSource || info.SJS != state.SJSWaitingForStart || info.SJRS != state.SJRSRun {
			continue
		}
		if _, found := s.firstUnoccupied(NextLocList(t, info)); found {
			return s.table.Update([]objtable.UpdateItem{objtable.SetAttributes{
				ID:    t.SubstID,
				Attrs: map[string]objtable.AttrValue{objtable.AttrSJS: objtable.EnumAttr(state.SJSRunning.String())},
				Merge: objtable.MergeAddAndUpdate,
			}})
		}
		return nil
	}
	return nil
}

// harvestCompletedSequence implements spec.md 4.G step 4: once the active
// sequence completes, record a StepResult for every tracker it was moving
// and clear them to idle.
func (s *Scheduler) harvestCompletedSequence() {
	if s.activeSeq == nil {
		return
	}
	select {
	case <-s.activeSeq.Done():
	default:
		return
	}

	result, reason := s.activeSeq.Result()
	for _, t := range s.trackers {
		if t.RunningAction != s.activeSeq {
			continue
		}
		sr := StepResult{}
		if result != routing.ResultSucceeded {
			sr.ResultCode = reason
		}
		if info, ok := t.Info(); ok {
			sr.SPS = info.SPS
		}
		t.StepResults = append(t.StepResults, sr)
		t.CompletedSteps++
		t.RunningAction = nil
	}
	s.activeSeq = nil
}

// idleDispatch implements spec.md 4.G steps 5 and 6 together: with no
// sequence in flight, find the first Running tracker whose current location
// isn't one of its next-location candidates and route it, via MoveOrSwap,
// to the first unoccupied candidate. A tracker already sitting in a valid
// next location (including one freshly launched by autoStart) is left
// alone. Occupied candidates are never chosen, so the target is always
// empty and MoveOrSwap plainly moves; when every candidate is occupied the
// tracker is skipped for this tick and no swap is started from here.
func (s *Scheduler) idleDispatch(ctx context.Context) (bool, error) {
	if s.activeSeq != nil {
		return false, nil
	}

	for _, t := range s.trackers {
		info, ok := t.Info()
		if !ok || info.SJS != state.SJSRunning {
			continue
		}

		if t.CompletedSteps >= len(t.Spec) && info.STS == state.STSAtSource && info.InferredSPS().IsNeedsProcessing() {
			behavior, settings := s.currentBehaviorAndSettings()
			items, err := state.SetSubstProcState(info, state.SPSProcessed, behavior, settings, s.now())
			if err != nil {
				return false, err
			}
			if err := s.table.Update(items); err != nil {
				return false, err
			}
			t.Observer.Update()
			info, ok = t.Info()
			if !ok {
				continue
			}
		}

		list := NextLocList(t, info)
		if len(list) == 0 || containsName(list, info.ContainingLoc.Name) {
			continue
		}

		target, found := s.firstUnoccupied(list)
		if !found {
			continue
		}

		action := s.routingMgr.Sequence(ctx, []routing.Item{routing.MoveOrSwap{SubstID: t.SubstID, ToLoc: target}})
		s.activeSeq = action
		t.RunningAction = action
		return true, nil
	}
	return false, nil
}

func (s *Scheduler) firstUnoccupied(locNames []string) (objtable.ObjectID, bool) {
	for _, name := range locNames {
		id := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: name}
		obj, ok := s.table.GetObject(id)
		if !ok {
			continue
		}
		if substrate.LocationInfo(obj).Contains.IsZero() {
			return id, true
		}
	}
	return objtable.ObjectID{}, false
}

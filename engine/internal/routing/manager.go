package routing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"subflow/engine/internal/objtable"
	"subflow/engine/internal/state"
	"subflow/engine/internal/substrate"
	"subflow/engine/internal/transferperm"
)

// Manager is the routing manager of spec.md 4.F: a single-threaded
// cooperative actor that executes one Sequence at a time against the object
// table, auto-acquiring and releasing transfer permission as it goes and
// resolving dual-arm move/swap placement. Grounded on the teacher's
// pipeline.Pipeline for its ctx/cancel-carrying Action and its "one thing
// runs, everything else queues" concurrency shape -- simplified here to a
// single mutex rather than a worker pool, since spec.md's routing manager
// runs sequences strictly one at a time.
type Manager struct {
	table    *objtable.Table
	arms     ArmSet
	behavior state.Behavior
	settings state.Settings
	now      func() time.Time

	// AutoLocNameToITPR maps a location name to the transfer-permission
	// module responsible for it. Move/Swap/MoveOrSwap items auto-acquire the
	// module for every location they touch and release it at end of item;
	// explicit TransferPermissionRequest items bypass the auto behavior.
	AutoLocNameToITPR map[string]*transferperm.Module

	// seqMu serializes Sequence executions: only one sequence runs against
	// this Manager's table at a time, matching spec.md 4.F's single routing
	// manager per physical system.
	seqMu sync.Mutex

	// Stats counters, read by the health probe in engine.go.
	openSequences  atomic.Int64
	totalSequences atomic.Int64
	failedInARow   atomic.Int64
}

// Stats is a point-in-time snapshot of routing manager activity, consulted
// by the engine's health probe.
type Stats struct {
	OpenSequences    int64
	TotalSequences   int64
	FailedStreak     int64
}

// Stats returns the current sequence counters.
func (m *Manager) Stats() Stats {
	return Stats{
		OpenSequences:  m.openSequences.Load(),
		TotalSequences: m.totalSequences.Load(),
		FailedStreak:   m.failedInARow.Load(),
	}
}

// NewManager constructs a Manager over tbl with the given robot-arm pair.
func NewManager(tbl *objtable.Table, arms ArmSet, behavior state.Behavior, settings state.Settings) *Manager {
	return &Manager{
		table:             tbl,
		arms:              arms,
		behavior:          behavior,
		settings:          settings,
		now:               time.Now,
		AutoLocNameToITPR: map[string]*transferperm.Module{},
	}
}

// postedRunAction is a RunAction posted with OnlyStartAction: it keeps
// running in the background while the sequence proceeds to later items. It
// is awaited before the next later item that is not a RunAction, before a
// later RunAction whose Locations overlap its own or that has no Locations,
// or at end of sequence, whichever comes first.
type postedRunAction struct {
	action         RunnableAction
	locs           []objtable.ObjectID
	ignoreFailures bool
}

type seq struct {
	mgr                 *Manager
	ctx                 context.Context
	endOfSeqReleaseLocs []string
	posted              []*postedRunAction
}

// Sequence executes items in order against the manager's table, returning at
// once with an Action the caller can Wait on or Cancel. Only one Sequence
// runs at a time per Manager: a second call also returns at once, but its
// items start only after the running sequence completes.
func (m *Manager) Sequence(ctx context.Context, items []Item) *Action {
	a := newAction(ctx)
	go m.execute(a, items)
	return a
}

func (m *Manager) execute(a *Action, items []Item) {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	a.markStarted()
	m.totalSequences.Add(1)
	m.openSequences.Add(1)
	defer m.openSequences.Add(-1)
	s := &seq{mgr: m, ctx: a.ctx}

	fail := func(reason string) {
		s.releaseEndOfSequence()
		m.failedInARow.Add(1)
		a.complete(ResultFailed, reason)
	}

	for _, it := range items {
		if err := a.ctx.Err(); err != nil {
			fail("sequence cancelled")
			return
		}
		if err := s.awaitPostedTouching(touchedLocs(it)); err != nil {
			fail(err.Error())
			return
		}
		ended, err := s.execItem(it)
		if err != nil {
			fail(err.Error())
			return
		}
		if ended {
			break
		}
	}

	if err := s.awaitPostedTouching(nil); err != nil {
		fail(err.Error())
		return
	}
	s.releaseEndOfSequence()
	m.failedInARow.Store(0)
	a.complete(ResultSucceeded, "")
}

// touchedLocs names the object IDs a RunAction item is scoped to, used to
// decide whether it must first await an earlier OnlyStartAction. Every other
// item kind yields nil, so it awaits every still-posted action first.
func touchedLocs(it Item) []objtable.ObjectID {
	if ra, ok := it.(RunAction); ok {
		return ra.Locations
	}
	return nil
}

// awaitPostedTouching waits, concurrently, for every still-posted
// OnlyStartAction whose Locations intersect locs (or, with locs == nil, for
// everything still posted -- the case for every non-RunAction item, for a
// RunAction without Locations, and for the end-of-sequence drain). Grounded on the
// same "wait on N independent subordinate actions, fail fast on the first
// error, propagate cancellation" contract errgroup.WithContext exists for.
func (s *seq) awaitPostedTouching(locs []objtable.ObjectID) error {
	touches := func(p *postedRunAction) bool {
		if locs == nil {
			return true
		}
		for _, a := range locs {
			for _, b := range p.locs {
				if a == b {
					return true
				}
			}
		}
		return false
	}

	var remaining []*postedRunAction
	var toAwait []*postedRunAction
	for _, p := range s.posted {
		if touches(p) {
			toAwait = append(toAwait, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	s.posted = remaining
	if len(toAwait) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(s.ctx)
	for _, p := range toAwait {
		p := p
		g.Go(func() error {
			select {
			case <-p.action.Done():
			case <-ctx.Done():
				p.action.Cancel()
				return fmt.Errorf("sequence cancelled awaiting posted action")
			}
			if succeeded, reason := p.action.Result(); !succeeded && !p.ignoreFailures {
				return fmt.Errorf("posted action failed: %s", reason)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *seq) releaseEndOfSequence() {
	for _, locName := range s.endOfSeqReleaseLocs {
		if mod := s.mgr.AutoLocNameToITPR[locName]; mod != nil {
			mod.Release(locName)
		}
	}
	s.endOfSeqReleaseLocs = nil
}

// execItem runs one item and reports whether the sequence should end
// early with success (true only for a DelegatePredicate's
// PredicateNegativeEndsSequence outcome).
func (s *seq) execItem(raw Item) (ended bool, err error) {
	switch it := raw.(type) {
	case MoveSubstrate:
		return false, s.move(it.SubstID, it.ToLoc)
	case SwapSubstrates:
		return false, s.swap(it.SubstID, it.SwapWithSubstID)
	case MoveOrSwap:
		occupant, err := s.occupantOf(it.ToLoc)
		if err != nil {
			return false, err
		}
		if occupant.IsZero() {
			return false, s.move(it.SubstID, it.ToLoc)
		}
		return false, s.swap(it.SubstID, occupant)
	case ApproachLocation:
		// Physical arm kinematics are out of scope; an approach is a
		// best-effort positioning hint with no object-table effect.
		return false, nil
	case RunAction:
		return false, s.runAction(it)
	case TransferPermissionRequest:
		return false, s.transferPermission(it)
	case DelegatePredicate:
		return s.delegatePredicate(it)
	default:
		return false, fmt.Errorf("routing: unknown item type %T", raw)
	}
}

func (s *seq) occupantOf(locID objtable.ObjectID) (objtable.ObjectID, error) {
	obj, ok := s.mgr.table.GetObject(locID)
	if !ok {
		return objtable.ObjectID{}, fmt.Errorf("routing: unknown location %s", locID.Name)
	}
	return substrate.LocationInfo(obj).Contains, nil
}

func (s *seq) substInfo(id objtable.ObjectID) (state.SubstrateInfo, error) {
	obj, ok := s.mgr.table.GetObject(id)
	if !ok {
		return state.SubstrateInfo{}, fmt.Errorf("routing: unknown substrate %s", id.Name)
	}
	return substrate.Info(obj), nil
}

func (s *seq) move(substID, toLoc objtable.ObjectID) error {
	release := s.autoAcquire(toLoc.Name)
	defer release()

	info, err := s.substInfo(substID)
	if err != nil {
		return err
	}
	if from := info.ContainingLoc; !from.IsZero() && from != toLoc {
		releaseFrom := s.autoAcquire(from.Name)
		defer releaseFrom()
	}
	items, err := state.NoteSubstMoved(info, toLoc, s.mgr.behavior, s.mgr.settings, s.mgr.now())
	if err != nil {
		return err
	}
	if err := s.mgr.table.Update(items); err != nil {
		return fmt.Errorf("routing: move %s to %s: %w", substID.Name, toLoc.Name, err)
	}
	return nil
}

// swap implements spec.md 4.F's dual-arm swap: substID is parked on one arm
// (unless already on it), swapWithID moves from its own location to the
// other arm, and finally substID moves into swapWithID's vacated location.
// swapWithID is left parked on the arm for a later sequence to relocate.
func (s *seq) swap(substID, swapWithID objtable.ObjectID) error {
	substLoc, err := s.currentLoc(substID)
	if err != nil {
		return err
	}
	swapWithLoc, err := s.currentLoc(swapWithID)
	if err != nil {
		return err
	}

	occ, err := s.armOccupancy()
	if err != nil {
		return err
	}
	fromArm, toArm, ok := chooseSwapArms(s.mgr.arms, occ, substID)
	if !ok {
		return fmt.Errorf("routing: no arm available to swap %s with %s", substID.Name, swapWithID.Name)
	}

	if substLoc != fromArm {
		if err := s.move(substID, fromArm); err != nil {
			return err
		}
	}
	if err := s.move(swapWithID, toArm); err != nil {
		return err
	}
	if err := s.move(substID, swapWithLoc); err != nil {
		return err
	}
	return nil
}

func (s *seq) currentLoc(substID objtable.ObjectID) (objtable.ObjectID, error) {
	info, err := s.substInfo(substID)
	if err != nil {
		return objtable.ObjectID{}, err
	}
	return info.ContainingLoc, nil
}

func (s *seq) armOccupancy() (ArmOccupancy, error) {
	a, err := s.occupantOf(s.mgr.arms.ArmA)
	if err != nil {
		return ArmOccupancy{}, err
	}
	b, err := s.occupantOf(s.mgr.arms.ArmB)
	if err != nil {
		return ArmOccupancy{}, err
	}
	return ArmOccupancy{ArmAOccupant: a, ArmBOccupant: b}, nil
}

// autoAcquire acquires the transfer-permission module responsible for
// locName, if any, and returns a release func to defer. A no-op if locName
// has no registered module.
func (s *seq) autoAcquire(locName string) func() {
	mod := s.mgr.AutoLocNameToITPR[locName]
	if mod == nil {
		return func() {}
	}
	a := mod.Acquire(locName)
	_, _, _ = a.Wait(s.ctx)
	return func() { mod.Release(locName) }
}

func (s *seq) runAction(it RunAction) error {
	action := it.Action
	if action == nil && it.Factory != nil {
		action = it.Factory()
	}
	if action == nil {
		return fmt.Errorf("routing: RunAction has neither Action nor Factory")
	}
	action.Start()

	if it.OnlyStartAction {
		s.posted = append(s.posted, &postedRunAction{action: action, locs: it.Locations, ignoreFailures: it.IgnoreFailures})
		return nil
	}

	select {
	case <-action.Done():
	case <-s.ctx.Done():
		action.Cancel()
		return fmt.Errorf("routing: action cancelled")
	}
	if succeeded, reason := action.Result(); !succeeded && !it.IgnoreFailures {
		return fmt.Errorf("routing: action failed: %s", reason)
	}
	return nil
}

func (s *seq) transferPermission(it TransferPermissionRequest) error {
	for _, locName := range it.LocNames {
		mod := s.mgr.AutoLocNameToITPR[locName]
		if mod == nil {
			continue
		}
		switch {
		case it.Settings.has(TPRRelease):
			a := mod.Release(locName)
			if !it.Settings.has(TPROnlyStartRequest) {
				_, _, _ = a.Wait(s.ctx)
			}
		case it.Settings.has(TPRAcquire) || it.Settings.has(TPRRecursiveAcquire):
			a := mod.Acquire(locName)
			if it.Settings.has(TPROnlyStartRequest) {
				continue
			}
			res, reason, err := a.Wait(s.ctx)
			if err != nil {
				return err
			}
			if res != transferperm.ResultSucceeded {
				return fmt.Errorf("routing: acquire %s failed: %s", locName, reason)
			}
			if it.Settings.has(TPRAutoReleaseAtEndOfSequence) {
				s.endOfSeqReleaseLocs = append(s.endOfSeqReleaseLocs, locName)
			}
		}
	}
	return nil
}

func (s *seq) delegatePredicate(it DelegatePredicate) (ended bool, err error) {
	if it.Predicate == nil || it.Predicate() {
		return false, nil
	}
	switch it.Behavior {
	case PredicateNegativeFailsSequence:
		reason := it.ReasonOnNegative
		if reason == "" {
			reason = "predicate returned false"
		}
		return false, fmt.Errorf("%s", reason)
	case PredicateNegativeEndsSequence:
		return true, nil
	default:
		return false, nil
	}
}

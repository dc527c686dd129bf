// Package scheduler implements the scheduler loop of spec.md 4.G: one
// ProcessTracker per in-flight substrate, ticked by a single cooperative
// loop that services SJRS/SJS transitions, auto-starts waiting substrates,
// harvests completed routing sequences, and dispatches idle routing work.
package scheduler

import (
	"subflow/engine/internal/objtable"
	"subflow/engine/internal/publisher"
	"subflow/engine/internal/routing"
	"subflow/engine/internal/state"
	"subflow/engine/internal/substrate"
)

// StepSpec is one step of a tracker's process program: a set of locations
// any of which may run the step, plus opaque step-specific parameters.
type StepSpec struct {
	UsableLocNames []string
	Variables      map[string]any
}

// StepResult records the outcome of one completed step.
type StepResult struct {
	SPS        state.SPSCode
	ResultCode string
}

// Failed reports whether the step ended in a non-empty result code.
func (r StepResult) Failed() bool { return r.ResultCode != "" }

// ProcessTracker is the scheduler's per-substrate bookkeeping: an observer
// on the substrate's table snapshot plus the loop-local fields that are not
// persisted to the object table itself (the step program, completed-step
// count, and the currently in-flight routing action).
type ProcessTracker struct {
	SubstID  objtable.ObjectID
	Observer *publisher.Observer[objtable.Object]

	Spec           []StepSpec
	CompletedSteps int
	StepResults    []StepResult

	RunningAction              *routing.Action
	FinalizeSPSAtEndOfLastStep bool
	DropRequestReason          string
}

// NewProcessTracker attaches a tracker to substID, observing its table
// publisher.
func NewProcessTracker(tbl *objtable.Table, substID objtable.ObjectID, spec []StepSpec) *ProcessTracker {
	return &ProcessTracker{
		SubstID:  substID,
		Observer: publisher.NewObserver(tbl.GetPublisher(substID)),
		Spec:     spec,
	}
}

// Info derives the tracker's current SubstrateInfo from its last-observed
// snapshot. The bool return is false before the first Observer.Update call,
// or once the substrate has been removed from the table.
func (t *ProcessTracker) Info() (state.SubstrateInfo, bool) {
	obj := t.Observer.Current()
	if obj == nil {
		return state.SubstrateInfo{}, false
	}
	return substrate.Info(obj), true
}

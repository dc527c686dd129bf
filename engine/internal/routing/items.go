// Package routing implements the routing manager of spec.md 4.F: a
// single-threaded cooperative actor that executes ordered sequences of
// routing items, auto-acquiring and releasing transfer permissions as it
// goes, and resolving dual-arm move/swap placement.
package routing

import "subflow/engine/internal/objtable"

// Item is one element of a Sequence.
type Item interface{ isItem() }

// MoveSubstrate moves substID to the (currently unoccupied) location toLoc.
type MoveSubstrate struct {
	SubstID objtable.ObjectID
	ToLoc   objtable.ObjectID
}

// SwapSubstrates exchanges the positions of two substrates, one of which may
// already be parked on a robot arm.
type SwapSubstrates struct {
	SubstID         objtable.ObjectID
	SwapWithSubstID objtable.ObjectID
}

// MoveOrSwap moves substID to toLoc if toLoc is unoccupied, otherwise swaps
// substID with whatever currently occupies toLoc.
type MoveOrSwap struct {
	SubstID objtable.ObjectID
	ToLoc   objtable.ObjectID
}

// ApproachLocation is a pre-pick/pre-place positioning move; failure is
// non-fatal to the sequence unless MustSucceed is set.
type ApproachLocation struct {
	ArmLoc        objtable.ObjectID
	ToLoc         objtable.ObjectID
	WaitUntilDone bool
	MustSucceed   bool
}

// RunnableAction is the minimal external-action surface RunAction delegates
// to (the ProcessModule-side collaborator that actually performs work).
type RunnableAction interface {
	Start()
	Done() <-chan struct{}
	Result() (succeeded bool, reason string)
	Cancel()
}

// ActionFactory lazily constructs a RunnableAction; RunAction guarantees it
// is invoked at most once.
type ActionFactory func() RunnableAction

// RunAction delegates to an externally supplied action (or one built by
// Factory, invoked at most once). OnlyStartAction posts it and returns
// immediately; its completion is awaited before a later RunAction whose
// Locations overlap, before any later item of another kind, or at end of
// sequence (see seq.posted). IgnoreFailures keeps the sequence going even
// if the action fails.
type RunAction struct {
	Action          RunnableAction
	Factory         ActionFactory
	Locations       []objtable.ObjectID // locations this action's completion is scoped to
	OnlyStartAction bool
	IgnoreFailures  bool
}

// TPRFlag is a bitmask of TransferPermissionRequest settings.
type TPRFlag int

const (
	TPROnlyStartRequest TPRFlag = 1 << iota
	TPRAcquire
	TPRRecursiveAcquire
	TPRRelease
	TPRAutoReleaseAtEndOfSequence
)

func (f TPRFlag) has(bit TPRFlag) bool { return f&bit != 0 }

// TransferPermissionRequest explicitly acquires or releases transfer
// permission for a set of locations.
type TransferPermissionRequest struct {
	LocNames []string
	Settings TPRFlag
}

// PredicateBehavior controls what a DelegatePredicate item does on a
// negative (false) result.
type PredicateBehavior int

const (
	PredicateNone PredicateBehavior = iota
	PredicateNegativeFailsSequence
	PredicateNegativeEndsSequence
)

// DelegatePredicate gates the remainder of the sequence on an externally
// supplied predicate.
type DelegatePredicate struct {
	Predicate        func() bool
	Behavior         PredicateBehavior
	ReasonOnNegative string
}

func (MoveSubstrate) isItem()             {}
func (SwapSubstrates) isItem()            {}
func (MoveOrSwap) isItem()                {}
func (ApproachLocation) isItem()          {}
func (RunAction) isItem()                 {}
func (TransferPermissionRequest) isItem() {}
func (DelegatePredicate) isItem()         {}

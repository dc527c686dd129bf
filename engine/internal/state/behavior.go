package state

// Behavior reifies the update-call-site flag mask as named booleans, one per
// update-generation branch point. Every GenerateUpdates call site selects the
// subset it needs rather than sharing one process-wide mask.
type Behavior struct {
	// UsePendingSPS routes an incoming SPS request through PendingSPS instead
	// of attempting to write the live SPS directly.
	UsePendingSPS bool
	// AutoUpdateSTS recomputes STS from the current location and inferred SPS
	// after every update, promoting SPS on arrival at the destination.
	AutoUpdateSTS bool
	// UseSPSList enables SPSList history append.
	UseSPSList bool
	// UseSPSLocList enables SPSLocList history append (requires UseSPSList).
	UseSPSLocList bool
	// UseSPSDateTimeList enables SPSDateTimeList history append (requires
	// UseSPSList).
	UseSPSDateTimeList bool
	// AllowReturnToNeedsProcessing permits the InProcess -> NeedsProcessing
	// transition, normally denied.
	AllowReturnToNeedsProcessing bool
	// RequireInProcessBeforeProcessComplete denies NeedsProcessing ->
	// {Processed, Aborted, Stopped, Rejected} when true (the default); when
	// false those transitions are allowed directly from NeedsProcessing.
	RequireInProcessBeforeProcessComplete bool
	// HandleMovedToDestLocWithSJRSStopAndSPSInProcess forces SPS := Stopped
	// on arrival at the destination when SJRS == Stop.
	HandleMovedToDestLocWithSJRSStopAndSPSInProcess bool
	// HandleMovedToDestLocWithSJRSAbortAndSPSInProcess forces SPS := Aborted
	// on arrival at the destination when SJRS == Abort.
	HandleMovedToDestLocWithSJRSAbortAndSPSInProcess bool
	// RemoveAttemptsToMoveAllSubstToDestOrSrc makes RemoveSubst relocate the
	// substrate to its destination (if processing complete) or source
	// (otherwise) before deleting it.
	RemoveAttemptsToMoveAllSubstToDestOrSrc bool
	// PersistRemovedFromLocName copies the substrate's last location name
	// into RemovedFromSubstLocName before RemoveSubst deletes the object.
	PersistRemovedFromLocName bool
}

// Settings carries the process-wide defaults the source modeled as global
// mutable configuration; here it is passed explicitly to each call instead.
type Settings struct {
	// MaximumSPSListLength bounds the combined history-list length; history
	// appends beyond this cap are silently skipped. Clamped to [0, 1000].
	MaximumSPSListLength int
}

// Defaults returns the settings the engine ships with out of the box.
func Defaults() Settings {
	return Settings{MaximumSPSListLength: 50}
}

func (s Settings) maxListLen() int {
	switch {
	case s.MaximumSPSListLength < 0:
		return 0
	case s.MaximumSPSListLength > 1000:
		return 1000
	default:
		return s.MaximumSPSListLength
	}
}

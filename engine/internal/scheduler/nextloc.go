package scheduler

import "subflow/engine/internal/state"

// NextLocList implements spec.md 4.G's per-tracker next-location table: the
// set of locations (by name) the tracker's substrate should be at next,
// given its current SJS and process-step progress. An empty result means
// the substrate has nowhere left to go (Initial/Held, or already at its
// final destination).
func NextLocList(t *ProcessTracker, info state.SubstrateInfo) []string {
	switch info.SJS {
	case state.SJSInitial, state.SJSHeld:
		return nil

	case state.SJSWaitingForStart, state.SJSRunning:
		if t.CompletedSteps < len(t.Spec) {
			return t.Spec[t.CompletedSteps].UsableLocNames
		}
		if info.STS == state.STSAtDestination {
			return nil
		}
		// No steps remain. A substrate that never needed processing (or has
		// already finished it) heads straight to its destination; one that
		// is still sitting at its source as NeedsProcessing is handled by
		// the caller forcing SPS := Processed before this is consulted.
		return []string{info.DestLoc.Name}

	default:
		// Pausing/Stopping/Aborting/Returning and their terminal/settled
		// counterparts: incomplete processing returns to source, completed
		// processing heads to destination.
		if info.InferredSPS().IsProcessingComplete() {
			return []string{info.DestLoc.Name}
		}
		return []string{info.SrcLoc.Name}
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

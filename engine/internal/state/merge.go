package state

// priorityRank returns the merge-lattice priority of v and whether v is the
// absorbing (undefined) element. Live values rank NeedsProcessing <
// InProcess < Processed < Stopped < Rejected < Skipped < Aborted < Lost.
// ProcessStepCompleted, though pseudo, carries a rank between InProcess and
// Processed; the other pseudo values (Created, Moved, Removed) collapse to
// undefined.
func priorityRank(v SPSValue) (rank int, undefined bool) {
	if v.IsPseudo() {
		if v.PseudoCode() == PseudoProcessStepCompleted {
			return 3, false
		}
		return 0, true
	}
	switch v.LiveCode() {
	case SPSNeedsProcessing:
		return 1, false
	case SPSInProcess:
		return 2, false
	case SPSProcessed:
		return 4, false
	case SPSStopped:
		return 5, false
	case SPSRejected:
		return 6, false
	case SPSSkipped:
		return 7, false
	case SPSAborted:
		return 8, false
	case SPSLost:
		return 9, false
	default: // SPSUndefined
		return 0, true
	}
}

// Merge combines a and b per the SPS/PendingSPS priority lattice: the higher
// -ranked of the two wins; Undefined (on either side, live or collapsed from
// a pseudo Created/Moved/Removed) is absorbing. This is the only place in
// the engine where Skipped outranks Processed.
func Merge(a, b SPSValue) SPSValue {
	ra, ua := priorityRank(a)
	rb, ub := priorityRank(b)
	if ua {
		return b
	}
	if ub {
		return a
	}
	if ra >= rb {
		return a
	}
	return b
}

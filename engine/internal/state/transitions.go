package state

import "fmt"

// TransitionDenyReason implements getTransitionDenyReason over live SPS
// codes: empty string means the transition is legal (including a same-value
// no-op); a non-empty string names the reason it is denied.
func TransitionDenyReason(from, to SPSCode, b Behavior) string {
	if from == to {
		return ""
	}
	switch {
	case from == SPSNeedsProcessing && to == SPSInProcess:
		return ""
	case from == SPSInProcess && (to == SPSProcessed || to == SPSAborted || to == SPSStopped || to == SPSRejected):
		return ""
	case (from == SPSNeedsProcessing || from == SPSInProcess) && to == SPSLost:
		return ""
	case from == SPSNeedsProcessing && to == SPSSkipped:
		return ""
	case from == SPSInProcess && to == SPSNeedsProcessing:
		if b.AllowReturnToNeedsProcessing {
			return ""
		}
		return "InProcess->NeedsProcessing requires AllowReturnToNeedsProcessing"
	case from == SPSNeedsProcessing && (to == SPSProcessed || to == SPSAborted || to == SPSStopped || to == SPSRejected):
		if !b.RequireInProcessBeforeProcessComplete {
			return ""
		}
		return fmt.Sprintf("NeedsProcessing->%s requires RequireInProcessBeforeProcessComplete=false", to)
	default:
		return fmt.Sprintf("illegal SPS transition %s->%s", from, to)
	}
}

// Package state implements the substrate processing/transport state engine:
// the SPS/PendingSPS merge lattice, legal-transition checks, the unified
// update-generation procedure, and the SubstrateInfo/SubstrateLocationInfo
// projections it operates over. Grounded on the teacher's strategies package
// for the shape of a small rule-table-driven decision function, and on its
// config.Defaults() convention for the Settings/Behavior structs below.
package state

// SPSCode enumerates the live Substrate Processing State values. The zero
// value, SPSUndefined, is itself a valid live value (absorbing in Merge).
type SPSCode int

const (
	SPSUndefined SPSCode = iota
	SPSNeedsProcessing
	SPSInProcess
	SPSProcessed
	SPSAborted
	SPSStopped
	SPSRejected
	SPSLost
	SPSSkipped
)

func (c SPSCode) String() string {
	switch c {
	case SPSNeedsProcessing:
		return "NeedsProcessing"
	case SPSInProcess:
		return "InProcess"
	case SPSProcessed:
		return "Processed"
	case SPSAborted:
		return "Aborted"
	case SPSStopped:
		return "Stopped"
	case SPSRejected:
		return "Rejected"
	case SPSLost:
		return "Lost"
	case SPSSkipped:
		return "Skipped"
	default:
		return "Undefined"
	}
}

// ParseSPSCode reverses SPSCode.String. Unknown names parse to SPSUndefined.
func ParseSPSCode(s string) SPSCode {
	switch s {
	case "NeedsProcessing":
		return SPSNeedsProcessing
	case "InProcess":
		return SPSInProcess
	case "Processed":
		return SPSProcessed
	case "Aborted":
		return SPSAborted
	case "Stopped":
		return SPSStopped
	case "Rejected":
		return SPSRejected
	case "Lost":
		return SPSLost
	case "Skipped":
		return SPSSkipped
	default:
		return SPSUndefined
	}
}

// PseudoCode enumerates the pseudo-SPS values: valid only as SPSList history
// entries, never as a live SPS or PendingSPS attribute value (I5).
type PseudoCode int

const (
	PseudoCreated PseudoCode = iota + 1
	PseudoMoved
	PseudoRemoved
	PseudoProcessStepCompleted
)

func (c PseudoCode) String() string {
	switch c {
	case PseudoCreated:
		return "Created"
	case PseudoMoved:
		return "Moved"
	case PseudoRemoved:
		return "Removed"
	case PseudoProcessStepCompleted:
		return "ProcessStepCompleted"
	default:
		return ""
	}
}

// STSCode enumerates the Substrate Transport State values.
type STSCode int

const (
	STSUndefined STSCode = iota
	STSAtSource
	STSAtWork
	STSAtDestination
)

func (c STSCode) String() string {
	switch c {
	case STSAtSource:
		return "AtSource"
	case STSAtWork:
		return "AtWork"
	case STSAtDestination:
		return "AtDestination"
	default:
		return "Undefined"
	}
}

func ParseSTSCode(s string) STSCode {
	switch s {
	case "AtSource":
		return STSAtSource
	case "AtWork":
		return STSAtWork
	case "AtDestination":
		return STSAtDestination
	default:
		return STSUndefined
	}
}

// SubstLocState summarizes occupancy for external (e.g. E087 slot-map)
// reporting; it is derived, not stored.
type SubstLocState int

const (
	SubstLocUndefined SubstLocState = iota
	SubstLocOccupied
	SubstLocUnoccupied
)

// SJRS is the scheduler's request input (operator/host intent).
type SJRS int

const (
	SJRSNone SJRS = iota
	SJRSRun
	SJRSPause
	SJRSStop
	SJRSAbort
	SJRSReturn
)

func (s SJRS) String() string {
	switch s {
	case SJRSRun:
		return "Run"
	case SJRSPause:
		return "Pause"
	case SJRSStop:
		return "Stop"
	case SJRSAbort:
		return "Abort"
	case SJRSReturn:
		return "Return"
	default:
		return "None"
	}
}

func ParseSJRS(s string) SJRS {
	switch s {
	case "Run":
		return SJRSRun
	case "Pause":
		return SJRSPause
	case "Stop":
		return SJRSStop
	case "Abort":
		return SJRSAbort
	case "Return":
		return SJRSReturn
	default:
		return SJRSNone
	}
}

// SJS is the scheduler's observable output state.
type SJS int

const (
	SJSInitial SJS = iota
	SJSWaitingForStart
	SJSRunning
	SJSProcessed
	SJSRejected
	SJSSkipped
	SJSPausing
	SJSPaused
	SJSStopping
	SJSStopped
	SJSAborting
	SJSAborted
	SJSLost
	SJSReturning
	SJSReturned
	SJSHeld
	SJSRoutingAlarm
	SJSRemoved
)

func (s SJS) String() string {
	switch s {
	case SJSWaitingForStart:
		return "WaitingForStart"
	case SJSRunning:
		return "Running"
	case SJSProcessed:
		return "Processed"
	case SJSRejected:
		return "Rejected"
	case SJSSkipped:
		return "Skipped"
	case SJSPausing:
		return "Pausing"
	case SJSPaused:
		return "Paused"
	case SJSStopping:
		return "Stopping"
	case SJSStopped:
		return "Stopped"
	case SJSAborting:
		return "Aborting"
	case SJSAborted:
		return "Aborted"
	case SJSLost:
		return "Lost"
	case SJSReturning:
		return "Returning"
	case SJSReturned:
		return "Returned"
	case SJSHeld:
		return "Held"
	case SJSRoutingAlarm:
		return "RoutingAlarm"
	case SJSRemoved:
		return "Removed"
	default:
		return "Initial"
	}
}

func ParseSJS(s string) SJS {
	switch s {
	case "WaitingForStart":
		return SJSWaitingForStart
	case "Running":
		return SJSRunning
	case "Processed":
		return SJSProcessed
	case "Rejected":
		return SJSRejected
	case "Skipped":
		return SJSSkipped
	case "Pausing":
		return SJSPausing
	case "Paused":
		return SJSPaused
	case "Stopping":
		return SJSStopping
	case "Stopped":
		return SJSStopped
	case "Aborting":
		return SJSAborting
	case "Aborted":
		return SJSAborted
	case "Lost":
		return SJSLost
	case "Returning":
		return SJSReturning
	case "Returned":
		return SJSReturned
	case "Held":
		return SJSHeld
	case "RoutingAlarm":
		return SJSRoutingAlarm
	case "Removed":
		return SJSRemoved
	default:
		return SJSInitial
	}
}

// IsFinal reports whether s is one of the terminal SJS values. Returned is
// treated as final per spec (optionally final in the source; this engine
// treats it as final once reached, matching how RemoveSubst retires a
// tracker).
func (s SJS) IsFinal() bool {
	switch s {
	case SJSProcessed, SJSRejected, SJSSkipped, SJSStopped, SJSAborted, SJSLost, SJSRemoved, SJSReturned:
		return true
	default:
		return false
	}
}

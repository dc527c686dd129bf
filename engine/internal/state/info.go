package state

import "subflow/engine/internal/objtable"

// SubstrateLocationInfo is the derived view of a SubstLoc object.
type SubstrateLocationInfo struct {
	ID                  objtable.ObjectID
	SrcLocOf            []objtable.ObjectID // substrates whose SrcLoc is this location
	DestLocOf           []objtable.ObjectID // substrates whose DestLoc is this location
	Contains            objtable.ObjectID   // zero if unoccupied
	InstanceNum         int64
	HasMapSlotState     bool
	MapSlotState        SubstLocState
	NotAccessibleReason string
}

// SubstrateInfo is the derived view of a Substrate object.
type SubstrateInfo struct {
	ID              objtable.ObjectID
	STS             STSCode
	SPS             SPSCode
	HasPendingSPS   bool
	PendingSPS      SPSCode
	LotID           string
	Usage           string
	ContainingLoc   objtable.ObjectID // the SubstLoc whose Contains points here (zero if none)
	SrcLoc          objtable.ObjectID
	DestLoc         objtable.ObjectID
	SJRS            SJRS
	SJS             SJS
	SPSList         []string
	SPSLocList      []string
	SPSDateTimeList []string
}

// PendingSPSValue returns the current PendingSPS as an SPSValue, Undefined
// if none is set.
func (si SubstrateInfo) PendingSPSValue() SPSValue {
	if !si.HasPendingSPS {
		return Live(SPSUndefined)
	}
	return Live(si.PendingSPS)
}

// InferredSPS is the SPS that would be "live" once any pending value has
// been merged in: Merge(SPS, PendingSPS).
func (si SubstrateInfo) InferredSPS() SPSValue {
	return Merge(Live(si.SPS), si.PendingSPSValue())
}

// IsValid implements spec.md 4.C's isValid predicate.
func (si SubstrateInfo) IsValid() bool {
	if si.ID.IsZero() {
		return false
	}
	if si.STS == STSUndefined || si.SPS == SPSUndefined {
		return false
	}
	if si.ContainingLoc.IsZero() {
		return false
	}
	if si.SrcLoc.IsZero() || si.DestLoc.IsZero() {
		return false
	}
	return true
}

// InferredSTS implements spec.md 4.C's inferredSTS(locName, sps).
func InferredSTS(locName string, srcLocName, destLocName string, sps SPSValue) STSCode {
	switch {
	case sps.IsNeedsProcessing() && locName == srcLocName:
		return STSAtSource
	case sps.IsProcessingComplete() && locName == destLocName:
		return STSAtDestination
	case sps.LiveCode() == SPSSkipped && locName == srcLocName && srcLocName != destLocName:
		return STSAtSource
	default:
		return STSAtWork
	}
}

// InferredSTS applies InferredSTS using si's own containing location, source,
// and destination names and inferred SPS.
func (si SubstrateInfo) InferredSTS() STSCode {
	return InferredSTS(si.ContainingLoc.Name, si.SrcLoc.Name, si.DestLoc.Name, si.InferredSPS())
}

// HistoryEntry is one element of the zipped SPSList/SPSLocList/
// SPSDateTimeList history.
type HistoryEntry struct {
	SPS      string
	Loc      string
	DateTime string
}

// History zips the three parallel history lists into entries, tolerating
// unequal lengths (a partially-configured Behavior may only populate some of
// the three) by substituting "" for a missing element.
func (si SubstrateInfo) History() []HistoryEntry {
	n := len(si.SPSList)
	if l := len(si.SPSLocList); l > n {
		n = l
	}
	if l := len(si.SPSDateTimeList); l > n {
		n = l
	}
	out := make([]HistoryEntry, n)
	for i := 0; i < n; i++ {
		var e HistoryEntry
		if i < len(si.SPSList) {
			e.SPS = si.SPSList[i]
		}
		if i < len(si.SPSLocList) {
			e.Loc = si.SPSLocList[i]
		}
		if i < len(si.SPSDateTimeList) {
			e.DateTime = si.SPSDateTimeList[i]
		}
		out[i] = e
	}
	return out
}

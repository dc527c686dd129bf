// Package substrate derives the SubstrateInfo and SubstrateLocationInfo
// projections (spec.md 4.C) from object-table snapshots. Grounded on the
// teacher's models.Page/PageMeta pattern: plain structs computed at read
// time from a fetched record, with no independent mutation path of their
// own -- the object table remains the only writable state.
package substrate

import (
	"subflow/engine/internal/objtable"
	"subflow/engine/internal/state"
)

// Info derives a SubstrateInfo from a Substrate object snapshot. obj must
// have Type == objtable.TypeSubstrate; it is the caller's responsibility to
// fetch a fresh snapshot (via Table.GetObject or a publisher Observer)
// before calling this.
func Info(obj *objtable.Object) state.SubstrateInfo {
	if obj == nil {
		return state.SubstrateInfo{}
	}
	info := state.SubstrateInfo{ID: obj.ID}

	if l, ok := obj.OutLink(objtable.KeySrcLoc); ok {
		info.SrcLoc = l.To
	}
	if l, ok := obj.OutLink(objtable.KeyDestLoc); ok {
		info.DestLoc = l.To
	}
	for _, l := range obj.In {
		if l.Key == objtable.KeyContains {
			info.ContainingLoc = l.From
			break
		}
	}

	if v, ok := obj.Attr(objtable.AttrSubstState); ok {
		info.STS = state.ParseSTSCode(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrSubstProcState); ok {
		info.SPS = state.ParseSPSCode(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrPendingSPS); ok {
		info.HasPendingSPS = true
		info.PendingSPS = state.ParseSPSCode(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrLotID); ok {
		info.LotID = v.Str
	}
	if v, ok := obj.Attr(objtable.AttrSubstUsage); ok {
		info.Usage = v.Str
	}
	if v, ok := obj.Attr(objtable.AttrSJRS); ok {
		info.SJRS = state.ParseSJRS(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrSJS); ok {
		info.SJS = state.ParseSJS(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrSPSList); ok {
		info.SPSList = v.List
	}
	if v, ok := obj.Attr(objtable.AttrSPSLocList); ok {
		info.SPSLocList = v.List
	}
	if v, ok := obj.Attr(objtable.AttrSPSDateTimeList); ok {
		info.SPSDateTimeList = v.List
	}
	return info
}

// LocationInfo derives a SubstrateLocationInfo from a SubstLoc object
// snapshot.
func LocationInfo(obj *objtable.Object) state.SubstrateLocationInfo {
	if obj == nil {
		return state.SubstrateLocationInfo{}
	}
	info := state.SubstrateLocationInfo{ID: obj.ID}

	for _, l := range obj.In {
		switch l.Key {
		case objtable.KeySrcLoc:
			info.SrcLocOf = append(info.SrcLocOf, l.From)
		case objtable.KeyDestLoc:
			info.DestLocOf = append(info.DestLocOf, l.From)
		}
	}
	if l, ok := obj.OutLink(objtable.KeyContains); ok {
		info.Contains = l.To
	}
	if v, ok := obj.Attr(objtable.AttrInstanceNum); ok {
		info.InstanceNum = v.Int
	}
	if v, ok := obj.Attr(objtable.AttrMapSlotState); ok {
		info.HasMapSlotState = true
		switch v.Str {
		case "Occupied":
			info.MapSlotState = state.SubstLocOccupied
		case "Unoccupied":
			info.MapSlotState = state.SubstLocUnoccupied
		default:
			info.MapSlotState = state.SubstLocUndefined
		}
	}
	if v, ok := obj.Attr(objtable.AttrNotAccessibleReason); ok {
		info.NotAccessibleReason = v.Str
	}
	return info
}

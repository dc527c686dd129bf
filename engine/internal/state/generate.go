package state

import (
	"errors"
	"time"

	"subflow/engine/internal/objtable"
)

// ErrInvalidCurrentInfo is returned when current fails IsValid and no move
// or SPS update can be meaningfully generated from it.
var ErrInvalidCurrentInfo = errors.New("state: current substrate info is not valid")

// GenerateUpdates implements the unified update procedure of spec.md 4.D: a
// pure function from (current info, optional requested SPS, optional target
// location, behavior, settings, now) to a ready-to-apply objtable batch.
// Nothing here mutates a table; the caller applies the returned batch.
func GenerateUpdates(current SubstrateInfo, spsParam *SPSValue, toLocID *objtable.ObjectID, behavior Behavior, settings Settings, now time.Time) ([]objtable.UpdateItem, error) {
	if current.ID.IsZero() || current.ID.Type != objtable.TypeSubstrate {
		return nil, errors.New("state: GenerateUpdates requires a valid Substrate id")
	}
	if !current.IsValid() {
		return nil, ErrInvalidCurrentInfo
	}

	var items []objtable.UpdateItem
	attrs := map[string]objtable.AttrValue{}

	currentLocID := current.ContainingLoc
	moved := false

	// 1. Move subcomputation.
	if toLocID != nil && *toLocID != currentLocID {
		items = append(items, objtable.AddLink{
			Link:                 objtable.Link{From: *toLocID, Key: objtable.KeyContains, To: current.ID},
			AutoUnlinkPriorByKey: true,
		})
		currentLocID = *toLocID
		moved = true
	}

	sps := current.SPS
	pending := current.PendingSPSValue()
	forcedSPS := false

	// 2. Arrival-policy overrides.
	atDest := currentLocID == current.DestLoc
	spsIsUndefinedOrMoved := spsParam == nil || spsParam.IsUndefined() || (spsParam.IsPseudo() && spsParam.PseudoCode() == PseudoMoved)
	if moved && spsIsUndefinedOrMoved && atDest {
		switch {
		case current.SJRS == SJRSStop && behavior.HandleMovedToDestLocWithSJRSStopAndSPSInProcess:
			sps = SPSStopped
			forcedSPS = true
		case current.SJRS == SJRSAbort && behavior.HandleMovedToDestLocWithSJRSAbortAndSPSInProcess:
			sps = SPSAborted
			forcedSPS = true
		}
	}

	// 3. SPS/PendingSPS update.
	if !forcedSPS && spsParam != nil && spsParam.IsLive() && !spsParam.IsUndefined() {
		if !behavior.UsePendingSPS {
			merged := Merge(*spsParam, pending)
			// A non-empty deny reason drops the write silently; the caller's
			// logging wrapper is expected to record it at debug level.
			if TransitionDenyReason(sps, merged.LiveCode(), behavior) == "" && merged.LiveCode() != sps {
				sps = merged.LiveCode()
			}
			pending = Live(SPSUndefined)
		} else {
			inferred := Merge(Live(sps), pending)
			nextPending := Merge(inferred, *spsParam)
			pending = nextPending
			if sps == SPSNeedsProcessing {
				switch nextPending.LiveCode() {
				case SPSInProcess, SPSProcessed, SPSRejected, SPSStopped, SPSAborted:
					sps = SPSInProcess
				}
				if nextPending.IsPseudo() && nextPending.PseudoCode() == PseudoProcessStepCompleted {
					sps = SPSInProcess
				}
				if nextPending.LiveCode() == SPSSkipped || nextPending.LiveCode() == SPSLost {
					sps = nextPending.LiveCode()
				}
			}
		}
	}

	// 4. Clear pending on completion.
	if Live(sps).IsProcessingComplete() {
		pending = Live(SPSUndefined)
	}

	// 5. History append.
	listAttrs := map[string]objtable.AttrValue{}
	if behavior.UseSPSList {
		recordedNonUndefined := !forcedSPS && spsParam != nil && spsParam.IsLive() && !spsParam.IsUndefined()
		recordedPseudo := spsParam != nil && spsParam.IsPseudo()
		if recordedNonUndefined || recordedPseudo {
			maxLen := settings.maxListLen()
			if len(current.SPSList) < maxLen {
				listAttrs[objtable.AttrSPSList] = objtable.ListAttr([]string{spsParam.Name()})
				if behavior.UseSPSLocList {
					listAttrs[objtable.AttrSPSLocList] = objtable.ListAttr([]string{currentLocID.Name})
				}
				if behavior.UseSPSDateTimeList {
					listAttrs[objtable.AttrSPSDateTimeList] = objtable.ListAttr([]string{now.Format(time.RFC3339Nano)})
				}
			}
		}
	}

	// 6. Auto STS.
	sts := current.STS
	inferredSPSVal := Merge(Live(sps), pending)
	if behavior.AutoUpdateSTS {
		nextSTS := InferredSTS(currentLocID.Name, current.SrcLoc.Name, current.DestLoc.Name, inferredSPSVal)
		if nextSTS != sts {
			sts = nextSTS
		}
		if nextSTS == STSAtDestination && sps != inferredSPSVal.LiveCode() {
			sps = inferredSPSVal.LiveCode()
			if Live(sps).IsProcessingComplete() {
				pending = Live(SPSUndefined)
			}
		}
	}

	if sts != current.STS {
		attrs[objtable.AttrSubstState] = objtable.EnumAttr(sts.String())
	}
	if sps != current.SPS {
		attrs[objtable.AttrSubstProcState] = objtable.EnumAttr(sps.String())
	}

	pendingChanged := !pending.Equal(current.PendingSPSValue())
	pendingRemoved := pendingChanged && pending.IsUndefined()
	if pendingChanged && !pending.IsUndefined() {
		attrs[objtable.AttrPendingSPS] = objtable.EnumAttr(pending.LiveCode().String())
	}

	if len(attrs) > 0 {
		items = append(items, objtable.SetAttributes{ID: current.ID, Attrs: attrs, Merge: objtable.MergeAddAndUpdate})
	}
	if pendingRemoved {
		items = append(items, objtable.SetAttributes{
			ID:    current.ID,
			Attrs: map[string]objtable.AttrValue{objtable.AttrPendingSPS: objtable.NullAttr()},
			Merge: objtable.MergeRemoveNull,
		})
	}
	if len(listAttrs) > 0 {
		items = append(items, objtable.SetAttributes{ID: current.ID, Attrs: listAttrs, Merge: objtable.MergeAppendLists})
	}

	return items, nil
}

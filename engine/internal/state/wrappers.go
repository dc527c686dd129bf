package state

import (
	"time"

	"subflow/engine/internal/objtable"
)

// CreateSubstrate implements spec.md 3's Lifecycle note: a Substrate is
// created bound to a source (and destination) location, STS := AtSource,
// SPS := NeedsProcessing unless initialSPS overrides it, and the initial
// Contains link lands at the creation location -- source if
// NeedsProcessing, destination if the substrate is created already
// processed.
func CreateSubstrate(id, srcLoc, destLoc objtable.ObjectID, initialSPS SPSCode) []objtable.UpdateItem {
	if initialSPS == SPSUndefined {
		initialSPS = SPSNeedsProcessing
	}
	creationLoc := srcLoc
	if initialSPS != SPSNeedsProcessing {
		creationLoc = destLoc
	}
	sts := InferredSTS(creationLoc.Name, srcLoc.Name, destLoc.Name, Live(initialSPS))
	return []objtable.UpdateItem{
		objtable.AddObject{ID: id, Attrs: map[string]objtable.AttrValue{
			objtable.AttrSubstState:     objtable.EnumAttr(sts.String()),
			objtable.AttrSubstProcState: objtable.EnumAttr(initialSPS.String()),
			objtable.AttrSJRS:           objtable.EnumAttr(SJRSNone.String()),
			objtable.AttrSJS:            objtable.EnumAttr(SJSInitial.String()),
		}},
		objtable.AddLink{Link: objtable.Link{From: id, Key: objtable.KeySrcLoc, To: srcLoc}},
		objtable.AddLink{Link: objtable.Link{From: id, Key: objtable.KeyDestLoc, To: destLoc}},
		objtable.AddLink{Link: objtable.Link{From: creationLoc, Key: objtable.KeyContains, To: id}, AutoUnlinkPriorByKey: true},
	}
}

// NoteSubstMoved generates the batch for a plain move with no SPS request:
// GenerateUpdates with spsParam set to Pseudo(Moved) so history recording
// (if enabled) records the move without attempting a live SPS transition.
func NoteSubstMoved(current SubstrateInfo, toLocID objtable.ObjectID, behavior Behavior, settings Settings, now time.Time) ([]objtable.UpdateItem, error) {
	moved := Pseudo(PseudoMoved)
	return GenerateUpdates(current, &moved, &toLocID, behavior, settings, now)
}

// SetSubstProcState requests an immediate live SPS transition (or pending
// merge, depending on behavior.UsePendingSPS) with no accompanying move.
func SetSubstProcState(current SubstrateInfo, sps SPSCode, behavior Behavior, settings Settings, now time.Time) ([]objtable.UpdateItem, error) {
	v := Live(sps)
	return GenerateUpdates(current, &v, nil, behavior, settings, now)
}

// SetPendingSubstProcState requests an SPS accumulate into PendingSPS
// regardless of behavior.UsePendingSPS, by forcing that flag on for this
// call -- the named convenience wrapper spec.md's external surface exposes
// alongside the generic SetSubstProcState.
func SetPendingSubstProcState(current SubstrateInfo, sps SPSCode, behavior Behavior, settings Settings, now time.Time) ([]objtable.UpdateItem, error) {
	behavior.UsePendingSPS = true
	v := Live(sps)
	return GenerateUpdates(current, &v, nil, behavior, settings, now)
}

// RemoveSubst implements the Substrate removal lifecycle of spec.md 3's
// Lifecycle note: optionally relocate the substrate to its destination (if
// processing is complete) or source (otherwise) first, mark SPS := Lost if
// processing never completed, append Removed to history, optionally persist
// the pre-removal location name, then delete the object. Returns a batch
// ending in a RemoveObject for current.ID.
func RemoveSubst(current SubstrateInfo, behavior Behavior, settings Settings, now time.Time) ([]objtable.UpdateItem, error) {
	var items []objtable.UpdateItem

	working := current
	if behavior.RemoveAttemptsToMoveAllSubstToDestOrSrc {
		// Only a genuinely Processed substrate proceeds to its destination;
		// anything else (still needing processing, or ending
		// Skipped/Rejected/Stopped/Aborted/Lost) returns to its source.
		target := current.SrcLoc
		if current.InferredSPS().LiveCode() == SPSProcessed {
			target = current.DestLoc
		}
		if target != current.ContainingLoc {
			moveBatch, err := NoteSubstMoved(working, target, behavior, settings, now)
			if err != nil {
				return nil, err
			}
			items = append(items, moveBatch...)
			working.ContainingLoc = target
		}
	}

	if !working.InferredSPS().IsProcessingComplete() {
		lost := Live(SPSLost)
		lostBatch, err := GenerateUpdates(working, &lost, nil, behavior, settings, now)
		if err != nil {
			return nil, err
		}
		items = append(items, lostBatch...)
		working.SPS = SPSLost
	}

	removed := Pseudo(PseudoRemoved)
	historyBatch, err := GenerateUpdates(working, &removed, nil, behavior, settings, now)
	if err != nil {
		return nil, err
	}
	items = append(items, historyBatch...)

	if behavior.PersistRemovedFromLocName && !working.ContainingLoc.IsZero() {
		items = append(items, objtable.SetAttributes{
			ID:    current.ID,
			Attrs: map[string]objtable.AttrValue{objtable.AttrRemovedFromSubstLocName: objtable.StringAttr(working.ContainingLoc.Name)},
			Merge: objtable.MergeAddAndUpdate,
		})
	}

	items = append(items, objtable.RemoveObject{ID: current.ID})
	return items, nil
}

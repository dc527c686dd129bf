package state

import (
	"testing"
	"time"

	"subflow/engine/internal/objtable"

	"github.com/stretchr/testify/require"
)

func loc(name string) objtable.ObjectID { return objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: name} }
func subst(name string) objtable.ObjectID {
	return objtable.ObjectID{Type: objtable.TypeSubstrate, Name: name}
}

func applyItems(t *testing.T, tbl *objtable.Table, items []objtable.UpdateItem) {
	t.Helper()
	require.NoError(t, tbl.Update(items))
}

func loadInfo(t *testing.T, tbl *objtable.Table, id objtable.ObjectID) SubstrateInfo {
	t.Helper()
	obj, ok := tbl.GetObject(id)
	require.True(t, ok)
	info := SubstrateInfo{ID: id}
	if l, ok := obj.OutLink(objtable.KeySrcLoc); ok {
		info.SrcLoc = l.To
	}
	if l, ok := obj.OutLink(objtable.KeyDestLoc); ok {
		info.DestLoc = l.To
	}
	for _, l := range obj.In {
		if l.Key == objtable.KeyContains {
			info.ContainingLoc = l.From
		}
	}
	if v, ok := obj.Attr(objtable.AttrSubstState); ok {
		info.STS = ParseSTSCode(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrSubstProcState); ok {
		info.SPS = ParseSPSCode(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrPendingSPS); ok {
		info.HasPendingSPS = true
		info.PendingSPS = ParseSPSCode(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrSJRS); ok {
		info.SJRS = ParseSJRS(v.Str)
	}
	if v, ok := obj.Attr(objtable.AttrSPSList); ok {
		info.SPSList = v.List
	}
	return info
}

func newMoveTable(t *testing.T) (*objtable.Table, objtable.ObjectID) {
	t.Helper()
	tbl := objtable.New()
	lp := loc("LP1.01")
	pm := loc("PM1")
	r1a := loc("R1.A")
	w1 := subst("W1")
	applyItems(t, tbl, []objtable.UpdateItem{
		objtable.AddObject{ID: lp},
		objtable.AddObject{ID: pm},
		objtable.AddObject{ID: r1a},
		objtable.AddObject{ID: w1, Attrs: map[string]objtable.AttrValue{
			objtable.AttrSubstState:     objtable.EnumAttr(STSAtSource.String()),
			objtable.AttrSubstProcState: objtable.EnumAttr(SPSNeedsProcessing.String()),
		}},
		objtable.AddLink{Link: objtable.Link{From: w1, Key: objtable.KeySrcLoc, To: lp}},
		objtable.AddLink{Link: objtable.Link{From: w1, Key: objtable.KeyDestLoc, To: lp}},
		objtable.AddLink{Link: objtable.Link{From: lp, Key: objtable.KeyContains, To: w1}},
	})
	return tbl, w1
}

func TestScenarioCreateAndMove(t *testing.T) {
	tbl, w1 := newMoveTable(t)
	behavior := Behavior{AutoUpdateSTS: true}
	settings := Defaults()
	now := time.Unix(0, 0)

	info := loadInfo(t, tbl, w1)
	r1a := loc("R1.A")
	items, err := NoteSubstMoved(info, r1a, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, STSAtWork, info.STS)
	require.Equal(t, r1a, info.ContainingLoc)

	pm := loc("PM1")
	items, err = NoteSubstMoved(info, pm, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, STSAtWork, info.STS)
	require.Equal(t, pm, info.ContainingLoc)

	lpObj, _ := tbl.GetObject(loc("LP1.01"))
	_, hasContains := lpObj.OutLink(objtable.KeyContains)
	require.False(t, hasContains)
	pmObj, _ := tbl.GetObject(pm)
	l, ok := pmObj.OutLink(objtable.KeyContains)
	require.True(t, ok)
	require.Equal(t, w1, l.To)
}

func TestScenarioHappyPathProcessing(t *testing.T) {
	tbl, w1 := newMoveTable(t)
	behavior := Behavior{AutoUpdateSTS: true}
	settings := Defaults()
	now := time.Unix(0, 0)

	info := loadInfo(t, tbl, w1)
	pm := loc("PM1")
	items, err := NoteSubstMoved(info, pm, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	items, err = SetSubstProcState(info, SPSInProcess, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	items, err = SetSubstProcState(info, SPSProcessed, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	lp := loc("LP1.01")
	items, err = NoteSubstMoved(info, lp, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, SPSProcessed, info.SPS)
	require.Equal(t, STSAtDestination, info.STS)
}

func TestScenarioPendingSPSMerge(t *testing.T) {
	tbl, w1 := newMoveTable(t)
	behavior := Behavior{AutoUpdateSTS: true}
	settings := Defaults()
	now := time.Unix(0, 0)

	// The pending requests run without AutoUpdateSTS: W1 sits at LP1.01,
	// which is also its DestLoc, so auto-STS would promote a complete
	// pending value straight away. Only the final move applies it.
	info := loadInfo(t, tbl, w1)
	items, err := SetPendingSubstProcState(info, SPSInProcess, Behavior{}, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, SPSInProcess, info.SPS)

	items, err = SetPendingSubstProcState(info, SPSRejected, Behavior{}, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, SPSInProcess, info.SPS)
	require.True(t, info.HasPendingSPS)
	require.Equal(t, SPSRejected, info.PendingSPS)

	lp := loc("LP1.01") // DestLoc == SrcLoc == LP1.01 in this fixture
	items, err = NoteSubstMoved(info, lp, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, SPSRejected, info.SPS)
	require.Equal(t, STSAtDestination, info.STS)
	require.False(t, info.HasPendingSPS)
}

func TestScenarioSkipAndRemove(t *testing.T) {
	tbl := objtable.New()
	lp := loc("LP1.01")
	pm := loc("PM1")
	w1 := subst("W1")
	applyItems(t, tbl, []objtable.UpdateItem{
		objtable.AddObject{ID: lp},
		objtable.AddObject{ID: pm},
		objtable.AddObject{ID: w1, Attrs: map[string]objtable.AttrValue{
			objtable.AttrSubstState:     objtable.EnumAttr(STSAtSource.String()),
			objtable.AttrSubstProcState: objtable.EnumAttr(SPSNeedsProcessing.String()),
		}},
		objtable.AddLink{Link: objtable.Link{From: w1, Key: objtable.KeySrcLoc, To: lp}},
		objtable.AddLink{Link: objtable.Link{From: w1, Key: objtable.KeyDestLoc, To: pm}},
		objtable.AddLink{Link: objtable.Link{From: lp, Key: objtable.KeyContains, To: w1}},
	})

	behavior := Behavior{
		AutoUpdateSTS: true,
		UseSPSList:    true,
		RemoveAttemptsToMoveAllSubstToDestOrSrc: true,
		PersistRemovedFromLocName:               true,
	}
	settings := Defaults()
	now := time.Unix(0, 0)

	info := loadInfo(t, tbl, w1)
	items, err := SetSubstProcState(info, SPSSkipped, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	info = loadInfo(t, tbl, w1)
	require.Equal(t, SPSSkipped, info.SPS)
	require.Equal(t, STSAtSource, InferredSTS(lp.Name, lp.Name, pm.Name, Live(SPSSkipped)))

	items, err = RemoveSubst(info, behavior, settings, now)
	require.NoError(t, err)
	applyItems(t, tbl, items)

	_, ok := tbl.GetObject(w1)
	require.False(t, ok, "Remove deletes the substrate object")
	lpObj, _ := tbl.GetObject(lp)
	_, hasContains := lpObj.OutLink(objtable.KeyContains)
	require.False(t, hasContains, "deleting the substrate clears the location's Contains link")
}

package substrate

import (
	"testing"

	"subflow/engine/internal/objtable"
	"subflow/engine/internal/state"

	"github.com/stretchr/testify/require"
)

func TestInfoDerivesFromObject(t *testing.T) {
	tbl := objtable.New()
	lp := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "LP1.01"}
	pm := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "PM1"}
	w1 := objtable.ObjectID{Type: objtable.TypeSubstrate, Name: "W1"}

	require.NoError(t, tbl.Update([]objtable.UpdateItem{
		objtable.AddObject{ID: lp},
		objtable.AddObject{ID: pm},
		objtable.AddObject{ID: w1, Attrs: map[string]objtable.AttrValue{
			objtable.AttrSubstState:     objtable.EnumAttr("AtSource"),
			objtable.AttrSubstProcState: objtable.EnumAttr("NeedsProcessing"),
			objtable.AttrLotID:          objtable.StringAttr("LOT42"),
		}},
		objtable.AddLink{Link: objtable.Link{From: w1, Key: objtable.KeySrcLoc, To: lp}},
		objtable.AddLink{Link: objtable.Link{From: w1, Key: objtable.KeyDestLoc, To: pm}},
		objtable.AddLink{Link: objtable.Link{From: lp, Key: objtable.KeyContains, To: w1}},
	}))

	obj, ok := tbl.GetObject(w1)
	require.True(t, ok)
	info := Info(obj)

	require.Equal(t, w1, info.ID)
	require.Equal(t, state.STSAtSource, info.STS)
	require.Equal(t, state.SPSNeedsProcessing, info.SPS)
	require.Equal(t, "LOT42", info.LotID)
	require.Equal(t, lp, info.ContainingLoc)
	require.Equal(t, lp, info.SrcLoc)
	require.Equal(t, pm, info.DestLoc)
	require.True(t, info.IsValid())

	locObj, ok := tbl.GetObject(lp)
	require.True(t, ok)
	locInfo := LocationInfo(locObj)
	require.Equal(t, w1, locInfo.Contains)
	require.Contains(t, locInfo.SrcLocOf, w1)
}

func TestInfoNilObject(t *testing.T) {
	info := Info(nil)
	require.True(t, info.ID.IsZero())
	require.False(t, info.IsValid())
}

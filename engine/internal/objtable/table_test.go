package objtable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func substrateAttrs() map[string]AttrValue {
	return map[string]AttrValue{
		AttrSubstState:     EnumAttr("Normal"),
		AttrSubstProcState: EnumAttr("NeedsProcessing"),
	}
}

func TestAddObjectAndGet(t *testing.T) {
	tbl := New()
	id := ObjectID{Type: TypeSubstrate, Name: "W1"}
	err := tbl.Update([]UpdateItem{AddObject{ID: id, Attrs: substrateAttrs()}})
	require.NoError(t, err)

	obj, ok := tbl.GetObject(id)
	require.True(t, ok)
	require.Equal(t, id, obj.ID)
	v, ok := obj.Attr(AttrSubstState)
	require.True(t, ok)
	require.Equal(t, "Normal", v.Str)
}

func TestAddObjectIfNeededIsNoop(t *testing.T) {
	tbl := New()
	id := ObjectID{Type: TypeSubstrate, Name: "W1"}
	add := AddObject{ID: id, Attrs: substrateAttrs()}
	require.NoError(t, tbl.Update([]UpdateItem{add}))
	add.IfNeeded = true
	require.NoError(t, tbl.Update([]UpdateItem{add}))

	add.IfNeeded = false
	err := tbl.Update([]UpdateItem{add})
	require.Error(t, err)
}

func TestMissingRequiredSubstrateAttrsRejected(t *testing.T) {
	tbl := New()
	id := ObjectID{Type: TypeSubstrate, Name: "W1"}
	err := tbl.Update([]UpdateItem{AddObject{ID: id, Attrs: map[string]AttrValue{AttrSubstState: EnumAttr("Normal")}}})
	require.Error(t, err)

	_, ok := tbl.GetObject(id)
	require.False(t, ok, "rejected batch must not leave partial state")
}

func TestSingleOutgoingContainsInvariant(t *testing.T) {
	tbl := New()
	loc := ObjectID{Type: TypeSubstLoc, Name: "L1"}
	w1 := ObjectID{Type: TypeSubstrate, Name: "W1"}
	w2 := ObjectID{Type: TypeSubstrate, Name: "W2"}

	require.NoError(t, tbl.Update([]UpdateItem{
		AddObject{ID: loc},
		AddObject{ID: w1, Attrs: substrateAttrs()},
		AddObject{ID: w2, Attrs: substrateAttrs()},
		AddLink{Link: Link{From: loc, Key: KeyContains, To: w1}},
	}))

	err := tbl.Update([]UpdateItem{
		AddLink{Link: Link{From: loc, Key: KeyContains, To: w2}},
	})
	require.Error(t, err, "a second outgoing Contains link without AutoUnlinkPriorByKey must fail")

	require.NoError(t, tbl.Update([]UpdateItem{
		AddLink{Link: Link{From: loc, Key: KeyContains, To: w2}, AutoUnlinkPriorByKey: true},
	}))
	obj, _ := tbl.GetObject(loc)
	l, ok := obj.OutLink(KeyContains)
	require.True(t, ok)
	require.Equal(t, w2, l.To)
}

func TestSrcDestLocImmutableOnceSet(t *testing.T) {
	tbl := New()
	locA := ObjectID{Type: TypeSubstLoc, Name: "A"}
	locB := ObjectID{Type: TypeSubstLoc, Name: "B"}
	w1 := ObjectID{Type: TypeSubstrate, Name: "W1"}

	require.NoError(t, tbl.Update([]UpdateItem{
		AddObject{ID: locA},
		AddObject{ID: locB},
		AddObject{ID: w1, Attrs: substrateAttrs()},
		AddLink{Link: Link{From: w1, Key: KeySrcLoc, To: locA}},
	}))

	err := tbl.Update([]UpdateItem{
		AddLink{Link: Link{From: w1, Key: KeySrcLoc, To: locB}, AutoUnlinkPriorByKey: true},
	})
	require.Error(t, err, "SrcLoc must be immutable once set, even with AutoUnlinkPriorByKey")
}

func TestPinnedObjectCannotBeRemoved(t *testing.T) {
	tbl := New()
	id := ObjectID{Type: TypeSubstLoc, Name: "L1"}
	require.NoError(t, tbl.Update([]UpdateItem{AddObject{ID: id, Pinned: true}}))

	err := tbl.Update([]UpdateItem{RemoveObject{ID: id}})
	require.Error(t, err)
}

func TestSetAttributesMergeBehaviors(t *testing.T) {
	tbl := New()
	id := ObjectID{Type: TypeSubstrate, Name: "W1"}
	require.NoError(t, tbl.Update([]UpdateItem{AddObject{ID: id, Attrs: substrateAttrs()}}))

	require.NoError(t, tbl.Update([]UpdateItem{SetAttributes{
		ID:    id,
		Attrs: map[string]AttrValue{AttrSPSList: ListAttr([]string{"Step1"})},
		Merge: MergeAppendLists,
	}}))
	require.NoError(t, tbl.Update([]UpdateItem{SetAttributes{
		ID:    id,
		Attrs: map[string]AttrValue{AttrSPSList: ListAttr([]string{"Step2"})},
		Merge: MergeAppendLists,
	}}))
	obj, _ := tbl.GetObject(id)
	v, _ := obj.Attr(AttrSPSList)
	require.Equal(t, []string{"Step1", "Step2"}, v.List)

	require.NoError(t, tbl.Update([]UpdateItem{SetAttributes{
		ID:    id,
		Attrs: map[string]AttrValue{AttrLotID: NullAttr()},
		Merge: MergeRemoveNull,
	}}))
	_, ok := obj.Attr(AttrLotID)
	require.False(t, ok)
}

func TestUpdatePublishesOnCommit(t *testing.T) {
	tbl := New()
	id := ObjectID{Type: TypeSubstrate, Name: "W1"}
	pub := tbl.GetPublisher(id)
	require.Equal(t, uint64(0), pub.Sequence())

	require.NoError(t, tbl.Update([]UpdateItem{AddObject{ID: id, Attrs: substrateAttrs()}}))
	require.Equal(t, uint64(1), pub.Sequence())
	require.NotNil(t, pub.Snapshot())

	require.NoError(t, tbl.Update([]UpdateItem{RemoveObject{ID: id}}))
	require.Equal(t, uint64(2), pub.Sequence())
	require.Nil(t, pub.Snapshot(), "removal publishes a tombstone")
}

func TestOnCommitHookReceivesTouchedIDs(t *testing.T) {
	tbl := New()
	var lastTouched []ObjectID
	tbl.OnCommit(func(seq uint64, touched []ObjectID) { lastTouched = touched })

	loc := ObjectID{Type: TypeSubstLoc, Name: "L1"}
	w1 := ObjectID{Type: TypeSubstrate, Name: "W1"}
	require.NoError(t, tbl.Update([]UpdateItem{
		AddObject{ID: loc},
		AddObject{ID: w1, Attrs: substrateAttrs()},
		AddLink{Link: Link{From: loc, Key: KeyContains, To: w1}},
	}))
	require.ElementsMatch(t, []ObjectID{loc, w1}, lastTouched)
}

func TestEmptyBatchRejected(t *testing.T) {
	tbl := New()
	err := tbl.Update(nil)
	require.ErrorIs(t, err, ErrNilBatch)
}

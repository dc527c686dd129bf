package publisher

import (
	"testing"

	"subflow/engine/internal/objtable"

	"github.com/stretchr/testify/require"
)

func TestPublisherObserverBasic(t *testing.T) {
	p := New[int]()
	o := NewObserver(p)

	require.False(t, o.IsUpdateNeeded())
	require.Nil(t, o.Current())

	v := 7
	p.Publish(&v)
	require.True(t, o.IsUpdateNeeded())
	require.True(t, o.Update())
	require.Equal(t, 7, *o.Current())
	require.False(t, o.Update())
}

func TestPublisherSequenceMonotonic(t *testing.T) {
	p := New[string]()
	a, b := "a", "b"
	p.Publish(&a)
	seq1 := p.Sequence()
	p.Publish(&b)
	seq2 := p.Sequence()
	require.Greater(t, seq2, seq1)
}

type fakeLookup struct {
	pubs map[objtable.ObjectID]*Publisher[objtable.Object]
}

func (f *fakeLookup) GetPublisher(id objtable.ObjectID) *Publisher[objtable.Object] {
	p, ok := f.pubs[id]
	if !ok {
		p = New[objtable.Object]()
		f.pubs[id] = p
	}
	return p
}

func TestSubstLocObserverFollowsContains(t *testing.T) {
	locID := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "Loc1"}
	substID := objtable.ObjectID{Type: objtable.TypeSubstrate, Name: "Subst1"}

	lookup := &fakeLookup{pubs: map[objtable.ObjectID]*Publisher[objtable.Object]{}}
	obs := NewSubstLocObserver(lookup, locID, true)

	emptyLoc := objtable.Object{ID: locID}
	lookup.GetPublisher(locID).Publish(&emptyLoc)
	require.True(t, obs.Update())
	require.Nil(t, obs.Current().Substrate)

	occupiedLoc := objtable.Object{
		ID:  locID,
		Out: []objtable.Link{{From: locID, Key: objtable.KeyContains, To: substID}},
	}
	lookup.GetPublisher(locID).Publish(&occupiedLoc)
	subst := objtable.Object{ID: substID}
	lookup.GetPublisher(substID).Publish(&subst)

	require.True(t, obs.Update())
	proj := obs.Current()
	require.NotNil(t, proj.Substrate)
	require.Equal(t, substID, proj.Substrate.ID)

	require.False(t, obs.Update())
}

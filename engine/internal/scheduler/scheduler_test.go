package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subflow/engine/internal/objtable"
	"subflow/engine/internal/routing"
	"subflow/engine/internal/state"
)

func buildSingleSubstFixture(t *testing.T) (*objtable.Table, *Scheduler, objtable.ObjectID) {
	t.Helper()
	tbl := objtable.New()
	lotIn := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "LotIn"}
	lotOut := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "LotOut"}
	armA := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "ArmA"}
	armB := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "ArmB"}
	s1 := objtable.ObjectID{Type: objtable.TypeSubstrate, Name: "S1"}

	require.NoError(t, tbl.Update([]objtable.UpdateItem{
		objtable.AddObject{ID: lotIn},
		objtable.AddObject{ID: lotOut},
		objtable.AddObject{ID: armA},
		objtable.AddObject{ID: armB},
		objtable.AddObject{ID: s1, Attrs: map[string]objtable.AttrValue{
			objtable.AttrSubstState:     objtable.EnumAttr("AtSource"),
			objtable.AttrSubstProcState: objtable.EnumAttr("NeedsProcessing"),
			objtable.AttrSJRS:           objtable.EnumAttr("Run"),
		}},
		objtable.AddLink{Link: objtable.Link{From: s1, Key: objtable.KeySrcLoc, To: lotIn}},
		objtable.AddLink{Link: objtable.Link{From: s1, Key: objtable.KeyDestLoc, To: lotOut}},
		objtable.AddLink{Link: objtable.Link{From: lotIn, Key: objtable.KeyContains, To: s1}},
	}))

	mgr := routing.NewManager(tbl, routing.ArmSet{ArmA: armA, ArmB: armB}, state.Behavior{}, state.Defaults())
	sched := NewScheduler(tbl, mgr, state.Behavior{}, state.Defaults())
	tracker := NewProcessTracker(tbl, s1, nil)
	tracker.Observer.Update()
	sched.AddTracker(tracker)
	return tbl, sched, s1
}

// Each Tick only refreshes a tracker's Observer once, at the top; a write a
// later step in the same Tick makes isn't visible through that tracker's
// Info() until the following Tick's refresh. Tests that assert on Info()
// account for that one-tick lag rather than re-reading the table directly.

func TestSchedulerAutoStartsWaitingSubstrate(t *testing.T) {
	_, sched, s1 := buildSingleSubstFixture(t)
	ctx := context.Background()

	require.NoError(t, sched.Tick(ctx)) // Initial -> WaitingForStart (observed next tick)
	require.NoError(t, sched.Tick(ctx)) // WaitingForStart observed, room found -> Running (observed next tick)

	tr := sched.trackers[0]
	tr.Observer.Update()
	info, ok := tr.Info()
	require.True(t, ok)
	require.Equal(t, state.SJSRunning, info.SJS, "a single AtSource/Run substrate with room at its next location should auto-start")
	_ = s1
}

func TestSchedulerDispatchesAndHarvestsRoutingWork(t *testing.T) {
	tbl, sched, s1 := buildSingleSubstFixture(t)
	ctx := context.Background()

	require.NoError(t, sched.Tick(ctx)) // Initial -> WaitingForStart
	require.NoError(t, sched.Tick(ctx)) // auto-start -> Running
	require.NoError(t, sched.Tick(ctx)) // Running observed -> force Processed, dispatch route to LotOut

	tr := sched.trackers[0]
	require.NotNil(t, tr.RunningAction, "idle dispatch should have posted a routing sequence")
	require.NotNil(t, sched.activeSeq)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	res, reason, err := sched.activeSeq.Wait(waitCtx)
	require.NoError(t, err)
	require.Equal(t, routing.ResultSucceeded, res, reason)

	require.NoError(t, sched.Tick(ctx)) // harvest completion

	require.Nil(t, sched.activeSeq)
	require.Nil(t, tr.RunningAction)
	require.Len(t, tr.StepResults, 1)
	require.False(t, tr.StepResults[0].Failed())

	lotOut := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "LotOut"}
	lotOutObj, _ := tbl.GetObject(lotOut)
	l, ok := lotOutObj.OutLink(objtable.KeyContains)
	require.True(t, ok)
	require.Equal(t, s1, l.To, "the substrate should have been routed to its destination")

	info, ok := tr.Info()
	require.True(t, ok)
	require.Equal(t, state.SPSProcessed, info.SPS, "a zero-step tracker sitting AtSource is force-processed before being routed out")
}

func TestNextLocListEmptyForInitialAndHeld(t *testing.T) {
	tr := &ProcessTracker{}
	require.Empty(t, NextLocList(tr, state.SubstrateInfo{SJS: state.SJSInitial}))
	require.Empty(t, NextLocList(tr, state.SubstrateInfo{SJS: state.SJSHeld}))
}

func TestNextLocListUsesCurrentStepLocations(t *testing.T) {
	tr := &ProcessTracker{Spec: []StepSpec{{UsableLocNames: []string{"PM1", "PM2"}}}}
	list := NextLocList(tr, state.SubstrateInfo{SJS: state.SJSRunning})
	require.Equal(t, []string{"PM1", "PM2"}, list)
}

func TestNextLocListReturningGoesToSourceWhenIncomplete(t *testing.T) {
	tr := &ProcessTracker{}
	lotIn := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "LotIn"}
	info := state.SubstrateInfo{SJS: state.SJSReturning, SPS: state.SPSInProcess, SrcLoc: lotIn}
	require.Equal(t, []string{"LotIn"}, NextLocList(tr, info))
}

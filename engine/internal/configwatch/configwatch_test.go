package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subflow/engine/internal/objtable"
	"subflow/engine/internal/routing"
	"subflow/engine/internal/scheduler"
	"subflow/engine/internal/state"
)

func buildFixtureScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	tbl := objtable.New()
	armA := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "ArmA"}
	armB := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: "ArmB"}
	require.NoError(t, tbl.Update([]objtable.UpdateItem{
		objtable.AddObject{ID: armA},
		objtable.AddObject{ID: armB},
	}))
	mgr := routing.NewManager(tbl, routing.ArmSet{ArmA: armA, ArmB: armB}, state.Behavior{}, state.Defaults())
	return scheduler.NewScheduler(tbl, mgr, state.Behavior{}, state.Defaults())
}

const sampleConfigV1 = `
settings:
  maximumSPSListLength: 25
behavior:
  usePendingSPS: true
  autoUpdateSTS: true
steps:
  S1:
    - usableLocNames: ["ProcA", "ProcB"]
      variables:
        recipe: "A"
`

const sampleConfigV2 = `
settings:
  maximumSPSListLength: 75
behavior:
  usePendingSPS: false
  autoUpdateSTS: true
steps:
  S1:
    - usableLocNames: ["ProcA", "ProcB"]
      variables:
        recipe: "A"
    - usableLocNames: ["ProcC"]
      variables:
        recipe: "B"
`

func TestLoadInitialAppliesSettingsBehaviorAndSteps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigV1), 0o644))

	sched := buildFixtureScheduler(t)
	s1 := objtable.ObjectID{Type: objtable.TypeSubstrate, Name: "S1"}
	sched.AddTracker(scheduler.NewProcessTracker(objtable.New(), s1, nil))

	w, err := New(path, sched)
	require.NoError(t, err)
	_, err = w.LoadInitial()
	require.NoError(t, err)

	spec := sched.Trackers()[0].Spec
	require.Len(t, spec, 1, "the file's step program for S1 should be applied")
	require.Equal(t, []string{"ProcA", "ProcB"}, spec[0].UsableLocNames)

	applied := sched.SetStepSpec(s1, nil)
	require.True(t, applied, "tracker for S1 should be registered")
}

func TestWatchAppliesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigV1), 0o644))

	sched := buildFixtureScheduler(t)
	w, err := New(path, sched)
	require.NoError(t, err)
	_, err = w.LoadInitial()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, errs := w.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleConfigV2), 0o644))

	select {
	case ch, ok := <-changes:
		require.True(t, ok)
		require.NotEmpty(t, ch.Checksum)
	case err := <-errs:
		t.Fatalf("unexpected watch error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	require.NoError(t, w.Stop())
}

func TestFileBehaviorToStateRoundTrips(t *testing.T) {
	fb := FileBehavior{
		UsePendingSPS:                 true,
		AutoUpdateSTS:                 true,
		AllowReturnToNeedsProcessing:  true,
		RequireInProcessBeforeProcessComplete: true,
	}
	st := fb.toState()
	require.True(t, st.UsePendingSPS)
	require.True(t, st.AutoUpdateSTS)
	require.True(t, st.AllowReturnToNeedsProcessing)
	require.True(t, st.RequireInProcessBeforeProcessComplete)
	require.False(t, st.UseSPSList)
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subflow/engine/internal/telemetry/events"
)

func testConfig() Config {
	cfg := Defaults()
	cfg.Locations = []LocationSpec{
		{Name: "LotIn"},
		{Name: "LotOut"},
		{Name: "ArmA"},
		{Name: "ArmB"},
		{Name: "PM1"},
	}
	cfg.Arms = ArmNames{ArmA: "ArmA", ArmB: "ArmB"}
	cfg.Modules = []ModuleSpec{{Name: "ITPR1", LocNames: []string{"PM1"}}}
	cfg.TickInterval = 0 // drive ticks manually in tests
	cfg.HealthProbeTTL = time.Millisecond
	return cfg
}

func TestNewRejectsMissingArms(t *testing.T) {
	cfg := testConfig()
	cfg.Arms = ArmNames{}
	_, err := New(cfg)
	require.Error(t, err)
}

func TestNewRejectsUnknownModuleLocation(t *testing.T) {
	cfg := testConfig()
	cfg.Modules = []ModuleSpec{{Name: "ITPR1", LocNames: []string{"NoSuchLoc"}}}
	_, err := New(cfg)
	require.Error(t, err)
}

func TestAddSubstrateAndAutoStart(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.DriveModuleAvailable("ITPR1"))

	spec := []StepSpec{{UsableLocNames: []string{"PM1"}}}
	id, err := eng.AddSubstrate("S1", "LotIn", "LotOut", SPSUndefined, spec)
	require.NoError(t, err)
	require.Equal(t, SubstrateName("S1"), id)
	require.NoError(t, eng.RequestJob(id, SJRSRun))

	ctx := context.Background()
	require.NoError(t, eng.Tick(ctx)) // Initial -> WaitingForStart (observed next tick)
	require.NoError(t, eng.Tick(ctx)) // auto-start -> Running (observed next tick)

	snap := eng.Snapshot()
	require.Equal(t, 1, snap.Scheduler.TrackerCount)
	require.NotEmpty(t, snap.Modules)

	var found bool
	for _, m := range snap.Modules {
		if m.Name == "ITPR1" {
			found = true
			require.Equal(t, "Available", m.Status)
		}
	}
	require.True(t, found)
}

func TestAddSubstrateRejectsUnknownLocation(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg)
	require.NoError(t, err)

	_, err = eng.AddSubstrate("S1", "Nowhere", "LotOut", SPSUndefined, nil)
	require.Error(t, err)
}

func TestHealthSnapshotHealthyAtStartup(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg)
	require.NoError(t, err)

	hs := eng.HealthSnapshot(context.Background())
	require.Equal(t, HealthHealthy, hs.Overall)
}

func TestStartStopIsIdempotentAndLifecycled(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 10 * time.Millisecond
	eng, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.DriveModuleAvailable("ITPR1"))

	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))
	require.Error(t, eng.Start(ctx), "starting an already-started engine should fail")

	time.Sleep(30 * time.Millisecond) // let the background tick loop run at least once

	require.NoError(t, eng.Stop())
	require.NoError(t, eng.Stop(), "Stop should be idempotent")
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg)
	require.NoError(t, err)

	sub, err := eng.Subscribe(4)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	_, err = eng.AddSubstrate("S1", "LotIn", "LotOut", SPSUndefined, nil)
	require.NoError(t, err)

	select {
	case ev := <-sub.C():
		require.Equal(t, "substrate_created", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestRegisterEventObserverDispatchesAndRecoversPanics(t *testing.T) {
	cfg := testConfig()
	eng, err := New(cfg)
	require.NoError(t, err)

	var got TelemetryEvent
	received := make(chan struct{}, 1)
	eng.RegisterEventObserver(func(ev TelemetryEvent) {
		panic("a misbehaving observer should not affect the next one")
	})
	eng.RegisterEventObserver(func(ev TelemetryEvent) {
		got = ev
		received <- struct{}{}
	})

	eng.dispatchEvent(events.Event{Category: events.CategoryError, Type: "scheduler_tick_failed"})

	select {
	case <-received:
		require.Equal(t, "scheduler_tick_failed", got.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for observer dispatch")
	}
}

func TestMetricsHandlerAvailableWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = true
	cfg.MetricsBackend = "prom"
	eng, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, eng.MetricsHandler())
}

func TestMetricsHandlerNilWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	eng, err := New(cfg)
	require.NoError(t, err)
	require.Nil(t, eng.MetricsHandler())
}

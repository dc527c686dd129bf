package engine

import (
	"time"

	"subflow/engine/internal/state"
)

// LocationSpec describes one SubstLoc the engine creates at startup.
type LocationSpec struct {
	Name string
}

// ModuleSpec binds a transfer-permission module's interface name to the set
// of location names a Move/Swap/MoveOrSwap routing item should
// auto-acquire/release it for (spec.md 4.F's AutoLocNameToITPR map).
type ModuleSpec struct {
	Name     string
	LocNames []string
}

// ArmNames names the two robot-arm locations the routing manager may use as
// temporary parking spots during a dual-arm swap. Both names must also
// appear in Config.Locations.
type ArmNames struct {
	ArmA string
	ArmB string
}

// Config is the public configuration surface for the Engine facade,
// grounded on the teacher's engine.Config: a flat, explicit struct rather
// than functional options, normalizing the underlying state.Settings/
// state.Behavior masks spec.md 4.D and 4.F operate over.
type Config struct {
	// Settings carries the engine-wide defaults (e.g. MaximumSPSListLength)
	// passed to every state-engine and routing call, rather than process-wide
	// mutable globals (spec.md 9's "Global mutable settings" note).
	Settings SettingsConfig
	// Behavior is the reified update-behavior flag mask of spec.md 9,
	// applied uniformly across NoteSubstMoved/SetSubstProcState/RemoveSubst/
	// GenerateUpdates call sites.
	Behavior BehaviorConfig

	// Locations lists every SubstLoc (slots, robot arms, process-module
	// stations) the engine creates at startup.
	Locations []LocationSpec
	// Arms names which two Locations entries are the robot's arms.
	Arms ArmNames
	// Modules lists the transfer-permission modules to stand up and the
	// locations each one covers.
	Modules []ModuleSpec

	// ConfigPath, if set, is watched (via configwatch) for hot-reloadable
	// Settings/Behavior/step-spec changes after Start.
	ConfigPath string

	// MetricsEnabled toggles metrics provider wiring.
	MetricsEnabled bool
	// MetricsBackend selects the provider when MetricsEnabled is true:
	// "prom" (default), "otel", or "noop".
	MetricsBackend string
	// TracingEnabled wraps each scheduler tick (Engine.Tick) in a span via
	// the adaptive tracer; routing sequences get no span of their own.
	TracingEnabled bool
	// TraceSamplePercent is consulted by the adaptive tracer when
	// TracingEnabled is true; defaults to 100 (always sample) if zero.
	TraceSamplePercent float64

	// HealthProbeTTL bounds how often HealthSnapshot recomputes rather than
	// returning a cached rollup.
	HealthProbeTTL time.Duration

	// TickInterval is the interval Start's background loop calls
	// Scheduler.Tick at. Zero disables the background loop; callers may then
	// drive Tick themselves (e.g. in tests) via Engine.Tick.
	TickInterval time.Duration
}

// SettingsConfig mirrors state.Settings at the facade boundary.
type SettingsConfig struct {
	MaximumSPSListLength int
}

// BehaviorConfig mirrors state.Behavior at the facade boundary.
type BehaviorConfig struct {
	UsePendingSPS                                     bool
	AutoUpdateSTS                                     bool
	UseSPSList                                        bool
	UseSPSLocList                                      bool
	UseSPSDateTimeList                                 bool
	AllowReturnToNeedsProcessing                       bool
	RequireInProcessBeforeProcessComplete              bool
	HandleMovedToDestLocWithSJRSStopAndSPSInProcess    bool
	HandleMovedToDestLocWithSJRSAbortAndSPSInProcess   bool
	RemoveAttemptsToMoveAllSubstToDestOrSrc            bool
	PersistRemovedFromLocName                          bool
}

func (s SettingsConfig) toState() state.Settings {
	return state.Settings{MaximumSPSListLength: s.MaximumSPSListLength}
}

func (b BehaviorConfig) toState() state.Behavior {
	return state.Behavior{
		UsePendingSPS:                          b.UsePendingSPS,
		AutoUpdateSTS:                          b.AutoUpdateSTS,
		UseSPSList:                             b.UseSPSList,
		UseSPSLocList:                          b.UseSPSLocList,
		UseSPSDateTimeList:                     b.UseSPSDateTimeList,
		AllowReturnToNeedsProcessing:           b.AllowReturnToNeedsProcessing,
		RequireInProcessBeforeProcessComplete:  b.RequireInProcessBeforeProcessComplete,
		HandleMovedToDestLocWithSJRSStopAndSPSInProcess:  b.HandleMovedToDestLocWithSJRSStopAndSPSInProcess,
		HandleMovedToDestLocWithSJRSAbortAndSPSInProcess: b.HandleMovedToDestLocWithSJRSAbortAndSPSInProcess,
		RemoveAttemptsToMoveAllSubstToDestOrSrc:          b.RemoveAttemptsToMoveAllSubstToDestOrSrc,
		PersistRemovedFromLocName:                        b.PersistRemovedFromLocName,
	}
}

// Defaults returns the configuration the engine ships with out of the box:
// history tracking and auto-STS on, no locations or modules (the embedder
// always names its own equipment layout), metrics/tracing off.
func Defaults() Config {
	return Config{
		Settings: SettingsConfig{MaximumSPSListLength: 50},
		Behavior: BehaviorConfig{
			AutoUpdateSTS:                          true,
			UseSPSList:                             true,
			UseSPSLocList:                          true,
			UseSPSDateTimeList:                     true,
			RequireInProcessBeforeProcessComplete:  true,
		},
		MetricsBackend:     "prom",
		TraceSamplePercent: 100,
		HealthProbeTTL:     2 * time.Second,
		TickInterval:       200 * time.Millisecond,
	}
}

// Package engine assembles the object table, routing manager, scheduler,
// transfer-permission modules, and telemetry stack into the single facade
// an embedder constructs, starts, and polls -- grounded on the teacher's
// engine.Engine composition root.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"subflow/engine/internal/configwatch"
	"subflow/engine/internal/objtable"
	"subflow/engine/internal/routing"
	"subflow/engine/internal/scheduler"
	"subflow/engine/internal/state"
	"subflow/engine/internal/telemetry/events"
	"subflow/engine/internal/telemetry/health"
	"subflow/engine/internal/telemetry/logging"
	"subflow/engine/internal/telemetry/metrics"
	"subflow/engine/internal/telemetry/tracing"
	"subflow/engine/internal/transferperm"
)

// Re-exported types so embedders never need to import subflow/engine/internal/...
// directly -- they can't; those packages are internal to this module.
type (
	SubstrateID    = objtable.ObjectID
	StepSpec       = scheduler.StepSpec
	SJRS           = state.SJRS
	SJS            = state.SJS
	SPSCode        = state.SPSCode
	HealthSnapshot = health.Snapshot
	HealthStatus   = health.Status
	Subscription   = events.Subscription
)

const (
	SJRSNone   = state.SJRSNone
	SJRSRun    = state.SJRSRun
	SJRSPause  = state.SJRSPause
	SJRSStop   = state.SJRSStop
	SJRSAbort  = state.SJRSAbort
	SJRSReturn = state.SJRSReturn
)

const (
	SPSUndefined      = state.SPSUndefined
	SPSNeedsProcessing = state.SPSNeedsProcessing
	SPSInProcess       = state.SPSInProcess
	SPSProcessed       = state.SPSProcessed
)

const (
	HealthHealthy   = health.StatusHealthy
	HealthDegraded  = health.StatusDegraded
	HealthUnhealthy = health.StatusUnhealthy
	HealthUnknown   = health.StatusUnknown
)

// Snapshot is a unified, JSON-friendly rollup of engine state, the payload
// behind the demo binary's periodic status print and any embedder's own
// status endpoint.
type Snapshot struct {
	StartedAt time.Time         `json:"started_at"`
	Uptime    time.Duration     `json:"uptime"`
	Routing   RoutingSnapshot   `json:"routing"`
	Scheduler SchedulerSnapshot `json:"scheduler"`
	Modules   []ModuleSnapshot  `json:"modules,omitempty"`
}

// RoutingSnapshot mirrors routing.Stats at the facade boundary.
type RoutingSnapshot struct {
	OpenSequences  int64 `json:"open_sequences"`
	TotalSequences int64 `json:"total_sequences"`
	FailedStreak   int64 `json:"failed_streak"`
}

// SchedulerSnapshot tallies tracked substrates by their current SJS.
type SchedulerSnapshot struct {
	TrackerCount int            `json:"tracker_count"`
	ByState      map[string]int `json:"by_state"`
}

// ModuleSnapshot reports one transfer-permission module's summary state.
type ModuleSnapshot struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Granted []string `json:"granted,omitempty"`
}

// TelemetryEvent is the reduced, stable shape handed to EventObserver
// callbacks -- a copy of events.Event with the same fields, so callers of
// RegisterEventObserver never need the internal events package either.
type TelemetryEvent struct {
	Time     time.Time              `json:"time"`
	Category string                 `json:"category"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity,omitempty"`
	Labels   map[string]string      `json:"labels,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// EventObserver receives every published TelemetryEvent, synchronously and
// in publish order. Panics inside an observer are recovered so one bad
// observer cannot take down a routing sequence or scheduler tick.
type EventObserver func(ev TelemetryEvent)

// Engine is the composition root: an object table, a routing manager, a
// scheduler, a set of transfer-permission modules, and the telemetry stack
// wired over all of them.
type Engine struct {
	cfg Config

	table      *objtable.Table
	routingMgr *routing.Manager
	sched      *scheduler.Scheduler
	modules    map[string]*transferperm.Module

	watcher *configwatch.Watcher

	metricsProvider metrics.Provider
	tracer          tracing.Tracer
	eventBus        events.Bus
	logger          logging.Logger
	healthEval      atomic.Pointer[health.Evaluator]

	started   atomic.Bool
	startedAt time.Time
	stopTick  context.CancelFunc
	tickDone  chan struct{}

	eventObserversMu sync.RWMutex
	eventObservers   []EventObserver
}

// New constructs an Engine from cfg: creates every configured SubstLoc,
// wires the transfer-permission modules named in cfg.Modules into the
// routing manager's auto-acquire map, and builds the telemetry stack. It
// does not start the background tick loop; call Start for that.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Locations) == 0 {
		return nil, errors.New("engine: at least one location is required")
	}
	if cfg.Arms.ArmA == "" || cfg.Arms.ArmB == "" {
		return nil, errors.New("engine: both Arms.ArmA and Arms.ArmB are required")
	}

	table := objtable.New()

	locItems := make([]objtable.UpdateItem, 0, len(cfg.Locations))
	locNames := make(map[string]bool, len(cfg.Locations))
	for _, l := range cfg.Locations {
		if l.Name == "" {
			return nil, errors.New("engine: location with empty name")
		}
		locNames[l.Name] = true
		locItems = append(locItems, objtable.AddObject{
			ID: objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: l.Name},
		})
	}
	if !locNames[cfg.Arms.ArmA] || !locNames[cfg.Arms.ArmB] {
		return nil, errors.New("engine: Arms.ArmA and Arms.ArmB must both be listed in Locations")
	}
	if err := table.Update(locItems); err != nil {
		return nil, fmt.Errorf("engine: create locations: %w", err)
	}

	arms := routing.ArmSet{
		ArmA: objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: cfg.Arms.ArmA},
		ArmB: objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: cfg.Arms.ArmB},
	}

	behavior := cfg.Behavior.toState()
	settings := cfg.Settings.toState()
	routingMgr := routing.NewManager(table, arms, behavior, settings)

	modules := make(map[string]*transferperm.Module, len(cfg.Modules))
	for _, ms := range cfg.Modules {
		if ms.Name == "" {
			return nil, errors.New("engine: module with empty name")
		}
		mod := transferperm.NewModule(ms.Name)
		modules[ms.Name] = mod
		for _, locName := range ms.LocNames {
			if !locNames[locName] {
				return nil, fmt.Errorf("engine: module %s references unknown location %s", ms.Name, locName)
			}
			routingMgr.AutoLocNameToITPR[locName] = mod
		}
	}

	sched := scheduler.NewScheduler(table, routingMgr, behavior, settings)

	e := &Engine{
		cfg:             cfg,
		table:           table,
		routingMgr:      routingMgr,
		sched:           sched,
		modules:         modules,
		metricsProvider: selectMetricsProvider(cfg),
		logger:          logging.New(slog.Default()),
	}

	if cfg.TracingEnabled {
		pct := cfg.TraceSamplePercent
		if pct == 0 {
			pct = 100
		}
		e.tracer = tracing.NewAdaptiveTracer(func() float64 { return pct })
	} else {
		e.tracer = tracing.NewTracer(false)
	}
	e.eventBus = events.NewBus(e.metricsProvider)
	e.healthEval.Store(health.NewEvaluator(cfg.HealthProbeTTL, e.healthProbes()...))

	if cfg.ConfigPath != "" {
		w, err := configwatch.New(cfg.ConfigPath, sched)
		if err != nil {
			return nil, fmt.Errorf("engine: config watcher: %w", err)
		}
		e.watcher = w
	}

	return e, nil
}

func selectMetricsProvider(cfg Config) metrics.Provider {
	if !cfg.MetricsEnabled {
		return metrics.NewNoopProvider()
	}
	switch strings.ToLower(cfg.MetricsBackend) {
	case "otel", "opentelemetry":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "subflow"})
	case "noop":
		return metrics.NewNoopProvider()
	default:
		return metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	}
}

// SubstrateName builds the SubstrateID for a substrate created with the
// given name, for callers that need to address one (e.g. RequestJob)
// without having captured the ID AddSubstrate returned.
func SubstrateName(name string) SubstrateID {
	return objtable.ObjectID{Type: objtable.TypeSubstrate, Name: name}
}

// AddSubstrate creates a Substrate bound to srcLocName/destLocName (both
// must already appear in Config.Locations), enrolls it in the scheduler
// against spec, and returns its ID. initialSPS may be SPSUndefined to take
// the default of SPSNeedsProcessing.
func (e *Engine) AddSubstrate(name, srcLocName, destLocName string, initialSPS SPSCode, spec []StepSpec) (SubstrateID, error) {
	id := objtable.ObjectID{Type: objtable.TypeSubstrate, Name: name}
	src := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: srcLocName}
	dest := objtable.ObjectID{Type: objtable.TypeSubstLoc, Name: destLocName}

	items := state.CreateSubstrate(id, src, dest, initialSPS)
	if err := e.table.Update(items); err != nil {
		return SubstrateID{}, fmt.Errorf("engine: add substrate %s: %w", name, err)
	}

	tracker := scheduler.NewProcessTracker(e.table, id, spec)
	tracker.Observer.Update()
	e.sched.AddTracker(tracker)

	ev := events.Event{
		Category: events.CategoryTable,
		Type:     "substrate_created",
		Labels:   map[string]string{"substrate": name},
	}
	_ = e.eventBus.Publish(ev)
	e.dispatchEvent(ev)
	return id, nil
}

// DriveModuleAvailable marks a configured transfer-permission module as
// Available -- the simulated-equipment signal that lets the routing
// manager auto-acquire it and the scheduler's fully-online check pass.
// Intended for demos and tests standing in for a real equipment-status
// callback.
func (e *Engine) DriveModuleAvailable(name string) error {
	mod, ok := e.modules[name]
	if !ok {
		return fmt.Errorf("engine: unknown module %s", name)
	}
	transferperm.NewSimulatedProcessModule(mod).GoAvailable(time.Now())
	return nil
}

// RequestJob sets a Substrate's SJRS, the operator-facing job-state request
// (Run/Pause/Stop/Abort/Return) the scheduler's serviceSJRS reacts to on
// its next Tick.
func (e *Engine) RequestJob(id SubstrateID, req SJRS) error {
	err := e.table.Update([]objtable.UpdateItem{objtable.SetAttributes{
		ID:    id,
		Attrs: map[string]objtable.AttrValue{objtable.AttrSJRS: objtable.EnumAttr(req.String())},
		Merge: objtable.MergeAddAndUpdate,
	}})
	if err != nil {
		return fmt.Errorf("engine: request job %s on %s: %w", req, id.Name, err)
	}
	return nil
}

// Start begins the background tick loop (when cfg.TickInterval > 0) and,
// if a ConfigPath was configured, loads it once and starts watching it for
// changes. Returns an error if the engine is already started.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine: already started")
	}

	tctx, cancel := context.WithCancel(ctx)
	e.stopTick = cancel
	e.tickDone = make(chan struct{})

	if e.watcher != nil {
		if _, err := e.watcher.LoadInitial(); err != nil {
			cancel()
			e.started.Store(false)
			return fmt.Errorf("engine: load initial config: %w", err)
		}
		changes, errs := e.watcher.Watch(tctx)
		go e.drainConfigWatch(tctx, changes, errs)
	}

	if e.cfg.TickInterval > 0 {
		go e.tickLoop(tctx)
	} else {
		close(e.tickDone)
	}

	e.startedAt = time.Now()
	return nil
}

func (e *Engine) drainConfigWatch(ctx context.Context, changes <-chan configwatch.Change, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			e.logger.InfoCtx(ctx, "config reloaded", "checksum", ch.Checksum)
			ev := events.Event{
				Category: events.CategoryConfig,
				Type:     "reloaded",
				Fields:   map[string]interface{}{"checksum": ch.Checksum},
			}
			_ = e.eventBus.Publish(ev)
			e.dispatchEvent(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.logger.ErrorCtx(ctx, "config watch error", "error", err.Error())
		}
		if changes == nil && errs == nil {
			return
		}
	}
}

func (e *Engine) tickLoop(ctx context.Context) {
	defer close(e.tickDone)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Tick(ctx)
		}
	}
}

// Tick drives the scheduler exactly once: auto-start, idle dispatch,
// SJRS servicing, and completed-sequence harvesting. Embedders that leave
// Config.TickInterval at zero drive the engine by calling this directly
// (e.g. in tests, or in lockstep with an external clock).
func (e *Engine) Tick(ctx context.Context) error {
	tctx := ctx
	var span tracing.Span
	if e.tracer != nil {
		tctx, span = e.tracer.StartSpan(ctx, "scheduler.tick")
		defer span.End()
	}
	if err := e.sched.Tick(tctx); err != nil {
		e.logger.ErrorCtx(tctx, "scheduler tick failed", "error", err.Error())
		ev := events.Event{
			Category: events.CategoryError,
			Type:     "scheduler_tick_failed",
			Severity: "error",
			Fields:   map[string]interface{}{"error": err.Error()},
		}
		_ = e.eventBus.PublishCtx(tctx, ev)
		e.dispatchEvent(ev)
		return err
	}
	return nil
}

// Stop halts the background tick loop and config watch and stops every
// transfer-permission module's actor goroutine. Idempotent.
func (e *Engine) Stop() error {
	if !e.started.CompareAndSwap(true, false) {
		return nil
	}
	if e.stopTick != nil {
		e.stopTick()
	}
	if e.tickDone != nil {
		<-e.tickDone
	}
	if e.watcher != nil {
		_ = e.watcher.Stop()
	}
	for _, m := range e.modules {
		m.Stop()
	}
	return nil
}

// Snapshot returns a point-in-time rollup of routing, scheduler, and
// transfer-permission module state.
func (e *Engine) Snapshot() Snapshot {
	st := e.routingMgr.Stats()
	snap := Snapshot{
		StartedAt: e.startedAt,
		Routing: RoutingSnapshot{
			OpenSequences:  st.OpenSequences,
			TotalSequences: st.TotalSequences,
			FailedStreak:   st.FailedStreak,
		},
	}
	if !e.startedAt.IsZero() {
		snap.Uptime = time.Since(e.startedAt)
	}

	trackers := e.sched.Trackers()
	byState := make(map[string]int, len(trackers))
	for _, t := range trackers {
		if info, ok := t.Info(); ok {
			byState[info.SJS.String()]++
		}
	}
	snap.Scheduler = SchedulerSnapshot{TrackerCount: len(trackers), ByState: byState}

	for name, m := range e.modules {
		s := m.StatePublisher().Snapshot()
		if s == nil {
			continue
		}
		snap.Modules = append(snap.Modules, ModuleSnapshot{
			Name:    name,
			Status:  s.SummaryStateCode.String(),
			Granted: append([]string(nil), s.Granted...),
		})
	}
	return snap
}

// HealthSnapshot evaluates (or returns the TTL-cached result of) the
// engine's health probes: the object table, the routing manager's failure
// streak, the scheduler's tracked substrates, and the transfer-permission
// modules.
func (e *Engine) HealthSnapshot(ctx context.Context) HealthSnapshot {
	eval := e.healthEval.Load()
	if eval == nil {
		return HealthSnapshot{Overall: HealthUnknown}
	}
	return eval.Evaluate(ctx)
}

// UpdateHealthProbeTTL replaces the cached evaluator with one using a new
// TTL, re-registering the same probe set. A non-positive ttl falls back to
// the package default.
func (e *Engine) UpdateHealthProbeTTL(ttl time.Duration) {
	e.healthEval.Store(health.NewEvaluator(ttl, e.healthProbes()...))
}

func (e *Engine) healthProbes() []health.Probe {
	tableProbe := health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
		// The object table raises Update errors synchronously to the caller
		// (spec.md 7's structural-failure class), so there is nothing to
		// accumulate here beyond confirming the table exists.
		if e.table == nil {
			return health.Unhealthy("table", "no object table constructed")
		}
		return health.Healthy("table")
	})

	routingProbe := health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
		st := e.routingMgr.Stats()
		switch {
		case st.FailedStreak >= 5:
			return health.Unhealthy("routing", "five or more consecutive sequence failures")
		case st.FailedStreak >= 2:
			return health.Degraded("routing", "repeated sequence failures")
		default:
			return health.Healthy("routing")
		}
	})

	schedulerProbe := health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
		trackers := e.sched.Trackers()
		var stuck int
		for _, t := range trackers {
			if info, ok := t.Info(); ok && (info.SJS == state.SJSLost || info.SJS == state.SJSRoutingAlarm) {
				stuck++
			}
		}
		if len(trackers) == 0 {
			return health.Healthy("scheduler")
		}
		switch {
		case stuck > len(trackers)/2:
			return health.Unhealthy("scheduler", "majority of tracked substrates lost or alarmed")
		case stuck > 0:
			return health.Degraded("scheduler", "some tracked substrates lost or alarmed")
		default:
			return health.Healthy("scheduler")
		}
	})

	modulesProbe := health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
		for name, m := range e.modules {
			s := m.StatePublisher().Snapshot()
			if s == nil {
				continue
			}
			switch s.SummaryStateCode {
			case transferperm.SummaryBlocked, transferperm.SummaryNotAvailable:
				return health.Degraded("transfer_permission", name+" is "+s.SummaryStateCode.String())
			}
		}
		return health.Healthy("transfer_permission")
	})

	return []health.Probe{tableProbe, routingProbe, schedulerProbe, modulesProbe}
}

// MetricsHandler returns the HTTP handler serving the configured metrics
// provider's scrape endpoint, or nil if the provider doesn't expose one
// (the noop and OTel-push providers don't).
func (e *Engine) MetricsHandler() http.Handler {
	if e == nil || e.metricsProvider == nil {
		return nil
	}
	if hp, ok := e.metricsProvider.(interface{ MetricsHandler() http.Handler }); ok {
		return hp.MetricsHandler()
	}
	return nil
}

// Subscribe returns a new bus Subscription delivering every published
// TelemetryEvent as an events.Event. Most callers want RegisterEventObserver
// instead; Subscribe exists for callers that want to select on the channel
// themselves alongside other work.
func (e *Engine) Subscribe(buffer int) (Subscription, error) {
	return e.eventBus.Subscribe(buffer)
}

// RegisterEventObserver adds a callback invoked synchronously, in publish
// order, for every event published on the bus. Safe to call before or
// after Start. A panicking observer is recovered and does not affect other
// observers or the publishing call site.
func (e *Engine) RegisterEventObserver(obs EventObserver) {
	if obs == nil {
		return
	}
	e.eventObserversMu.Lock()
	e.eventObservers = append(e.eventObservers, obs)
	e.eventObserversMu.Unlock()
}

func (e *Engine) dispatchEvent(ev events.Event) {
	e.eventObserversMu.RLock()
	if len(e.eventObservers) == 0 {
		e.eventObserversMu.RUnlock()
		return
	}
	observers := append([]EventObserver(nil), e.eventObservers...)
	e.eventObserversMu.RUnlock()

	pub := TelemetryEvent{
		Time: ev.Time, Category: ev.Category, Type: ev.Type,
		Severity: ev.Severity, Labels: ev.Labels, Fields: ev.Fields,
	}
	for _, o := range observers {
		func(o EventObserver) {
			defer func() { _ = recover() }()
			o(pub)
		}(o)
	}
}

package transferperm

import "time"

// SimulatedProcessModule is a minimal stand-in for the external
// ProcessModule collaborator spec.md treats as excluded: it drives a
// Module's summary state on command, for demos and tests that need a
// process module without wiring a real device driver.
type SimulatedProcessModule struct {
	module *Module
}

// NewSimulatedProcessModule wraps module with simple state-driving helpers.
func NewSimulatedProcessModule(module *Module) *SimulatedProcessModule {
	return &SimulatedProcessModule{module: module}
}

// GoAvailable reports the module immediately available.
func (s *SimulatedProcessModule) GoAvailable(now time.Time) {
	s.module.SetSummaryState(SummaryAvailable, "", 0, now)
}

// GoBusy reports the module busy, with an estimate of when it expects to
// become available again.
func (s *SimulatedProcessModule) GoBusy(estAvailableAfter time.Duration, now time.Time) {
	s.module.SetSummaryState(SummaryBusy, "processing", estAvailableAfter, now)
}

// GoNotAvailable reports the module unavailable (e.g. faulted, offline).
func (s *SimulatedProcessModule) GoNotAvailable(reason string, now time.Time) {
	s.module.SetSummaryState(SummaryNotAvailable, reason, 0, now)
}

// GoBlocked reports the module blocked by an upstream/downstream condition
// outside its own control (e.g. a full output buffer).
func (s *SimulatedProcessModule) GoBlocked(reason string, now time.Time) {
	s.module.SetSummaryState(SummaryBlocked, reason, 0, now)
}

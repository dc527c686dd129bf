package transferperm

import (
	"time"

	"subflow/engine/internal/publisher"
)

type commandKind int

const (
	cmdAcquire commandKind = iota
	cmdRelease
	cmdReleaseAll
	cmdSyncState
)

type command struct {
	kind    commandKind
	locName string
	action  *Action

	newState          SummaryStateCode
	reason            string
	estAvailableAfter time.Duration
	now               time.Time
}

// Module is a single-threaded cooperative actor for one process module's
// transfer-permission protocol. Every Acquire/Release/ReleaseAll request and
// every summary-state update from the underlying ProcessModule collaborator
// is serialized through one command channel and handled by one goroutine's
// main loop -- the part-pumps-a-queue model used throughout the engine, so
// the module's own state (granted multiset, pending Acquire waiters) needs
// no lock of its own.
type Module struct {
	name string

	cmds chan command
	stop chan struct{}
	done chan struct{}

	pub *publisher.Publisher[State]

	// Owned exclusively by run(); never touched from another goroutine.
	state   State
	granted []string
	waiters []command
}

// NewModule starts the module's main loop and returns the handle. The
// module begins in SummaryNone; call SetSummaryState to report the
// underlying ProcessModule's real availability.
func NewModule(name string) *Module {
	m := &Module{
		name:  name,
		cmds:  make(chan command, 16),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		pub:   publisher.New[State](),
		state: State{InterfaceName: name, SummaryStateCode: SummaryNone},
	}
	m.pub.Publish(&State{InterfaceName: name, SummaryStateCode: SummaryNone})
	go m.run()
	return m
}

func (m *Module) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			m.failAllWaiters("module stopped")
			return
		case c := <-m.cmds:
			m.handle(c)
		}
	}
}

func (m *Module) handle(c command) {
	switch c.kind {
	case cmdAcquire:
		c.action.markStarted()
		switch m.state.SummaryStateCode {
		case SummaryNotAvailable:
			c.action.complete(ResultFailed, "module not available")
		case SummaryAvailable:
			m.granted = append(m.granted, c.locName)
			m.publish()
			c.action.complete(ResultSucceeded, "")
		default:
			m.waiters = append(m.waiters, c)
		}
	case cmdRelease:
		c.action.markStarted()
		m.granted = removeOne(m.granted, c.locName)
		m.publish()
		c.action.complete(ResultSucceeded, "")
	case cmdReleaseAll:
		c.action.markStarted()
		m.granted = nil
		m.publish()
		c.action.complete(ResultSucceeded, "")
	case cmdSyncState:
		m.state.SummaryStateCode = c.newState
		m.state.Reason = c.reason
		m.state.EstAvailableAfter = c.estAvailableAfter
		m.state.LastStateChangeTime = c.now
		m.publish()
		switch c.newState {
		case SummaryAvailable:
			m.drainWaiters()
		case SummaryNotAvailable:
			m.failAllWaiters("module became unavailable")
		}
	}
}

func (m *Module) drainWaiters() {
	pending := m.waiters
	m.waiters = nil
	changed := false
	for _, c := range pending {
		if c.action.IsCancelRequested() {
			c.action.complete(ResultFailed, "cancelled")
			continue
		}
		m.granted = append(m.granted, c.locName)
		c.action.complete(ResultSucceeded, "")
		changed = true
	}
	if changed {
		m.publish()
	}
}

func (m *Module) failAllWaiters(reason string) {
	pending := m.waiters
	m.waiters = nil
	for _, c := range pending {
		c.action.complete(ResultFailed, reason)
	}
}

func (m *Module) publish() {
	snap := m.state
	snap.Granted = append([]string(nil), m.granted...)
	m.pub.Publish(&snap)
}

func removeOne(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			out := append([]string{}, s[:i]...)
			return append(out, s[i+1:]...)
		}
	}
	return s
}

// Acquire posts an Acquire(locName) action: it completes Succeeded once the
// module is Available and locName has been added to the granted multiset
// (queuing while Busy/AlmostAvailable/Blocked), or Failed immediately if the
// module is NotAvailable.
func (m *Module) Acquire(locName string) *Action {
	a := newAction()
	m.cmds <- command{kind: cmdAcquire, locName: locName, action: a}
	return a
}

// Release posts a Release(locName) action, removing one occurrence from the
// granted multiset. Accepted in any summary state.
func (m *Module) Release(locName string) *Action {
	a := newAction()
	m.cmds <- command{kind: cmdRelease, locName: locName, action: a}
	return a
}

// ReleaseAll posts a ReleaseAll action, emptying the granted multiset.
func (m *Module) ReleaseAll() *Action {
	a := newAction()
	m.cmds <- command{kind: cmdReleaseAll, action: a}
	return a
}

// SetSummaryState reports the underlying ProcessModule collaborator's real
// summary-state transition. Routed through the same command queue as
// Acquire/Release so the module's state is never touched by two goroutines
// at once.
func (m *Module) SetSummaryState(code SummaryStateCode, reason string, estAvailableAfter time.Duration, now time.Time) {
	m.cmds <- command{kind: cmdSyncState, newState: code, reason: reason, estAvailableAfter: estAvailableAfter, now: now}
}

// StatePublisher exposes the module's published State for observers.
func (m *Module) StatePublisher() *publisher.Publisher[State] { return m.pub }

// Name returns the module's interface name.
func (m *Module) Name() string { return m.name }

// Stop terminates the module's main loop, failing any still-pending Acquire
// waiters.
func (m *Module) Stop() {
	close(m.stop)
	<-m.done
}

package transferperm

import (
	"context"
	"sync"
	"sync/atomic"
)

// Phase is an action's position in the Posted -> Started -> Complete
// lifecycle shared across the engine's cooperative actors.
type Phase int

const (
	PhasePosted Phase = iota
	PhaseStarted
	PhaseComplete
)

// Result is the outcome of a completed action.
type Result int

const (
	ResultNone Result = iota
	ResultSucceeded
	ResultFailed
)

// Action tracks one in-flight Acquire/Release/ReleaseAll request. The
// waiter polls Phase/Result or blocks in Wait; Cancel is a polled flag, not
// a forced abort, matching the cooperative cancellation model the rest of
// the engine uses.
type Action struct {
	mu     sync.Mutex
	phase  Phase
	result Result
	reason string
	cancel atomic.Bool
	done   chan struct{}
}

func newAction() *Action {
	return &Action{done: make(chan struct{})}
}

// Cancel requests cancellation; it is polled, not enforced.
func (a *Action) Cancel() { a.cancel.Store(true) }

func (a *Action) IsCancelRequested() bool { return a.cancel.Load() }

func (a *Action) markStarted() {
	a.mu.Lock()
	a.phase = PhaseStarted
	a.mu.Unlock()
}

func (a *Action) complete(result Result, reason string) {
	a.mu.Lock()
	a.phase = PhaseComplete
	a.result = result
	a.reason = reason
	a.mu.Unlock()
	close(a.done)
}

// Phase returns the action's current lifecycle phase.
func (a *Action) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Result returns the outcome once complete; zero values before then.
func (a *Action) Result() (Result, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.reason
}

// Done closes once the action reaches PhaseComplete.
func (a *Action) Done() <-chan struct{} { return a.done }

// Wait blocks until the action completes or ctx is done.
func (a *Action) Wait(ctx context.Context) (Result, string, error) {
	select {
	case <-a.done:
		r, reason := a.Result()
		return r, reason, nil
	case <-ctx.Done():
		return ResultNone, "", ctx.Err()
	}
}

package routing

import (
	"context"
	"sync"
)

// Phase is a Sequence's position in the Posted -> Started -> Complete
// lifecycle, matching the pattern transferperm.Action uses for its own
// asynchronous requests.
type Phase int

const (
	PhasePosted Phase = iota
	PhaseStarted
	PhaseComplete
)

// Result is the outcome of a completed Sequence.
type Result int

const (
	ResultNone Result = iota
	ResultSucceeded
	ResultFailed
)

// Action tracks one in-flight Manager.Sequence call. Grounded on the
// teacher's pipeline.Pipeline: an internal ctx/cancel pair propagates
// cancellation into whatever item is currently executing, and sync.Once
// guards against completing twice.
type Action struct {
	mu     sync.Mutex
	phase  Phase
	result Result
	reason string
	done   chan struct{}
	once   sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func newAction(parent context.Context) *Action {
	ctx, cancel := context.WithCancel(parent)
	return &Action{done: make(chan struct{}), ctx: ctx, cancel: cancel}
}

// Cancel propagates cancellation to whatever item the sequence is currently
// executing; already-completed items are unaffected.
func (a *Action) Cancel() { a.cancel() }

func (a *Action) markStarted() {
	a.mu.Lock()
	a.phase = PhaseStarted
	a.mu.Unlock()
}

func (a *Action) complete(result Result, reason string) {
	a.once.Do(func() {
		a.mu.Lock()
		a.phase = PhaseComplete
		a.result = result
		a.reason = reason
		a.mu.Unlock()
		a.cancel()
		close(a.done)
	})
}

// Phase returns the sequence's current lifecycle phase.
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

// Done closes once the sequence reaches PhaseComplete.
func (a *Action) Done() <-chan struct{} { return a.done }

// Wait blocks until the sequence completes or ctx is done.
func (a *Action) Wait(ctx context.Context) (Result, string, error) {
	select {
	case <-a.done:
		r, reason := a.Result()
		return r, reason, nil
	case <-ctx.Done():
		return ResultNone, "", ctx.Err()
	}
}

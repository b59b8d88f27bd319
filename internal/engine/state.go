package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// State represents the current execution state of the engine
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
)

// String returns the state name for status reports and logs
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// stateController manages the execution state and the pause/resume signals
// for the run loop. State transitions are atomic so the single-flight check
// in ExecuteSequenceAsync cannot race with a finishing run.
type stateController struct {
	state      atomic.Int32
	resumeChan chan struct{}
	mu         sync.Mutex
}

func newStateController() *stateController {
	sc := &stateController{
		resumeChan: make(chan struct{}, 1),
	}
	sc.state.Store(int32(StateIdle))
	return sc
}

// Current returns the current execution state
func (sc *stateController) Current() State {
	return State(sc.state.Load())
}

// IsRunning reports whether a run is in progress, paused included
func (sc *stateController) IsRunning() bool {
	return sc.Current() != StateIdle
}

// TryStart transitions idle to running. Returns false when a run is
// already in progress, which enforces at most one concurrent run.
func (sc *stateController) TryStart() bool {
	return sc.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
}

// Finish returns the controller to idle, draining any stale resume signal
func (sc *stateController) Finish() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.state.Store(int32(StateIdle))
	select {
	case <-sc.resumeChan:
	default:
	}
}

// Pause pauses the run at the next action boundary.
// Returns false when nothing is running or the run is already paused.
func (sc *stateController) Pause() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.state.CompareAndSwap(int32(StateRunning), int32(StatePaused))
}

// Resume resumes a paused run. Returns false when the run is not paused.
func (sc *stateController) Resume() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return false
	}

	// Non-blocking send; the channel is buffered so a resume before the
	// loop reaches its pause point is not lost
	select {
	case sc.resumeChan <- struct{}{}:
	default:
	}
	return true
}

// WaitIfPaused blocks while the run is paused. Cancellation wins over
// resume so a stop request never hangs on a paused run.
func (sc *stateController) WaitIfPaused(ctx context.Context) {
	for sc.Current() == StatePaused {
		select {
		case <-sc.resumeChan:
		case <-ctx.Done():
			return
		}
	}
}

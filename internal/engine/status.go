package engine

import "time"

// Stats accumulates run counters across the engine's lifetime. They live
// in memory only and reset on process restart.
type Stats struct {
	TotalSequences       int
	SuccessfulSequences  int
	FailedSequences      int
	TotalActionsExecuted int
	LastExecution        time.Time
}

// Status is a point-in-time snapshot of the engine
type Status struct {
	State               string
	IsRunning           bool
	CurrentSequenceName string
	StopRequested       bool
	Stats               Stats
}

// GetExecutionStatus returns a snapshot of the engine's state and its
// accumulated statistics
func (e *Engine) GetExecutionStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name := ""
	if e.config != nil && e.config.MacroSequence != nil {
		name = e.config.MacroSequence.Name
	}

	state := e.state.Current()
	return Status{
		State:               state.String(),
		IsRunning:           state != StateIdle,
		CurrentSequenceName: name,
		StopRequested:       e.stopRequested.Load(),
		Stats:               e.stats,
	}
}

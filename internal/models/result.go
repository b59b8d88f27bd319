package models

import "time"

// StepResult records the outcome of a single action dispatch
type StepResult struct {
	ActionID  string
	Success   bool
	Message   string
	Timestamp time.Time
}

// ExecutionResult is the outcome of one sequence run
type ExecutionResult struct {
	Success        bool
	ExecutionTime  time.Duration
	StepsExecuted  int
	TotalSteps     int
	ErrorMessage   string
	FailedActionID string
	Details        []StepResult
}

// AddStepResult appends a step outcome. Successful steps count toward
// StepsExecuted; the latest failure is remembered as the failed action.
func (r *ExecutionResult) AddStepResult(actionID string, success bool, message string) {
	r.Details = append(r.Details, StepResult{
		ActionID:  actionID,
		Success:   success,
		Message:   message,
		Timestamp: time.Now(),
	})

	if success {
		r.StepsExecuted++
	} else {
		r.FailedActionID = actionID
		r.ErrorMessage = message
	}
}

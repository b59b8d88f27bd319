package engine

import (
	"context"
	"fmt"
	"time"

	"ktxmacro.dev/ktx-macro-go/internal/events"
	"ktxmacro.dev/ktx-macro-go/internal/logging"
	"ktxmacro.dev/ktx-macro-go/internal/models"
)

// successRatio is the fraction of steps that must succeed for a run to
// count as successful. Transient image misses are expected in this domain,
// so a run is "good enough" when most of its steps went through.
const successRatio = 0.8

// runSnapshot freezes everything a run needs at start time. The worker
// never touches the live config, so concurrent edits cannot invalidate the
// action list it iterates.
type runSnapshot struct {
	sequenceName string
	actions      []*models.MacroAction
	loops        models.LoopSpec
	loopDelay    float64
	actionDelay  float64
	templates    map[string]*models.ImageTemplate
	telegram     models.TelegramConfig
}

func newRunContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// snapshotRun copies the run inputs out of the live config under the read
// lock. Returns nil when no sequence is configured.
func (e *Engine) snapshotRun() *runSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.config == nil || e.config.MacroSequence == nil {
		return nil
	}

	sequence := e.config.MacroSequence
	templates := make(map[string]*models.ImageTemplate, len(e.config.ImageTemplates))
	for _, template := range e.config.ImageTemplates {
		templates[template.ID] = template
	}

	return &runSnapshot{
		sequenceName: sequence.Name,
		actions:      sequence.SnapshotActions(),
		loops:        sequence.Loops(),
		loopDelay:    sequence.LoopDelay,
		actionDelay:  e.config.ActionDelay,
		templates:    templates,
		telegram:     e.config.TelegramConfig,
	}
}

// runWorker is the body of the worker goroutine. It executes the sequence,
// publishes the completion event, updates the accumulated stats and feeds
// the optional run recorder.
func (e *Engine) runWorker(ctx context.Context, snapshot *runSnapshot, done chan struct{}) {
	defer close(done)
	defer e.state.Finish()

	e.mu.RLock()
	recorder := e.recorder
	e.mu.RUnlock()

	var runID int64
	if recorder != nil {
		id, err := recorder.StartRun(snapshot.sequenceName, len(snapshot.actions))
		if err != nil {
			e.reporter.ReportError(logging.ErrorCategoryStorage, logging.ErrorSeverityLow,
				"engine", "failed to record run start", err)
		} else {
			runID = id
		}
	}

	e.publish(events.NewSequenceStartedEvent(snapshot.sequenceName, len(snapshot.actions), snapshot.loops.Count))
	e.logger.InfoWithContext("sequence started", map[string]interface{}{
		"sequence": snapshot.sequenceName,
		"actions":  len(snapshot.actions),
	})

	result := e.executeSequence(ctx, snapshot)

	e.mu.Lock()
	e.lastResult = result
	e.stats.TotalSequences++
	if result.Success {
		e.stats.SuccessfulSequences++
	} else {
		e.stats.FailedSequences++
	}
	e.stats.TotalActionsExecuted += result.StepsExecuted
	e.stats.LastExecution = time.Now()
	e.mu.Unlock()

	if recorder != nil && runID != 0 {
		if err := recorder.FinishRun(runID, result); err != nil {
			e.reporter.ReportError(logging.ErrorCategoryStorage, logging.ErrorSeverityLow,
				"engine", "failed to record run result", err)
		}
	}

	e.publish(events.NewSequenceCompletedEvent(snapshot.sequenceName, result.Success,
		result.StepsExecuted, result.TotalSteps, result.ExecutionTime.Seconds()))
	e.logger.InfoWithContext("sequence completed", map[string]interface{}{
		"sequence":       snapshot.sequenceName,
		"success":        result.Success,
		"steps_executed": result.StepsExecuted,
		"total_steps":    result.TotalSteps,
	})

	e.sendFinishedNotification(snapshot, result)
}

// executeSequence runs the loop over the snapshot's actions. Restart
// requests re-enter the loop at iteration zero without leaving the running
// state; stop requests break out at the next action or loop boundary.
func (e *Engine) executeSequence(ctx context.Context, snapshot *runSnapshot) (result *models.ExecutionResult) {
	start := time.Now()
	result = &models.ExecutionResult{TotalSteps: len(snapshot.actions)}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sequence worker panic: %v", r)
			result.Success = false
			result.ErrorMessage = err.Error()
			e.reporter.ReportCriticalError(logging.ErrorCategoryEngine, "engine",
				"sequence execution failed", err, map[string]interface{}{
					"sequence": snapshot.sequenceName,
				})
			e.publish(events.NewErrorEvent("engine", "engine", err, nil))
		}
		result.ExecutionTime = time.Since(start)
	}()

	conditions := newConditionContext()

	loopIndex := 0
	for snapshot.loops.Forever || loopIndex < snapshot.loops.Count {
		if ctx.Err() != nil {
			break
		}

		restarted := false
		for index, action := range snapshot.actions {
			if ctx.Err() != nil {
				break
			}
			e.state.WaitIfPaused(ctx)
			if ctx.Err() != nil {
				break
			}
			if !action.Enabled {
				continue
			}

			// Observers expect the notification before the handler runs
			e.publish(events.NewActionExecutedEvent(action.ID, string(action.Kind()), action.Description, index))

			success, message := e.dispatch(ctx, snapshot, conditions, action)
			result.AddStepResult(action.ID, success, message)
			if !success {
				e.publish(events.NewActionFailedEvent(action.ID, string(action.Kind()), message))
			}

			if e.restart.CompareAndSwap(true, false) {
				e.publish(events.NewSequenceRestartedEvent(snapshot.sequenceName, action.ID))
				e.logger.InfoWithContext("restarting sequence from the beginning", map[string]interface{}{
					"triggered_by": action.ID,
				})
				restarted = true
				break
			}

			e.sleep(ctx, snapshot.actionDelay)
		}

		if restarted {
			loopIndex = 0
			continue
		}

		loopIndex++
		if ctx.Err() == nil && (snapshot.loops.Forever || loopIndex < snapshot.loops.Count) {
			e.sleep(ctx, snapshot.loopDelay)
		}
	}

	stopped := e.stopRequested.Load()
	result.Success = result.StepsExecuted > 0 &&
		!stopped &&
		float64(result.StepsExecuted) >= successRatio*float64(result.TotalSteps)
	return result
}

// sendFinishedNotification sends the optional Telegram completion notice
func (e *Engine) sendFinishedNotification(snapshot *runSnapshot, result *models.ExecutionResult) {
	if e.notifier == nil || !snapshot.telegram.UseFinishedMessage || !e.notifier.IsConfigured() {
		return
	}

	outcome := "finished"
	if !result.Success {
		outcome = "finished with errors"
	}
	message := fmt.Sprintf("Macro '%s' %s: %d/%d steps in %.1fs",
		snapshot.sequenceName, outcome, result.StepsExecuted, result.TotalSteps,
		result.ExecutionTime.Seconds())

	if !e.notifier.SendMessage(message) {
		e.reporter.ReportError(logging.ErrorCategoryNotify, logging.ErrorSeverityLow,
			"engine", "failed to send completion notification", nil)
	}
}

// sleep pauses for the given number of seconds, waking early when the run
// is cancelled
func (e *Engine) sleep(ctx context.Context, seconds float64) {
	if seconds <= 0 {
		return
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

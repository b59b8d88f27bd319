package engine

import (
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"ktxmacro.dev/ktx-macro-go/internal/events"
	"ktxmacro.dev/ktx-macro-go/internal/logging"
	"ktxmacro.dev/ktx-macro-go/internal/models"

	"ktxmacro.dev/ktx-macro-go/internal/cv"
)

// stopTimeout bounds how long StopExecution waits for the worker to exit
const stopTimeout = 5 * time.Second

// Capturer produces screenshots for image-driven actions
type Capturer interface {
	CaptureFullScreen(monitorID ...int) (*image.RGBA, error)
	GetScaleFactor() float64
}

// Matcher locates a stored template inside a screenshot
type Matcher interface {
	FindInScreenshot(screenshot *image.RGBA, templatePath string, region *cv.Region, threshold float64) *cv.MatchResult
}

// Input executes primitive mouse and keyboard operations
type Input interface {
	Click(pos ...int) bool
	DoubleClick(pos ...int) bool
	RightClick(pos ...int) bool
	Drag(fromX, fromY, toX, toY int) bool
	Scroll(direction string, amount int) bool
	TypeText(text string) bool
	KeyCombination(keys []string) bool
	GetScaleFactor() float64
	SetScaleFactor(scale float64)
}

// Notifier is the notification contract the engine depends on
type Notifier interface {
	IsConfigured() bool
	SendMessage(message string) bool
}

// RunRecorder persists run history. The engine treats it as an optional
// sink; recording failures never affect a run's outcome.
type RunRecorder interface {
	StartRun(sequenceName string, totalSteps int) (int64, error)
	FinishRun(runID int64, result *models.ExecutionResult) error
}

// Engine executes macro sequences. It owns the run/stop/restart state
// machine, dispatches actions to its collaborators and reports progress
// through the event bus. At most one sequence runs at a time.
type Engine struct {
	capture  Capturer
	matcher  Matcher
	input    Input
	notifier Notifier
	bus      events.EventBus
	recorder RunRecorder

	logger   *logging.Logger
	reporter *logging.ErrorReporter

	state         *stateController
	stopRequested atomic.Bool
	restart       atomic.Bool

	config     *models.MacroConfig
	cancelRun  func()
	runDone    chan struct{}
	lastResult *models.ExecutionResult
	stats      Stats
	mu         sync.RWMutex
}

// New creates an engine around a config and its collaborators. The capture
// and input scale factors are reconciled here: when they disagree by more
// than 0.1 the smaller one wins, which keeps clicks inside the screen on
// mixed-DPI setups.
func New(config *models.MacroConfig, capture Capturer, matcher Matcher, input Input, notifier Notifier, bus events.EventBus) *Engine {
	if config == nil {
		config = models.NewMacroConfig()
	}

	e := &Engine{
		capture:  capture,
		matcher:  matcher,
		input:    input,
		notifier: notifier,
		bus:      bus,
		logger:   logging.NewLogger("engine"),
		reporter: logging.NewErrorReporter(),
		state:    newStateController(),
		config:   config,
	}
	e.reconcileScaleFactors()
	return e
}

// SetRecorder attaches a run-history sink
func (e *Engine) SetRecorder(recorder RunRecorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = recorder
}

// ErrorReporter exposes the engine's error reporter so the hosting layer
// can subscribe to severity callbacks
func (e *Engine) ErrorReporter() *logging.ErrorReporter {
	return e.reporter
}

func (e *Engine) reconcileScaleFactors() {
	if e.capture == nil || e.input == nil {
		return
	}

	captureScale := e.capture.GetScaleFactor()
	inputScale := e.input.GetScaleFactor()
	if math.Abs(captureScale-inputScale) <= 0.1 {
		return
	}

	reconciled := math.Min(captureScale, inputScale)
	e.logger.WarnWithContext("scale factors disagree, using the smaller one", map[string]interface{}{
		"capture_scale": captureScale,
		"input_scale":   inputScale,
		"reconciled":    reconciled,
	})
	e.input.SetScaleFactor(reconciled)
}

// Config returns the live configuration object
func (e *Engine) Config() *models.MacroConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// SetConfig replaces the configuration. A run already in progress keeps
// iterating the snapshot it took at start.
func (e *Engine) SetConfig(config *models.MacroConfig) {
	if config == nil {
		return
	}
	e.mu.Lock()
	e.config = config
	e.mu.Unlock()
}

// IsRunning reports whether a sequence run is in progress
func (e *Engine) IsRunning() bool {
	return e.state.IsRunning()
}

// ExecuteSequenceAsync starts executing the configured sequence on a worker
// goroutine. When a run is already in progress this is a no-op and returns
// false; at most one run exists at a time.
func (e *Engine) ExecuteSequenceAsync() bool {
	if !e.state.TryStart() {
		e.logger.Warn("sequence execution already in progress, ignoring start request")
		return false
	}

	snapshot := e.snapshotRun()
	if snapshot == nil {
		e.state.Finish()
		e.logger.Warn("no sequence configured, nothing to execute")
		return false
	}

	ctx, cancel := newRunContext()
	done := make(chan struct{})

	e.stopRequested.Store(false)
	e.restart.Store(false)
	e.mu.Lock()
	e.cancelRun = cancel
	e.runDone = done
	e.mu.Unlock()

	go e.runWorker(ctx, snapshot, done)
	return true
}

// StopExecution requests a cooperative stop and waits up to five seconds
// for the worker to observe it. The in-flight action finishes; no new
// action is dispatched after this returns.
func (e *Engine) StopExecution() {
	e.mu.RLock()
	done := e.runDone
	e.mu.RUnlock()

	if !e.requestStop() {
		return
	}

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(stopTimeout):
		e.logger.Warn("worker did not stop within the timeout, returning anyway")
	}
}

// requestStop flags the stop and cancels the run context without joining,
// so the worker itself can trigger a stop (failure policy) safely.
func (e *Engine) requestStop() bool {
	if !e.state.IsRunning() {
		return false
	}

	e.stopRequested.Store(true)
	e.state.Resume()

	e.mu.RLock()
	cancel := e.cancelRun
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	e.publish(events.Event{
		Type:      events.EventTypeStopRequested,
		Source:    "engine",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{},
	})
	e.logger.Info("stop requested")
	return true
}

// Pause pauses the run at the next action boundary
func (e *Engine) Pause() bool {
	if !e.state.Pause() {
		return false
	}
	e.logger.Info("execution paused")
	return true
}

// Resume resumes a paused run
func (e *Engine) Resume() bool {
	if !e.state.Resume() {
		return false
	}
	e.logger.Info("execution resumed")
	return true
}

// LastResult returns the result of the most recently finished run, or nil
// when no run has completed yet
func (e *Engine) LastResult() *models.ExecutionResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastResult
}

func (e *Engine) publish(event events.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}

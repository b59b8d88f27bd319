package engine

import (
	"context"
	"fmt"

	"ktxmacro.dev/ktx-macro-go/internal/cv"
	"ktxmacro.dev/ktx-macro-go/internal/events"
	"ktxmacro.dev/ktx-macro-go/internal/logging"
	"ktxmacro.dev/ktx-macro-go/internal/models"
)

// fallbackThreshold matches templates from configs that carry neither an
// action-level nor a template-level threshold
const fallbackThreshold = 0.8

// dispatch executes one action and reports whether the step succeeded
// together with a human-readable message. Handler panics are contained
// here so a defective action can never take down the run loop.
func (e *Engine) dispatch(ctx context.Context, snapshot *runSnapshot, conditions *conditionContext, action *models.MacroAction) (success bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("action handler panic: %v", r)
			e.reporter.ReportActionError(logging.ErrorCategoryEngine, "engine",
				"action handler panicked", action.ID, err)
			success = false
			message = err.Error()
		}
	}()

	switch params := action.Params.(type) {
	case *models.ClickParams:
		return e.doClick(params)
	case *models.ImageClickParams:
		return e.doImageClick(snapshot, action, params)
	case *models.DoubleClickParams:
		return e.doAuxClick(snapshot, action, params.Position, params.TemplateID, params.Region, e.input.DoubleClick, "double click")
	case *models.RightClickParams:
		return e.doAuxClick(snapshot, action, params.Position, params.TemplateID, params.Region, e.input.RightClick, "right click")
	case *models.DragParams:
		return e.doDrag(params)
	case *models.TypeTextParams:
		return e.doTypeText(params)
	case *models.KeyPressParams:
		return e.doKeyPress(params)
	case *models.ScrollParams:
		return e.doScroll(params)
	case *models.WaitParams:
		return e.doWait(ctx, params)
	case *models.SendTelegramParams:
		return e.doSendTelegram(params)
	case *models.IfParams:
		return e.doIf(snapshot, conditions, action, params)
	case *models.ElseParams:
		return e.doElse(conditions, action)
	case *models.LoopParams:
		return false, "loop actions are not supported by this engine"
	case nil:
		return false, "action has no parameters"
	default:
		return false, fmt.Sprintf("unknown action type '%s'", action.Kind())
	}
}

func (e *Engine) doClick(params *models.ClickParams) (bool, string) {
	if params.Position == nil {
		return false, "click action has no position"
	}
	if !e.input.Click(params.Position.X, params.Position.Y) {
		return false, fmt.Sprintf("click at (%d,%d) failed", params.Position.X, params.Position.Y)
	}
	return true, fmt.Sprintf("clicked at (%d,%d)", params.Position.X, params.Position.Y)
}

// doImageClick captures the screen, locates the action's template and
// clicks at the match's top-left corner plus the configured offset.
// A missing click position fails the step before anything is captured;
// a threshold-gated miss is answered by the action's failure policy.
func (e *Engine) doImageClick(snapshot *runSnapshot, action *models.MacroAction, params *models.ImageClickParams) (bool, string) {
	if params.Offset == nil {
		return false, "image click action has no click position"
	}

	template, ok := snapshot.templates[params.TemplateID]
	if !ok {
		return false, fmt.Sprintf("image template '%s' does not exist", params.TemplateID)
	}

	result, miss := e.findTemplate(action, template, params.Region)
	if miss != "" {
		return e.applyFailurePolicy(action, template, miss)
	}

	clickX := result.TopLeft.X + params.Offset.X
	clickY := result.TopLeft.Y + params.Offset.Y

	if !e.input.Click(clickX, clickY) {
		return false, fmt.Sprintf("click at matched position (%d,%d) failed", clickX, clickY)
	}
	return true, fmt.Sprintf("clicked '%s' at (%d,%d) with confidence %.3f",
		template.Name, clickX, clickY, result.Confidence)
}

// doAuxClick serves the double and right click kinds, which accept either
// a literal position or a template whose match center becomes the target
func (e *Engine) doAuxClick(snapshot *runSnapshot, action *models.MacroAction, position *models.Point, templateID string, region *models.Region, click func(...int) bool, verb string) (bool, string) {
	if templateID == "" {
		if position == nil {
			return false, fmt.Sprintf("%s action has no position", verb)
		}
		if !click(position.X, position.Y) {
			return false, fmt.Sprintf("%s at (%d,%d) failed", verb, position.X, position.Y)
		}
		return true, fmt.Sprintf("%s at (%d,%d)", verb, position.X, position.Y)
	}

	template, ok := snapshot.templates[templateID]
	if !ok {
		return false, fmt.Sprintf("image template '%s' does not exist", templateID)
	}

	result, miss := e.findTemplate(action, template, region)
	if miss != "" {
		return e.applyFailurePolicy(action, template, miss)
	}

	if !click(result.Center.X, result.Center.Y) {
		return false, fmt.Sprintf("%s on '%s' failed", verb, template.Name)
	}
	return true, fmt.Sprintf("%s on '%s' at (%d,%d)", verb, template.Name, result.Center.X, result.Center.Y)
}

func (e *Engine) doDrag(params *models.DragParams) (bool, string) {
	if params.From == nil || params.To == nil {
		return false, "drag action needs both a start and an end position"
	}
	if !e.input.Drag(params.From.X, params.From.Y, params.To.X, params.To.Y) {
		return false, "drag failed"
	}
	return true, fmt.Sprintf("dragged from (%d,%d) to (%d,%d)",
		params.From.X, params.From.Y, params.To.X, params.To.Y)
}

func (e *Engine) doTypeText(params *models.TypeTextParams) (bool, string) {
	if params.Text == "" {
		return true, "no text to type"
	}
	if !e.input.TypeText(params.Text) {
		return false, "text input failed"
	}
	return true, fmt.Sprintf("typed %d characters", len([]rune(params.Text)))
}

func (e *Engine) doKeyPress(params *models.KeyPressParams) (bool, string) {
	if len(params.Keys) == 0 {
		return true, "no keys to press"
	}
	if !e.input.KeyCombination(params.Keys) {
		return false, "key combination failed"
	}
	return true, fmt.Sprintf("pressed %v", params.Keys)
}

func (e *Engine) doScroll(params *models.ScrollParams) (bool, string) {
	direction := params.Direction
	if direction == "" {
		direction = "up"
	}
	amount := params.Amount
	if amount <= 0 {
		amount = 3
	}

	if !e.input.Scroll(direction, amount) {
		return false, fmt.Sprintf("scroll %s failed", direction)
	}
	return true, fmt.Sprintf("scrolled %s by %d", direction, amount)
}

func (e *Engine) doWait(ctx context.Context, params *models.WaitParams) (bool, string) {
	seconds := params.Seconds
	if seconds <= 0 {
		seconds = 1.0
	}
	e.sleep(ctx, seconds)
	return true, fmt.Sprintf("waited %.1fs", seconds)
}

func (e *Engine) doSendTelegram(params *models.SendTelegramParams) (bool, string) {
	if params.Message == "" {
		return true, "no message to send"
	}
	if e.notifier == nil || !e.notifier.IsConfigured() {
		return false, "telegram notifier is not configured"
	}
	if !e.notifier.SendMessage(params.Message) {
		e.reporter.ReportError(logging.ErrorCategoryNotify, logging.ErrorSeverityLow,
			"engine", "telegram send failed", nil)
		return false, "telegram send failed"
	}
	return true, "telegram message sent"
}

// doIf evaluates the action's condition and records the outcome in the
// per-run context so a following else can negate it. The step itself
// succeeds whenever the condition could be evaluated.
func (e *Engine) doIf(snapshot *runSnapshot, conditions *conditionContext, action *models.MacroAction, params *models.IfParams) (bool, string) {
	if params.Condition == "" {
		return false, "if action has no condition type"
	}

	switch params.Condition {
	case models.ConditionAlways:
		conditions.recordIf(action.ID, true)
		return true, "condition 'always' is true"

	case models.ConditionImageFound, models.ConditionImageNotFound:
		template, ok := snapshot.templates[params.TemplateID]
		if !ok {
			return false, fmt.Sprintf("image template '%s' does not exist", params.TemplateID)
		}

		result, miss := e.findTemplate(action, template, params.Region)
		found := miss == "" && result.Found

		outcome := found
		if params.Condition == models.ConditionImageNotFound {
			outcome = !found
		}
		conditions.recordIf(action.ID, outcome)
		return true, fmt.Sprintf("condition '%s' on '%s' is %t", params.Condition, template.Name, outcome)

	default:
		return false, fmt.Sprintf("unknown condition type '%s'", params.Condition)
	}
}

// doElse records the negation of the nearest preceding if outcome.
// Without a preceding if in this run the step fails.
func (e *Engine) doElse(conditions *conditionContext, action *models.MacroAction) (bool, string) {
	last, ok := conditions.lastIf()
	if !ok {
		return false, "else without a preceding if"
	}
	conditions.recordElse(action.ID, !last)
	return true, fmt.Sprintf("else branch is %t", !last)
}

// findTemplate runs one capture and one match attempt for an action's
// template. A non-empty miss string describes why no usable match exists;
// capture and load failures are reported the same way as a plain miss so
// the failure policy can answer all of them.
func (e *Engine) findTemplate(action *models.MacroAction, template *models.ImageTemplate, region *models.Region) (*cv.MatchResult, string) {
	screenshot, err := e.capture.CaptureFullScreen()
	if err != nil || screenshot == nil {
		e.reporter.ReportActionError(logging.ErrorCategoryCapture, "engine",
			"screen capture failed", action.ID, err)
		return nil, fmt.Sprintf("screen capture failed while looking for '%s'", template.Name)
	}

	threshold := resolveThreshold(action, template)
	result := e.matcher.FindInScreenshot(screenshot, template.FilePath, toCVRegion(region), threshold)

	if !result.Found {
		e.publish(events.NewTemplateNotFoundEvent(template.Name, result.Confidence, threshold))
		return nil, fmt.Sprintf("image '%s' not found (best confidence %.3f, threshold %.3f)",
			template.Name, result.Confidence, threshold)
	}

	e.publish(events.NewTemplateMatchedEvent(template.Name, result.Confidence, result.TopLeft.X, result.TopLeft.Y))
	return result, ""
}

// applyFailurePolicy answers a failed image search with the action's
// configured policy. The restart policy records the step as successful:
// the action's job was to trigger the restart, which it did.
func (e *Engine) applyFailurePolicy(action *models.MacroAction, template *models.ImageTemplate, miss string) (bool, string) {
	switch action.OnImageNotFound {
	case models.FailureRestartSequence:
		e.restart.Store(true)
		e.logger.InfoWithContext("image not found, restarting sequence", map[string]interface{}{
			"template": template.Name,
		})
		return true, miss + "; restarting sequence"

	case models.FailureSkipToNext:
		e.logger.WarnWithContext("image not found, skipping to next action", map[string]interface{}{
			"template": template.Name,
		})
		return true, miss + "; skipped"

	default:
		e.logger.WarnWithContext("image not found, stopping execution", map[string]interface{}{
			"template": template.Name,
		})
		e.requestStop()
		return false, miss + "; stopping execution"
	}
}

// resolveThreshold picks the confidence threshold for a match: the action's
// own setting wins, then the template's, then the fallback.
func resolveThreshold(action *models.MacroAction, template *models.ImageTemplate) float64 {
	if action.MatchThreshold > 0 {
		return action.MatchThreshold
	}
	if template.Threshold > 0 {
		return template.Threshold
	}
	return fallbackThreshold
}

func toCVRegion(region *models.Region) *cv.Region {
	if region == nil || !region.IsValid() {
		return nil
	}
	return &cv.Region{X1: region.X1, Y1: region.Y1, X2: region.X2, Y2: region.Y2}
}

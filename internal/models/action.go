package models

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// ActionKind identifies what a macro action does
type ActionKind string

const (
	ActionClick        ActionKind = "click"
	ActionImageClick   ActionKind = "image_click"
	ActionDoubleClick  ActionKind = "double_click"
	ActionRightClick   ActionKind = "right_click"
	ActionDrag         ActionKind = "drag"
	ActionTypeText     ActionKind = "type_text"
	ActionKeyPress     ActionKind = "key_press"
	ActionScroll       ActionKind = "scroll"
	ActionWait         ActionKind = "wait"
	ActionSendTelegram ActionKind = "send_telegram"
	ActionIf           ActionKind = "if"
	ActionElse         ActionKind = "else"
	ActionLoop         ActionKind = "loop"
)

// FailurePolicy selects what the run loop does when a threshold-gated
// image search fails
type FailurePolicy string

const (
	FailureRestartSequence FailurePolicy = "restart_sequence"
	FailureSkipToNext      FailurePolicy = "skip_to_next"
	FailureStopExecution   FailurePolicy = "stop_execution"
)

// ConditionType is the condition evaluated by an "if" action
type ConditionType string

const (
	ConditionImageFound    ConditionType = "image_found"
	ConditionImageNotFound ConditionType = "image_not_found"
	ConditionAlways        ConditionType = "always"
)

// Defaults applied when fields are absent from stored configs
const (
	DefaultMatchThreshold = 0.7
	DefaultTimeoutSeconds = 10.0
	DefaultRetryCount     = 3
)

// ActionParams holds the fields specific to one action kind. Exactly one
// concrete params type exists per kind, so fields that do not apply to a
// kind cannot be set on it.
type ActionParams interface {
	Kind() ActionKind
}

// ClickParams clicks at a literal screen position
type ClickParams struct {
	Position *Point
}

func (*ClickParams) Kind() ActionKind { return ActionClick }

// ImageClickParams locates a template on screen and clicks at the match's
// top-left corner plus Offset. Region, when set, crops the template image
// before matching.
type ImageClickParams struct {
	TemplateID string
	Offset     *Point
	Region     *Region
}

func (*ImageClickParams) Kind() ActionKind { return ActionImageClick }

// DoubleClickParams double-clicks at a literal position, or at the center
// of a template match when TemplateID is set
type DoubleClickParams struct {
	Position   *Point
	TemplateID string
	Region     *Region
}

func (*DoubleClickParams) Kind() ActionKind { return ActionDoubleClick }

// RightClickParams right-clicks at a literal position, or at the center
// of a template match when TemplateID is set
type RightClickParams struct {
	Position   *Point
	TemplateID string
	Region     *Region
}

func (*RightClickParams) Kind() ActionKind { return ActionRightClick }

// DragParams drags from one position to another
type DragParams struct {
	From *Point
	To   *Point
}

func (*DragParams) Kind() ActionKind { return ActionDrag }

// TypeTextParams types a string via clipboard paste
type TypeTextParams struct {
	Text string
}

func (*TypeTextParams) Kind() ActionKind { return ActionTypeText }

// KeyPressParams sends a key combination. A single key is pressed alone,
// multiple keys are sent as a chord.
type KeyPressParams struct {
	Keys []string
}

func (*KeyPressParams) Kind() ActionKind { return ActionKeyPress }

// ScrollParams scrolls in a direction ("up", "down", "left", "right")
// by an amount. Zero values fall back to "up" and 3 at dispatch.
type ScrollParams struct {
	Direction string
	Amount    int
}

func (*ScrollParams) Kind() ActionKind { return ActionScroll }

// WaitParams sleeps for a number of seconds (1.0 when unset)
type WaitParams struct {
	Seconds float64
}

func (*WaitParams) Kind() ActionKind { return ActionWait }

// SendTelegramParams sends a notification message
type SendTelegramParams struct {
	Message string
}

func (*SendTelegramParams) Kind() ActionKind { return ActionSendTelegram }

// IfParams evaluates a condition and records the outcome for a later
// "else" action. Image conditions match TemplateID against a fresh
// screenshot. ThenActionIDs and ElseActionIDs are preserved for editors
// that group actions under a branch; the run loop does not recurse into
// them.
type IfParams struct {
	Condition     ConditionType
	TemplateID    string
	Region        *Region
	ThenActionIDs []string
	ElseActionIDs []string
}

func (*IfParams) Kind() ActionKind { return ActionIf }

// ElseParams negates the outcome of the nearest preceding "if" action
type ElseParams struct{}

func (*ElseParams) Kind() ActionKind { return ActionElse }

// LoopParams groups actions for repeated execution. Stored configs may
// contain loop actions; the current run loop does not execute them and
// reports them as unsupported.
type LoopParams struct {
	Count     *int
	ActionIDs []string
}

func (*LoopParams) Kind() ActionKind { return ActionLoop }

// paramsRegistry maps action kinds to their concrete params types.
// This enables polymorphic decoding of ActionParams from stored configs.
//
// To add a new action kind:
// 1. Create a params struct with a Kind() method
// 2. Add it here and teach the codec its wire fields
var paramsRegistry = map[ActionKind]reflect.Type{
	ActionClick:        reflect.TypeOf(ClickParams{}),
	ActionImageClick:   reflect.TypeOf(ImageClickParams{}),
	ActionDoubleClick:  reflect.TypeOf(DoubleClickParams{}),
	ActionRightClick:   reflect.TypeOf(RightClickParams{}),
	ActionDrag:         reflect.TypeOf(DragParams{}),
	ActionTypeText:     reflect.TypeOf(TypeTextParams{}),
	ActionKeyPress:     reflect.TypeOf(KeyPressParams{}),
	ActionScroll:       reflect.TypeOf(ScrollParams{}),
	ActionWait:         reflect.TypeOf(WaitParams{}),
	ActionSendTelegram: reflect.TypeOf(SendTelegramParams{}),
	ActionIf:           reflect.TypeOf(IfParams{}),
	ActionElse:         reflect.TypeOf(ElseParams{}),
	ActionLoop:         reflect.TypeOf(LoopParams{}),
}

// newParams creates a zero-value params instance for a kind
func newParams(kind ActionKind) (ActionParams, error) {
	paramsType, found := paramsRegistry[kind]
	if !found {
		return nil, fmt.Errorf("unknown action type '%s' (available types: %v)", kind, registeredKinds())
	}
	return reflect.New(paramsType).Interface().(ActionParams), nil
}

// registeredKinds returns all known action kinds, sorted for stable
// error messages
func registeredKinds() []string {
	kinds := make([]string, 0, len(paramsRegistry))
	for kind := range paramsRegistry {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	return kinds
}

// MacroAction is one step of a macro sequence. The kind-specific payload
// lives in Params; the remaining fields apply to every kind and are
// always persisted.
type MacroAction struct {
	ID          string
	Enabled     bool
	Description string

	// Matching knobs, meaningful for image-based kinds but carried by all
	MatchThreshold  float64
	TimeoutSeconds  float64
	RetryCount      int
	OnImageNotFound FailurePolicy

	Params ActionParams
}

// NewAction creates an enabled action of the given kind with default
// matching knobs and empty params
func NewAction(kind ActionKind) (*MacroAction, error) {
	params, err := newParams(kind)
	if err != nil {
		return nil, err
	}

	return &MacroAction{
		ID:              uuid.NewString(),
		Enabled:         true,
		MatchThreshold:  DefaultMatchThreshold,
		TimeoutSeconds:  DefaultTimeoutSeconds,
		RetryCount:      DefaultRetryCount,
		OnImageNotFound: FailureStopExecution,
		Params:          params,
	}, nil
}

// Kind returns the action kind, derived from the params type
func (a *MacroAction) Kind() ActionKind {
	if a.Params == nil {
		return ""
	}
	return a.Params.Kind()
}

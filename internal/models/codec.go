package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireAction is the stored JSON shape of a MacroAction. All keys are
// written on every action regardless of kind, with null for fields the
// kind does not use, so files stay diffable and compatible with earlier
// releases.
type wireAction struct {
	ID         string     `json:"id"`
	ActionType ActionKind `json:"action_type"`
	Enabled    *bool      `json:"enabled"`

	Description     *string        `json:"description"`
	ImageTemplateID *string        `json:"image_template_id"`
	ClickPosition   *Point         `json:"click_position"`
	SelectedRegion  *Region        `json:"selected_region"`
	DragToPosition  *Point         `json:"drag_to_position"`
	TextInput       *string        `json:"text_input"`
	KeyCombination  []string       `json:"key_combination"`
	ScrollDirection *string        `json:"scroll_direction"`
	ScrollAmount    *int           `json:"scroll_amount"`
	WaitSeconds     *float64       `json:"wait_seconds"`
	TelegramMessage *string        `json:"telegram_message"`
	MatchThreshold  *float64       `json:"match_threshold"`
	TimeoutSeconds  *float64       `json:"timeout_seconds"`
	RetryCount      *int           `json:"retry_count"`
	OnImageNotFound *FailurePolicy `json:"on_image_not_found"`
	ConditionType   *ConditionType `json:"condition_type"`
	LoopCount       *int           `json:"loop_count"`
	LoopActions     []string       `json:"loop_actions"`
	IfActions       []string       `json:"if_actions"`
	ElseActions     []string       `json:"else_actions"`
}

func (a *MacroAction) MarshalJSON() ([]byte, error) {
	if a.Params == nil {
		return nil, fmt.Errorf("action %s has no params", a.ID)
	}

	w := wireAction{
		ID:              a.ID,
		ActionType:      a.Kind(),
		Enabled:         boolPtr(a.Enabled),
		Description:     stringPtrOrNil(a.Description),
		MatchThreshold:  floatPtr(a.MatchThreshold),
		TimeoutSeconds:  floatPtr(a.TimeoutSeconds),
		RetryCount:      intPtr(a.RetryCount),
		OnImageNotFound: policyPtr(a.OnImageNotFound),
	}

	switch p := a.Params.(type) {
	case *ClickParams:
		w.ClickPosition = p.Position

	case *ImageClickParams:
		w.ImageTemplateID = stringPtrOrNil(p.TemplateID)
		w.ClickPosition = p.Offset
		w.SelectedRegion = p.Region

	case *DoubleClickParams:
		w.ClickPosition = p.Position
		w.ImageTemplateID = stringPtrOrNil(p.TemplateID)
		w.SelectedRegion = p.Region

	case *RightClickParams:
		w.ClickPosition = p.Position
		w.ImageTemplateID = stringPtrOrNil(p.TemplateID)
		w.SelectedRegion = p.Region

	case *DragParams:
		w.ClickPosition = p.From
		w.DragToPosition = p.To

	case *TypeTextParams:
		w.TextInput = stringPtrOrNil(p.Text)

	case *KeyPressParams:
		w.KeyCombination = p.Keys

	case *ScrollParams:
		w.ScrollDirection = stringPtrOrNil(p.Direction)
		if p.Amount != 0 {
			w.ScrollAmount = intPtr(p.Amount)
		}

	case *WaitParams:
		if p.Seconds != 0 {
			w.WaitSeconds = floatPtr(p.Seconds)
		}

	case *SendTelegramParams:
		w.TelegramMessage = stringPtrOrNil(p.Message)

	case *IfParams:
		if p.Condition != "" {
			w.ConditionType = conditionPtr(p.Condition)
		}
		w.ImageTemplateID = stringPtrOrNil(p.TemplateID)
		w.SelectedRegion = p.Region
		w.IfActions = p.ThenActionIDs
		w.ElseActions = p.ElseActionIDs

	case *ElseParams:
		// No kind-specific fields

	case *LoopParams:
		w.LoopCount = p.Count
		w.LoopActions = p.ActionIDs

	default:
		return nil, fmt.Errorf("action %s: unsupported params type %T", a.ID, a.Params)
	}

	return json.Marshal(w)
}

func (a *MacroAction) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.ID == "" {
		return fmt.Errorf("action missing id")
	}

	params, err := newParams(w.ActionType)
	if err != nil {
		return fmt.Errorf("action %s: %w", w.ID, err)
	}

	switch p := params.(type) {
	case *ClickParams:
		p.Position = w.ClickPosition

	case *ImageClickParams:
		p.TemplateID = stringOr(w.ImageTemplateID, "")
		p.Offset = w.ClickPosition
		p.Region = w.SelectedRegion

	case *DoubleClickParams:
		p.Position = w.ClickPosition
		p.TemplateID = stringOr(w.ImageTemplateID, "")
		p.Region = w.SelectedRegion

	case *RightClickParams:
		p.Position = w.ClickPosition
		p.TemplateID = stringOr(w.ImageTemplateID, "")
		p.Region = w.SelectedRegion

	case *DragParams:
		p.From = w.ClickPosition
		p.To = w.DragToPosition

	case *TypeTextParams:
		p.Text = stringOr(w.TextInput, "")

	case *KeyPressParams:
		p.Keys = w.KeyCombination

	case *ScrollParams:
		p.Direction = stringOr(w.ScrollDirection, "")
		p.Amount = intOr(w.ScrollAmount, 0)

	case *WaitParams:
		p.Seconds = floatOr(w.WaitSeconds, 0)

	case *SendTelegramParams:
		p.Message = stringOr(w.TelegramMessage, "")

	case *IfParams:
		if w.ConditionType != nil {
			p.Condition = *w.ConditionType
		}
		p.TemplateID = stringOr(w.ImageTemplateID, "")
		p.Region = w.SelectedRegion
		p.ThenActionIDs = w.IfActions
		p.ElseActionIDs = w.ElseActions

	case *ElseParams:
		// No kind-specific fields

	case *LoopParams:
		p.Count = w.LoopCount
		p.ActionIDs = w.LoopActions
	}

	policy := policyOr(w.OnImageNotFound, FailureStopExecution)
	if err := validatePolicy(policy); err != nil {
		return fmt.Errorf("action %s: %w", w.ID, err)
	}
	if p, ok := params.(*IfParams); ok && p.Condition != "" {
		if err := validateCondition(p.Condition); err != nil {
			return fmt.Errorf("action %s: %w", w.ID, err)
		}
	}

	a.ID = w.ID
	a.Enabled = boolOr(w.Enabled, true)
	a.Description = stringOr(w.Description, "")
	a.MatchThreshold = floatOr(w.MatchThreshold, DefaultMatchThreshold)
	a.TimeoutSeconds = floatOr(w.TimeoutSeconds, DefaultTimeoutSeconds)
	a.RetryCount = intOr(w.RetryCount, DefaultRetryCount)
	a.OnImageNotFound = policy
	a.Params = params

	return nil
}

func validatePolicy(p FailurePolicy) error {
	switch p {
	case FailureRestartSequence, FailureSkipToNext, FailureStopExecution:
		return nil
	}
	return fmt.Errorf("unknown failure policy %q", p)
}

func validateCondition(c ConditionType) error {
	switch c {
	case ConditionImageFound, ConditionImageNotFound, ConditionAlways:
		return nil
	}
	return fmt.Errorf("unknown condition type %q", c)
}

// Timestamp handling. New files are written with RFC 3339 stamps; files
// written by earlier releases carry naive ISO 8601 stamps without a zone.
const legacyTimeLayout = "2006-01-02T15:04:05.999999"

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, legacyTimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func policyPtr(v FailurePolicy) *FailurePolicy { return &v }

func conditionPtr(v ConditionType) *ConditionType { return &v }

func stringPtrOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func policyOr(p *FailurePolicy, def FailurePolicy) FailurePolicy {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

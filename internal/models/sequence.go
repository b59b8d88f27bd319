package models

import (
	"encoding/json"
	"time"
)

// MacroSequence is an ordered, loopable list of actions
type MacroSequence struct {
	Name        string
	Description string
	Actions     []*MacroAction
	LoopCount   int
	LoopDelay   float64
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// NewMacroSequence creates an empty sequence that runs once
func NewMacroSequence(name, description string) *MacroSequence {
	now := time.Now()
	return &MacroSequence{
		Name:        name,
		Description: description,
		Actions:     []*MacroAction{},
		LoopCount:   1,
		LoopDelay:   1.0,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
}

// LoopSpec is the resolved repeat policy for one run. Stored loop counts
// of zero or below mean "repeat until stopped"; the stored value itself
// is preserved on save.
type LoopSpec struct {
	Forever bool
	Count   int
}

// Loops resolves the sequence's stored loop count into an explicit spec
func (s *MacroSequence) Loops() LoopSpec {
	if s.LoopCount <= 0 {
		return LoopSpec{Forever: true}
	}
	return LoopSpec{Count: s.LoopCount}
}

// AddAction appends an action and bumps the modified timestamp
func (s *MacroSequence) AddAction(action *MacroAction) {
	s.Actions = append(s.Actions, action)
	s.ModifiedAt = time.Now()
}

// RemoveAction removes an action by ID. Returns false when no action
// has that ID.
func (s *MacroSequence) RemoveAction(actionID string) bool {
	for i, action := range s.Actions {
		if action.ID == actionID {
			s.Actions = append(s.Actions[:i], s.Actions[i+1:]...)
			s.ModifiedAt = time.Now()
			return true
		}
	}
	return false
}

// MoveAction moves an action to a new index, shifting the others.
// Returns false when the ID is unknown or the index is out of range.
func (s *MacroSequence) MoveAction(actionID string, newIndex int) bool {
	actionIndex := -1
	for i, action := range s.Actions {
		if action.ID == actionID {
			actionIndex = i
			break
		}
	}

	if actionIndex < 0 || newIndex < 0 || newIndex >= len(s.Actions) {
		return false
	}

	action := s.Actions[actionIndex]
	s.Actions = append(s.Actions[:actionIndex], s.Actions[actionIndex+1:]...)

	s.Actions = append(s.Actions, nil)
	copy(s.Actions[newIndex+1:], s.Actions[newIndex:])
	s.Actions[newIndex] = action

	s.ModifiedAt = time.Now()
	return true
}

// GetAction returns the action with the given ID, or nil
func (s *MacroSequence) GetAction(actionID string) *MacroAction {
	for _, action := range s.Actions {
		if action.ID == actionID {
			return action
		}
	}
	return nil
}

// SnapshotActions returns a copy of the action list. The run loop
// iterates the snapshot so concurrent edits cannot invalidate it.
func (s *MacroSequence) SnapshotActions() []*MacroAction {
	snapshot := make([]*MacroAction, len(s.Actions))
	copy(snapshot, s.Actions)
	return snapshot
}

type wireSequence struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Actions     []*MacroAction `json:"actions"`
	LoopCount   *int           `json:"loop_count"`
	LoopDelay   *float64       `json:"loop_delay"`
	CreatedAt   string         `json:"created_at"`
	ModifiedAt  string         `json:"modified_at"`
}

func (s *MacroSequence) MarshalJSON() ([]byte, error) {
	actions := s.Actions
	if actions == nil {
		actions = []*MacroAction{}
	}
	return json.Marshal(wireSequence{
		Name:        s.Name,
		Description: s.Description,
		Actions:     actions,
		LoopCount:   intPtr(s.LoopCount),
		LoopDelay:   floatPtr(s.LoopDelay),
		CreatedAt:   formatTimestamp(s.CreatedAt),
		ModifiedAt:  formatTimestamp(s.ModifiedAt),
	})
}

func (s *MacroSequence) UnmarshalJSON(data []byte) error {
	var w wireSequence
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	createdAt, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return err
	}
	modifiedAt, err := parseTimestamp(w.ModifiedAt)
	if err != nil {
		return err
	}

	s.Name = w.Name
	if s.Name == "" {
		s.Name = "Default Sequence"
	}
	s.Description = w.Description
	s.Actions = w.Actions
	if s.Actions == nil {
		s.Actions = []*MacroAction{}
	}
	s.LoopCount = intOr(w.LoopCount, 1)
	s.LoopDelay = floatOr(w.LoopDelay, 1.0)
	s.CreatedAt = createdAt
	s.ModifiedAt = modifiedAt

	return nil
}

package engine

// conditionRecord is one evaluated if or else outcome
type conditionRecord struct {
	actionID string
	isIf     bool
	result   bool
}

// conditionContext collects if/else outcomes for a single run. A fresh
// context is created per run so condition state never leaks between runs.
type conditionContext struct {
	records []conditionRecord
}

func newConditionContext() *conditionContext {
	return &conditionContext{}
}

// recordIf stores the outcome of an if action
func (c *conditionContext) recordIf(actionID string, result bool) {
	c.records = append(c.records, conditionRecord{actionID: actionID, isIf: true, result: result})
}

// recordElse stores the outcome of an else action
func (c *conditionContext) recordElse(actionID string, result bool) {
	c.records = append(c.records, conditionRecord{actionID: actionID, result: result})
}

// lastIf returns the outcome of the nearest preceding if action.
// ok is false when no if has been evaluated in this run.
func (c *conditionContext) lastIf() (result bool, ok bool) {
	for i := len(c.records) - 1; i >= 0; i-- {
		if c.records[i].isIf {
			return c.records[i].result, true
		}
	}
	return false, false
}

// resultFor returns the recorded outcome for an action id, for status
// inspection and tests
func (c *conditionContext) resultFor(actionID string) (result bool, ok bool) {
	for i := len(c.records) - 1; i >= 0; i-- {
		if c.records[i].actionID == actionID {
			return c.records[i].result, true
		}
	}
	return false, false
}

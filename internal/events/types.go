package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Engine lifecycle events
	EventTypeSequenceStarted   EventType = "sequence.started"
	EventTypeSequenceCompleted EventType = "sequence.completed"
	EventTypeSequenceRestarted EventType = "sequence.restarted"
	EventTypeStopRequested     EventType = "sequence.stop_requested"

	// Per-action events
	EventTypeActionExecuted EventType = "action.executed"
	EventTypeActionFailed   EventType = "action.failed"

	// Matching events
	EventTypeTemplateMatched  EventType = "template.matched"
	EventTypeTemplateNotFound EventType = "template.not_found"

	// Error events
	EventTypeError EventType = "error"
)

// EventTypeAll subscribes a handler to every published event
const EventTypeAll EventType = "*"

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted the event (e.g., "engine", "matcher")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type.
	// Use EventTypeAll to receive every event.
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish sends an event to all subscribers (blocking until queued)
	Publish(event Event)

	// PublishAsync sends an event asynchronously (non-blocking)
	PublishAsync(event Event)

	// Stop stops the event bus and drains remaining events
	Stop()
}

// Helper functions to create common events

// NewSequenceStartedEvent creates a sequence started event
func NewSequenceStartedEvent(sequenceName string, totalSteps, loopCount int) Event {
	return Event{
		Type:      EventTypeSequenceStarted,
		Source:    "engine",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"sequence_name": sequenceName,
			"total_steps":   totalSteps,
			"loop_count":    loopCount,
		},
	}
}

// NewSequenceCompletedEvent creates a sequence completed event
func NewSequenceCompletedEvent(sequenceName string, success bool, stepsExecuted, totalSteps int, executionTime float64) Event {
	return Event{
		Type:      EventTypeSequenceCompleted,
		Source:    "engine",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"sequence_name":  sequenceName,
			"success":        success,
			"steps_executed": stepsExecuted,
			"total_steps":    totalSteps,
			"execution_time": executionTime,
		},
	}
}

// NewSequenceRestartedEvent creates a sequence restarted event
func NewSequenceRestartedEvent(sequenceName, triggeredBy string) Event {
	return Event{
		Type:      EventTypeSequenceRestarted,
		Source:    "engine",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"sequence_name": sequenceName,
			"triggered_by":  triggeredBy,
		},
	}
}

// NewActionExecutedEvent creates a per-action event.
// Emitted just before the action handler runs, matching the signal
// ordering the UI layer expects.
func NewActionExecutedEvent(actionID, actionType, description string, index int) Event {
	return Event{
		Type:      EventTypeActionExecuted,
		Source:    "engine",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"action_id":   actionID,
			"action_type": actionType,
			"description": description,
			"index":       index,
		},
	}
}

// NewActionFailedEvent creates an action failed event
func NewActionFailedEvent(actionID, actionType, message string) Event {
	return Event{
		Type:      EventTypeActionFailed,
		Source:    "engine",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"action_id":   actionID,
			"action_type": actionType,
			"message":     message,
		},
	}
}

// NewTemplateMatchedEvent creates a template matched event
func NewTemplateMatchedEvent(templateName string, confidence float64, x, y int) Event {
	return Event{
		Type:      EventTypeTemplateMatched,
		Source:    "matcher",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"template_name": templateName,
			"confidence":    confidence,
			"x":             x,
			"y":             y,
		},
	}
}

// NewTemplateNotFoundEvent creates a template not found event
func NewTemplateNotFoundEvent(templateName string, confidence, threshold float64) Event {
	return Event{
		Type:      EventTypeTemplateNotFound,
		Source:    "matcher",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"template_name": templateName,
			"confidence":    confidence,
			"threshold":     threshold,
		},
	}
}

// NewErrorEvent creates an error event
func NewErrorEvent(source, component string, err error, metadata map[string]interface{}) Event {
	data := map[string]interface{}{
		"source":    source,
		"component": component,
		"error":     err.Error(),
	}

	for k, v := range metadata {
		data[k] = v
	}

	return Event{
		Type:      EventTypeError,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

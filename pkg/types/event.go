package types

import "time"

// ContainerEventType defines the type of event emitted by a container.
type ContainerEventType string

const (
	EventTypeStateChanged        ContainerEventType = "state_changed"        // EventTypeStateChanged indicates a lifecycle transition.
	EventTypeTriggerAccepted     ContainerEventType = "trigger_accepted"     // EventTypeTriggerAccepted indicates a trigger entered the queue.
	EventTypeTriggerDebounced    ContainerEventType = "trigger_debounced"    // EventTypeTriggerDebounced indicates a trigger was suppressed by the debounce window.
	EventTypeTriggerCoalesced    ContainerEventType = "trigger_coalesced"    // EventTypeTriggerCoalesced indicates a queued trigger was folded into a pass it did not start.
	EventTypeRefreshStarted      ContainerEventType = "refresh_started"      // EventTypeRefreshStarted indicates a synchronization pass began.
	EventTypeRefreshCompleted    ContainerEventType = "refresh_completed"    // EventTypeRefreshCompleted indicates a synchronization pass succeeded.
	EventTypeRefreshFailed       ContainerEventType = "refresh_failed"       // EventTypeRefreshFailed indicates a synchronization pass failed.
	EventTypeTaskCompleted       ContainerEventType = "task_completed"       // EventTypeTaskCompleted indicates the task-completion criterion was met.
	EventTypeOperationRegistered ContainerEventType = "operation_registered" // EventTypeOperationRegistered indicates a static or discovered operation was added.
	EventTypeOperationExecuted   ContainerEventType = "operation_executed"   // EventTypeOperationExecuted indicates an operation handler finished.
	EventTypeChildAdded          ContainerEventType = "child_added"          // EventTypeChildAdded indicates a child container was created.
	EventTypeChildFailed         ContainerEventType = "child_failed"         // EventTypeChildFailed indicates a child container could not be created or initialized.
	EventTypeDestroyed           ContainerEventType = "destroyed"            // EventTypeDestroyed indicates the container was cleaned up.
)

// ContainerEvent represents an event emitted by a container during its lifetime.
type ContainerEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// Error contains error information for failure events.
	Error error

	// Type indicates the kind of event.
	Type ContainerEventType

	// ContainerID is the id of the container that emitted the event.
	ContainerID string

	// ContainerName is the human-readable name of the emitting container.
	ContainerName string

	// Timestamp is when the event was created.
	Timestamp time.Time

	// FromState and ToState are set for state change events.
	FromState string
	ToState   string

	// TriggerKind and TriggerSource describe the trigger for trigger and refresh events.
	TriggerKind   string
	TriggerSource string

	// OperationID is set for operation events.
	OperationID string

	// ChildID is set for child events.
	ChildID string

	// Duration is how long a pass or operation took.
	Duration time.Duration
}

func newEvent(eventType ContainerEventType, containerID, name string) *ContainerEvent {
	return &ContainerEvent{
		Type:          eventType,
		ContainerID:   containerID,
		ContainerName: name,
		Timestamp:     time.Now(),
		Metadata:      make(map[string]interface{}),
	}
}

// NewStateChangedEvent creates a lifecycle transition event.
func NewStateChangedEvent(containerID, name, from, to string) *ContainerEvent {
	e := newEvent(EventTypeStateChanged, containerID, name)
	e.FromState = from
	e.ToState = to
	return e
}

// NewTriggerAcceptedEvent creates a trigger accepted event.
func NewTriggerAcceptedEvent(containerID, name, kind, source string) *ContainerEvent {
	e := newEvent(EventTypeTriggerAccepted, containerID, name)
	e.TriggerKind = kind
	e.TriggerSource = source
	return e
}

// NewTriggerDebouncedEvent creates a trigger debounced event.
func NewTriggerDebouncedEvent(containerID, name, kind, source string) *ContainerEvent {
	e := newEvent(EventTypeTriggerDebounced, containerID, name)
	e.TriggerKind = kind
	e.TriggerSource = source
	return e
}

// NewTriggerCoalescedEvent creates a trigger coalesced event.
func NewTriggerCoalescedEvent(containerID, name, kind, source string) *ContainerEvent {
	e := newEvent(EventTypeTriggerCoalesced, containerID, name)
	e.TriggerKind = kind
	e.TriggerSource = source
	return e
}

// NewRefreshStartedEvent creates a refresh started event.
func NewRefreshStartedEvent(containerID, name, kind, source string) *ContainerEvent {
	e := newEvent(EventTypeRefreshStarted, containerID, name)
	e.TriggerKind = kind
	e.TriggerSource = source
	return e
}

// NewRefreshCompletedEvent creates a refresh completed event.
func NewRefreshCompletedEvent(containerID, name, kind, source string, duration time.Duration) *ContainerEvent {
	e := newEvent(EventTypeRefreshCompleted, containerID, name)
	e.TriggerKind = kind
	e.TriggerSource = source
	e.Duration = duration
	return e
}

// NewRefreshFailedEvent creates a refresh failed event.
func NewRefreshFailedEvent(containerID, name, kind, source string, duration time.Duration, err error) *ContainerEvent {
	e := newEvent(EventTypeRefreshFailed, containerID, name)
	e.TriggerKind = kind
	e.TriggerSource = source
	e.Duration = duration
	e.Error = err
	return e
}

// NewTaskCompletedEvent creates a task completed event.
func NewTaskCompletedEvent(containerID, name string) *ContainerEvent {
	return newEvent(EventTypeTaskCompleted, containerID, name)
}

// NewOperationRegisteredEvent creates an operation registered event.
func NewOperationRegisteredEvent(containerID, name, operationID string, discovered bool) *ContainerEvent {
	e := newEvent(EventTypeOperationRegistered, containerID, name)
	e.OperationID = operationID
	e.Metadata["discovered"] = discovered
	return e
}

// NewOperationExecutedEvent creates an operation executed event.
// err is nil when the handler succeeded.
func NewOperationExecutedEvent(containerID, name, operationID string, duration time.Duration, err error) *ContainerEvent {
	e := newEvent(EventTypeOperationExecuted, containerID, name)
	e.OperationID = operationID
	e.Duration = duration
	e.Error = err
	return e
}

// NewChildAddedEvent creates a child added event.
func NewChildAddedEvent(containerID, name, childID, childType string) *ContainerEvent {
	e := newEvent(EventTypeChildAdded, containerID, name)
	e.ChildID = childID
	e.Metadata["type"] = childType
	return e
}

// NewChildFailedEvent creates a child failed event.
func NewChildFailedEvent(containerID, name, childID string, err error) *ContainerEvent {
	e := newEvent(EventTypeChildFailed, containerID, name)
	e.ChildID = childID
	e.Error = err
	return e
}

// NewDestroyedEvent creates a destroyed event.
func NewDestroyedEvent(containerID, name string) *ContainerEvent {
	return newEvent(EventTypeDestroyed, containerID, name)
}

// IsFailure reports whether the event describes a failure.
func (e *ContainerEvent) IsFailure() bool {
	switch e.Type {
	case EventTypeRefreshFailed, EventTypeChildFailed:
		return true
	case EventTypeOperationExecuted:
		return e.Error != nil
	default:
		return false
	}
}

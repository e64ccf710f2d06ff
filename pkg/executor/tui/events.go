package tui

import (
	"fmt"
	"time"

	"github.com/entrhq/harvest/pkg/types"
)

// eventMsg carries a container event into the program.
type eventMsg struct {
	event *types.ContainerEvent
}

// initDoneMsg is sent when root initialization returns.
type initDoneMsg struct {
	err error
}

// refreshDoneMsg is sent when a manual refresh returns.
type refreshDoneMsg struct {
	id  string
	err error
}

// tickMsg redraws counters that change without an event.
type tickMsg time.Time

// formatEvent renders one event as a log line, or "" for events that are
// too noisy to show.
func formatEvent(e *types.ContainerEvent) string {
	ts := e.Timestamp.Format("15:04:05")
	who := e.ContainerName

	var text string
	switch e.Type {
	case types.EventTypeStateChanged:
		text = fmt.Sprintf("%s → %s", e.FromState, e.ToState)
	case types.EventTypeRefreshCompleted:
		text = fmt.Sprintf("%s pass in %s", e.TriggerKind, e.Duration.Round(time.Millisecond))
	case types.EventTypeRefreshFailed:
		text = fmt.Sprintf("%s pass failed: %v", e.TriggerKind, e.Error)
	case types.EventTypeTaskCompleted:
		text = "task completed"
	case types.EventTypeOperationRegistered:
		text = fmt.Sprintf("operation %s registered", e.OperationID)
	case types.EventTypeOperationExecuted:
		if e.Error != nil {
			text = fmt.Sprintf("operation %s failed: %v", e.OperationID, e.Error)
		} else {
			text = fmt.Sprintf("operation %s executed", e.OperationID)
		}
	case types.EventTypeChildAdded:
		text = fmt.Sprintf("child %s added", e.ChildID)
	case types.EventTypeChildFailed:
		text = fmt.Sprintf("child %s failed: %v", e.ChildID, e.Error)
	case types.EventTypeTriggerDebounced:
		text = fmt.Sprintf("%s trigger debounced", e.TriggerKind)
	default:
		return ""
	}

	line := fmt.Sprintf("%s %s: %s", ts, who, text)
	if e.Error != nil {
		return errorStyle.Render(line)
	}
	return eventStyle.Render(line)
}

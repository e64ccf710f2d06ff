package types

import (
	"errors"
	"testing"
	"time"
)

func TestContainerEventType(t *testing.T) {
	tests := []struct {
		eventType ContainerEventType
		expected  string
	}{
		{EventTypeStateChanged, "state_changed"},
		{EventTypeTriggerAccepted, "trigger_accepted"},
		{EventTypeTriggerDebounced, "trigger_debounced"},
		{EventTypeTriggerCoalesced, "trigger_coalesced"},
		{EventTypeRefreshStarted, "refresh_started"},
		{EventTypeRefreshCompleted, "refresh_completed"},
		{EventTypeRefreshFailed, "refresh_failed"},
		{EventTypeTaskCompleted, "task_completed"},
		{EventTypeOperationRegistered, "operation_registered"},
		{EventTypeOperationExecuted, "operation_executed"},
		{EventTypeChildAdded, "child_added"},
		{EventTypeChildFailed, "child_failed"},
		{EventTypeDestroyed, "destroyed"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.eventType)
			}
		})
	}
}

func TestNewStateChangedEvent(t *testing.T) {
	event := NewStateChangedEvent("feed-1", "feed", "initializing", "running")

	if event.Type != EventTypeStateChanged {
		t.Errorf("expected type %q, got %q", EventTypeStateChanged, event.Type)
	}
	if event.ContainerID != "feed-1" || event.ContainerName != "feed" {
		t.Errorf("unexpected identity: %q / %q", event.ContainerID, event.ContainerName)
	}
	if event.FromState != "initializing" || event.ToState != "running" {
		t.Errorf("unexpected transition %q -> %q", event.FromState, event.ToState)
	}
	if event.Metadata == nil {
		t.Error("expected metadata to be initialized")
	}
	if event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestNewRefreshFailedEvent(t *testing.T) {
	err := errors.New("locator not found")
	event := NewRefreshFailedEvent("feed-1", "feed", "timer", "", 15*time.Millisecond, err)

	if event.Error != err {
		t.Errorf("expected error %v, got %v", err, event.Error)
	}
	if event.TriggerKind != "timer" {
		t.Errorf("expected trigger kind timer, got %q", event.TriggerKind)
	}
	if event.Duration != 15*time.Millisecond {
		t.Errorf("unexpected duration %v", event.Duration)
	}
	if !event.IsFailure() {
		t.Error("refresh failed event should be a failure")
	}
}

func TestNewOperationRegisteredEvent(t *testing.T) {
	event := NewOperationRegisteredEvent("feed-1", "feed", "load_more", true)

	if event.OperationID != "load_more" {
		t.Errorf("expected operation id load_more, got %q", event.OperationID)
	}
	if discovered, ok := event.Metadata["discovered"].(bool); !ok || !discovered {
		t.Errorf("expected discovered metadata, got %v", event.Metadata["discovered"])
	}
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name  string
		event *ContainerEvent
		want  bool
	}{
		{"refresh completed", NewRefreshCompletedEvent("c", "c", "manual", "", 0), false},
		{"child failed", NewChildFailedEvent("c", "c", "child", errors.New("boom")), true},
		{"operation ok", NewOperationExecutedEvent("c", "c", "scroll", 0, nil), false},
		{"operation failed", NewOperationExecutedEvent("c", "c", "scroll", 0, errors.New("boom")), true},
		{"destroyed", NewDestroyedEvent("c", "c"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.IsFailure(); got != tt.want {
				t.Errorf("IsFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}

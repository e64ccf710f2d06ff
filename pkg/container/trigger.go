package container

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind names the reason a synchronization pass was requested.
type TriggerKind string

const (
	// TriggerManual is an explicit Refresh call from a consumer.
	TriggerManual TriggerKind = "manual"

	// TriggerInitialization is the forced pass performed by Initialize.
	TriggerInitialization TriggerKind = "initialization"

	// TriggerOperation follows every executed operation.
	TriggerOperation TriggerKind = "operation"

	// TriggerMutation comes from the content observer.
	TriggerMutation TriggerKind = "mutation"

	// TriggerTimer comes from the periodic refresh timer.
	TriggerTimer TriggerKind = "timer"
)

// Priority returns the scheduling priority of the kind. Lower is more urgent.
func (k TriggerKind) Priority() int {
	switch k {
	case TriggerManual:
		return 1
	case TriggerInitialization:
		return 2
	case TriggerOperation:
		return 3
	case TriggerMutation:
		return 4
	case TriggerTimer:
		return 5
	default:
		return 6
	}
}

// Valid reports whether k is one of the known kinds.
func (k TriggerKind) Valid() bool {
	return k.Priority() <= TriggerTimer.Priority()
}

// Trigger is an immutable record describing why a pass should occur.
type Trigger struct {
	// ID uniquely identifies the trigger
	ID string

	// Kind is the origin of the trigger
	Kind TriggerKind

	// CreatedAt is when the originating event happened
	CreatedAt time.Time

	// Source is an optional label, e.g. the operation id or "observer"
	Source string

	// Payload is opaque data carried along to the refresher
	Payload interface{}

	// seq is assigned by the queue on arrival and identifies waiting callers
	seq uint64
}

// NewTrigger creates a trigger stamped with the current time.
func NewTrigger(kind TriggerKind, source string, payload interface{}) Trigger {
	return Trigger{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

// Priority is derived from the trigger kind.
func (t Trigger) Priority() int {
	return t.Kind.Priority()
}

// OperationPayload is attached to operation triggers.
type OperationPayload struct {
	Result OperationResult
	Params map[string]interface{}
}

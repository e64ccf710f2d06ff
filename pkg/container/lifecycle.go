package container

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/entrhq/harvest/pkg/logging"
)

// LifecycleState is the state of a container.
type LifecycleState string

const (
	StateInitializing LifecycleState = "initializing"
	StateRunning      LifecycleState = "running"
	StateCompleted    LifecycleState = "completed"
	StateFailed       LifecycleState = "failed"
	StateDestroyed    LifecycleState = "destroyed"
)

// Terminal reports whether no further automatic work happens in s.
func (s LifecycleState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateDestroyed
}

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventFail     = "fail"
	eventDestroy  = "destroy"
)

// lifecycle wraps the state machine. States only move forward; destroy is
// reachable from every state except destroyed itself.
type lifecycle struct {
	fsm    *fsm.FSM
	logger *logging.Logger
	id     string
}

func newLifecycle(id string, logger *logging.Logger) *lifecycle {
	l := &lifecycle{logger: logger, id: id}

	l.fsm = fsm.NewFSM(
		string(StateInitializing),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateInitializing)}, Dst: string(StateRunning)},
			{Name: eventComplete, Src: []string{string(StateInitializing), string(StateRunning)}, Dst: string(StateCompleted)},
			{Name: eventFail, Src: []string{string(StateInitializing), string(StateRunning)}, Dst: string(StateFailed)},
			{Name: eventDestroy, Src: []string{
				string(StateInitializing),
				string(StateRunning),
				string(StateCompleted),
				string(StateFailed),
			}, Dst: string(StateDestroyed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.logger.Debugf("Container %s: %s -> %s (%s)", l.id, e.Src, e.Dst, e.Event)
			},
		},
	)
	return l
}

// State returns the current state.
func (l *lifecycle) State() LifecycleState {
	return LifecycleState(l.fsm.Current())
}

// fire runs an event and returns the state before and after it.
// Refused transitions are reported as LifecycleViolation.
func (l *lifecycle) fire(ctx context.Context, event string) (LifecycleState, LifecycleState, error) {
	from := l.State()
	if err := l.fsm.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return from, from, nil
		}
		return from, from, &LifecycleViolation{ContainerID: l.id, State: from, Op: event}
	}
	return from, l.State(), nil
}

// can reports whether event is allowed in the current state.
func (l *lifecycle) can(event string) bool {
	return l.fsm.Can(event)
}

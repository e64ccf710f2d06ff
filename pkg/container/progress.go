package container

import (
	"sync"
	"time"
)

// TaskKind selects how task completion is evaluated.
type TaskKind string

const (
	TaskCount     TaskKind = "count"
	TaskCondition TaskKind = "condition"
	TaskTimeout   TaskKind = "timeout"
)

// TaskCriterion configures when a container's work is done.
type TaskCriterion struct {
	Kind TaskKind `yaml:"kind" json:"kind"`

	// TargetCount is used by TaskCount.
	TargetCount int `yaml:"target_count" json:"target_count"`

	// Accumulate adds the per-pass count instead of replacing it.
	Accumulate bool `yaml:"accumulate" json:"accumulate"`

	// Timeout is used by TaskTimeout, measured from task start.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Count extracts the count from a pass result. Defaults to Result.Count.
	Count func(*Result) int `yaml:"-" json:"-"`

	// Condition is required by TaskCondition.
	Condition func(*Result) bool `yaml:"-" json:"-"`
}

// Validate reports an invalid criterion as a ConfigurationError.
func (c *TaskCriterion) Validate() error {
	switch c.Kind {
	case TaskCount:
		if c.TargetCount <= 0 {
			return configErrorf("task.target_count", "must be positive, got %d", c.TargetCount)
		}
	case TaskCondition:
		if c.Condition == nil {
			return configErrorf("task.condition", "condition criterion requires a predicate")
		}
	case TaskTimeout:
		if c.Timeout <= 0 {
			return configErrorf("task.timeout", "must be positive, got %v", c.Timeout)
		}
	default:
		return configErrorf("task.kind", "unknown kind %q", c.Kind)
	}
	return nil
}

// TaskProgress is a snapshot of the tracker.
type TaskProgress struct {
	Kind         TaskKind
	TargetCount  int
	CurrentCount int
	StartedAt    time.Time
	CompletedAt  time.Time
	IsCompleted  bool
	Checks       int
}

// TaskProgressTracker evaluates the completion criterion after each
// successful pass. Once completed it never changes again.
type TaskProgressTracker struct {
	mu        sync.Mutex
	criterion *TaskCriterion
	progress  TaskProgress
	now       func() time.Time
}

// NewTaskProgressTracker validates the criterion and creates a tracker.
// A nil criterion yields a tracker that never completes.
func NewTaskProgressTracker(criterion *TaskCriterion, now func() time.Time) (*TaskProgressTracker, error) {
	if now == nil {
		now = time.Now
	}
	t := &TaskProgressTracker{criterion: criterion, now: now}
	if criterion == nil {
		return t, nil
	}
	if err := criterion.Validate(); err != nil {
		return nil, err
	}
	t.progress = TaskProgress{
		Kind:        criterion.Kind,
		TargetCount: criterion.TargetCount,
		StartedAt:   now(),
	}
	return t, nil
}

// Start resets the task start time. Called when the container initializes.
func (t *TaskProgressTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.criterion == nil || t.progress.IsCompleted {
		return
	}
	t.progress.StartedAt = t.now()
}

// Check evaluates the criterion against a successful pass result and
// reports whether the task is completed. It is a no-op once completed.
func (t *TaskProgressTracker) Check(result *Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.criterion == nil {
		return false
	}
	if t.progress.IsCompleted {
		return true
	}

	t.progress.Checks++
	done := false

	switch t.criterion.Kind {
	case TaskCount:
		n := 0
		if result != nil {
			if t.criterion.Count != nil {
				n = t.criterion.Count(result)
			} else {
				n = result.Count
			}
		}
		if t.criterion.Accumulate {
			t.progress.CurrentCount += n
		} else {
			t.progress.CurrentCount = n
		}
		done = t.progress.CurrentCount >= t.criterion.TargetCount

	case TaskCondition:
		done = result != nil && t.criterion.Condition(result)

	case TaskTimeout:
		done = t.now().Sub(t.progress.StartedAt) >= t.criterion.Timeout
	}

	if done {
		t.progress.IsCompleted = true
		t.progress.CompletedAt = t.now()
	}
	return done
}

// Completed reports whether the criterion has been met.
func (t *TaskProgressTracker) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.IsCompleted
}

// Configured reports whether a criterion was given.
func (t *TaskProgressTracker) Configured() bool {
	return t.criterion != nil
}

// Snapshot returns a copy of the current progress.
func (t *TaskProgressTracker) Snapshot() TaskProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

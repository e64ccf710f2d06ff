package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/types"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusTimeout = "timeout"
	statusStopped = "stopped"
)

// ErrTimeout is returned by Run when the task did not complete in time.
var ErrTimeout = errors.New("task did not complete before the timeout")

// Executor drives a container tree to task completion without a UI and
// reports what it collected.
type Executor struct {
	root           *container.Container
	driver         container.Driver
	config         *Config
	logger         *Logger
	artifactWriter *ArtifactWriter

	mu           sync.Mutex
	events       map[string]int
	watched      map[string]bool
	failedChilds map[string]bool
	wake         chan struct{}

	summary *ExecutionSummary
}

// NewExecutor creates a headless executor for an uninitialized root container
func NewExecutor(root *container.Container, driver container.Driver, config *Config) (*Executor, error) {
	if root == nil {
		return nil, fmt.Errorf("root container is required")
	}
	if driver == nil {
		return nil, fmt.Errorf("driver is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	job := config.Job
	if job == "" {
		job = root.Name()
	}

	return &Executor{
		root:           root,
		driver:         driver,
		config:         config,
		logger:         NewLogger(parseLogLevel(config.Logging.Verbosity)),
		artifactWriter: NewArtifactWriter(config.Artifacts),
		events:         make(map[string]int),
		watched:        make(map[string]bool),
		failedChilds:   make(map[string]bool),
		wake:           make(chan struct{}, 1),
		summary: &ExecutionSummary{
			Job:    job,
			Status: "running",
		},
	}, nil
}

// SetLogger replaces the console logger.
func (e *Executor) SetLogger(logger *Logger) {
	e.logger = logger
}

// Run initializes the tree and blocks until the task completes, the root
// fails, the timeout expires or ctx is canceled. The tree is cleaned up
// before Run returns. The summary is returned even when err is non-nil.
func (e *Executor) Run(ctx context.Context) (*ExecutionSummary, error) {
	e.summary.StartTime = time.Now()
	e.logger.Header(fmt.Sprintf("Harvesting %s", e.summary.Job))

	e.watch(e.root)

	runCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	e.logger.Step(fmt.Sprintf("Initializing %s (%s)", e.root.Name(), e.root.Config().Locator))
	runErr := timedOut(runCtx, e.root.Initialize(runCtx, e.driver))
	if runErr == nil {
		e.logger.Step("Waiting for task completion")
		runErr = e.wait(runCtx)
	}

	// Without a completion criterion the timeout is the observation window.
	if _, configured := e.root.TaskProgress(); !configured && errors.Is(runErr, ErrTimeout) {
		e.logger.Infof("Observation window of %s elapsed", e.config.Timeout)
		runErr = nil
	}

	e.summary.Root = BuildReport(e.root)
	e.root.Cleanup()

	return e.finish(runErr)
}

// wait blocks until done reports true or runCtx ends.
func (e *Executor) wait(runCtx context.Context) error {
	for {
		if finished, err := e.done(); finished {
			return err
		}
		select {
		case <-e.wake:
		case <-runCtx.Done():
			return timedOut(runCtx, runCtx.Err())
		}
	}
}

// timedOut reports err as ErrTimeout when it was caused by the run deadline.
func timedOut(runCtx context.Context, err error) error {
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// done reports whether the run is over and, if it ended badly, why.
func (e *Executor) done() (bool, error) {
	switch e.root.Lifecycle() {
	case container.StateFailed:
		stats := e.root.GetRefreshStats()
		return true, fmt.Errorf("root container failed: %s", stats.LastError)
	case container.StateDestroyed:
		return true, container.ErrDestroyed
	case container.StateCompleted:
		if !e.config.WaitForChildren {
			return true, nil
		}
		return e.childrenSettled(e.root), nil
	}
	return false, nil
}

func (e *Executor) childrenSettled(c *container.Container) bool {
	for _, child := range c.Children() {
		e.mu.Lock()
		failed := e.failedChilds[child.ID()]
		e.mu.Unlock()
		if !failed && !child.Lifecycle().Terminal() {
			return false
		}
		if !e.childrenSettled(child) {
			return false
		}
	}
	return true
}

// watch subscribes to c and, through child_added events, to every
// container that joins the tree later.
func (e *Executor) watch(c *container.Container) {
	e.mu.Lock()
	if e.watched[c.ID()] {
		e.mu.Unlock()
		return
	}
	e.watched[c.ID()] = true
	e.mu.Unlock()

	c.Subscribe(func(event *types.ContainerEvent) {
		e.record(c, event)
	})
}

func (e *Executor) record(c *container.Container, event *types.ContainerEvent) {
	e.mu.Lock()
	e.events[string(event.Type)]++
	if event.Type == types.EventTypeChildFailed {
		e.failedChilds[event.ChildID] = true
	}
	e.mu.Unlock()

	switch event.Type {
	case types.EventTypeStateChanged:
		e.logger.Infof("%s: %s -> %s", event.ContainerName, event.FromState, event.ToState)
	case types.EventTypeRefreshCompleted:
		e.logger.Verbosef("%s: %s pass in %s", event.ContainerName, event.TriggerKind, event.Duration.Round(time.Millisecond))
	case types.EventTypeRefreshFailed:
		e.logger.Warningf("%s: %s pass failed: %v", event.ContainerName, event.TriggerKind, event.Error)
	case types.EventTypeTriggerDebounced, types.EventTypeTriggerCoalesced:
		e.logger.Debugf("%s: %s trigger %s", event.ContainerName, event.TriggerKind, event.Type)
	case types.EventTypeTaskCompleted:
		e.logger.Successf("%s: task completed", event.ContainerName)
	case types.EventTypeOperationExecuted:
		if event.Error != nil {
			e.logger.Warningf("%s: operation %s failed: %v", event.ContainerName, event.OperationID, event.Error)
		} else {
			e.logger.Verbosef("%s: operation %s executed", event.ContainerName, event.OperationID)
		}
	case types.EventTypeChildAdded:
		e.logger.Verbosef("%s: child %s added", event.ContainerName, event.ChildID)
		if child, ok := c.Find(event.ChildID); ok {
			e.watch(child)
		}
	case types.EventTypeChildFailed:
		e.logger.Warningf("%s: child %s failed: %v", event.ContainerName, event.ChildID, event.Error)
	}

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) finish(runErr error) (*ExecutionSummary, error) {
	e.summary.EndTime = time.Now()
	e.summary.Duration = e.summary.EndTime.Sub(e.summary.StartTime)

	e.mu.Lock()
	events := make(map[string]int, len(e.events))
	for k, v := range e.events {
		events[k] = v
	}
	e.mu.Unlock()
	e.summary.Events = events
	e.summary.Metrics = computeMetrics(e.summary.Root, events)

	switch {
	case runErr == nil:
		e.summary.Status = statusSuccess
	case errors.Is(runErr, ErrTimeout):
		e.summary.Status = statusTimeout
	case errors.Is(runErr, context.Canceled):
		e.summary.Status = statusStopped
	default:
		e.summary.Status = statusFailed
	}
	if runErr != nil {
		e.summary.Error = runErr.Error()
	}

	if e.config.Artifacts.Enabled {
		e.logger.Section("Artifacts")
		if err := e.artifactWriter.WriteAll(e.summary); err != nil {
			e.logger.Warningf("failed to write artifacts: %v", err)
		} else {
			e.logger.Infof("Written to %s", e.config.Artifacts.OutputDir)
		}
	}

	e.logger.Summary(e.summary)
	return e.summary, runErr
}

// Summary returns the summary of the last run
func (e *Executor) Summary() *ExecutionSummary {
	return e.summary
}

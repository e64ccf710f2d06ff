package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/harvest/pkg/logging"
	"github.com/entrhq/harvest/pkg/types"
)

// Result is the structured outcome of one synchronization pass.
type Result struct {
	Trigger Trigger
	State   ContentState

	// Count is the count the task tracker reads by default
	Count int

	// Changed reports whether the refresher saw different content
	Changed bool

	Items []string
	Data  map[string]interface{}

	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the pass succeeded.
func (r *Result) Success() bool {
	return r != nil && r.Err == nil
}

// Duration returns how long the pass took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Pass is what a refresher gets to work with.
type Pass struct {
	Trigger       Trigger
	State         ContentState
	PreviousState ContentState

	// Coalesced are the triggers dropped in favour of Trigger
	Coalesced []Trigger
}

// Refresher performs the domain-specific part of a pass. It is the only
// place that knows what the content looks like.
type Refresher interface {
	Refresh(ctx context.Context, c *Container, pass Pass) (*Result, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, c *Container, pass Pass) (*Result, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, c *Container, pass Pass) (*Result, error) {
	return f(ctx, c, pass)
}

// Initializer is an optional Refresher extension. Setup runs once the
// driver is bound and before the initialization pass, typically to
// register static operations.
type Initializer interface {
	Setup(ctx context.Context, c *Container) error
}

// ChildFactory builds an uninitialized child container for a discovered region.
type ChildFactory func(ctx context.Context, parent *Container, region ChildRegion) (*Container, error)

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger. Containers log nothing by default.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Container) {
		if now != nil {
			c.now = now
		}
	}
}

// WithChildFactory registers a factory for child regions whose type tag
// matches pattern (glob syntax, e.g. "comment*").
func WithChildFactory(pattern string, factory ChildFactory) Option {
	return func(c *Container) {
		c.factoryErr = errors.Join(c.factoryErr, c.children.addFactory(pattern, factory))
	}
}

// State is a point-in-time view of a container.
type State struct {
	ID          string
	Name        string
	Locator     string
	ParentID    string
	Lifecycle   LifecycleState
	Exists      bool
	Visible     bool
	Fingerprint string
	ChildCount  int
	Children    []string
	Operations  []string
	Task        *TaskProgress
}

// RefreshStats are the scheduling counters of a container.
type RefreshStats struct {
	RefreshCount        int
	FailedCount         int
	ConsecutiveFailures int
	DebouncedCount      uint64
	CoalescedCount      int
	LastRefreshAt       time.Time
	LastSuccessAt       time.Time
	LastDuration        time.Duration
	LastError           string
	InFlight            bool
	QueueLength         int
	History             []HistoryEntry
}

// Container keeps a view of one live content region synchronized. Every
// trigger source funnels into a single-flight scheduler; each pass runs the
// Refresher, feeds the task tracker and discovers child regions.
type Container struct {
	cfg       Config
	refresher Refresher
	logger    *logging.Logger
	now       func() time.Time

	lifecycle *lifecycle
	sched     *scheduler
	ops       *OperationRegistry
	tracker   *TaskProgressTracker
	history   *triggerHistory
	bus       *eventBus
	children  *childSet

	parent     *Container
	factoryErr error

	mu          sync.RWMutex
	driver      Driver
	initialized bool
	content     ContentState
	lastResult  *Result
	stats       RefreshStats
	stopTimer   chan struct{}
	observer    Subscription
	autoStopped bool

	stopAutoOnce sync.Once
	cleanupOnce  sync.Once
}

// New creates a container in the initializing state. Nothing runs until
// Initialize is called.
func New(cfg Config, refresher Refresher, opts ...Option) (*Container, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if refresher == nil {
		return nil, configErrorf("refresher", "must not be nil")
	}

	c := &Container{
		cfg:       cfg,
		refresher: refresher,
		logger:    logging.Nop(),
		now:       time.Now,
		ops:       NewOperationRegistry(),
		history:   newTriggerHistory(cfg.HistorySize),
		children:  newChildSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.factoryErr != nil {
		return nil, c.factoryErr
	}

	tracker, err := NewTaskProgressTracker(cfg.Task, c.now)
	if err != nil {
		return nil, err
	}
	c.tracker = tracker

	c.bus = newEventBus(c.logger)
	c.lifecycle = newLifecycle(cfg.ID, c.logger)

	c.sched = newScheduler(cfg.Debounce, c.now, c.runPass)
	c.sched.onAccepted = func(t Trigger) {
		c.emit(types.NewTriggerAcceptedEvent(c.cfg.ID, c.cfg.Name, string(t.Kind), t.Source))
	}
	c.sched.onDebounced = func(t Trigger) {
		c.logger.Debugf("Container %s: debounced %s trigger from %q", c.cfg.ID, t.Kind, t.Source)
		c.emit(types.NewTriggerDebouncedEvent(c.cfg.ID, c.cfg.Name, string(t.Kind), t.Source))
	}
	c.sched.onPanic = func(t Trigger, err error) {
		c.logger.Errorf("Container %s: %v", c.cfg.ID, err)
		c.recordFailure(t, c.now(), c.now(), err)
	}

	c.ops.onRegistered = func(op RegisteredOperation) {
		c.emit(types.NewOperationRegisteredEvent(c.cfg.ID, c.cfg.Name, op.ID, op.Discovered))
	}
	c.ops.afterExecute = c.afterOperation

	return c, nil
}

// ID returns the container id.
func (c *Container) ID() string { return c.cfg.ID }

// Name returns the container name.
func (c *Container) Name() string { return c.cfg.Name }

// Config returns the effective configuration.
func (c *Container) Config() Config { return c.cfg }

// Refresher returns the refresher the container was created with.
func (c *Container) Refresher() Refresher { return c.refresher }

// Logger returns the container logger.
func (c *Container) Logger() *logging.Logger { return c.logger }

// Parent returns the parent container, or nil for a root.
func (c *Container) Parent() *Container { return c.parent }

// Driver returns the bound driver, or nil before Initialize.
func (c *Container) Driver() Driver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.driver
}

// Lifecycle returns the current lifecycle state.
func (c *Container) Lifecycle() LifecycleState {
	return c.lifecycle.State()
}

// Subscribe registers an event handler and returns a function that removes it.
func (c *Container) Subscribe(fn EventHandler) func() {
	return c.bus.subscribe(fn)
}

func (c *Container) emit(event *types.ContainerEvent) {
	c.bus.emit(event)
}

// Initialize binds the driver, runs the initialization pass, starts the
// periodic timer and the mutation observer, moves to running and
// discovers children. A container whose task completes during the
// initialization pass never starts its timer or observer.
func (c *Container) Initialize(ctx context.Context, driver Driver) error {
	if driver == nil {
		return configErrorf("driver", "must not be nil")
	}

	c.mu.Lock()
	state := c.lifecycle.State()
	if c.initialized || state != StateInitializing {
		c.mu.Unlock()
		return &LifecycleViolation{ContainerID: c.cfg.ID, State: state, Op: "initialize"}
	}
	c.initialized = true
	c.driver = driver
	c.mu.Unlock()

	c.logger.Infof("Initializing container %s (%s)", c.cfg.ID, c.cfg.Locator)

	if init, ok := c.refresher.(Initializer); ok {
		if err := init.Setup(ctx, c); err != nil {
			c.transition(ctx, eventFail)
			return fmt.Errorf("container %s setup: %w", c.cfg.ID, err)
		}
	}
	c.tracker.Start()

	if err := c.RequestRefresh(ctx, TriggerInitialization, "", nil); err != nil {
		return err
	}

	switch c.lifecycle.State() {
	case StateDestroyed:
		return &LifecycleViolation{ContainerID: c.cfg.ID, State: StateDestroyed, Op: "initialize"}
	case StateFailed:
		c.stopAutomatic()
		return fmt.Errorf("container %s initialization pass: %w", c.cfg.ID, c.lastError())
	case StateCompleted:
		return nil
	}

	c.startAutomatic(ctx)
	c.transition(ctx, eventStart)

	if c.lifecycle.State() != StateRunning {
		return nil
	}
	c.discoverChildren(ctx)
	if c.cfg.DiscoverAffordances {
		c.discoverOperations(ctx)
	}
	c.autoExecute(ctx)
	return nil
}

func (c *Container) startAutomatic(ctx context.Context) {
	c.mu.Lock()
	driver := c.driver
	if c.autoStopped {
		c.mu.Unlock()
		return
	}
	if c.cfg.EnableAutoRefresh {
		c.stopTimer = make(chan struct{})
		go c.runTimer(context.WithoutCancel(ctx), c.stopTimer)
	}
	c.mu.Unlock()

	if !c.cfg.EnableMutationObserver {
		return
	}

	bg := context.WithoutCancel(ctx)
	sub, err := driver.ObserveMutations(bg, c.cfg.Locator, func() {
		if _, err := c.sched.submit(bg, NewTrigger(TriggerMutation, "observer", nil), false); err != nil && !errors.Is(err, ErrDestroyed) {
			c.logger.Warnf("Container %s: mutation trigger: %v", c.cfg.ID, err)
		}
	})
	if err != nil {
		c.logger.Warnf("Container %s: mutation observer unavailable: %v", c.cfg.ID, NewDriverError("observe", c.cfg.Locator, err))
		return
	}

	c.mu.Lock()
	if c.autoStopped {
		c.mu.Unlock()
		_ = sub.Close()
		return
	}
	c.observer = sub
	c.mu.Unlock()
}

func (c *Container) runTimer(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := c.sched.submit(ctx, NewTrigger(TriggerTimer, "timer", nil), true); err != nil {
				if errors.Is(err, ErrDestroyed) {
					return
				}
				c.logger.Warnf("Container %s: timer trigger: %v", c.cfg.ID, err)
			}
		}
	}
}

// stopAutomatic stops the timer and closes the mutation subscription.
// The timer goroutine is not waited for, since it may itself be waiting
// on a pass that called this.
func (c *Container) stopAutomatic() {
	c.stopAutoOnce.Do(func() {
		c.mu.Lock()
		c.autoStopped = true
		stop := c.stopTimer
		sub := c.observer
		c.observer = nil
		c.mu.Unlock()

		if stop != nil {
			close(stop)
		}
		if sub != nil {
			if err := sub.Close(); err != nil {
				c.logger.Warnf("Container %s: closing mutation observer: %v", c.cfg.ID, err)
			}
		}
	})
}

// RequestRefresh submits a trigger and waits until the scheduler has
// serviced it or ctx is done. Debounced triggers return nil immediately.
// Called from inside a pass it never waits.
func (c *Container) RequestRefresh(ctx context.Context, kind TriggerKind, source string, payload interface{}) error {
	if !kind.Valid() {
		return configErrorf("trigger.kind", "unknown kind %q", kind)
	}
	if c.lifecycle.State() == StateDestroyed {
		return &LifecycleViolation{ContainerID: c.cfg.ID, State: StateDestroyed, Op: "refresh"}
	}
	_, err := c.sched.submit(ctx, NewTrigger(kind, source, payload), true)
	if errors.Is(err, ErrDestroyed) {
		return &LifecycleViolation{ContainerID: c.cfg.ID, State: StateDestroyed, Op: "refresh"}
	}
	return err
}

// Refresh requests a manual pass.
func (c *Container) Refresh(ctx context.Context) error {
	if err := c.requireInitialized("refresh"); err != nil {
		return err
	}
	return c.RequestRefresh(ctx, TriggerManual, "manual", nil)
}

// RegisterOperation adds a static operation.
func (c *Container) RegisterOperation(id string, handler OperationHandler, meta *OperationMeta) error {
	if c.lifecycle.State() == StateDestroyed {
		return &LifecycleViolation{ContainerID: c.cfg.ID, State: StateDestroyed, Op: "register operation"}
	}
	return c.ops.Register(id, handler, meta)
}

// ExecuteOperation runs a registered operation and then requests an
// operation pass with the operation id as source. Handler failures are
// reported in the result, not as an error.
func (c *Container) ExecuteOperation(ctx context.Context, id string, params map[string]interface{}) (OperationResult, error) {
	if err := c.requireInitialized("execute operation"); err != nil {
		return OperationResult{OperationID: id}, err
	}
	return c.ops.Execute(ctx, id, params)
}

// Operations returns the operation table.
func (c *Container) Operations() []RegisteredOperation {
	return c.ops.List()
}

func (c *Container) afterOperation(ctx context.Context, result OperationResult, params map[string]interface{}) {
	c.emit(types.NewOperationExecutedEvent(c.cfg.ID, c.cfg.Name, result.OperationID, result.Duration, result.Err))
	if result.Err != nil {
		c.logger.Warnf("Container %s: operation %s failed: %v", c.cfg.ID, result.OperationID, result.Err)
	}

	payload := OperationPayload{Result: result, Params: params}
	if err := c.RequestRefresh(ctx, TriggerOperation, result.OperationID, payload); err != nil && !errors.Is(err, ErrDestroyed) {
		c.logger.Warnf("Container %s: refresh after %s: %v", c.cfg.ID, result.OperationID, err)
	}
}

func (c *Container) requireInitialized(op string) error {
	state := c.lifecycle.State()
	if state == StateDestroyed {
		return &LifecycleViolation{ContainerID: c.cfg.ID, State: state, Op: op}
	}
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if !initialized {
		return fmt.Errorf("%s on container %s: %w", op, c.cfg.ID, ErrNotInitialized)
	}
	return nil
}

// runPass is the scheduler's pass function.
func (c *Container) runPass(ctx context.Context, trigger Trigger, coalesced []Trigger) {
	consumed := c.now()
	for _, t := range coalesced {
		c.history.add(HistoryEntry{Trigger: t, ConsumedAt: consumed, Coalesced: true})
		c.emit(types.NewTriggerCoalescedEvent(c.cfg.ID, c.cfg.Name, string(t.Kind), t.Source))
	}
	c.history.add(HistoryEntry{Trigger: trigger, ConsumedAt: consumed})

	if c.lifecycle.State() == StateDestroyed {
		return
	}

	c.mu.Lock()
	c.stats.CoalescedCount += len(coalesced)
	c.stats.LastRefreshAt = consumed
	c.mu.Unlock()

	c.emit(types.NewRefreshStartedEvent(c.cfg.ID, c.cfg.Name, string(trigger.Kind), trigger.Source))

	passCtx := ctx
	if c.cfg.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, c.cfg.RefreshTimeout)
		defer cancel()
	}

	result := c.performRefresh(passCtx, trigger, coalesced, consumed)

	if c.lifecycle.State() == StateDestroyed {
		return
	}

	if result.Err != nil {
		c.recordFailure(trigger, result.StartedAt, result.FinishedAt, result.Err)
		if IsFatal(result.Err) {
			c.logger.Errorf("Container %s: fatal pass failure: %v", c.cfg.ID, result.Err)
			c.transition(ctx, eventFail)
			c.stopAutomatic()
		}
		return
	}

	c.recordSuccess(result)

	state := c.lifecycle.State()
	if state == StateRunning || state == StateInitializing {
		if c.tracker.Check(result) {
			c.logger.Infof("Container %s: task completed", c.cfg.ID)
			c.emit(types.NewTaskCompletedEvent(c.cfg.ID, c.cfg.Name))
			c.transition(ctx, eventComplete)
			c.stopAutomatic()
			return
		}
	}

	if c.lifecycle.State() != StateRunning {
		return
	}

	go c.discoverChildren(outsidePass(ctx))

	if c.cfg.DiscoverAffordances {
		c.discoverOperations(ctx)
	}
	c.autoExecute(ctx)
}

func (c *Container) performRefresh(ctx context.Context, trigger Trigger, coalesced []Trigger, started time.Time) (result *Result) {
	defer func() {
		if p := recover(); p != nil {
			result = &Result{Trigger: trigger, Err: fmt.Errorf("refresher panicked: %v", p), StartedAt: started}
		}
		result.FinishedAt = c.now()
	}()

	driver := c.Driver()
	if driver == nil {
		return &Result{Trigger: trigger, Err: ErrNotInitialized, StartedAt: started}
	}

	state, err := driver.DetectState(ctx, c.cfg.Locator)
	if err != nil {
		return &Result{Trigger: trigger, Err: NewDriverError("detect state", c.cfg.Locator, err), StartedAt: started}
	}

	c.mu.Lock()
	previous := c.content
	c.content = state
	c.mu.Unlock()

	res, err := c.refresher.Refresh(ctx, c, Pass{
		Trigger:       trigger,
		State:         state,
		PreviousState: previous,
		Coalesced:     coalesced,
	})
	if res == nil {
		res = &Result{}
	}
	if err != nil && res.Err == nil {
		res.Err = err
	}
	res.Trigger = trigger
	res.State = state
	res.StartedAt = started
	if !res.Changed && previous.Fingerprint != "" {
		res.Changed = previous.Fingerprint != state.Fingerprint
	}
	return res
}

func (c *Container) recordSuccess(result *Result) {
	c.mu.Lock()
	c.stats.RefreshCount++
	c.stats.ConsecutiveFailures = 0
	c.stats.LastSuccessAt = result.FinishedAt
	c.stats.LastDuration = result.Duration()
	c.lastResult = result
	c.mu.Unlock()

	c.logger.Debugf("Container %s: %s pass ok in %v (count=%d)", c.cfg.ID, result.Trigger.Kind, result.Duration(), result.Count)
	c.emit(types.NewRefreshCompletedEvent(c.cfg.ID, c.cfg.Name, string(result.Trigger.Kind), result.Trigger.Source, result.Duration()))
}

func (c *Container) recordFailure(trigger Trigger, started, finished time.Time, err error) {
	c.mu.Lock()
	c.stats.FailedCount++
	c.stats.ConsecutiveFailures++
	c.stats.LastDuration = finished.Sub(started)
	c.stats.LastError = err.Error()
	c.lastResult = &Result{Trigger: trigger, Err: err, StartedAt: started, FinishedAt: finished}
	c.mu.Unlock()

	c.logger.Warnf("Container %s: %s pass failed: %v", c.cfg.ID, trigger.Kind, err)
	c.emit(types.NewRefreshFailedEvent(c.cfg.ID, c.cfg.Name, string(trigger.Kind), trigger.Source, finished.Sub(started), err))
}

func (c *Container) lastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastResult != nil && c.lastResult.Err != nil {
		return c.lastResult.Err
	}
	return ErrFatal
}

// LastResult returns the result of the most recent pass, or nil.
func (c *Container) LastResult() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResult
}

func (c *Container) discoverOperations(ctx context.Context) {
	driver := c.Driver()
	probe := func(ctx context.Context) ([]Affordance, error) {
		affs, err := driver.DiscoverAffordances(ctx, c.cfg.Locator)
		return affs, NewDriverError("discover affordances", c.cfg.Locator, err)
	}
	handlerFor := func(aff Affordance) OperationHandler {
		return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			action := aff.SuggestedAction
			if action == "" {
				action = ActionClick
			}
			res, err := driver.PerformAction(ctx, ActionDescriptor{Kind: action, Locator: aff.Locator}, params)
			if err != nil {
				return nil, NewDriverError(string(action), aff.Locator, err)
			}
			return res, nil
		}
	}

	added, err := c.ops.Discover(ctx, probe, handlerFor, c.cfg.AffordanceBudget)
	if err != nil {
		c.logger.Warnf("Container %s: affordance discovery: %v", c.cfg.ID, err)
		return
	}
	if len(added) > 0 {
		c.logger.Infof("Container %s: discovered operations %v", c.cfg.ID, added)
	}
}

// autoExecute runs at most one eligible auto-execute operation per pass.
// The follow-up operation trigger is queued, not awaited, because the
// current pass still holds the scheduler.
func (c *Container) autoExecute(ctx context.Context) {
	ids := c.ops.AutoExecutable()
	if len(ids) == 0 {
		return
	}
	if _, err := c.ops.Execute(ctx, ids[0], nil); err != nil {
		c.logger.Warnf("Container %s: auto-execute %s: %v", c.cfg.ID, ids[0], err)
	}
}

func (c *Container) transition(ctx context.Context, event string) {
	if !c.lifecycle.can(event) {
		c.logger.Debugf("Container %s: %s ignored in state %s", c.cfg.ID, event, c.lifecycle.State())
		return
	}
	from, to, err := c.lifecycle.fire(ctx, event)
	if err != nil {
		c.logger.Debugf("Container %s: %v", c.cfg.ID, err)
		return
	}
	if from == to {
		return
	}
	c.logger.Infof("Container %s: %s -> %s", c.cfg.ID, from, to)
	c.emit(types.NewStateChangedEvent(c.cfg.ID, c.cfg.Name, string(from), string(to)))
}

// GetState returns a snapshot of the container. It is safe to call in any
// state, including mid-failure and after cleanup.
func (c *Container) GetState() State {
	c.mu.RLock()
	content := c.content
	c.mu.RUnlock()

	s := State{
		ID:          c.cfg.ID,
		Name:        c.cfg.Name,
		Locator:     c.cfg.Locator,
		Lifecycle:   c.lifecycle.State(),
		Exists:      content.Exists,
		Visible:     content.Visible,
		Fingerprint: content.Fingerprint,
		ChildCount:  content.ChildCount,
		Operations:  c.ops.IDs(),
	}
	if c.parent != nil {
		s.ParentID = c.parent.ID()
	}
	for _, child := range c.Children() {
		s.Children = append(s.Children, child.ID())
	}
	if c.tracker.Configured() {
		progress := c.tracker.Snapshot()
		s.Task = &progress
	}
	return s
}

// GetRefreshStats returns the scheduling counters and trigger history.
func (c *Container) GetRefreshStats() RefreshStats {
	c.mu.RLock()
	stats := c.stats
	c.mu.RUnlock()

	stats.DebouncedCount = c.sched.queue.Debounced()
	stats.InFlight = c.sched.busy()
	stats.QueueLength = c.sched.queue.Len()
	stats.History = c.history.snapshot()
	return stats
}

// IsTaskCompleted reports whether the completion criterion has been met.
// Once true it stays true.
func (c *Container) IsTaskCompleted() bool {
	return c.tracker.Completed()
}

// TaskProgress returns the tracker snapshot and whether a criterion is configured.
func (c *Container) TaskProgress() (TaskProgress, bool) {
	return c.tracker.Snapshot(), c.tracker.Configured()
}

// WaitIdle blocks until no pass is in flight.
func (c *Container) WaitIdle(ctx context.Context) error {
	return c.sched.wait(ctx)
}

// Cleanup tears the container down: timer and observer first so no new
// trigger arrives, then pending triggers, children, operations and
// subscribers. A pass already running finishes but its outcome is
// discarded. Safe to call more than once.
func (c *Container) Cleanup() {
	c.cleanupOnce.Do(func() {
		c.logger.Infof("Cleaning up container %s", c.cfg.ID)

		c.stopAutomatic()
		if dropped := c.sched.close(); len(dropped) > 0 {
			c.logger.Debugf("Container %s: dropped %d pending triggers", c.cfg.ID, len(dropped))
		}

		for _, child := range c.children.clear() {
			child.Cleanup()
		}
		c.ops.Clear()

		c.transition(context.Background(), eventDestroy)
		c.emit(types.NewDestroyedEvent(c.cfg.ID, c.cfg.Name))
		c.bus.clear()
	})
}

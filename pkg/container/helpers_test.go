package container

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/entrhq/harvest/pkg/types"
)

// fakeDriver is an in-memory Driver. Regions are keyed by locator.
type fakeDriver struct {
	mu sync.Mutex

	states      map[string]ContentState
	detectErr   map[string]error
	children    map[string][]ChildRegion
	affordances map[string][]Affordance

	actions    []ActionDescriptor
	observers  map[string]func()
	closed     int
	observeErr error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		states:      make(map[string]ContentState),
		detectErr:   make(map[string]error),
		children:    make(map[string][]ChildRegion),
		affordances: make(map[string][]Affordance),
		observers:   make(map[string]func()),
	}
}

func (d *fakeDriver) DetectState(_ context.Context, locator string) (ContentState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.detectErr[locator]; err != nil {
		return ContentState{}, err
	}
	if s, ok := d.states[locator]; ok {
		return s, nil
	}
	return ContentState{Exists: true, Visible: true, Fingerprint: "fp-" + locator}, nil
}

func (d *fakeDriver) ObserveMutations(_ context.Context, locator string, onChange func()) (Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.observeErr != nil {
		return nil, d.observeErr
	}
	d.observers[locator] = onChange
	return SubscriptionFunc(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, locator)
		d.closed++
		return nil
	}), nil
}

func (d *fakeDriver) PerformAction(_ context.Context, action ActionDescriptor, _ map[string]interface{}) (ActionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
	return ActionResult{Success: true}, nil
}

func (d *fakeDriver) DiscoverChildren(_ context.Context, locator string, _ []string) ([]ChildRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ChildRegion(nil), d.children[locator]...), nil
}

func (d *fakeDriver) DiscoverAffordances(_ context.Context, locator string) ([]Affordance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Affordance(nil), d.affordances[locator]...), nil
}

func (d *fakeDriver) mutate(locator string) bool {
	d.mu.Lock()
	fn := d.observers[locator]
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (d *fakeDriver) actionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.actions)
}

func (d *fakeDriver) closedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// eventRecorder captures container events.
type eventRecorder struct {
	mu     sync.Mutex
	events []*types.ContainerEvent
}

func (r *eventRecorder) record(e *types.ContainerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t types.ContainerEventType) []*types.ContainerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ContainerEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// countingRefresher returns a fixed count per pass and records calls.
type countingRefresher struct {
	mu     sync.Mutex
	calls  int
	count  int
	errs   []error
	passes []Pass
}

func (r *countingRefresher) Refresh(_ context.Context, _ *Container, pass Pass) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.passes = append(r.passes, pass)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Result{Count: r.count}, nil
}

func (r *countingRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// quietConfig disables the timer, the observer and debouncing.
func quietConfig(name string) Config {
	cfg := DefaultConfig(name, "#"+name)
	cfg.EnableAutoRefresh = false
	cfg.EnableMutationObserver = false
	cfg.Debounce = 0
	return cfg
}

var errBoom = errors.New("boom")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

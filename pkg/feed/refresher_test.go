package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/harvest/pkg/container"
)

type fakeDriver struct {
	mu sync.Mutex

	items       map[string][]string
	missing     map[string]bool
	extractErrs int
	children    map[string][]container.ChildRegion

	actions []container.ActionDescriptor
	params  []map[string]interface{}
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		items:    make(map[string][]string),
		missing:  make(map[string]bool),
		children: make(map[string][]container.ChildRegion),
	}
}

func (d *fakeDriver) setItems(locator string, items ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[locator] = items
}

func (d *fakeDriver) actionsOf(kind container.ActionKind) []container.ActionDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []container.ActionDescriptor
	for _, a := range d.actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (d *fakeDriver) DetectState(_ context.Context, locator string) (container.ContentState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.missing[locator] {
		return container.ContentState{}, nil
	}
	return container.ContentState{Exists: true, Visible: true, Fingerprint: "fp"}, nil
}

func (d *fakeDriver) ObserveMutations(context.Context, string, func()) (container.Subscription, error) {
	return container.SubscriptionFunc(func() error { return nil }), nil
}

func (d *fakeDriver) PerformAction(_ context.Context, action container.ActionDescriptor, params map[string]interface{}) (container.ActionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, action)
	d.params = append(d.params, params)

	if action.Kind != container.ActionExtract {
		return container.ActionResult{Success: true}, nil
	}
	if d.extractErrs > 0 {
		d.extractErrs--
		return container.ActionResult{}, errors.New("execution context was destroyed")
	}
	items := append([]string(nil), d.items[action.Locator]...)
	return container.ActionResult{Success: true, Count: len(items), Items: items}, nil
}

func (d *fakeDriver) DiscoverChildren(_ context.Context, locator string, _ []string) ([]container.ChildRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]container.ChildRegion(nil), d.children[locator]...), nil
}

func (d *fakeDriver) DiscoverAffordances(context.Context, string) ([]container.Affordance, error) {
	return nil, nil
}

func quietConfig(name string) container.Config {
	cfg := container.DefaultConfig(name, "#"+name)
	cfg.EnableAutoRefresh = false
	cfg.EnableMutationObserver = false
	cfg.Debounce = 0
	return cfg
}

func newFeed(t *testing.T, cfg container.Config, opts Options, driver container.Driver, extra ...container.Option) (*container.Container, *ListRefresher) {
	t.Helper()
	refresher, err := NewListRefresher(opts)
	require.NoError(t, err)
	c, err := container.New(cfg, refresher, extra...)
	require.NoError(t, err)
	t.Cleanup(c.Cleanup)
	require.NoError(t, c.Initialize(context.Background(), driver))
	return c, refresher
}

func TestOptionsValidate(t *testing.T) {
	_, err := NewListRefresher(Options{})
	assert.ErrorIs(t, err, container.ErrInvalidConfig)

	_, err = NewListRefresher(Options{ItemSelector: ".item", ScrollBudget: -1})
	assert.ErrorIs(t, err, container.ErrInvalidConfig)

	_, err = NewListRefresher(Options{ItemSelector: ".item"})
	assert.NoError(t, err)
}

func TestListRefresherCountsUniqueItems(t *testing.T) {
	driver := newFakeDriver()
	driver.setItems("#feed >> .item", "first post", "second post", "  first   post ")

	c, refresher := newFeed(t, quietConfig("feed"), Options{ItemSelector: ".item"}, driver)

	result := c.LastResult()
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Count)
	assert.True(t, result.Changed)
	assert.Equal(t, []string{"first post", "second post"}, result.Items)
	assert.Equal(t, 3, result.Data["visible"])

	// The page virtualized the first item away and appended a new one.
	driver.setItems("#feed >> .item", "second post", "third post")
	require.NoError(t, c.Refresh(context.Background()))

	result = c.LastResult()
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, []string{"third post"}, result.Items)
	assert.Equal(t, 1, result.Data["new"])
	assert.Equal(t, []string{"first post", "second post", "third post"}, refresher.Items())

	require.NoError(t, c.Refresh(context.Background()))
	result = c.LastResult()
	assert.Equal(t, 3, result.Count)
	assert.False(t, result.Changed)
	assert.Empty(t, result.Items)
}

func TestListRefresherCompletesCountTask(t *testing.T) {
	driver := newFakeDriver()
	driver.setItems("#feed >> .item", "a", "b")

	cfg := quietConfig("feed")
	cfg.Task = &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 3}
	c, _ := newFeed(t, cfg, Options{ItemSelector: ".item"}, driver)

	assert.False(t, c.IsTaskCompleted())

	driver.setItems("#feed >> .item", "b", "c")
	require.NoError(t, c.Refresh(context.Background()))

	assert.True(t, c.IsTaskCompleted())
	assert.Equal(t, container.StateCompleted, c.Lifecycle())
}

func TestListRefresherMissingRegion(t *testing.T) {
	driver := newFakeDriver()
	driver.missing["#feed"] = true

	c, _ := newFeed(t, quietConfig("feed"), Options{ItemSelector: ".item"}, driver)

	result := c.LastResult()
	require.NotNil(t, result)
	assert.True(t, result.Success())
	assert.Equal(t, 0, result.Count)
	assert.Empty(t, driver.actionsOf(container.ActionExtract))
}

func TestListRefresherRetriesExtraction(t *testing.T) {
	driver := newFakeDriver()
	driver.setItems("#feed >> .item", "a")
	driver.extractErrs = 1

	cfg := quietConfig("feed")
	cfg.MaxRefreshRetries = 1
	c, _ := newFeed(t, cfg, Options{ItemSelector: ".item"}, driver)

	assert.True(t, c.LastResult().Success())
	assert.Equal(t, 1, c.LastResult().Count)
	assert.Len(t, driver.actionsOf(container.ActionExtract), 2)

	driver.mu.Lock()
	driver.extractErrs = 5
	driver.mu.Unlock()
	require.NoError(t, c.Refresh(context.Background()))

	result := c.LastResult()
	require.Error(t, result.Err)
	var driverErr *container.DriverError
	assert.ErrorAs(t, result.Err, &driverErr)
	assert.Equal(t, container.StateRunning, c.Lifecycle(), "driver failures are not fatal")
}

func TestStaticOperations(t *testing.T) {
	driver := newFakeDriver()
	opts := Options{ItemSelector: ".item", LoadMoreSelector: "button.more", ScrollPixels: 600}
	c, _ := newFeed(t, quietConfig("feed"), opts, driver)

	var ids []string
	for _, op := range c.Operations() {
		ids = append(ids, op.ID)
		assert.False(t, op.Meta.AutoExecute)
	}
	assert.ElementsMatch(t, []string{OpScroll, OpLoadMore}, ids)

	res, err := c.ExecuteOperation(context.Background(), OpScroll, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	scrolls := driver.actionsOf(container.ActionScroll)
	require.Len(t, scrolls, 1)
	assert.Equal(t, "#feed", scrolls[0].Locator)

	res, err = c.ExecuteOperation(context.Background(), OpScroll, map[string]interface{}{"pixels": 50})
	require.NoError(t, err)
	assert.True(t, res.Success)

	driver.mu.Lock()
	var pixels []interface{}
	for i, a := range driver.actions {
		if a.Kind == container.ActionScroll {
			pixels = append(pixels, driver.params[i]["pixels"])
		}
	}
	driver.mu.Unlock()
	assert.Equal(t, []interface{}{600, 50}, pixels)

	_, err = c.ExecuteOperation(context.Background(), OpLoadMore, nil)
	require.NoError(t, err)
	clicks := driver.actionsOf(container.ActionClick)
	require.Len(t, clicks, 1)
	assert.Equal(t, "#feed >> button.more >> nth=0", clicks[0].Locator)

	// Each operation is followed by an operation pass.
	assert.Equal(t, 4, c.GetRefreshStats().RefreshCount)
}

func TestScrollLeavesCallerParamsUntouched(t *testing.T) {
	driver := newFakeDriver()
	c, _ := newFeed(t, quietConfig("feed"), Options{ItemSelector: ".item", ScrollPixels: 600}, driver)

	params := map[string]interface{}{"smooth": true}
	_, err := c.ExecuteOperation(context.Background(), OpScroll, params)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"smooth": true}, params)

	driver.mu.Lock()
	defer driver.mu.Unlock()
	var sent map[string]interface{}
	for i, a := range driver.actions {
		if a.Kind == container.ActionScroll {
			sent = driver.params[i]
		}
	}
	assert.Equal(t, map[string]interface{}{"smooth": true, "pixels": 600}, sent)
}

func TestNormalizeItem(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"collapses whitespace", "  a \n\t b  ", 10, "a b"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"cut inside a rune backs off", "héllo", 2, "h"},
		{"cut on a rune boundary", "héllo", 3, "hé"},
		{"multi-byte only", "日本語", 4, "日"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeItem(tt.text, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestScrollBudgetAutoExecutes(t *testing.T) {
	driver := newFakeDriver()
	c, _ := newFeed(t, quietConfig("feed"), Options{ItemSelector: ".item", ScrollBudget: 2}, driver)

	assert.Len(t, driver.actionsOf(container.ActionScroll), 2)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Len(t, driver.actionsOf(container.ActionScroll), 2, "budget is spent")
}

func TestChildFactory(t *testing.T) {
	driver := newFakeDriver()
	driver.setItems("#feed >> .post", "post one", "post two")
	driver.children["#feed"] = []container.ChildRegion{
		{Type: "comments", Locator: "#feed >> .thread >> nth=0"},
		{Type: "comments", Locator: "#feed >> .thread >> nth=1"},
	}
	driver.setItems("#feed >> .thread >> nth=0 >> .comment", "nice", "agreed")
	driver.setItems("#feed >> .thread >> nth=1 >> .comment", "first")

	cfg := quietConfig("feed")
	cfg.ChildTypes = []string{"comments"}
	factory := ChildFactory(quietConfig(""), Options{ItemSelector: ".comment"})

	root, _ := newFeed(t, cfg, Options{ItemSelector: ".post"}, driver, container.WithChildFactory("comments", factory))

	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "comments", children[0].Name())
	assert.Equal(t, container.StateRunning, children[0].Lifecycle())
	assert.Equal(t, 2, children[0].LastResult().Count)
	assert.Equal(t, 1, children[1].LastResult().Count)
	assert.Same(t, root, children[1].Parent())
}

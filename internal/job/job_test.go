package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/harvest/pkg/container"
)

const sampleJob = `
name: hn
url: https://news.ycombinator.com/news
wait_until: networkidle
timeout: 90s
affordance_patterns: ["*more*"]
root:
  name: stories
  locator: "table.itemlist"
  item_selector: "tr.athing"
  load_more_selector: "a.morelink"
  load_more_budget: 2
  debounce: 250ms
  enable_mutation_observer: false
  task:
    kind: count
    target_count: 60
  children:
    - type: comments
      selector: ".comment-tree"
      item_selector: ".comment"
      enable_auto_refresh: false
      task:
        kind: timeout
        timeout: 30s
`

func testDefaults(name, locator string) container.Config {
	return container.DefaultConfig(name, locator)
}

type regionDriver struct {
	regions map[string][]container.ChildRegion
}

func (d *regionDriver) DetectState(context.Context, string) (container.ContentState, error) {
	return container.ContentState{Exists: true, Visible: true}, nil
}

func (d *regionDriver) ObserveMutations(context.Context, string, func()) (container.Subscription, error) {
	return container.SubscriptionFunc(func() error { return nil }), nil
}

func (d *regionDriver) PerformAction(_ context.Context, action container.ActionDescriptor, _ map[string]interface{}) (container.ActionResult, error) {
	if action.Kind == container.ActionExtract {
		return container.ActionResult{Success: true, Items: []string{"a", "b"}, Count: 2}, nil
	}
	return container.ActionResult{Success: true}, nil
}

func (d *regionDriver) DiscoverChildren(_ context.Context, locator string, _ []string) ([]container.ChildRegion, error) {
	return d.regions[locator], nil
}

func (d *regionDriver) DiscoverAffordances(context.Context, string) ([]container.Affordance, error) {
	return nil, nil
}

func TestParse(t *testing.T) {
	j, err := Parse([]byte(sampleJob))
	require.NoError(t, err)

	assert.Equal(t, "hn", j.Name)
	assert.Equal(t, 90*time.Second, j.Timeout)
	assert.Equal(t, "networkidle", j.WaitUntil)
	assert.Equal(t, []string{"*more*"}, j.AffordancePatterns)
	assert.Equal(t, "tr.athing", j.Root.ItemSelector)
	assert.Equal(t, 2, j.Root.LoadMoreBudget)
	require.NotNil(t, j.Root.Debounce)
	assert.Equal(t, 250*time.Millisecond, *j.Root.Debounce)
	require.Len(t, j.Root.Children, 1)
	assert.Equal(t, ".comment", j.Root.Children[0].ItemSelector)
	assert.Equal(t, 30*time.Second, j.Root.Children[0].Task.Timeout)

	assert.Equal(t, map[string]string{"comments": ".comment-tree"}, j.ChildSelectors())
}

func TestParseDefaults(t *testing.T) {
	j, err := Parse([]byte(`
url: https://example.com
root:
  locator: "#feed"
  item_selector: ".post"
`))
	require.NoError(t, err)
	assert.Equal(t, "root", j.Root.Name)
	assert.Equal(t, "root", j.Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"unknown key", "url: https://example.com\nroot: {locator: '#a', item_selector: '.b'}\nextra: 1\n"},
		{"relative url", "url: /feed\nroot: {locator: '#a', item_selector: '.b'}\n"},
		{"missing locator", "url: https://example.com\nroot: {item_selector: '.b'}\n"},
		{"missing item selector", "url: https://example.com\nroot: {locator: '#a'}\n"},
		{"bad wait_until", "url: https://example.com\nwait_until: never\nroot: {locator: '#a', item_selector: '.b'}\n"},
		{"bad task", "url: https://example.com\nroot: {locator: '#a', item_selector: '.b', task: {kind: count}}\n"},
		{"child without selector", "url: https://example.com\nroot: {locator: '#a', item_selector: '.b', children: [{type: c, item_selector: '.d'}]}\n"},
		{"conflicting child selectors", `
url: https://example.com
root:
  locator: '#a'
  item_selector: '.b'
  children:
    - {type: c, selector: '.x', item_selector: '.d', children: [{type: c, selector: '.y', item_selector: '.e'}]}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleJob), 0600))

	j, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hn", j.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	j, err := Parse([]byte(sampleJob))
	require.NoError(t, err)

	root, err := j.Build(testDefaults, nil)
	require.NoError(t, err)
	t.Cleanup(root.Cleanup)

	cfg := root.Config()
	assert.Equal(t, "stories", cfg.Name)
	assert.Equal(t, "table.itemlist", cfg.Locator)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, container.DefaultRefreshInterval, cfg.RefreshInterval)
	assert.True(t, cfg.EnableAutoRefresh)
	assert.False(t, cfg.EnableMutationObserver)
	assert.Equal(t, []string{"comments"}, cfg.ChildTypes)
	require.NotNil(t, cfg.Task)
	assert.Equal(t, 60, cfg.Task.TargetCount)
}

func TestBuildChildren(t *testing.T) {
	j, err := Parse([]byte(sampleJob))
	require.NoError(t, err)
	off := false
	j.Root.EnableAutoRefresh = &off

	root, err := j.Build(testDefaults, nil)
	require.NoError(t, err)
	t.Cleanup(root.Cleanup)

	driver := &regionDriver{regions: map[string][]container.ChildRegion{
		"table.itemlist": {{Type: "comments", Locator: "table.itemlist >> .comment-tree >> nth=0"}},
	}}
	require.NoError(t, root.Initialize(context.Background(), driver))

	children := root.Children()
	require.Len(t, children, 1)

	child := children[0].Config()
	assert.Equal(t, "comments", child.Name)
	assert.Equal(t, "table.itemlist >> .comment-tree >> nth=0", child.Locator)
	assert.False(t, child.EnableAutoRefresh)
	require.NotNil(t, child.Task)
	assert.Equal(t, container.TaskTimeout, child.Task.Kind)
	assert.Equal(t, container.StateRunning, children[0].Lifecycle())
}

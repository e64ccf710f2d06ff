package headless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/entrhq/harvest/pkg/container"
)

// stubDriver reports every region as present and lists fixed child regions.
type stubDriver struct {
	mu       sync.Mutex
	children map[string][]container.ChildRegion
}

func (d *stubDriver) DetectState(context.Context, string) (container.ContentState, error) {
	return container.ContentState{Exists: true, Visible: true, Fingerprint: "fp"}, nil
}

func (d *stubDriver) ObserveMutations(context.Context, string, func()) (container.Subscription, error) {
	return container.SubscriptionFunc(func() error { return nil }), nil
}

func (d *stubDriver) PerformAction(context.Context, container.ActionDescriptor, map[string]interface{}) (container.ActionResult, error) {
	return container.ActionResult{Success: true}, nil
}

func (d *stubDriver) DiscoverChildren(_ context.Context, locator string, _ []string) ([]container.ChildRegion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.children[locator], nil
}

func (d *stubDriver) DiscoverAffordances(context.Context, string) ([]container.Affordance, error) {
	return nil, nil
}

// countingRefresher returns one more item on every pass and remembers them.
type countingRefresher struct {
	mu    sync.Mutex
	items []string
	fail  error
}

func (r *countingRefresher) Refresh(_ context.Context, _ *container.Container, _ container.Pass) (*container.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	r.items = append(r.items, "item")
	return &container.Result{Count: len(r.items), Changed: true}, nil
}

func (r *countingRefresher) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func timerConfig(name string) container.Config {
	cfg := container.DefaultConfig(name, "#"+name)
	cfg.RefreshInterval = 5 * time.Millisecond
	cfg.Debounce = 0
	cfg.EnableMutationObserver = false
	return cfg
}

func newRoot(t *testing.T, cfg container.Config, refresher container.Refresher, opts ...container.Option) *container.Container {
	t.Helper()
	c, err := container.New(cfg, refresher, opts...)
	if err != nil {
		t.Fatalf("container.New() error = %v", err)
	}
	return c
}

func newTestExecutor(t *testing.T, root *container.Container, driver container.Driver, config *Config) *Executor {
	t.Helper()
	exec, err := NewExecutor(root, driver, config)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	exec.SetLogger(NewLoggerTo(LogLevelDebug, io.Discard))
	return exec
}

func TestNewExecutor_Validation(t *testing.T) {
	root := newRoot(t, timerConfig("feed"), &countingRefresher{})

	if _, err := NewExecutor(nil, &stubDriver{}, nil); err == nil {
		t.Error("expected error for nil root")
	}
	if _, err := NewExecutor(root, nil, nil); err == nil {
		t.Error("expected error for nil driver")
	}
	if _, err := NewExecutor(root, &stubDriver{}, &Config{Timeout: -1}); err == nil {
		t.Error("expected error for invalid config")
	}

	exec, err := NewExecutor(root, &stubDriver{}, &Config{Job: "nightly"})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	if exec.Summary().Job != "nightly" {
		t.Errorf("expected job name 'nightly', got %q", exec.Summary().Job)
	}
}

func TestExecutor_RunUntilTaskCompleted(t *testing.T) {
	cfg := timerConfig("feed")
	cfg.Task = &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 3}
	root := newRoot(t, cfg, &countingRefresher{})

	outputDir := t.TempDir()
	config := &Config{
		Timeout: 5 * time.Second,
		Artifacts: ArtifactConfig{
			Enabled:   true,
			OutputDir: outputDir,
			JSON:      true,
			Markdown:  true,
		},
	}
	exec := newTestExecutor(t, root, &stubDriver{}, config)

	summary, err := exec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Status != statusSuccess {
		t.Errorf("expected status %q, got %q", statusSuccess, summary.Status)
	}
	if summary.Job != "feed" {
		t.Errorf("expected job to default to root name, got %q", summary.Job)
	}
	if summary.Metrics.Items != 3 {
		t.Errorf("expected 3 items, got %d", summary.Metrics.Items)
	}
	if summary.Metrics.Passes < 3 {
		t.Errorf("expected at least 3 passes, got %d", summary.Metrics.Passes)
	}
	if summary.Root == nil || summary.Root.Lifecycle != string(container.StateCompleted) {
		t.Fatalf("expected completed root report, got %+v", summary.Root)
	}
	if summary.Root.Task == nil || !summary.Root.Task.IsCompleted {
		t.Error("expected completed task progress in report")
	}
	if len(summary.Root.Items) != 3 {
		t.Errorf("expected 3 reported items, got %d", len(summary.Root.Items))
	}
	if summary.Events["task_completed"] != 1 {
		t.Errorf("expected one task_completed event, got %d", summary.Events["task_completed"])
	}
	if root.Lifecycle() != container.StateDestroyed {
		t.Errorf("expected root to be cleaned up, got %s", root.Lifecycle())
	}

	for _, name := range []string{ExecutionFile, ItemsFile, SummaryFile} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("expected artifact %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(outputDir, ExecutionFile))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded ExecutionSummary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("execution.json is not valid JSON: %v", err)
	}
	if decoded.Status != statusSuccess || decoded.Root == nil {
		t.Errorf("unexpected execution.json content: status=%q", decoded.Status)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	cfg := timerConfig("feed")
	cfg.Task = &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 1_000_000}
	root := newRoot(t, cfg, &countingRefresher{})

	exec := newTestExecutor(t, root, &stubDriver{}, &Config{Timeout: 50 * time.Millisecond})

	summary, err := exec.Run(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if summary.Status != statusTimeout {
		t.Errorf("expected status %q, got %q", statusTimeout, summary.Status)
	}
	if summary.Error == "" {
		t.Error("expected error message in summary")
	}
}

// blockingRefresher holds every pass until release is closed.
type blockingRefresher struct {
	release chan struct{}
}

func (r *blockingRefresher) Refresh(context.Context, *container.Container, container.Pass) (*container.Result, error) {
	<-r.release
	return &container.Result{}, nil
}

func TestExecutor_TimeoutDuringInitialize(t *testing.T) {
	tests := []struct {
		name       string
		task       *container.TaskCriterion
		wantStatus string
		wantErr    error
	}{
		{
			name:       "with task criterion",
			task:       &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 10},
			wantStatus: statusTimeout,
			wantErr:    ErrTimeout,
		},
		{
			name:       "observation window",
			wantStatus: statusSuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refresher := &blockingRefresher{release: make(chan struct{})}
			t.Cleanup(func() { close(refresher.release) })

			cfg := timerConfig("feed")
			cfg.Task = tt.task
			root := newRoot(t, cfg, refresher)
			exec := newTestExecutor(t, root, &stubDriver{}, &Config{Timeout: 30 * time.Millisecond})

			summary, err := exec.Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if summary.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, summary.Status)
			}
		})
	}
}

func TestExecutor_ObservationWindow(t *testing.T) {
	root := newRoot(t, timerConfig("feed"), &countingRefresher{})

	exec := newTestExecutor(t, root, &stubDriver{}, &Config{Timeout: 30 * time.Millisecond})

	summary, err := exec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Status != statusSuccess {
		t.Errorf("expected status %q, got %q", statusSuccess, summary.Status)
	}
	if summary.Metrics.Items == 0 {
		t.Error("expected items collected during the window")
	}
}

func TestExecutor_RootFailure(t *testing.T) {
	refresher := &countingRefresher{fail: container.Fatal(errors.New("page crashed"))}
	root := newRoot(t, timerConfig("feed"), refresher)

	exec := newTestExecutor(t, root, &stubDriver{}, &Config{Timeout: time.Second})

	summary, err := exec.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for failed root")
	}
	if summary.Status != statusFailed {
		t.Errorf("expected status %q, got %q", statusFailed, summary.Status)
	}
	if summary.Root.Lifecycle != string(container.StateFailed) {
		t.Errorf("expected failed lifecycle in report, got %q", summary.Root.Lifecycle)
	}
	if summary.Metrics.FailedPasses != 1 {
		t.Errorf("expected 1 failed pass, got %d", summary.Metrics.FailedPasses)
	}
}

func TestExecutor_Canceled(t *testing.T) {
	cfg := timerConfig("feed")
	cfg.Task = &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 1_000_000}
	root := newRoot(t, cfg, &countingRefresher{})

	exec := newTestExecutor(t, root, &stubDriver{}, &Config{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	summary, err := exec.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Status != statusStopped {
		t.Errorf("expected status %q, got %q", statusStopped, summary.Status)
	}
}

func TestExecutor_WaitForChildren(t *testing.T) {
	driver := &stubDriver{children: map[string][]container.ChildRegion{
		"#feed": {
			{Type: "post", Locator: "#feed >> nth=0"},
			{Type: "post", Locator: "#feed >> nth=1"},
		},
	}}

	var built atomic.Int32
	childBase := container.DefaultConfig("", "")
	childBase.EnableAutoRefresh = false
	childBase.EnableMutationObserver = false
	childBase.Task = &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 1}
	factory := func(_ context.Context, parent *container.Container, region container.ChildRegion) (*container.Container, error) {
		built.Add(1)
		return container.New(container.ChildConfig(parent, region, childBase), &countingRefresher{})
	}

	cfg := timerConfig("feed")
	cfg.ChildTypes = []string{"post"}
	cfg.Task = &container.TaskCriterion{Kind: container.TaskCount, TargetCount: 2}
	root := newRoot(t, cfg, &countingRefresher{}, container.WithChildFactory("post", factory))

	exec := newTestExecutor(t, root, driver, &Config{Timeout: 5 * time.Second, WaitForChildren: true})

	summary, err := exec.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if built.Load() != 2 {
		t.Errorf("expected 2 children built, got %d", built.Load())
	}
	if len(summary.Root.Children) != 2 {
		t.Fatalf("expected 2 child reports, got %d", len(summary.Root.Children))
	}
	for _, child := range summary.Root.Children {
		if child.Lifecycle != string(container.StateCompleted) {
			t.Errorf("child %s: expected completed, got %s", child.ID, child.Lifecycle)
		}
	}
	if summary.Metrics.Containers != 3 {
		t.Errorf("expected 3 containers, got %d", summary.Metrics.Containers)
	}
	if summary.Events["child_added"] != 2 {
		t.Errorf("expected 2 child_added events, got %d", summary.Events["child_added"])
	}
}

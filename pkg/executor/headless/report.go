package headless

import (
	"time"

	"github.com/entrhq/harvest/pkg/container"
)

// ExecutionSummary contains a complete summary of a headless run
type ExecutionSummary struct {
	Job       string           `json:"job"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Metrics   ExecutionMetrics `json:"metrics"`
	Events    map[string]int   `json:"events"`
	Root      *ContainerReport `json:"root,omitempty"`
}

// ExecutionMetrics contains run-wide counters
type ExecutionMetrics struct {
	Containers         int    `json:"containers"`
	Passes             int    `json:"passes"`
	FailedPasses       int    `json:"failed_passes"`
	DebouncedTriggers  uint64 `json:"debounced_triggers"`
	CoalescedTriggers  int    `json:"coalesced_triggers"`
	OperationsExecuted int    `json:"operations_executed"`
	ChildFailures      int    `json:"child_failures"`
	Items              int    `json:"items"`
}

// ContainerReport is the final state of one container and its subtree
type ContainerReport struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Locator    string                  `json:"locator"`
	Lifecycle  string                  `json:"lifecycle"`
	Count      int                     `json:"count"`
	Task       *container.TaskProgress `json:"task,omitempty"`
	Refreshes  int                     `json:"refreshes"`
	Failures   int                     `json:"failures"`
	LastError  string                  `json:"last_error,omitempty"`
	Operations []OperationReport       `json:"operations,omitempty"`
	Items      []string                `json:"items,omitempty"`
	Children   []*ContainerReport      `json:"children,omitempty"`

	debounced uint64
	coalesced int
}

// OperationReport describes one registered operation
type OperationReport struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	Discovered bool   `json:"discovered"`
	Attempts   int    `json:"attempts"`
}

// itemSource is implemented by refreshers that keep the items they saw.
type itemSource interface {
	Items() []string
}

// BuildReport snapshots c and its children. It must run before Cleanup,
// which detaches the children.
func BuildReport(c *container.Container) *ContainerReport {
	state := c.GetState()
	stats := c.GetRefreshStats()

	report := &ContainerReport{
		ID:        state.ID,
		Name:      state.Name,
		Locator:   state.Locator,
		Lifecycle: string(state.Lifecycle),
		Task:      state.Task,
		Refreshes: stats.RefreshCount,
		Failures:  stats.FailedCount,
		LastError: stats.LastError,
		debounced: stats.DebouncedCount,
		coalesced: stats.CoalescedCount,
	}
	if last := c.LastResult(); last != nil && last.Success() {
		report.Count = last.Count
	}
	if src, ok := c.Refresher().(itemSource); ok {
		report.Items = src.Items()
	}
	for _, op := range c.Operations() {
		report.Operations = append(report.Operations, OperationReport{
			ID:         op.ID,
			Label:      op.Meta.Label,
			Discovered: op.Discovered,
			Attempts:   op.Attempts,
		})
	}
	for _, child := range c.Children() {
		report.Children = append(report.Children, BuildReport(child))
	}
	return report
}

// Walk calls fn for r and every descendant, parents first.
func (r *ContainerReport) Walk(fn func(*ContainerReport)) {
	fn(r)
	for _, child := range r.Children {
		child.Walk(fn)
	}
}

func computeMetrics(root *ContainerReport, events map[string]int) ExecutionMetrics {
	m := ExecutionMetrics{
		OperationsExecuted: events["operation_executed"],
		ChildFailures:      events["child_failed"],
	}
	if root == nil {
		return m
	}
	root.Walk(func(r *ContainerReport) {
		m.Containers++
		m.Passes += r.Refreshes + r.Failures
		m.FailedPasses += r.Failures
		m.DebouncedTriggers += r.debounced
		m.CoalescedTriggers += r.coalesced
	})
	m.Items = root.Count
	return m
}

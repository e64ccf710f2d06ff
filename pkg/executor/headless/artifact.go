package headless

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifact file names
const (
	ExecutionFile = "execution.json"
	SummaryFile   = "summary.md"
	ItemsFile     = "items.json"
)

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	outputDir string
	config    ArtifactConfig
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(config ArtifactConfig) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: config.OutputDir,
		config:    config,
	}
}

// WriteAll writes every enabled artifact format
func (w *ArtifactWriter) WriteAll(summary *ExecutionSummary) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if w.config.JSON {
		if err := w.WriteExecutionJSON(summary); err != nil {
			return err
		}
		if err := w.WriteItemsJSON(summary); err != nil {
			return err
		}
	}

	if w.config.Markdown {
		if err := w.WriteSummaryMarkdown(summary); err != nil {
			return err
		}
	}

	return nil
}

// WriteExecutionJSON writes the full run summary as JSON
func (w *ArtifactWriter) WriteExecutionJSON(summary *ExecutionSummary) error {
	return w.writeJSON(ExecutionFile, summary)
}

// WriteItemsJSON writes the items collected by every container, keyed by
// container id. Containers without an item-keeping refresher are omitted.
func (w *ArtifactWriter) WriteItemsJSON(summary *ExecutionSummary) error {
	items := make(map[string][]string)
	if summary.Root != nil {
		summary.Root.Walk(func(r *ContainerReport) {
			if len(r.Items) > 0 {
				items[r.ID] = r.Items
			}
		})
	}
	return w.writeJSON(ItemsFile, items)
}

func (w *ArtifactWriter) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if writeErr := os.WriteFile(filepath.Join(w.outputDir, name), data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write %s: %w", name, writeErr)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(summary *ExecutionSummary) error {
	var md strings.Builder

	md.WriteString("# Harvest Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Job:** %s\n\n", summary.Job))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", summary.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration))

	md.WriteString("## Result\n\n")
	if summary.Error != "" {
		md.WriteString(fmt.Sprintf("❌ **Error:** %s\n\n", summary.Error))
	} else {
		md.WriteString("✅ **Success**\n\n")
	}

	if summary.Root != nil {
		md.WriteString("## Containers\n\n")
		md.WriteString("| Container | State | Count | Passes | Failures | Task |\n")
		md.WriteString("|-----------|-------|-------|--------|----------|------|\n")
		writeContainerRows(&md, summary.Root, 0)
		md.WriteString("\n")
	}

	md.WriteString("## Metrics\n\n")
	md.WriteString(fmt.Sprintf("- **Items:** %d\n", summary.Metrics.Items))
	md.WriteString(fmt.Sprintf("- **Containers:** %d\n", summary.Metrics.Containers))
	md.WriteString(fmt.Sprintf("- **Passes:** %d\n", summary.Metrics.Passes))
	md.WriteString(fmt.Sprintf("- **Failed Passes:** %d\n", summary.Metrics.FailedPasses))
	md.WriteString(fmt.Sprintf("- **Debounced Triggers:** %d\n", summary.Metrics.DebouncedTriggers))
	md.WriteString(fmt.Sprintf("- **Coalesced Triggers:** %d\n", summary.Metrics.CoalescedTriggers))
	md.WriteString(fmt.Sprintf("- **Operations Executed:** %d\n", summary.Metrics.OperationsExecuted))
	md.WriteString(fmt.Sprintf("- **Child Failures:** %d\n", summary.Metrics.ChildFailures))

	path := filepath.Join(w.outputDir, SummaryFile)
	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}
	return nil
}

func writeContainerRows(md *strings.Builder, r *ContainerReport, depth int) {
	task := "-"
	if r.Task != nil {
		task = fmt.Sprintf("%d/%d", r.Task.CurrentCount, r.Task.TargetCount)
		if r.Task.IsCompleted {
			task += " ✅"
		}
	}
	name := strings.Repeat("&nbsp;&nbsp;", depth) + "`" + r.Name + "`"
	md.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %s |\n",
		name, r.Lifecycle, r.Count, r.Refreshes, r.Failures, task))
	for _, child := range r.Children {
		writeContainerRows(md, child, depth+1)
	}
}

package headless

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/harvest/pkg/container"
)

func sampleSummary() *ExecutionSummary {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	root := &ContainerReport{
		ID:        "feed-1",
		Name:      "feed",
		Lifecycle: "completed",
		Count:     2,
		Refreshes: 4,
		Task:      &container.TaskProgress{Kind: container.TaskCount, TargetCount: 2, CurrentCount: 2, IsCompleted: true},
		Items:     []string{"first", "second"},
		Children: []*ContainerReport{
			{ID: "feed-1/post-0", Name: "post", Lifecycle: "running", Items: []string{"comment"}},
			{ID: "feed-1/post-1", Name: "post", Lifecycle: "failed", LastError: "gone"},
		},
	}
	return &ExecutionSummary{
		Job:       "nightly",
		Status:    statusSuccess,
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		Duration:  2 * time.Second,
		Root:      root,
		Metrics:   computeMetrics(root, map[string]int{"operation_executed": 3}),
	}
}

func TestComputeMetrics(t *testing.T) {
	m := sampleSummary().Metrics
	if m.Containers != 3 {
		t.Errorf("expected 3 containers, got %d", m.Containers)
	}
	if m.Items != 2 {
		t.Errorf("expected root count as items, got %d", m.Items)
	}
	if m.OperationsExecuted != 3 {
		t.Errorf("expected 3 operations, got %d", m.OperationsExecuted)
	}
	if m.Passes != 4 {
		t.Errorf("expected 4 passes, got %d", m.Passes)
	}
}

func TestArtifactWriter_WriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	writer := NewArtifactWriter(ArtifactConfig{Enabled: true, OutputDir: dir, JSON: true, Markdown: true})

	if err := writer.WriteAll(sampleSummary()); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ItemsFile))
	if err != nil {
		t.Fatalf("ReadFile(items) error = %v", err)
	}
	var items map[string][]string
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("items.json is not valid JSON: %v", err)
	}
	if len(items) != 2 || len(items["feed-1"]) != 2 || items["feed-1/post-0"][0] != "comment" {
		t.Errorf("unexpected items: %v", items)
	}

	md, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatalf("ReadFile(summary) error = %v", err)
	}
	for _, want := range []string{"# Harvest Run Summary", "**Job:** nightly", "`feed`", "2/2 ✅", "&nbsp;&nbsp;`post`"} {
		if !strings.Contains(string(md), want) {
			t.Errorf("summary.md missing %q", want)
		}
	}
}

func TestArtifactWriter_FormatFlags(t *testing.T) {
	dir := t.TempDir()
	writer := NewArtifactWriter(ArtifactConfig{Enabled: true, OutputDir: dir, Markdown: true})

	if err := writer.WriteAll(sampleSummary()); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ExecutionFile)); !os.IsNotExist(err) {
		t.Error("execution.json should not be written when JSON is disabled")
	}
	if _, err := os.Stat(filepath.Join(dir, SummaryFile)); err != nil {
		t.Errorf("summary.md should be written: %v", err)
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(LogLevelQuiet, &buf)

	logger.Infof("progress")
	logger.Verbosef("detail")
	logger.Warningf("careful")
	logger.Errorf("broken")

	out := buf.String()
	if strings.Contains(out, "progress") || strings.Contains(out, "detail") {
		t.Errorf("quiet logger printed normal output: %q", out)
	}
	if !strings.Contains(out, "careful") || !strings.Contains(out, "broken") {
		t.Errorf("quiet logger dropped warnings or errors: %q", out)
	}

	buf.Reset()
	logger.Summary(sampleSummary())
	if !strings.Contains(buf.String(), "Harvest Summary: nightly") || !strings.Contains(buf.String(), "SUCCESS") {
		t.Errorf("summary missing job or status: %q", buf.String())
	}
}

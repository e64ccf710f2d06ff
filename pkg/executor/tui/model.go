package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/entrhq/harvest/pkg/container"
)

const (
	maxLogLines     = 200
	refreshInterval = 500 * time.Millisecond
	treeChrome      = 4 // border and padding around the tree box
	headerLines     = 2
	statusLines     = 1
)

// row is one line of the container tree.
type row struct {
	id        string
	name      string
	depth     int
	lifecycle container.LifecycleState
	count     int
	task      *container.TaskProgress
	inFlight  bool
	queued    int
	passes    int
	failures  int
	lastError string
}

// model represents the state of the TUI application.
type model struct {
	// Bubble Tea components
	viewport viewport.Model
	spinner  spinner.Model

	root *container.Container

	// Tree state, rebuilt on every event and tick
	rows     []row
	selected int

	// Event log shown in the viewport
	log []string

	// Status line
	status       string
	initializing bool
	initErr      error

	// Window dimensions
	width  int
	height int
	ready  bool

	title string
}

func initialModel(root *container.Container, title string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = headerStyle

	m := model{
		spinner:      s,
		viewport:     viewport.New(80, 10),
		root:         root,
		initializing: true,
		title:        title,
	}
	m.rebuildRows()
	return m
}

// rebuildRows flattens the container tree, keeping the selection on the
// same container when it still exists.
func (m *model) rebuildRows() {
	var selectedID string
	if m.selected < len(m.rows) {
		selectedID = m.rows[m.selected].id
	}

	m.rows = m.rows[:0]
	appendRows(&m.rows, m.root, 0)

	m.selected = 0
	for i, r := range m.rows {
		if r.id == selectedID {
			m.selected = i
			break
		}
	}
}

func appendRows(rows *[]row, c *container.Container, depth int) {
	state := c.GetState()
	stats := c.GetRefreshStats()

	r := row{
		id:        state.ID,
		name:      state.Name,
		depth:     depth,
		lifecycle: state.Lifecycle,
		task:      state.Task,
		inFlight:  stats.InFlight,
		queued:    stats.QueueLength,
		passes:    stats.RefreshCount,
		failures:  stats.FailedCount,
		lastError: stats.LastError,
	}
	if last := c.LastResult(); last != nil && last.Success() {
		r.count = last.Count
	}
	*rows = append(*rows, r)

	for _, child := range c.Children() {
		appendRows(rows, child, depth+1)
	}
}

// selectedContainer returns the container under the cursor.
func (m *model) selectedContainer() (*container.Container, bool) {
	if m.selected >= len(m.rows) {
		return nil, false
	}
	return m.root.Find(m.rows[m.selected].id)
}

func (m *model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// layout sizes the event viewport to whatever the tree leaves over.
func (m *model) layout() {
	if !m.ready {
		return
	}
	logHeight := m.height - headerLines - statusLines - treeChrome - len(m.rows)
	if logHeight < 3 {
		logHeight = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = logHeight
}

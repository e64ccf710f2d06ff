package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/types"
)

// Init starts the spinner and the redraw ticker.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles incoming messages and updates the model state.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case eventMsg:
		if line := formatEvent(msg.event); line != "" {
			m.appendLog(line)
			m.syncViewport()
		}
		if msg.event.Type == types.EventTypeChildAdded || msg.event.Type == types.EventTypeDestroyed {
			m.rebuildRows()
			m.layout()
		}

	case initDoneMsg:
		m.initializing = false
		m.initErr = msg.err
		if msg.err != nil {
			m.status = fmt.Sprintf("initialization failed: %v", msg.err)
		} else {
			m.status = "running"
		}
		m.rebuildRows()
		m.layout()

	case refreshDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("refresh %s: %v", msg.id, msg.err)
		} else {
			m.status = fmt.Sprintf("refreshed %s", msg.id)
		}
		m.rebuildRows()

	case tickMsg:
		m.rebuildRows()
		cmds = append(cmds, tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}
	case "r":
		c, ok := m.selectedContainer()
		if !ok {
			return nil
		}
		m.status = fmt.Sprintf("refreshing %s…", c.Name())
		return refreshCmd(c)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

// refreshCmd requests a manual pass without blocking the program.
func refreshCmd(c *container.Container) tea.Cmd {
	return func() tea.Msg {
		err := c.Refresh(context.Background())
		return refreshDoneMsg{id: c.ID(), err: err}
	}
}

func (m *model) syncViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.log, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

package tui

import (
	"fmt"
	"strings"
)

// View renders the TUI.
func (m *model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(treeBoxStyle.Render(m.renderTree()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m *model) renderHeader() string {
	header := headerStyle.Render("harvest") + " " + nameStyle.Render(m.title)
	if m.initializing {
		header += " " + m.spinner.View() + tipsStyle.Render(" initializing")
	}
	return header
}

func (m *model) renderTree() string {
	lines := make([]string, 0, len(m.rows))
	for i, r := range m.rows {
		lines = append(lines, m.renderRow(i, r))
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderRow(i int, r row) string {
	cursor := "  "
	name := nameStyle.Render(r.name)
	if i == m.selected {
		cursor = selectedStyle.Render("▸ ")
		name = selectedStyle.Render(r.name)
	}

	state := lifecycleStyle(r.lifecycle)
	line := fmt.Sprintf("%s%s%s %s %s  %s",
		cursor,
		strings.Repeat("  ", r.depth),
		state.Render(lifecycleGlyph(r.lifecycle)),
		name,
		state.Render(string(r.lifecycle)),
		tipsStyle.Render(fmt.Sprintf("count %d · passes %d", r.count, r.passes)),
	)

	if r.task != nil {
		line += tipsStyle.Render(fmt.Sprintf(" · task %d/%d", r.task.CurrentCount, r.task.TargetCount))
	}
	if r.inFlight {
		line += " " + m.spinner.View()
	} else if r.queued > 0 {
		line += tipsStyle.Render(fmt.Sprintf(" · %d queued", r.queued))
	}
	if r.failures > 0 && r.lastError != "" {
		line += "\n" + strings.Repeat("  ", r.depth+2) + errorStyle.Render(fmt.Sprintf("%d failed: %s", r.failures, r.lastError))
	}
	return line
}

func (m *model) renderStatusBar() string {
	help := "↑/↓ select · r refresh · pgup/pgdown scroll · q quit"
	if m.status == "" {
		return statusBarStyle.Render(help)
	}
	status := m.status
	if m.initErr != nil {
		status = errorStyle.Render(status)
	}
	return statusBarStyle.Render(status + "  │  " + help)
}

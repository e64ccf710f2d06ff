package headless

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the console verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only warnings, errors and the final summary
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows lifecycle progress (default)
	LogLevelNormal
	// LogLevelVerbose adds every refresh pass and operation
	LogLevelVerbose
	// LogLevelDebug adds trigger-level detail
	LogLevelDebug
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7DCFFF"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9ECE6A"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB3BA"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0AF68"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7768E"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#565F89"))
)

// Logger prints human-readable progress for a headless run. Event
// handlers call it from container goroutines, so writes are serialized.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	writer io.Writer

	stepCount int
}

// NewLogger creates a console logger writing to stdout
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(level, os.Stdout)
}

// NewLoggerTo creates a console logger writing to w
func NewLoggerTo(level LogLevel, w io.Writer) *Logger {
	return &Logger{level: level, writer: w}
}

func (l *Logger) printf(level LogLevel, style lipgloss.Style, format string, args ...interface{}) {
	if l.level < level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.writer, style.Render(fmt.Sprintf(format, args...)))
}

// Header prints a prominent header message
func (l *Logger) Header(message string) {
	rule := strings.Repeat("=", 70)
	l.printf(LogLevelNormal, headerStyle, "\n%s\n  %s\n%s", rule, message, rule)
}

// Section prints a section divider
func (l *Logger) Section(title string) {
	l.printf(LogLevelNormal, sectionStyle, "\n▶ %s\n%s", title, strings.Repeat("─", 50))
}

// Step prints a numbered step
func (l *Logger) Step(message string) {
	l.mu.Lock()
	l.stepCount++
	n := l.stepCount
	l.mu.Unlock()
	l.printf(LogLevelNormal, sectionStyle, "\n[%d] %s", n, message)
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...interface{}) {
	l.printf(LogLevelNormal, successStyle, "✓ "+format, args...)
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf(LogLevelNormal, infoStyle, format, args...)
}

// Warningf prints a warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.printf(LogLevelQuiet, warnStyle, "⚠ Warning: "+format, args...)
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(LogLevelQuiet, errorStyle, "✗ Error: "+format, args...)
}

// Verbosef prints only in verbose mode
func (l *Logger) Verbosef(format string, args ...interface{}) {
	l.printf(LogLevelVerbose, mutedStyle, "  "+format, args...)
}

// Debugf prints only in debug mode
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(LogLevelDebug, mutedStyle, "  [DEBUG] "+format, args...)
}

// Summary prints the final run summary. It is shown at every level.
func (l *Logger) Summary(summary *ExecutionSummary) {
	var b strings.Builder
	rule := strings.Repeat("=", 70)

	fmt.Fprintf(&b, "\n%s\n", headerStyle.Render(rule))
	fmt.Fprintf(&b, "%s\n", headerStyle.Render("  Harvest Summary: "+summary.Job))
	fmt.Fprintf(&b, "%s\n\n", headerStyle.Render(rule))

	fmt.Fprintf(&b, "  Status:     %s\n", statusStyle(summary.Status).Render(strings.ToUpper(summary.Status)))
	fmt.Fprintf(&b, "  Duration:   %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Items:      %s\n", formatNumber(summary.Metrics.Items))
	fmt.Fprintf(&b, "  Containers: %d\n", summary.Metrics.Containers)
	fmt.Fprintf(&b, "  Passes:     %d (%d failed)\n", summary.Metrics.Passes, summary.Metrics.FailedPasses)
	fmt.Fprintf(&b, "  Triggers:   %d debounced, %d coalesced\n", summary.Metrics.DebouncedTriggers, summary.Metrics.CoalescedTriggers)
	if summary.Metrics.OperationsExecuted > 0 {
		fmt.Fprintf(&b, "  Operations: %d executed\n", summary.Metrics.OperationsExecuted)
	}
	if summary.Metrics.ChildFailures > 0 {
		fmt.Fprintf(&b, "  %s\n", warnStyle.Render(fmt.Sprintf("Child failures: %d", summary.Metrics.ChildFailures)))
	}
	if summary.Error != "" {
		fmt.Fprintf(&b, "\n  %s\n", errorStyle.Render("Error: "+summary.Error))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.writer, b.String())
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case statusSuccess:
		return successStyle
	case statusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

// parseLogLevel converts a verbosity string to a LogLevel
func parseLogLevel(verbosity string) LogLevel {
	switch strings.ToLower(verbosity) {
	case "quiet":
		return LogLevelQuiet
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

// formatNumber formats a number with thousand separators
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// Package tui provides an interactive terminal view of a live container tree.
//
// The package is split into multiple files:
// - executor.go: Executor and program lifecycle
// - model.go: Core model structure and tree flattening
// - update.go: Bubble Tea Update function and key handling
// - view.go: Bubble Tea View function and rendering
// - events.go: Container event messages and formatting
// - styles.go: Color schemes and styling
package tui

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/harvest/pkg/container"
	"github.com/entrhq/harvest/pkg/logging"
	"github.com/entrhq/harvest/pkg/types"
)

// Executor runs a container tree behind a Bubble Tea program until the
// user quits.
type Executor struct {
	root    *container.Container
	driver  container.Driver
	title   string
	logger  *logging.Logger
	program *tea.Program

	mu      sync.Mutex
	watched map[string]bool
}

// NewExecutor creates a TUI executor for an uninitialized root container.
func NewExecutor(root *container.Container, driver container.Driver, title string) *Executor {
	if title == "" {
		title = root.Name()
	}
	return &Executor{
		root:    root,
		driver:  driver,
		title:   title,
		logger:  root.Logger().Named("tui"),
		watched: make(map[string]bool),
	}
}

// Run starts the program, initializes the root in the background and
// blocks until the user exits or ctx is canceled. The tree is cleaned up
// before Run returns.
func (e *Executor) Run(ctx context.Context) error {
	m := initialModel(e.root, e.title)

	e.program = tea.NewProgram(
		&m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	e.watch(e.root)

	go func() {
		err := e.root.Initialize(ctx, e.driver)
		if err != nil {
			e.logger.Warnf("Initialization of %s failed: %v", e.root.ID(), err)
		}
		e.program.Send(initDoneMsg{err: err})
	}()

	_, err := e.program.Run()
	e.root.Cleanup()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to run TUI program: %w", err)
	}
	return nil
}

// watch forwards the events of c, and of every child it adds, to the program.
func (e *Executor) watch(c *container.Container) {
	e.mu.Lock()
	if e.watched[c.ID()] {
		e.mu.Unlock()
		return
	}
	e.watched[c.ID()] = true
	e.mu.Unlock()

	c.Subscribe(func(event *types.ContainerEvent) {
		if event.Type == types.EventTypeChildAdded {
			if child, ok := c.Find(event.ChildID); ok {
				e.watch(child)
			}
		}
		e.program.Send(eventMsg{event: event})
	})
}

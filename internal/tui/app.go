// Package tui is the visualization driver: a bubbletea program that polls the
// record queue, applies records to the container model and animates them.
package tui

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/channel"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/logging"
	tea "github.com/charmbracelet/bubbletea"
)

// Renderer is what the commands drive: Start is handed to the choreographer
// as its starter and Run blocks until the user or the context ends it.
type Renderer interface {
	Start(initial []int64, b bounds.Bounds) error
	Exited(err error)
	Run(ctx context.Context) error
}

// App wraps the Bubbletea program
type App struct {
	program *tea.Program
	bus     *event.Bus
	subID   string
}

var _ Renderer = (*App)(nil)

// New creates a new TUI application. Lifecycle events published on bus are
// forwarded to the program.
func New(settings Settings, queue *channel.Queue, bus *event.Bus, logger *logging.Logger, opts ...tea.ProgramOption) *App {
	model := NewModel(settings, queue, logger)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	a := &App{
		program: tea.NewProgram(model, opts...),
		bus:     bus,
	}
	if bus != nil {
		a.subID = bus.SubscribeAll(func(ev event.Event) {
			a.program.Send(EventMsg{Event: ev})
		})
	}
	return a
}

// Start hands the initial snapshot to the program. It is called on the
// debugger goroutine and blocks until the program has taken the message.
func (a *App) Start(initial []int64, b bounds.Bounds) error {
	values := make([]int64, len(initial))
	copy(values, initial)
	a.program.Send(StartedMsg{Values: values, Bounds: b})
	return nil
}

// Exited tells the program that the traced program is gone.
func (a *App) Exited(err error) {
	a.program.Send(ExitedMsg{Err: err})
}

// Run starts the TUI application
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.bus != nil {
			a.bus.Unsubscribe(a.subID)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigChan:
			a.program.Quit()
		case <-ctx.Done():
			a.program.Quit()
		case <-done:
		}
	}()

	_, err := a.program.Run()
	return err
}

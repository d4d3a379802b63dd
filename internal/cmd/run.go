package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/sortwatch/internal/channel"
	"github.com/Iron-Ham/sortwatch/internal/choreo"
	"github.com/Iron-Ham/sortwatch/internal/config"
	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/gdbmi"
	"github.com/Iron-Ham/sortwatch/internal/logging"
	"github.com/Iron-Ham/sortwatch/internal/tui"
	"github.com/Iron-Ham/sortwatch/internal/tui/headless"
	"github.com/Iron-Ham/sortwatch/internal/util"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var runCmd = &cobra.Command{
	Use:   "run <program> [args...]",
	Short: "Run a program under GDB and animate its sort",
	Long: `Run a program under GDB and animate the sort it performs.

The program must call the configured entry symbol (sites.entry) on a
contiguous container of fixed-size integer elements. Arguments after the
program are passed to it; put them after -- when they start with a dash.

Examples:
  sortwatch run ./sort_demo
  sortwatch run --entry 'my_sort(int*, int*)' ./bench -- -n 32
  sortwatch run --headless ./sort_demo > trace.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.PersistentFlags().Bool("headless", false, "print one line per operation instead of the full-screen view")
	_ = viper.BindPFlag("visual.headless", rootCmd.PersistentFlags().Lookup("headless"))

	runCmd.Flags().String("entry", "", "symbol of the sorting function (overrides sites.entry)")
	runCmd.Flags().String("gdb", "", "path to the gdb binary (overrides gdb.path)")
	_ = viper.BindPFlag("sites.entry", runCmd.Flags().Lookup("entry"))
	_ = viper.BindPFlag("gdb.path", runCmd.Flags().Lookup("gdb"))

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	inferiorOut := io.Discard
	if p.headless {
		inferiorOut = cmd.ErrOrStderr()
	}
	dbg, err := gdbmi.Start(cmd.Context(), gdbmi.Config{
		Path:           cfg.GDB.Path,
		Args:           cfg.GDB.Args,
		Program:        args[0],
		ProgramArgs:    args[1:],
		MinVersion:     cfg.GDB.MinVersion,
		InferiorOutput: inferiorOut,
		Logger:         p.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := dbg.Close(); err != nil {
			p.logger.Debug("gdb exited", "error", err.Error())
		}
	}()

	return p.watch(cmd.Context(), dbg)
}

// pipeline is the queue, the lifecycle bus and the renderer shared by the
// commands that animate a sort.
type pipeline struct {
	cfg      *config.Config
	logger   *logging.Logger
	queue    *channel.Queue
	bus      *event.Bus
	renderer tui.Renderer
	headless bool
}

func newPipeline(cmd *cobra.Command, cfg *config.Config) (*pipeline, error) {
	out := cmd.OutOrStdout()
	isHeadless := cfg.Visual.Headless || !isTerminal(out)

	// The full-screen view owns the terminal, so its logs go to a file.
	logDir := cfg.Logging.Dir
	if !isHeadless {
		logDir = cfg.Logging.LogDir()
	}
	logger, err := logging.NewLogger(logDir, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	p := &pipeline{
		cfg:      cfg,
		logger:   logger,
		queue:    channel.New(),
		bus:      event.NewBus(logger),
		headless: isHeadless,
	}
	if isHeadless {
		p.renderer = headless.New(out, cfg.Visual.PollInterval, p.queue, p.bus, logger)
	} else {
		settings := tui.NewSettings(cfg.Visual, cfg.Sites.Entry)
		p.renderer = tui.New(settings, p.queue, p.bus, logger, tea.WithAltScreen(), tea.WithOutput(out))
	}
	return p, nil
}

// watch instruments dbg and runs it alongside the renderer until both are
// done. The program is held where the algorithm returns until the renderer
// closes, then runs to its exit. Quitting the renderer before the session
// ends cancels the debugger.
func (p *pipeline) watch(ctx context.Context, dbg debugger.Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := choreo.Install(ctx, dbg, p.cfg.ChoreoOptions(), choreo.Deps{
		Queue:  p.queue,
		Start:  p.renderer.Start,
		Bus:    p.bus,
		Logger: p.logger,
	})
	if err != nil {
		return err
	}

	held := func() bool { return session.State() == choreo.StateFinished }
	release := make(chan struct{})

	var debugErr error
	var exited bool
	var wg conc.WaitGroup
	wg.Go(func() {
		debugErr = drive(ctx, dbg, p.logger, held, release)
		exited = ctx.Err() == nil
		p.renderer.Exited(debugErr)
	})

	renderErr := p.renderer.Run(ctx)
	if n := p.bus.SubscriptionCount(); n > 0 {
		p.logger.Warn("renderer left bus subscriptions", "count", n)
	}
	if session.State().Terminal() {
		close(release)
	} else {
		cancel()
	}
	wg.Wait()

	switch {
	case debugErr != nil:
		return debugErr
	case renderErr != nil:
		return fmt.Errorf("renderer error: %w", renderErr)
	case session.State() == choreo.StateAborted:
		return session.Err()
	case exited && session.State() == choreo.StateArmed:
		return fmt.Errorf("%w: %s", errNotCalled, p.cfg.Sites.Entry)
	}
	return nil
}

func (p *pipeline) close() {
	_ = p.logger.Close()
}

// drive resumes dbg until the program exits. A halt while held reports true
// parks the program until release is closed; other stops without an action,
// such as signals, are logged and resumed. held may be nil. Cancellation is
// not an error.
func drive(ctx context.Context, dbg debugger.Session, logger *logging.Logger, held func() bool, release <-chan struct{}) error {
	for {
		stop, err := dbg.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if stop.Reason == debugger.StopExited {
			logger.Info("program exited", "exit_code", stop.ExitCode)
			return nil
		}
		if held != nil && held() {
			logger.Debug("program held", "pc", util.Hex(stop.PC))
			select {
			case <-release:
			case <-ctx.Done():
				return nil
			}
			continue
		}
		logger.Debug("program halted without an action", "pc", util.Hex(stop.PC))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var errNotCalled = errors.New("the program exited before the function was called")

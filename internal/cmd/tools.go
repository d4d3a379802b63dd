package cmd

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/Iron-Ham/sortwatch/internal/config"
	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/disasm"
	"github.com/Iron-Ham/sortwatch/internal/gdbmi"
	"github.com/Iron-Ham/sortwatch/internal/logging"
	"github.com/Iron-Ham/sortwatch/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var breakJumpCmd = &cobra.Command{
	Use:   "break-jump <program> [args...]",
	Short: "Place breakpoints on the jump instructions of a function",
	Long: `Run a program under GDB until a function is entered, then place a
breakpoint on its first jmp/jmpq instruction, or on every one with --all.

With --follow the program keeps running and each hit is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, args, func(ctx context.Context, dbg debugger.Session, logger *logging.Logger) error {
			return breakOn(ctx, dbg, cmd.OutOrStdout(), logger, disasm.JumpMnemonics)
		})
	},
}

var breakReturnCmd = &cobra.Command{
	Use:   "break-return <program> [args...]",
	Short: "Place breakpoints on the return instructions of a function",
	Long: `Run a program under GDB until a function is entered, then place a
breakpoint on its first ret/retq instruction, or on every one with --all.

With --follow the program keeps running and each hit is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, args, func(ctx context.Context, dbg debugger.Session, logger *logging.Logger) error {
			return breakOn(ctx, dbg, cmd.OutOrStdout(), logger, disasm.ReturnMnemonics)
		})
	},
}

var continueReturnCmd = &cobra.Command{
	Use:   "continue-return <program> [args...]",
	Short: "Step a function until its next return instruction",
	Long: `Run a program under GDB until a function is entered, then single-step
until the next instruction to execute is a return.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, args, func(ctx context.Context, dbg debugger.Session, _ *logging.Logger) error {
			return continueReturn(ctx, dbg, cmd.OutOrStdout())
		})
	},
}

var stepUserCmd = &cobra.Command{
	Use:   "step-user <program> [args...]",
	Short: "Step into instructions until user code is reached",
	Long: `Run a program under GDB until a function is entered, then step into
instructions until execution reaches another function that is not library
code. Library code is any function matching --ignore (default:
sites.step_ignore) or without a symbol.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, args, func(ctx context.Context, dbg debugger.Session, _ *logging.Logger) error {
			ignore, err := stepIgnore(cmd)
			if err != nil {
				return err
			}
			fn, err := disasm.StepToUser(ctx, dbg, ignore, toolLimit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped in %s\n", fn)
			return nil
		})
	},
}

var finishUserCmd = &cobra.Command{
	Use:   "finish-user <program> [args...]",
	Short: "Run until a function returns to user code",
	Long: `Run a program under GDB until a function is entered, then finish
frames until the caller is not library code. Library code is any function
matching --ignore (default: sites.step_ignore) or without a symbol.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, args, func(ctx context.Context, dbg debugger.Session, _ *logging.Logger) error {
			ignore, err := stepIgnore(cmd)
			if err != nil {
				return err
			}
			fn, err := disasm.FinishToUser(ctx, dbg, ignore)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "returned to %s\n", fn)
			return nil
		})
	},
}

var (
	toolAt     string
	toolAll    bool
	toolFollow bool
	toolLimit  int
	toolIgnore string
)

func init() {
	for _, c := range []*cobra.Command{stepUserCmd, finishUserCmd} {
		c.Flags().StringVar(&toolIgnore, "ignore", "", "regular expression for library functions (default: sites.step_ignore)")
	}
	stepUserCmd.Flags().IntVar(&toolLimit, "limit", disasm.DefaultStepLimit, "maximum number of instructions to step")
	for _, c := range []*cobra.Command{breakJumpCmd, breakReturnCmd, continueReturnCmd, stepUserCmd, finishUserCmd} {
		c.Flags().StringVar(&toolAt, "at", "", "function to stop in (default: sites.entry)")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{breakJumpCmd, breakReturnCmd} {
		c.Flags().BoolVar(&toolAll, "all", false, "place a breakpoint on every match, not only the first")
		c.Flags().BoolVarP(&toolFollow, "follow", "f", false, "keep running and report every hit")
	}
	continueReturnCmd.Flags().IntVar(&toolLimit, "limit", disasm.DefaultStepLimit, "maximum number of instructions to step")
}

// runTool starts GDB on the program, halts it in the --at function and
// hands the halted session to fn.
func runTool(cmd *cobra.Command, args []string, fn func(context.Context, debugger.Session, *logging.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx := cmd.Context()
	dbg, err := gdbmi.Start(ctx, gdbmi.Config{
		Path:           cfg.GDB.Path,
		Args:           cfg.GDB.Args,
		Program:        args[0],
		ProgramArgs:    args[1:],
		MinVersion:     cfg.GDB.MinVersion,
		InferiorOutput: cmd.ErrOrStderr(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = dbg.Close() }()

	symbol := toolAt
	if symbol == "" {
		symbol = cfg.Sites.Entry
	}
	if err := haltIn(ctx, dbg, symbol); err != nil {
		return err
	}
	return fn(ctx, dbg, logger)
}

// haltIn runs the program until symbol is entered and leaves it halted
// there, with symbol's frame selected.
func haltIn(ctx context.Context, dbg debugger.Session, symbol string) error {
	id, err := dbg.PlaceBreakpoint(ctx, symbol)
	if err != nil {
		return fmt.Errorf("cannot place breakpoint on %q: %w", symbol, err)
	}
	stop, err := dbg.Run(ctx)
	if err != nil {
		return err
	}
	if stop.Reason == debugger.StopExited {
		return fmt.Errorf("%w: %s", errNotCalled, symbol)
	}
	return dbg.RemoveBreakpoint(ctx, id)
}

// stepIgnore compiles the --ignore pattern, falling back to
// sites.step_ignore when the flag is not given.
func stepIgnore(cmd *cobra.Command) (*regexp.Regexp, error) {
	pattern := toolIgnore
	if !cmd.Flags().Changed("ignore") {
		pattern = viper.GetString("sites.step_ignore")
	}
	ignore, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid --ignore pattern: %w", err)
	}
	return ignore, nil
}

func breakOn(ctx context.Context, dbg debugger.Session, out io.Writer, logger *logging.Logger, mnemonics []string) error {
	placed, err := disasm.BreakOn(ctx, dbg, mnemonics, toolAll)
	for _, p := range placed {
		fmt.Fprintln(out, p.Describe())
	}
	if err != nil || !toolFollow {
		return err
	}

	for _, p := range placed {
		dbg.OnHit(p.ID, func(context.Context) (bool, error) {
			fmt.Fprintf(out, "hit %s\n", p.Describe())
			return true, nil
		})
	}
	return drive(ctx, dbg, logger, nil, nil)
}

func continueReturn(ctx context.Context, dbg debugger.Session, out io.Writer) error {
	insn, err := disasm.ContinueToReturn(ctx, dbg, toolLimit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stopped before %s: %s\n", util.Hex(insn.Addr), insn.Asm)
	return nil
}

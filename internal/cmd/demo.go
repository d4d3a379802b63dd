package cmd

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/sortwatch/internal/config"
	"github.com/Iron-Ham/sortwatch/internal/sim"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Animate a simulated sort without a debugger",
	Long: `Animate a sort performed by a simulated program.

The simulated program shuffles a vector of wrapped ints and sorts it with
the same swap and move primitives a C++ standard library sort uses. It is
instrumented exactly as a program under GDB would be, so no debugger or
compiler is needed.

Examples:
  sortwatch demo
  sortwatch demo --algorithm heap --size 24
  sortwatch demo --headless --seed 7`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Int("size", 0, "number of elements (overrides sim.size)")
	demoCmd.Flags().Uint64("seed", 0, "shuffle seed (overrides sim.seed)")
	demoCmd.Flags().String("algorithm", "", fmt.Sprintf("sort to run: %v (overrides sim.algorithm)", sim.Algorithms))
	_ = viper.BindPFlag("sim.size", demoCmd.Flags().Lookup("size"))
	_ = viper.BindPFlag("sim.seed", demoCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("sim.algorithm", demoCmd.Flags().Lookup("algorithm"))

	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = demoConfig(cfg)

	prog, err := sim.New(cfg.SimOptions())
	if err != nil {
		return err
	}
	defer prog.Close()

	p, err := newPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	if err := p.watch(cmd.Context(), prog); err != nil {
		return err
	}

	if p.headless {
		values := prog.Values()
		fmt.Fprintf(cmd.OutOrStdout(), "result %v sorted=%v\n", values, slices.IsSorted(values))
	}
	return nil
}

// demoConfig points the sites and container expressions at the simulated
// program, whatever the configured target is. Element layout and
// everything else is kept.
func demoConfig(cfg *config.Config) *config.Config {
	defaults := config.Default()
	c := *cfg
	c.Sites = defaults.Sites

	container := defaults.Container
	container.Stride = cfg.Container.Stride
	container.ValueSize = cfg.Container.ValueSize
	c.Container = container
	return &c
}

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/sortwatch/internal/choreo"
	"github.com/Iron-Ham/sortwatch/internal/disasm"
	"github.com/Iron-Ham/sortwatch/internal/sim"
	"github.com/spf13/viper"
)

// Config represents the complete sortwatch configuration
type Config struct {
	Sites     SitesConfig     `mapstructure:"sites" yaml:"sites"`
	Container ContainerConfig `mapstructure:"container" yaml:"container"`
	Visual    VisualConfig    `mapstructure:"visual" yaml:"visual"`
	GDB       GDBConfig       `mapstructure:"gdb" yaml:"gdb"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Sim       SimConfig       `mapstructure:"sim" yaml:"sim"`
}

// SitesConfig names the functions breakpoints are placed on
type SitesConfig struct {
	// Entry is the sort algorithm whose run is visualized
	Entry string `mapstructure:"entry" yaml:"entry"`
	// Swap is the element swap primitive
	Swap          string `mapstructure:"swap" yaml:"swap"`
	MoveConstruct string `mapstructure:"move_construct" yaml:"move_construct"`
	MoveAssign    string `mapstructure:"move_assign" yaml:"move_assign"`
	// StepIgnore matches the library functions step-user and finish-user
	// pass through
	StepIgnore string `mapstructure:"step_ignore" yaml:"step_ignore"`
}

// ContainerConfig describes how to read the container and call operands
type ContainerConfig struct {
	// Begin and End are evaluated in the caller of the entry function
	Begin string `mapstructure:"begin" yaml:"begin"`
	End   string `mapstructure:"end" yaml:"end"`
	// Stride is the element size in bytes (default: 4)
	Stride uint64 `mapstructure:"stride" yaml:"stride"`
	// ValueSize is the width of the displayed integer (1, 2, 4 or 8)
	ValueSize    int      `mapstructure:"value_size" yaml:"value_size"`
	SwapOperands []string `mapstructure:"swap_operands" yaml:"swap_operands"`
	MoveDest     string   `mapstructure:"move_dest" yaml:"move_dest"`
	MoveSource   string   `mapstructure:"move_source" yaml:"move_source"`
}

// VisualConfig controls the renderer
type VisualConfig struct {
	// PollInterval is how often the renderer drains new records
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// SwapDuration is the length of one swap animation
	SwapDuration time.Duration `mapstructure:"swap_duration" yaml:"swap_duration"`
	// MoveDuration is the length of one move animation
	MoveDuration time.Duration `mapstructure:"move_duration" yaml:"move_duration"`
	// FrameRate is the number of animation frames per second
	FrameRate int `mapstructure:"frame_rate" yaml:"frame_rate"`
	// Headless prints one line per operation instead of drawing the TUI
	Headless bool `mapstructure:"headless" yaml:"headless"`
}

// GDBConfig controls the debugger backend
type GDBConfig struct {
	Path string   `mapstructure:"path" yaml:"path"`
	Args []string `mapstructure:"args" yaml:"args"`
	// MinVersion is the oldest gdb accepted, as major.minor
	MinVersion string `mapstructure:"min_version" yaml:"min_version"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR
	Level string `mapstructure:"level" yaml:"level"`
	// Dir receives debug.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SimConfig controls the simulated program used by the demo command
type SimConfig struct {
	Size      int    `mapstructure:"size" yaml:"size"`
	Seed      uint64 `mapstructure:"seed" yaml:"seed"`
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	opts := choreo.DefaultOptions()
	return &Config{
		Sites: SitesConfig{
			Entry:         opts.Symbols[choreo.SiteEntry],
			Swap:          opts.Symbols[choreo.SiteSwap],
			MoveConstruct: opts.Symbols[choreo.SiteMoveConstruct],
			MoveAssign:    opts.Symbols[choreo.SiteMoveAssign],
			StepIgnore:    disasm.DefaultStepIgnore,
		},
		Container: ContainerConfig{
			Begin:        opts.Begin,
			End:          opts.End,
			Stride:       opts.Stride,
			ValueSize:    opts.ValueSize,
			SwapOperands: opts.SwapOperands[:],
			MoveDest:     opts.MoveDest,
			MoveSource:   opts.MoveSource,
		},
		Visual: VisualConfig{
			PollInterval: 500 * time.Millisecond,
			SwapDuration: 400 * time.Millisecond,
			MoveDuration: 200 * time.Millisecond,
			FrameRate:    30,
			Headless:     false,
		},
		GDB: GDBConfig{
			Path:       "gdb",
			Args:       []string{},
			MinVersion: "8.2",
		},
		Logging: LoggingConfig{
			Level: "INFO",
			Dir:   "", // stderr
		},
		Sim: SimConfig{
			Size:      16,
			Seed:      1,
			Algorithm: string(sim.Introsort),
		},
	}
}

// FramePeriod returns the time between two animation frames
func (c *VisualConfig) FramePeriod() time.Duration {
	if c.FrameRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.FrameRate)
}

// ChoreoOptions converts the site and container settings for choreo.Install
func (c *Config) ChoreoOptions() choreo.Options {
	opts := choreo.Options{
		Symbols: map[choreo.Site]string{
			choreo.SiteEntry:         c.Sites.Entry,
			choreo.SiteSwap:          c.Sites.Swap,
			choreo.SiteMoveConstruct: c.Sites.MoveConstruct,
			choreo.SiteMoveAssign:    c.Sites.MoveAssign,
		},
		Begin:      c.Container.Begin,
		End:        c.Container.End,
		Stride:     c.Container.Stride,
		ValueSize:  c.Container.ValueSize,
		MoveDest:   c.Container.MoveDest,
		MoveSource: c.Container.MoveSource,
	}
	copy(opts.SwapOperands[:], c.Container.SwapOperands)
	return opts
}

// SimOptions converts the sim settings. Stride follows the container.
func (c *Config) SimOptions() sim.Options {
	return sim.Options{
		Size:      c.Sim.Size,
		Seed:      c.Sim.Seed,
		Algorithm: sim.Algorithm(c.Sim.Algorithm),
		Stride:    c.Container.Stride,
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Site defaults
	viper.SetDefault("sites.entry", defaults.Sites.Entry)
	viper.SetDefault("sites.swap", defaults.Sites.Swap)
	viper.SetDefault("sites.move_construct", defaults.Sites.MoveConstruct)
	viper.SetDefault("sites.move_assign", defaults.Sites.MoveAssign)
	viper.SetDefault("sites.step_ignore", defaults.Sites.StepIgnore)

	// Container defaults
	viper.SetDefault("container.begin", defaults.Container.Begin)
	viper.SetDefault("container.end", defaults.Container.End)
	viper.SetDefault("container.stride", defaults.Container.Stride)
	viper.SetDefault("container.value_size", defaults.Container.ValueSize)
	viper.SetDefault("container.swap_operands", defaults.Container.SwapOperands)
	viper.SetDefault("container.move_dest", defaults.Container.MoveDest)
	viper.SetDefault("container.move_source", defaults.Container.MoveSource)

	// Visual defaults
	viper.SetDefault("visual.poll_interval", defaults.Visual.PollInterval)
	viper.SetDefault("visual.swap_duration", defaults.Visual.SwapDuration)
	viper.SetDefault("visual.move_duration", defaults.Visual.MoveDuration)
	viper.SetDefault("visual.frame_rate", defaults.Visual.FrameRate)
	viper.SetDefault("visual.headless", defaults.Visual.Headless)

	// GDB defaults
	viper.SetDefault("gdb.path", defaults.GDB.Path)
	viper.SetDefault("gdb.args", defaults.GDB.Args)
	viper.SetDefault("gdb.min_version", defaults.GDB.MinVersion)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Sim defaults
	viper.SetDefault("sim.size", defaults.Sim.Size)
	viper.SetDefault("sim.seed", defaults.Sim.Seed)
	viper.SetDefault("sim.algorithm", defaults.Sim.Algorithm)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sortwatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sortwatch"
	}
	return filepath.Join(home, ".config", "sortwatch")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir returns where debug.log is written when a file is required, as it
// is under the full-screen renderer: the configured dir, else a logs
// directory next to the config file.
func (c *LoggingConfig) LogDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

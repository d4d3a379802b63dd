package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/sortwatch/internal/logging"
	"github.com/Iron-Ham/sortwatch/internal/sim"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "container.stride")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

var versionRegex = regexp.MustCompile(`^\d+\.\d+$`)

const (
	maxFrameRate = 120
	maxSimSize   = 4096
)

// ValidValueSizes returns the supported element value widths in bytes
func ValidValueSizes() []int {
	return []int{1, 2, 4, 8}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSites()...)
	errors = append(errors, c.validateContainer()...)
	errors = append(errors, c.validateVisual()...)
	errors = append(errors, c.validateGDB()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateSim()...)

	return errors
}

func required(field, value string) []ValidationError {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return []ValidationError{{Field: field, Value: value, Message: "must not be empty"}}
}

// validateSites validates the SitesConfig
func (c *Config) validateSites() []ValidationError {
	var errors []ValidationError
	errors = append(errors, required("sites.entry", c.Sites.Entry)...)
	errors = append(errors, required("sites.swap", c.Sites.Swap)...)
	errors = append(errors, required("sites.move_construct", c.Sites.MoveConstruct)...)
	errors = append(errors, required("sites.move_assign", c.Sites.MoveAssign)...)
	if _, err := regexp.Compile(c.Sites.StepIgnore); err != nil {
		errors = append(errors, ValidationError{
			Field:   "sites.step_ignore",
			Value:   c.Sites.StepIgnore,
			Message: fmt.Sprintf("must be a valid regular expression: %v", err),
		})
	}
	return errors
}

// validateContainer validates the ContainerConfig
func (c *Config) validateContainer() []ValidationError {
	var errors []ValidationError

	errors = append(errors, required("container.begin", c.Container.Begin)...)
	errors = append(errors, required("container.end", c.Container.End)...)
	errors = append(errors, required("container.move_dest", c.Container.MoveDest)...)
	errors = append(errors, required("container.move_source", c.Container.MoveSource)...)

	if len(c.Container.SwapOperands) != 2 {
		errors = append(errors, ValidationError{
			Field:   "container.swap_operands",
			Value:   c.Container.SwapOperands,
			Message: "must list exactly two expressions",
		})
	} else {
		for i, expr := range c.Container.SwapOperands {
			errors = append(errors, required(fmt.Sprintf("container.swap_operands[%d]", i), expr)...)
		}
	}

	if c.Container.Stride == 0 {
		errors = append(errors, ValidationError{
			Field:   "container.stride",
			Value:   c.Container.Stride,
			Message: "must be positive",
		})
	}

	if !slices.Contains(ValidValueSizes(), c.Container.ValueSize) {
		errors = append(errors, ValidationError{
			Field:   "container.value_size",
			Value:   c.Container.ValueSize,
			Message: "must be one of: 1, 2, 4, 8",
		})
	} else if c.Container.Stride != 0 && uint64(c.Container.ValueSize) > c.Container.Stride {
		errors = append(errors, ValidationError{
			Field:   "container.value_size",
			Value:   c.Container.ValueSize,
			Message: fmt.Sprintf("must not exceed container.stride (%d)", c.Container.Stride),
		})
	}

	return errors
}

// validateVisual validates the VisualConfig
func (c *Config) validateVisual() []ValidationError {
	var errors []ValidationError

	if c.Visual.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "visual.poll_interval",
			Value:   c.Visual.PollInterval,
			Message: "must be positive",
		})
	}

	// Zero durations disable the animation
	if c.Visual.SwapDuration < 0 {
		errors = append(errors, ValidationError{
			Field:   "visual.swap_duration",
			Value:   c.Visual.SwapDuration,
			Message: "must be non-negative",
		})
	}
	if c.Visual.MoveDuration < 0 {
		errors = append(errors, ValidationError{
			Field:   "visual.move_duration",
			Value:   c.Visual.MoveDuration,
			Message: "must be non-negative",
		})
	}

	if c.Visual.FrameRate < 1 || c.Visual.FrameRate > maxFrameRate {
		errors = append(errors, ValidationError{
			Field:   "visual.frame_rate",
			Value:   c.Visual.FrameRate,
			Message: fmt.Sprintf("must be between 1 and %d", maxFrameRate),
		})
	}

	return errors
}

// validateGDB validates the GDBConfig
func (c *Config) validateGDB() []ValidationError {
	var errors []ValidationError

	errors = append(errors, required("gdb.path", c.GDB.Path)...)

	if !versionRegex.MatchString(c.GDB.MinVersion) {
		errors = append(errors, ValidationError{
			Field:   "gdb.min_version",
			Value:   c.GDB.MinVersion,
			Message: "must be in major.minor form",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	return errors
}

// validateSim validates the SimConfig
func (c *Config) validateSim() []ValidationError {
	var errors []ValidationError

	if c.Sim.Size < 1 || c.Sim.Size > maxSimSize {
		errors = append(errors, ValidationError{
			Field:   "sim.size",
			Value:   c.Sim.Size,
			Message: fmt.Sprintf("must be between 1 and %d", maxSimSize),
		})
	}

	if _, err := sim.ParseAlgorithm(c.Sim.Algorithm); err != nil {
		names := make([]string, len(sim.Algorithms))
		for i, a := range sim.Algorithms {
			names[i] = string(a)
		}
		errors = append(errors, ValidationError{
			Field:   "sim.algorithm",
			Value:   c.Sim.Algorithm,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(names, ", ")),
		})
	}

	return errors
}

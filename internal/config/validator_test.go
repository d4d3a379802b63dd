package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string // empty means the config stays valid
	}{
		{"empty entry symbol", func(c *Config) { c.Sites.Entry = "" }, "sites.entry"},
		{"blank swap symbol", func(c *Config) { c.Sites.Swap = "  " }, "sites.swap"},
		{"empty move construct", func(c *Config) { c.Sites.MoveConstruct = "" }, "sites.move_construct"},
		{"empty move assign", func(c *Config) { c.Sites.MoveAssign = "" }, "sites.move_assign"},
		{"glob entry", func(c *Config) { c.Sites.Entry = "std::sort<*>" }, ""},
		{"bad step ignore", func(c *Config) { c.Sites.StepIgnore = "^(std::" }, "sites.step_ignore"},
		{"empty step ignore", func(c *Config) { c.Sites.StepIgnore = "" }, ""},

		{"empty begin", func(c *Config) { c.Container.Begin = "" }, "container.begin"},
		{"empty end", func(c *Config) { c.Container.End = "" }, "container.end"},
		{"empty move dest", func(c *Config) { c.Container.MoveDest = "" }, "container.move_dest"},
		{"empty move source", func(c *Config) { c.Container.MoveSource = "" }, "container.move_source"},
		{"one swap operand", func(c *Config) { c.Container.SwapOperands = []string{"&a"} }, "container.swap_operands"},
		{"blank swap operand", func(c *Config) { c.Container.SwapOperands = []string{"&a", ""} }, "container.swap_operands[1]"},
		{"zero stride", func(c *Config) { c.Container.Stride = 0 }, "container.stride"},
		{"odd value size", func(c *Config) { c.Container.ValueSize = 3 }, "container.value_size"},
		{"value wider than stride", func(c *Config) { c.Container.ValueSize = 8 }, "container.value_size"},
		{"wide elements", func(c *Config) { c.Container.ValueSize = 8; c.Container.Stride = 16 }, ""},

		{"zero poll interval", func(c *Config) { c.Visual.PollInterval = 0 }, "visual.poll_interval"},
		{"negative swap duration", func(c *Config) { c.Visual.SwapDuration = -time.Millisecond }, "visual.swap_duration"},
		{"negative move duration", func(c *Config) { c.Visual.MoveDuration = -time.Millisecond }, "visual.move_duration"},
		{"zero durations", func(c *Config) { c.Visual.SwapDuration = 0; c.Visual.MoveDuration = 0 }, ""},
		{"zero frame rate", func(c *Config) { c.Visual.FrameRate = 0 }, "visual.frame_rate"},
		{"frame rate too high", func(c *Config) { c.Visual.FrameRate = maxFrameRate + 1 }, "visual.frame_rate"},

		{"empty gdb path", func(c *Config) { c.GDB.Path = "" }, "gdb.path"},
		{"bad min version", func(c *Config) { c.GDB.MinVersion = "8" }, "gdb.min_version"},
		{"newer min version", func(c *Config) { c.GDB.MinVersion = "12.1" }, ""},

		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"lower case log level", func(c *Config) { c.Logging.Level = "debug" }, ""},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, ""},

		{"zero sim size", func(c *Config) { c.Sim.Size = 0 }, "sim.size"},
		{"sim size too large", func(c *Config) { c.Sim.Size = maxSimSize + 1 }, "sim.size"},
		{"unknown algorithm", func(c *Config) { c.Sim.Algorithm = "bogo" }, "sim.algorithm"},
		{"insertion algorithm", func(c *Config) { c.Sim.Algorithm = "insertion" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()

			if tt.wantField == "" {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want no errors", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Sites.Entry = ""
	cfg.Visual.FrameRate = -1
	cfg.Sim.Size = -1

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}

func TestValidValueSizes(t *testing.T) {
	sizes := ValidValueSizes()
	if len(sizes) != 4 || sizes[0] != 1 || sizes[3] != 8 {
		t.Errorf("ValidValueSizes() = %v", sizes)
	}
}

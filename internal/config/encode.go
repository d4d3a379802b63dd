package config

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

var sectionComments = map[string]string{
	"sites":     "Functions to break on in the traced program",
	"container": "Expressions read from the traced program.\nbegin/end are evaluated in the caller of sites.entry.",
	"visual":    "Renderer timing. Durations use Go syntax (500ms, 1s).",
	"gdb":       "Debugger backend used by 'sortwatch run'",
	"logging":   "Levels: DEBUG, INFO, WARN, ERROR. Empty dir logs to stderr.",
	"sim":       "Simulated program used by 'sortwatch demo'.\nAlgorithms: introsort, insertion, heap",
}

// MarshalYAML writes durations in their string form so they read back
// through viper's duration decoding.
func (v VisualConfig) MarshalYAML() (any, error) {
	return struct {
		PollInterval string `yaml:"poll_interval"`
		SwapDuration string `yaml:"swap_duration"`
		MoveDuration string `yaml:"move_duration"`
		FrameRate    int    `yaml:"frame_rate"`
		Headless     bool   `yaml:"headless"`
	}{
		PollInterval: v.PollInterval.String(),
		SwapDuration: v.SwapDuration.String(),
		MoveDuration: v.MoveDuration.String(),
		FrameRate:    v.FrameRate,
		Headless:     v.Headless,
	}, nil
}

// Encode renders cfg as a commented YAML document.
func Encode(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, err
	}
	doc.HeadComment = "sortwatch configuration"

	// Mapping content alternates key and value nodes.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if c, ok := sectionComments[key.Value]; ok {
			key.HeadComment = c
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package styles

import "testing"

func TestStateColor(t *testing.T) {
	tests := []struct {
		state    string
		expected string // Expected color hex value
	}{
		{"running", "#10B981"},
		{"finished", "#A78BFA"},
		{"aborted", "#F87171"},
		{"error", "#F87171"},
		{"paused", "#F59E0B"},
		{"waiting", "#9CA3AF"},
		{"unknown", "#9CA3AF"}, // Should fall back to MutedColor
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := StateColor(tt.state)
			if string(got) != tt.expected {
				t.Errorf("StateColor(%q) = %q, want %q", tt.state, got, tt.expected)
			}
		})
	}
}

func TestStateIcon(t *testing.T) {
	tests := []struct {
		state    string
		expected string
	}{
		{"waiting", "○"},
		{"running", "●"},
		{"paused", "⏸"},
		{"finished", "✓"},
		{"aborted", "✗"},
		{"error", "✗"},
		{"unknown", "●"}, // Should fall back to default
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got := StateIcon(tt.state)
			if got != tt.expected {
				t.Errorf("StateIcon(%q) = %q, want %q", tt.state, got, tt.expected)
			}
		})
	}
}

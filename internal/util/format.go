// Package util holds formatting helpers shared by the renderers and the
// commands.
package util

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Hex formats an address the way debuggers print it: lower-case with a 0x
// prefix and no padding.
func Hex(addr uint64) string {
	return "0x" + strconv.FormatUint(addr, 16)
}

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// Escape sequences are kept and wide characters count for their width, so
// styled renderer output can be cut to the terminal.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate includes the tail in the final width calculation
	return ansi.Truncate(s, maxWidth, "...")
}

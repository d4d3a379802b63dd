package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/sortwatch/internal/container"
	"github.com/Iron-Ham/sortwatch/internal/tui/styles"
	"github.com/Iron-Ham/sortwatch/internal/util"
	"github.com/charmbracelet/lipgloss"
)

// labelWidth is the widest formatted value, so every cell has one width.
func labelWidth(values []int64) int {
	w := 1
	for _, v := range values {
		w = max(w, len(strconv.FormatInt(v, 10)))
	}
	return w
}

type cell struct {
	r     rune
	style *lipgloss.Style
}

// canvas is a grid of styled runes. Later draws overwrite earlier ones, so
// elements in flight are drawn last.
type canvas struct {
	rows [][]cell
}

func newCanvas(width, height int) *canvas {
	c := &canvas{rows: make([][]cell, height)}
	for y := range c.rows {
		c.rows[y] = make([]cell, width)
		for x := range c.rows[y] {
			c.rows[y][x] = cell{r: ' '}
		}
	}
	return c
}

func (c *canvas) text(x, y int, s string, style *lipgloss.Style) {
	if y < 0 || y >= len(c.rows) {
		return
	}
	row := c.rows[y]
	for i, r := range []rune(s) {
		if x+i >= 0 && x+i < len(row) {
			row[x+i] = cell{r: r, style: style}
		}
	}
}

func (c *canvas) render() string {
	lines := make([]string, len(c.rows))
	for y, row := range c.rows {
		var b strings.Builder
		for i := 0; i < len(row); {
			j := i
			var run strings.Builder
			for j < len(row) && row[j].style == row[i].style {
				run.WriteRune(row[j].r)
				j++
			}
			if row[i].style != nil {
				b.WriteString(row[i].style.Render(run.String()))
			} else {
				b.WriteString(run.String())
			}
			i = j
		}
		lines[y] = strings.TrimRight(b.String(), " ")
	}
	return strings.Join(lines, "\n")
}

func (l layout) elementLabel(e container.Element) string {
	return fmt.Sprintf(" %*d ", l.label, e.Value)
}

func (l layout) emptyLabel() string {
	return " " + strings.Repeat("·", l.label) + " "
}

// drawContainer renders the slots, the temporaries and the flight at its
// current progress.
func (m Model) drawContainer() string {
	cols := m.state.Size()
	temps := m.state.Temporaries()
	for _, t := range temps {
		cols = max(cols, t.Pos.Col+1)
	}
	c := newCanvas(cols*m.layout.pitch(), canvasRows)

	for i := range m.state.Size() {
		pos := container.SlotPosition(i)
		x, y := m.layout.place(pos).cell()
		elem, full := m.state.Slot(i)
		if !full || (m.flight != nil && m.flight.hides(pos)) {
			c.text(x, y, m.layout.emptyLabel(), &styles.EmptySlot)
			continue
		}
		c.text(x, y, m.layout.elementLabel(elem), &styles.Element)
	}

	for _, t := range temps {
		if !t.Held || (m.flight != nil && m.flight.hides(t.Pos)) {
			continue
		}
		x, y := m.layout.place(t.Pos).cell()
		c.text(x, y, m.layout.elementLabel(t.Element), &styles.ElementTemp)
	}

	if m.flight != nil {
		for _, s := range m.layout.sprites(m.flight, m.flight.progress(m.now)) {
			x, y := s.at.cell()
			c.text(x, y, m.layout.elementLabel(s.elem), &styles.ElementMoving)
		}
	}
	return c.render()
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	state := m.stateName()
	badge := styles.StatusBadge.Background(styles.StateColor(state)).
		Render(styles.StateIcon(state) + " " + state)
	b.WriteString(styles.Title.Render("sortwatch") + badge + "\n")
	if m.settings.Entry != "" {
		b.WriteString(styles.Subtitle.Render(m.truncate(m.settings.Entry)) + "\n")
	}
	b.WriteString("\n")

	if m.state == nil {
		b.WriteString(styles.Muted.Render("waiting for the algorithm to start...") + "\n")
	} else {
		b.WriteString(styles.Canvas.Render(m.drawContainer()) + "\n")
	}

	if msg := m.diagnostic(); msg != "" {
		b.WriteString(msg + "\n")
	}

	b.WriteString(m.statusBar() + "\n")
	b.WriteString(styles.HelpBar.Render(m.help.View(keys)))
	return b.String()
}

func (m Model) diagnostic() string {
	switch {
	case m.modelErr != nil:
		return styles.ErrorMsg.Render(m.truncate("visualization stopped: " + m.modelErr.Error()))
	case m.sessionErr != nil:
		return styles.ErrorMsg.Render(m.truncate("instrumentation aborted: " + m.sessionErr.Error()))
	case m.exited && m.exitErr != nil:
		return styles.WarningMsg.Render(m.truncate("debugger: " + m.exitErr.Error()))
	case m.exited && m.state == nil:
		return styles.WarningMsg.Render("the program exited before the algorithm was called")
	case m.phase == phaseFinished && len(m.pending) == 0 && m.flight == nil && m.queue.Len() == 0:
		return styles.SuccessMsg.Render(fmt.Sprintf("done: %d operations", m.applied))
	}
	return ""
}

func (m Model) statusBar() string {
	parts := []string{
		fmt.Sprintf("applied %d", m.applied),
		fmt.Sprintf("pending %d", len(m.pending)+m.queue.Len()),
	}
	if m.state != nil {
		parts = append(parts, fmt.Sprintf("temps %d", len(m.state.Temporaries())))
	}
	if m.skipped > 0 {
		parts = append(parts, fmt.Sprintf("skipped %d", m.skipped))
	}
	if m.depth > 0 {
		parts = append(parts, "in swap")
	}
	if m.applied > 0 {
		parts = append(parts, fmt.Sprintf("#%d %s", m.last.Seq, m.last))
	}
	return styles.StatusBar.Render(m.truncate(strings.Join(parts, " · ")))
}

func (m Model) truncate(s string) string {
	if m.width <= 0 {
		return s
	}
	// StatusBar padding takes two columns.
	return util.TruncateANSI(s, m.width-2)
}

package tui

import (
	"math"
	"time"

	"github.com/Iron-Ham/sortwatch/internal/container"
)

// Canvas rows. Swaps travel through the lanes above and below the slots.
const (
	laneAbove = iota
	rowSlots
	laneBelow
	rowTemps
	canvasRows
)

// point is a canvas position in character cells.
type point struct {
	x, y float64
}

func lerp(a, b point, t float64) point {
	return point{x: a.x + (b.x-a.x)*t, y: a.y + (b.y-a.y)*t}
}

// via follows a→mid over the first half of t and mid→b over the second.
func via(a, mid, b point, t float64) point {
	if t < 0.5 {
		return lerp(a, mid, t*2)
	}
	return lerp(mid, b, (t-0.5)*2)
}

func (p point) cell() (x, y int) {
	return int(math.Round(p.x)), int(math.Round(p.y))
}

// layout maps display positions to canvas coordinates.
type layout struct {
	label int // width of a value label
}

// pitch is the distance between two neighbouring columns.
func (l layout) pitch() int {
	return l.label + 3
}

func (l layout) place(p container.Position) point {
	y := rowSlots
	if p.Row == container.RowTemps {
		y = rowTemps
	}
	return point{x: float64(p.Col * l.pitch()), y: float64(y)}
}

// flight is an animation being played.
type flight struct {
	anim     container.Animation
	start    time.Time
	duration time.Duration
}

// progress returns how far along the flight is at now, in [0, 1].
func (f *flight) progress(now time.Time) float64 {
	if f.duration <= 0 {
		return 1
	}
	p := float64(now.Sub(f.start)) / float64(f.duration)
	return math.Max(0, math.Min(1, p))
}

func (f *flight) done(now time.Time) bool {
	return f.progress(now) >= 1
}

// hides reports whether the element drawn at p is the one in flight.
func (f *flight) hides(p container.Position) bool {
	if p == f.anim.To {
		return true
	}
	return f.anim.Kind == container.AnimArc && p == f.anim.From
}

// sprite is an element drawn off its resting position.
type sprite struct {
	elem container.Element
	at   point
}

// sprites returns where the flying elements are at progress t. A swap moves
// its two elements along mirrored arcs over and under the midpoint.
func (l layout) sprites(f *flight, t float64) []sprite {
	from, to := l.place(f.anim.From), l.place(f.anim.To)
	if f.anim.Kind == container.AnimArc {
		mid := (from.x + to.x) / 2
		return []sprite{
			{elem: f.anim.Element, at: via(from, point{x: mid, y: laneAbove}, to, t)},
			{elem: f.anim.Other, at: via(to, point{x: mid, y: laneBelow}, from, t)},
		}
	}
	return []sprite{{elem: f.anim.Element, at: lerp(from, to, t)}}
}

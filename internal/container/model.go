// Package container models the tracked container as the visualization sees
// it: which element sits in which slot, and which elements are parked in
// temporaries outside the container.
//
// A Model is owned by the visualization goroutine. It is never touched from
// the debugger goroutine; records reach it through the channel package.
package container

import (
	"fmt"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/record"
)

// Element is one value of the container together with its visual identity.
// The ID is the element's slot in the initial snapshot and never changes.
type Element struct {
	ID    int
	Value int64
}

// Row is a display row.
type Row int

const (
	// RowSlots is the row holding the container's slots.
	RowSlots Row = iota
	// RowTemps is the row holding temporaries.
	RowTemps
)

// Position is a display position: a column within a row.
type Position struct {
	Row Row
	Col int
}

// SlotPosition returns the display position of slot i.
func SlotPosition(i int) Position {
	return Position{Row: RowSlots, Col: i}
}

// AnimKind selects the path an animation follows.
type AnimKind int

const (
	// AnimDirect moves one element along a straight path.
	AnimDirect AnimKind = iota
	// AnimArc exchanges two elements along mirrored arcs.
	AnimArc
)

// Animation is the request the model hands to the renderer for one applied
// record. For AnimArc, Element travels From→To while Other travels To→From.
type Animation struct {
	Kind    AnimKind
	Element Element
	Other   Element
	From    Position
	To      Position
	Record  record.Record
}

// slot is the content of one container position.
type slot struct {
	elem Element
	full bool
}

// temp is a Temporary Registry entry. Entries outlive their element so a
// later arrival at the same location reuses its display position.
type temp struct {
	token bounds.Token
	pos   Position
	elem  Element
	held  bool
}

// Model is the Container State Model.
type Model struct {
	slots []slot
	temps map[bounds.Token]*temp
	order []*temp
	size  int
}

// New creates a Model from the initial container snapshot.
func New(values []int64) *Model {
	m := &Model{
		slots: make([]slot, len(values)),
		temps: make(map[bounds.Token]*temp),
		size:  len(values),
	}
	for i, v := range values {
		m.slots[i] = slot{elem: Element{ID: i, Value: v}, full: true}
	}
	return m
}

// Size returns the number of slots, which is also the number of elements.
func (m *Model) Size() int {
	return m.size
}

// Apply performs the state transition for r and returns the animation the
// renderer should play. On error the model is left unchanged.
func (m *Model) Apply(r record.Record) (Animation, error) {
	switch r.Kind {
	case record.KindSwap:
		return m.swap(r)
	case record.KindMove:
		return m.move(r)
	case record.KindMoveFromTemp:
		return m.moveFromTemp(r)
	case record.KindMoveToTemp:
		return m.moveToTemp(r)
	default:
		return Animation{}, errors.NewModelError("cannot interpret record", errors.ErrUnknownOperation).
			WithRecord(r.String()).
			WithSeverity(errors.SeverityWarning)
	}
}

func (m *Model) swap(r record.Record) (Animation, error) {
	a, b := r.Src, r.Dst
	if err := m.checkFull(r, a); err != nil {
		return Animation{}, err
	}
	if err := m.checkFull(r, b); err != nil {
		return Animation{}, err
	}

	anim := Animation{
		Kind:    AnimArc,
		Element: m.slots[a].elem,
		Other:   m.slots[b].elem,
		From:    SlotPosition(a),
		To:      SlotPosition(b),
		Record:  r,
	}
	m.slots[a], m.slots[b] = m.slots[b], m.slots[a]
	return anim, nil
}

func (m *Model) move(r record.Record) (Animation, error) {
	if err := m.checkFull(r, r.Src); err != nil {
		return Animation{}, err
	}
	if err := m.checkIndex(r, r.Dst); err != nil {
		return Animation{}, err
	}

	elem := m.slots[r.Src].elem
	m.slots[r.Src] = slot{}
	// The destination is overwritten without checking liveness; a move
	// primitive does not say whether its target held a value.
	m.slots[r.Dst] = slot{elem: elem, full: true}

	return Animation{
		Kind:    AnimDirect,
		Element: elem,
		From:    SlotPosition(r.Src),
		To:      SlotPosition(r.Dst),
		Record:  r,
	}, nil
}

func (m *Model) moveFromTemp(r record.Record) (Animation, error) {
	t, ok := m.temps[r.Token]
	if !ok {
		return Animation{}, errors.NewModelError("move from a temporary that was never registered", errors.ErrMissingTemporary).
			WithRecord(r.String()).
			WithToken(string(r.Token))
	}
	if !t.held {
		return Animation{}, errors.NewModelError("move from a temporary that holds nothing", errors.ErrEmptySlot).
			WithRecord(r.String()).
			WithToken(string(r.Token))
	}
	if err := m.checkIndex(r, r.Dst); err != nil {
		return Animation{}, err
	}

	elem := t.elem
	t.elem = Element{}
	t.held = false
	m.slots[r.Dst] = slot{elem: elem, full: true}

	return Animation{
		Kind:    AnimDirect,
		Element: elem,
		From:    t.pos,
		To:      SlotPosition(r.Dst),
		Record:  r,
	}, nil
}

func (m *Model) moveToTemp(r record.Record) (Animation, error) {
	if err := m.checkFull(r, r.Src); err != nil {
		return Animation{}, err
	}

	t, ok := m.temps[r.Token]
	if !ok {
		t = &temp{token: r.Token, pos: Position{Row: RowTemps, Col: m.nextTempCol()}}
		m.temps[r.Token] = t
		m.order = append(m.order, t)
	}

	elem := m.slots[r.Src].elem
	m.slots[r.Src] = slot{}
	t.elem = elem
	t.held = true

	return Animation{
		Kind:    AnimDirect,
		Element: elem,
		From:    SlotPosition(r.Src),
		To:      t.pos,
		Record:  r,
	}, nil
}

// nextTempCol returns one past the rightmost temporary column assigned so far.
func (m *Model) nextTempCol() int {
	col := 0
	for _, t := range m.order {
		if t.pos.Col >= col {
			col = t.pos.Col + 1
		}
	}
	return col
}

func (m *Model) checkIndex(r record.Record, i int) error {
	if i < 0 || i >= len(m.slots) {
		return errors.NewModelError(fmt.Sprintf("slot index out of range [0, %d)", len(m.slots)), errors.ErrInvalidInput).
			WithRecord(r.String()).
			WithSlot(i)
	}
	return nil
}

func (m *Model) checkFull(r record.Record, i int) error {
	if err := m.checkIndex(r, i); err != nil {
		return err
	}
	if !m.slots[i].full {
		return errors.NewModelError("operation reads an empty slot", errors.ErrEmptySlot).
			WithRecord(r.String()).
			WithSlot(i)
	}
	return nil
}

// Slot returns the element in slot i and whether the slot is occupied.
func (m *Model) Slot(i int) (Element, bool) {
	if i < 0 || i >= len(m.slots) {
		return Element{}, false
	}
	return m.slots[i].elem, m.slots[i].full
}

// Values returns the slot values with ok=false marking empty slots.
func (m *Model) Values() (values []int64, ok []bool) {
	values = make([]int64, len(m.slots))
	ok = make([]bool, len(m.slots))
	for i, s := range m.slots {
		values[i] = s.elem.Value
		ok[i] = s.full
	}
	return values, ok
}

// Temporary is a snapshot of one Temporary Registry entry.
type Temporary struct {
	Token   bounds.Token
	Pos     Position
	Element Element
	Held    bool
}

// Temporaries returns the registry entries in registration order.
func (m *Model) Temporaries() []Temporary {
	out := make([]Temporary, len(m.order))
	for i, t := range m.order {
		out[i] = Temporary{Token: t.token, Pos: t.pos, Element: t.elem, Held: t.held}
	}
	return out
}

// Temporary returns the registry entry for token.
func (m *Model) Temporary(token bounds.Token) (Temporary, bool) {
	t, ok := m.temps[token]
	if !ok {
		return Temporary{}, false
	}
	return Temporary{Token: t.token, Pos: t.pos, Element: t.elem, Held: t.held}, true
}

// Live returns the number of elements currently held by slots and
// temporaries together.
func (m *Model) Live() int {
	n := 0
	for _, s := range m.slots {
		if s.full {
			n++
		}
	}
	for _, t := range m.order {
		if t.held {
			n++
		}
	}
	return n
}

// Check verifies that no element has been lost or duplicated.
func (m *Model) Check() error {
	if live := m.Live(); live != m.size {
		return errors.NewModelError(
			fmt.Sprintf("conservation violated: %d live elements, container size %d", live, m.size),
			errors.ErrInvalidInput)
	}
	seen := make(map[int]bool, m.size)
	mark := func(e Element) error {
		if seen[e.ID] {
			return errors.NewModelError(fmt.Sprintf("element %d held twice", e.ID), errors.ErrInvalidInput)
		}
		seen[e.ID] = true
		return nil
	}
	for _, s := range m.slots {
		if s.full {
			if err := mark(s.elem); err != nil {
				return err
			}
		}
	}
	for _, t := range m.order {
		if t.held {
			if err := mark(t.elem); err != nil {
				return err
			}
		}
	}
	return nil
}

// Package record defines the operation records that cross from the debugger
// goroutine to the visualization goroutine.
//
// A Record is a plain value: slot indices, an opaque temporary token and a
// sequence number. It never carries debugger handles, which are only valid
// inside the halt that produced them.
package record

import (
	"fmt"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
)

// Kind tags the variant of a Record.
type Kind int

const (
	// KindUnknown is any kind this version does not interpret.
	KindUnknown Kind = iota
	// KindSwap exchanges the elements of two slots.
	KindSwap
	// KindMove moves an element from one slot to another.
	KindMove
	// KindMoveFromTemp moves an element out of a temporary into a slot.
	KindMoveFromTemp
	// KindMoveToTemp moves an element out of a slot into a temporary.
	KindMoveToTemp
)

// String returns the record constructor name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSwap:
		return "Swap"
	case KindMove:
		return "Move"
	case KindMoveFromTemp:
		return "MoveFromTemp"
	case KindMoveToTemp:
		return "MoveToTemp"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Record is one interpreted, causally ordered container operation.
//
// Field use per kind:
//
//	Swap(a, b)              Src=a  Dst=b
//	Move(src, dst)          Src    Dst
//	MoveFromTemp(tok, dst)  Token  Dst
//	MoveToTemp(src, tok)    Src    Token
type Record struct {
	Kind  Kind
	Src   int
	Dst   int
	Token bounds.Token
	Seq   uint64
}

// Swap builds Swap(a, b).
func Swap(a, b int) Record {
	return Record{Kind: KindSwap, Src: a, Dst: b}
}

// Move builds Move(src, dst).
func Move(src, dst int) Record {
	return Record{Kind: KindMove, Src: src, Dst: dst}
}

// MoveFromTemp builds MoveFromTemp(token, dst).
func MoveFromTemp(token bounds.Token, dst int) Record {
	return Record{Kind: KindMoveFromTemp, Src: -1, Dst: dst, Token: token}
}

// MoveToTemp builds MoveToTemp(src, token).
func MoveToTemp(src int, token bounds.Token) Record {
	return Record{Kind: KindMoveToTemp, Src: src, Dst: -1, Token: token}
}

// WithSeq returns a copy of r stamped with a sequence number.
func (r Record) WithSeq(seq uint64) Record {
	r.Seq = seq
	return r
}

// String renders the record in constructor notation.
func (r Record) String() string {
	switch r.Kind {
	case KindSwap, KindMove:
		return fmt.Sprintf("%s(%d, %d)", r.Kind, r.Src, r.Dst)
	case KindMoveFromTemp:
		return fmt.Sprintf("%s(%s, %d)", r.Kind, r.Token, r.Dst)
	case KindMoveToTemp:
		return fmt.Sprintf("%s(%d, %s)", r.Kind, r.Src, r.Token)
	default:
		return r.Kind.String()
	}
}

// FromMove interprets a move-construct or move-assign hit from the classified
// destination and source locations. ok is false when both locations are
// temporaries, a shape no sort is expected to produce.
func FromMove(dst, src bounds.Location) (r Record, ok bool) {
	switch {
	case dst.InBounds && src.InBounds:
		return Move(src.Slot, dst.Slot), true
	case dst.InBounds:
		return MoveFromTemp(src.Token, dst.Slot), true
	case src.InBounds:
		return MoveToTemp(src.Slot, dst.Token), true
	default:
		return Record{}, false
	}
}

// Package bounds decides whether an address observed in the traced program
// lies inside the tracked container or in temporary storage.
package bounds

import (
	"fmt"

	"github.com/Iron-Ham/sortwatch/internal/errors"
)

// Token identifies a temporary storage location by its address. Stack slots are
// reused, so tokens are compared by value and never by liveness.
type Token string

// TokenFor formats addr as a Token.
func TokenFor(addr uint64) Token {
	return Token(fmt.Sprintf("0x%x", addr))
}

// Location is the result of classifying an address: either a slot index or a
// temporary token.
type Location struct {
	Slot     int
	Token    Token
	InBounds bool
}

// Slot returns a Location naming slot i.
func Slot(i int) Location {
	return Location{Slot: i, InBounds: true}
}

// Temp returns a Location naming the temporary at addr.
func Temp(addr uint64) Location {
	return Location{Slot: -1, Token: TokenFor(addr)}
}

// String renders the location for logs.
func (l Location) String() string {
	if l.InBounds {
		return fmt.Sprintf("slot %d", l.Slot)
	}
	return fmt.Sprintf("temp %s", l.Token)
}

// Bounds describes the tracked container: Count elements of Stride bytes
// starting at Base. It is sampled once when the algorithm starts and never
// changes for the rest of the session.
type Bounds struct {
	Base   uint64
	Count  int
	Stride uint64
}

// FromRange builds Bounds from a [begin, end) address pair, the way a
// vector's start and finish pointers describe it.
func FromRange(begin, end, stride uint64) (Bounds, error) {
	if end < begin {
		return Bounds{}, errors.NewValidationError("container end precedes begin").
			WithField("container").WithValue(fmt.Sprintf("[0x%x, 0x%x)", begin, end)).
			WithCause(errors.ErrInvalidBounds)
	}
	if stride == 0 {
		return Bounds{}, errors.NewValidationError("stride must be positive").
			WithField("container.stride").WithValue(stride).
			WithCause(errors.ErrInvalidBounds)
	}
	if (end-begin)%stride != 0 {
		return Bounds{}, errors.NewValidationError("container span is not a multiple of the stride").
			WithField("container.stride").WithValue(stride).
			WithCause(errors.ErrInvalidBounds)
	}
	return Bounds{Base: begin, Count: int((end - begin) / stride), Stride: stride}, nil
}

// Validate reports malformed bounds.
func (b Bounds) Validate() error {
	if b.Stride == 0 {
		return errors.NewValidationError("stride must be positive").
			WithField("container.stride").WithValue(b.Stride).
			WithCause(errors.ErrInvalidBounds)
	}
	if b.Count < 0 {
		return errors.NewValidationError("count must not be negative").
			WithField("container.count").WithValue(b.Count).
			WithCause(errors.ErrInvalidBounds)
	}
	return nil
}

// End returns the first address past the container.
func (b Bounds) End() uint64 {
	return b.Base + uint64(b.Count)*b.Stride
}

// Contains reports whether addr falls inside the container.
func (b Bounds) Contains(addr uint64) bool {
	return b.Stride != 0 && addr >= b.Base && addr < b.End()
}

// Classify maps addr to a slot when it lies inside the container and to a
// temporary token otherwise. Malformed bounds classify everything as
// temporary.
func (b Bounds) Classify(addr uint64) Location {
	if !b.Contains(addr) {
		return Temp(addr)
	}
	return Slot(int((addr - b.Base) / b.Stride))
}

// Address returns the address of slot i.
func (b Bounds) Address(i int) uint64 {
	return b.Base + uint64(i)*b.Stride
}

// Package disasm holds the instruction-level helpers: breaking on every jump
// or return of the current function and single-stepping to its return.
package disasm

import (
	"context"
	"fmt"
	"slices"

	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
)

// Mnemonic sets recognised by the commands. Both AT&T suffixed and plain
// spellings are accepted.
var (
	JumpMnemonics   = []string{"jmp", "jmpq"}
	ReturnMnemonics = []string{"ret", "retq", "retl", "retw"}
)

// DefaultStepLimit bounds ContinueToReturn.
const DefaultStepLimit = 1_000_000

// Placed is a breakpoint placed on a matching instruction.
type Placed struct {
	ID          debugger.BreakpointID
	Instruction debugger.Instruction
}

// Scan returns the instructions whose mnemonic is one of mnemonics, in
// address order.
func Scan(insns []debugger.Instruction, mnemonics []string) []debugger.Instruction {
	var out []debugger.Instruction
	for _, insn := range insns {
		if slices.Contains(mnemonics, insn.Mnemonic()) {
			out = append(out, insn)
		}
	}
	return out
}

// FunctionListing disassembles the function owning the selected frame.
func FunctionListing(ctx context.Context, dbg debugger.Session) ([]debugger.Instruction, error) {
	lo, hi, err := dbg.FrameRange(ctx)
	if err != nil {
		return nil, err
	}
	return dbg.Disassemble(ctx, lo, hi)
}

// BreakOn places a breakpoint on the first instruction of the selected
// function matching mnemonics, or on every match when all is set.
func BreakOn(ctx context.Context, dbg debugger.Session, mnemonics []string, all bool) ([]Placed, error) {
	insns, err := FunctionListing(ctx, dbg)
	if err != nil {
		return nil, err
	}
	matches := Scan(insns, mnemonics)
	if len(matches) == 0 {
		return nil, errors.Wrapf(errors.ErrNoMatch, "no %v instruction in the current function", mnemonics)
	}
	if !all {
		matches = matches[:1]
	}

	placed := make([]Placed, 0, len(matches))
	for _, insn := range matches {
		id, err := dbg.PlaceBreakpointAt(ctx, insn.Addr)
		if err != nil {
			return placed, err
		}
		placed = append(placed, Placed{ID: id, Instruction: insn})
	}
	return placed, nil
}

// ContinueToReturn steps over instructions until the next one to execute is
// a return, and returns it. It gives up after limit steps.
func ContinueToReturn(ctx context.Context, dbg debugger.Session, limit int) (debugger.Instruction, error) {
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	listing := map[uint64]debugger.Instruction{}
	refresh := func() error {
		insns, err := FunctionListing(ctx, dbg)
		if err != nil {
			return err
		}
		clear(listing)
		for _, insn := range insns {
			listing[insn.Addr] = insn
		}
		return nil
	}
	if err := refresh(); err != nil {
		return debugger.Instruction{}, err
	}

	for range limit {
		if err := ctx.Err(); err != nil {
			return debugger.Instruction{}, err
		}
		pc, err := dbg.StepInstruction(ctx)
		if err != nil {
			return debugger.Instruction{}, err
		}
		insn, ok := listing[pc]
		if !ok {
			// Stepped into another function, e.g. through a tail jump.
			if err := refresh(); err != nil {
				return debugger.Instruction{}, err
			}
			if insn, ok = listing[pc]; !ok {
				continue
			}
		}
		if slices.Contains(ReturnMnemonics, insn.Mnemonic()) {
			return insn, nil
		}
	}
	return debugger.Instruction{}, errors.Wrapf(errors.ErrNoMatch, "no return within %d steps", limit)
}

// Describe renders a placed breakpoint the way the commands print it.
func (p Placed) Describe() string {
	return fmt.Sprintf("Breakpoint %d at 0x%x: %s", p.ID, p.Instruction.Addr, p.Instruction.Asm)
}

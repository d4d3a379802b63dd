// Package debugger defines the debugging session sortwatch drives: placing
// and toggling breakpoints, attaching actions that run while the traced
// program is halted, reading variables and memory in the selected frame, and
// resuming.
//
// Two implementations exist: internal/gdbmi drives a real GDB over its
// machine interface, and internal/sim runs an in-process traced program.
package debugger

import (
	"context"
	"strings"
)

// BreakpointID identifies a placed breakpoint.
type BreakpointID int

// Action runs synchronously on the debugger goroutine when its breakpoint
// (or return trigger) is hit. Frame and memory reads are only valid for the
// duration of the call. resume=false leaves the program halted and makes Run
// return.
type Action func(ctx context.Context) (resume bool, err error)

// Capabilities describes what the hosting debugger can do.
type Capabilities struct {
	Name    string
	Version string
	// MutableActions is true when actions attached to breakpoints may toggle
	// other breakpoints and resume execution.
	MutableActions bool
}

// StopReason says why Run returned.
type StopReason int

const (
	// StopExited means the traced program terminated.
	StopExited StopReason = iota
	// StopHalted means the program is suspended and awaits a command.
	StopHalted
)

// String returns a lower-case name for the reason.
func (r StopReason) String() string {
	if r == StopExited {
		return "exited"
	}
	return "halted"
}

// Stop is the state the program was left in when Run returned.
type Stop struct {
	Reason   StopReason
	ExitCode int
	PC       uint64
}

// Instruction is one disassembled instruction.
type Instruction struct {
	Addr uint64
	Asm  string
}

// Mnemonic returns the opcode of the instruction, e.g. "jmpq" for
// "jmpq *0x8(%rax)".
func (i Instruction) Mnemonic() string {
	fields := strings.Fields(i.Asm)
	if len(fields) == 0 {
		return ""
	}
	// Skip prefixes such as "rep" or "bnd" that precede the opcode.
	for len(fields) > 1 && isPrefix(fields[0]) {
		fields = fields[1:]
	}
	return fields[0]
}

func isPrefix(s string) bool {
	switch s {
	case "rep", "repz", "repnz", "repe", "repne", "lock", "bnd", "notrack", "data16":
		return true
	}
	return false
}

// Session is the debugging session collaborator.
type Session interface {
	// Capabilities reports the session's action model.
	Capabilities() Capabilities

	// PlaceBreakpoint places a breakpoint on a function by symbol name.
	PlaceBreakpoint(ctx context.Context, symbol string) (BreakpointID, error)
	// PlaceBreakpointAt places a breakpoint at an instruction address.
	PlaceBreakpointAt(ctx context.Context, addr uint64) (BreakpointID, error)
	// RemoveBreakpoint deletes a breakpoint.
	RemoveBreakpoint(ctx context.Context, id BreakpointID) error
	// SetEnabled enables or disables a breakpoint.
	SetEnabled(ctx context.Context, id BreakpointID, enabled bool) error
	// OnHit attaches the action to run when id is hit.
	OnHit(id BreakpointID, action Action)
	// FinishOnReturn installs a one-shot trigger that runs action when the
	// currently selected frame returns.
	FinishOnReturn(ctx context.Context, action Action) error

	// ReadAddress evaluates expr in the selected frame as an address.
	ReadAddress(ctx context.Context, expr string) (uint64, error)
	// ReadWord reads a signed integer of size bytes at addr.
	ReadWord(ctx context.Context, addr uint64, size int) (int64, error)
	// SelectOlderFrame selects the caller of the selected frame.
	SelectOlderFrame(ctx context.Context) error

	// FrameRange returns the [lo, hi) address range of the function that
	// owns the selected frame.
	FrameRange(ctx context.Context) (lo, hi uint64, err error)
	// Disassemble returns the instructions in [lo, hi).
	Disassemble(ctx context.Context, lo, hi uint64) ([]Instruction, error)
	// StepInstruction executes one machine instruction, stepping over calls,
	// and returns the new pc.
	StepInstruction(ctx context.Context) (uint64, error)
	// StepInto executes one machine instruction, following calls, and
	// returns the new pc.
	StepInto(ctx context.Context) (uint64, error)
	// FrameFunction returns the name of the function owning the selected
	// frame, or "" when the debugger has no symbol for it.
	FrameFunction(ctx context.Context) (string, error)

	// Run resumes the program and dispatches actions on each stop until the
	// program exits, an action declines to resume, or a stop without an
	// action occurs.
	Run(ctx context.Context) (Stop, error)
}

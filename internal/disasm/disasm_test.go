package disasm

import (
	"context"
	"testing"

	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
)

// listing mirrors a small switch-heavy function.
var listing = []debugger.Instruction{
	{Addr: 0x1000, Asm: "push   %rbp"},
	{Addr: 0x1001, Asm: "mov    %rsp,%rbp"},
	{Addr: 0x1004, Asm: "cmp    $0x3,%edi"},
	{Addr: 0x1007, Asm: "ja     0x1020"},
	{Addr: 0x1009, Asm: "jmpq   *0x2000(,%rdi,8)"},
	{Addr: 0x1010, Asm: "mov    $0x1,%eax"},
	{Addr: 0x1015, Asm: "jmp    0x1025"},
	{Addr: 0x1020, Asm: "xor    %eax,%eax"},
	{Addr: 0x1025, Asm: "pop    %rbp"},
	{Addr: 0x1026, Asm: "retq   "},
}

type fakeSession struct {
	debugger.Session
	insns  []debugger.Instruction
	placed []uint64
	trace  []uint64
	step   int
}

func (f *fakeSession) FrameRange(context.Context) (uint64, uint64, error) {
	return f.insns[0].Addr, f.insns[len(f.insns)-1].Addr + 1, nil
}

func (f *fakeSession) Disassemble(_ context.Context, lo, hi uint64) ([]debugger.Instruction, error) {
	var out []debugger.Instruction
	for _, insn := range f.insns {
		if insn.Addr >= lo && insn.Addr < hi {
			out = append(out, insn)
		}
	}
	return out, nil
}

func (f *fakeSession) PlaceBreakpointAt(_ context.Context, addr uint64) (debugger.BreakpointID, error) {
	f.placed = append(f.placed, addr)
	return debugger.BreakpointID(len(f.placed)), nil
}

func (f *fakeSession) StepInstruction(context.Context) (uint64, error) {
	if f.step >= len(f.trace) {
		return 0, errors.NewDebuggerError("the program exited", errors.ErrDebuggerExited)
	}
	pc := f.trace[f.step]
	f.step++
	return pc, nil
}

func TestScan(t *testing.T) {
	jumps := Scan(listing, JumpMnemonics)
	if len(jumps) != 2 || jumps[0].Addr != 0x1009 || jumps[1].Addr != 0x1015 {
		t.Errorf("Scan(jumps) = %+v", jumps)
	}
	rets := Scan(listing, ReturnMnemonics)
	if len(rets) != 1 || rets[0].Addr != 0x1026 {
		t.Errorf("Scan(returns) = %+v", rets)
	}
	if got := Scan(nil, JumpMnemonics); len(got) != 0 {
		t.Errorf("Scan(nil) = %+v", got)
	}
}

func TestBreakOn(t *testing.T) {
	tests := []struct {
		name      string
		mnemonics []string
		all       bool
		want      []uint64
	}{
		{"first jump", JumpMnemonics, false, []uint64{0x1009}},
		{"every jump", JumpMnemonics, true, []uint64{0x1009, 0x1015}},
		{"first return", ReturnMnemonics, false, []uint64{0x1026}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeSession{insns: listing}
			placed, err := BreakOn(context.Background(), f, tt.mnemonics, tt.all)
			if err != nil {
				t.Fatalf("BreakOn() error = %v", err)
			}
			if len(f.placed) != len(tt.want) {
				t.Fatalf("placed %x, want %x", f.placed, tt.want)
			}
			for i, addr := range tt.want {
				if f.placed[i] != addr || placed[i].Instruction.Addr != addr {
					t.Errorf("placed[%d] = 0x%x, want 0x%x", i, f.placed[i], addr)
				}
			}
		})
	}
}

func TestBreakOn_NoMatch(t *testing.T) {
	f := &fakeSession{insns: listing[:4]}
	_, err := BreakOn(context.Background(), f, ReturnMnemonics, false)
	if !errors.Is(err, errors.ErrNoMatch) {
		t.Errorf("BreakOn() error = %v, want ErrNoMatch", err)
	}
	if len(f.placed) != 0 {
		t.Errorf("placed %x, want none", f.placed)
	}
}

func TestContinueToReturn(t *testing.T) {
	f := &fakeSession{
		insns: listing,
		trace: []uint64{0x1001, 0x1004, 0x1007, 0x1009, 0x1010, 0x1015, 0x1025, 0x1026, 0x9999},
	}
	insn, err := ContinueToReturn(context.Background(), f, 0)
	if err != nil {
		t.Fatalf("ContinueToReturn() error = %v", err)
	}
	if insn.Addr != 0x1026 {
		t.Errorf("stopped at 0x%x, want 0x1026", insn.Addr)
	}
	if f.step != 8 {
		t.Errorf("stepped %d times, want 8", f.step)
	}
}

func TestContinueToReturn_Limit(t *testing.T) {
	f := &fakeSession{insns: listing, trace: []uint64{0x1001, 0x1004, 0x1007}}
	if _, err := ContinueToReturn(context.Background(), f, 2); !errors.Is(err, errors.ErrNoMatch) {
		t.Errorf("ContinueToReturn() error = %v, want ErrNoMatch", err)
	}
	f = &fakeSession{insns: listing, trace: []uint64{0x1001}}
	if _, err := ContinueToReturn(context.Background(), f, 10); !errors.Is(err, errors.ErrDebuggerExited) {
		t.Errorf("ContinueToReturn() error = %v, want ErrDebuggerExited", err)
	}
}

func TestPlaced_Describe(t *testing.T) {
	p := Placed{ID: 4, Instruction: debugger.Instruction{Addr: 0x1026, Asm: "retq"}}
	if got := p.Describe(); got != "Breakpoint 4 at 0x1026: retq" {
		t.Errorf("Describe() = %q", got)
	}
}

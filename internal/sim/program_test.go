package sim

import (
	"context"
	"slices"
	"testing"

	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
)

func run(t *testing.T, p *Program) debugger.Stop {
	t.Helper()
	stop, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return stop
}

func TestProgram_Sorts(t *testing.T) {
	for _, alg := range Algorithms {
		for _, size := range []int{0, 1, 2, 3, 16, 17, 40, 200} {
			p, err := New(Options{Size: size, Seed: 7, Algorithm: alg})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			stop := run(t, p)
			if stop.Reason != debugger.StopExited {
				t.Fatalf("%s/%d: stop = %v, want exited", alg, size, stop.Reason)
			}
			got := p.Values()
			if !slices.IsSorted(got) {
				t.Errorf("%s/%d: values not sorted: %v", alg, size, got)
			}
			for i, v := range got {
				if v != int64(i+1) {
					t.Errorf("%s/%d: values[%d] = %d, want %d", alg, size, i, v, i+1)
					break
				}
			}
		}
	}
}

func TestProgram_EntryBreakpoint(t *testing.T) {
	ctx := context.Background()
	p, err := New(Options{Size: 8, Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	id, err := p.PlaceBreakpoint(ctx, "std::sort<*>")
	if err != nil {
		t.Fatalf("PlaceBreakpoint() error = %v", err)
	}

	var begin, end uint64
	var initial []int64
	p.OnHit(id, func(ctx context.Context) (bool, error) {
		if err := p.SelectOlderFrame(ctx); err != nil {
			return false, err
		}
		if begin, err = p.ReadAddress(ctx, BeginExpr); err != nil {
			return false, err
		}
		if end, err = p.ReadAddress(ctx, EndExpr); err != nil {
			return false, err
		}
		for a := begin; a < end; a += 4 {
			v, err := p.ReadWord(ctx, a, 4)
			if err != nil {
				return false, err
			}
			initial = append(initial, v)
		}
		return true, nil
	})

	run(t, p)

	if begin != p.Base() || end != p.Base()+8*4 {
		t.Errorf("range = [0x%x, 0x%x), want [0x%x, 0x%x)", begin, end, p.Base(), p.Base()+32)
	}
	if len(initial) != 8 {
		t.Fatalf("read %d values, want 8", len(initial))
	}
	sorted := slices.Clone(initial)
	slices.Sort(sorted)
	if !slices.Equal(sorted, p.Values()) {
		t.Errorf("initial %v is not a permutation of %v", initial, p.Values())
	}
}

func TestProgram_FinishOnReturn(t *testing.T) {
	ctx := context.Background()
	p, err := New(Options{Size: 20, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	entry, _ := p.PlaceBreakpoint(ctx, EntrySymbol)
	swap, _ := p.PlaceBreakpoint(ctx, SwapSymbol)
	if err := p.SetEnabled(ctx, swap, false); err != nil {
		t.Fatal(err)
	}

	var events []string
	p.OnHit(entry, func(ctx context.Context) (bool, error) {
		events = append(events, "entry")
		if err := p.SetEnabled(ctx, swap, true); err != nil {
			return false, err
		}
		return true, p.FinishOnReturn(ctx, func(ctx context.Context) (bool, error) {
			events = append(events, "return")
			return true, p.SetEnabled(ctx, swap, false)
		})
	})
	swaps := 0
	p.OnHit(swap, func(context.Context) (bool, error) {
		swaps++
		return true, nil
	})

	run(t, p)

	if len(events) != 2 || events[0] != "entry" || events[1] != "return" {
		t.Errorf("events = %v, want [entry return]", events)
	}
	if swaps == 0 {
		t.Error("no swap observed while the sort was running")
	}
}

func TestProgram_HaltAndResume(t *testing.T) {
	ctx := context.Background()
	p, err := New(Options{Size: 4, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	id, _ := p.PlaceBreakpoint(ctx, EntrySymbol)
	p.OnHit(id, func(context.Context) (bool, error) { return false, nil })

	stop := run(t, p)
	if stop.Reason != debugger.StopHalted {
		t.Fatalf("first stop = %v, want halted", stop.Reason)
	}
	if _, err := p.ReadAddress(ctx, FirstExpr); err != nil {
		t.Errorf("ReadAddress() while halted error = %v", err)
	}
	if err := p.FinishOnReturn(ctx, func(context.Context) (bool, error) { return true, nil }); err != nil {
		t.Errorf("FinishOnReturn() error = %v", err)
	}

	stop = run(t, p)
	if stop.Reason != debugger.StopExited {
		t.Errorf("second stop = %v, want exited", stop.Reason)
	}
}

func TestProgram_Errors(t *testing.T) {
	ctx := context.Background()
	p, err := New(Options{Size: 4})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.PlaceBreakpoint(ctx, "no_such_function"); !errors.Is(err, &errors.DebuggerError{}) {
		t.Errorf("PlaceBreakpoint(unknown) error = %v, want DebuggerError", err)
	}
	if _, err := p.ReadAddress(ctx, BeginExpr); err == nil {
		t.Error("ReadAddress() before Run should fail")
	}
	if err := p.SetEnabled(ctx, 99, true); err == nil {
		t.Error("SetEnabled(unknown) should fail")
	}
	if _, err := p.PlaceBreakpointAt(ctx, 0x401000); !errors.Is(err, errors.ErrCapabilityUnsupported) {
		t.Errorf("PlaceBreakpointAt() error = %v, want ErrCapabilityUnsupported", err)
	}
	if _, err := New(Options{Algorithm: "bogo"}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("New(bogo) error = %v, want ErrInvalidInput", err)
	}

	id, _ := p.PlaceBreakpoint(ctx, MoveAssignSymbol)
	p.OnHit(id, func(ctx context.Context) (bool, error) {
		_, err := p.ReadAddress(ctx, "&nope")
		return true, err
	})
	if _, err := p.Run(ctx); err == nil {
		t.Error("Run() should return the action's error")
	}
	p.Close()
	if _, err := p.Run(ctx); !errors.Is(err, errors.ErrDebuggerExited) {
		t.Errorf("Run() after Close error = %v, want ErrDebuggerExited", err)
	}
}

func TestProgram_Deterministic(t *testing.T) {
	trace := func() []uint64 {
		ctx := context.Background()
		p, _ := New(Options{Size: 30, Seed: 42})
		id, _ := p.PlaceBreakpoint(ctx, "int_wrapper_t::*")
		var dsts []uint64
		p.OnHit(id, func(ctx context.Context) (bool, error) {
			dst, err := p.ReadAddress(ctx, ThisExpr)
			dsts = append(dsts, dst)
			return true, err
		})
		if _, err := p.Run(ctx); err != nil {
			t.Fatal(err)
		}
		return dsts
	}
	a, b := trace(), trace()
	if len(a) == 0 || !slices.Equal(a, b) {
		t.Errorf("traces differ or are empty: %d vs %d moves", len(a), len(b))
	}
}

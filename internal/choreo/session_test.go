package choreo

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/channel"
	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/logging"
	"github.com/Iron-Ham/sortwatch/internal/record"
)

const (
	base   = 0x1000
	stride = 4
)

// fakeDebugger lets a test fire breakpoint hits and return triggers by hand.
type fakeDebugger struct {
	caps      debugger.Capabilities
	symbols   map[debugger.BreakpointID]string
	enabled   map[debugger.BreakpointID]bool
	actions   map[debugger.BreakpointID]debugger.Action
	finish    []debugger.Action
	locals    map[string]uint64
	mem       map[uint64]int64
	failPlace string
	nextID    debugger.BreakpointID
}

func newFakeDebugger(values ...int64) *fakeDebugger {
	f := &fakeDebugger{
		caps:    debugger.Capabilities{Name: "fake", Version: "1", MutableActions: true},
		symbols: make(map[debugger.BreakpointID]string),
		enabled: make(map[debugger.BreakpointID]bool),
		actions: make(map[debugger.BreakpointID]debugger.Action),
		locals: map[string]uint64{
			"begin": base,
			"end":   base + uint64(len(values))*stride,
		},
		mem: make(map[uint64]int64),
	}
	for i, v := range values {
		f.mem[base+uint64(i)*stride] = v
	}
	return f
}

func (f *fakeDebugger) Capabilities() debugger.Capabilities { return f.caps }

func (f *fakeDebugger) PlaceBreakpoint(_ context.Context, symbol string) (debugger.BreakpointID, error) {
	if symbol == f.failPlace {
		return 0, errors.NewDebuggerError("Function not defined", nil)
	}
	f.nextID++
	f.symbols[f.nextID] = symbol
	f.enabled[f.nextID] = true
	return f.nextID, nil
}

func (f *fakeDebugger) PlaceBreakpointAt(context.Context, uint64) (debugger.BreakpointID, error) {
	return 0, errors.ErrCapabilityUnsupported
}

func (f *fakeDebugger) RemoveBreakpoint(_ context.Context, id debugger.BreakpointID) error {
	delete(f.symbols, id)
	delete(f.enabled, id)
	return nil
}

func (f *fakeDebugger) SetEnabled(_ context.Context, id debugger.BreakpointID, enabled bool) error {
	f.enabled[id] = enabled
	return nil
}

func (f *fakeDebugger) OnHit(id debugger.BreakpointID, action debugger.Action) { f.actions[id] = action }

func (f *fakeDebugger) FinishOnReturn(_ context.Context, action debugger.Action) error {
	f.finish = append(f.finish, action)
	return nil
}

func (f *fakeDebugger) ReadAddress(_ context.Context, expr string) (uint64, error) {
	v, ok := f.locals[expr]
	if !ok {
		return 0, errors.NewDebuggerError("No symbol in current context.", nil).WithCommand(expr)
	}
	return v, nil
}

func (f *fakeDebugger) ReadWord(_ context.Context, addr uint64, _ int) (int64, error) {
	return f.mem[addr], nil
}

func (f *fakeDebugger) SelectOlderFrame(context.Context) error { return nil }

func (f *fakeDebugger) FrameRange(context.Context) (uint64, uint64, error) { return 0, 0, nil }

func (f *fakeDebugger) Disassemble(context.Context, uint64, uint64) ([]debugger.Instruction, error) {
	return nil, nil
}

func (f *fakeDebugger) StepInstruction(context.Context) (uint64, error) { return 0, nil }

func (f *fakeDebugger) StepInto(context.Context) (uint64, error) { return 0, nil }

func (f *fakeDebugger) FrameFunction(context.Context) (string, error) { return "", nil }

func (f *fakeDebugger) Run(context.Context) (debugger.Stop, error) {
	return debugger.Stop{Reason: debugger.StopExited}, nil
}

func (f *fakeDebugger) id(symbol string) debugger.BreakpointID {
	for id, s := range f.symbols {
		if s == symbol {
			return id
		}
	}
	return 0
}

// hit fires the breakpoint on symbol if it is enabled.
func (f *fakeDebugger) hit(t *testing.T, symbol string) {
	t.Helper()
	id := f.id(symbol)
	if !f.enabled[id] {
		return
	}
	resume, err := f.actions[id](context.Background())
	if err != nil || !resume {
		t.Fatalf("action for %s returned resume=%v err=%v", symbol, resume, err)
	}
}

// ret fires the innermost pending return trigger and reports whether the
// trigger resumed the program.
func (f *fakeDebugger) ret(t *testing.T) bool {
	t.Helper()
	if len(f.finish) == 0 {
		t.Fatal("no return trigger pending")
	}
	action := f.finish[len(f.finish)-1]
	f.finish = f.finish[:len(f.finish)-1]
	resume, err := action(context.Background())
	if err != nil {
		t.Fatalf("return trigger error = %v", err)
	}
	return resume
}

func (f *fakeDebugger) swap(t *testing.T, a, b uint64) {
	t.Helper()
	f.locals["&a"], f.locals["&b"] = a, b
	f.hit(t, "swap")
}

func (f *fakeDebugger) move(t *testing.T, symbol string, dst, src uint64) {
	t.Helper()
	f.locals["this"], f.locals["&other"] = dst, src
	f.hit(t, symbol)
}

func slot(i int) uint64 { return base + uint64(i)*stride }

func testOptions() Options {
	return Options{
		Symbols: map[Site]string{
			SiteEntry:         "sort",
			SiteSwap:          "swap",
			SiteMoveConstruct: "move_ctor",
			SiteMoveAssign:    "move_assign",
		},
		Begin:        "begin",
		End:          "end",
		Stride:       stride,
		ValueSize:    4,
		SwapOperands: [2]string{"&a", "&b"},
		MoveDest:     "this",
		MoveSource:   "&other",
	}
}

type harness struct {
	dbg     *fakeDebugger
	session *Session
	queue   *channel.Queue
	events  []event.Event
	started [][]int64
}

func install(t *testing.T, dbg *fakeDebugger) *harness {
	t.Helper()
	h := &harness{dbg: dbg, queue: channel.New()}
	bus := event.NewBus(nil)
	bus.SubscribeAll(func(e event.Event) { h.events = append(h.events, e) })
	s, err := Install(context.Background(), dbg, testOptions(), Deps{
		Queue: h.queue,
		Bus:   bus,
		Start: func(initial []int64, _ bounds.Bounds) error {
			h.started = append(h.started, initial)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	h.session = s
	return h
}

func (h *harness) eventTypes() []string {
	types := make([]string, len(h.events))
	for i, e := range h.events {
		types[i] = e.EventType()
	}
	return types
}

func (h *harness) records() []string {
	var out []string
	for _, r := range h.queue.Drain() {
		out = append(out, r.String())
	}
	return out
}

func TestInstall_CapabilityUnsupported(t *testing.T) {
	dbg := newFakeDebugger(1, 2)
	dbg.caps.MutableActions = false

	_, err := Install(context.Background(), dbg, testOptions(), Deps{
		Queue: channel.New(),
		Start: func([]int64, bounds.Bounds) error { return nil },
	})
	if !errors.Is(err, errors.ErrCapabilityUnsupported) {
		t.Fatalf("Install() error = %v, want ErrCapabilityUnsupported", err)
	}
	if len(dbg.symbols) != 0 {
		t.Errorf("%d breakpoints placed, want none", len(dbg.symbols))
	}
}

func TestInstall_ArmsEntryOnly(t *testing.T) {
	h := install(t, newFakeDebugger(3, 1, 2))

	if got := h.session.State(); got != StateArmed {
		t.Errorf("State() = %v, want armed", got)
	}
	tests := []struct {
		site Site
		want bool
	}{
		{SiteEntry, true},
		{SiteSwap, false},
		{SiteMoveConstruct, false},
		{SiteMoveAssign, false},
	}
	for _, tt := range tests {
		if got := h.session.SiteEnabled(tt.site); got != tt.want {
			t.Errorf("SiteEnabled(%s) = %v, want %v", tt.site, got, tt.want)
		}
		if got := h.dbg.enabled[h.dbg.id(testOptions().Symbols[tt.site])]; got != tt.want {
			t.Errorf("debugger enabled(%s) = %v, want %v", tt.site, got, tt.want)
		}
	}
	if !slices.Equal(h.eventTypes(), []string{event.TypeSessionArmed}) {
		t.Errorf("events = %v", h.eventTypes())
	}

	// Setup work before entry is not observed.
	h.dbg.swap(t, slot(0), slot(1))
	h.dbg.move(t, "move_assign", slot(0), slot(1))
	if h.queue.Len() != 0 {
		t.Errorf("queue has %d records before entry", h.queue.Len())
	}
}

func TestInstall_PlacementFailureRemovesPlaced(t *testing.T) {
	dbg := newFakeDebugger(1)
	dbg.failPlace = "move_ctor"

	_, err := Install(context.Background(), dbg, testOptions(), Deps{
		Queue: channel.New(),
		Start: func([]int64, bounds.Bounds) error { return nil },
	})
	var ie *errors.InstrumentError
	if !errors.As(err, &ie) || ie.Site != "move_construct" {
		t.Fatalf("Install() error = %v, want InstrumentError for move_construct", err)
	}
	if len(dbg.symbols) != 0 {
		t.Errorf("%d breakpoints left behind", len(dbg.symbols))
	}
}

func TestInstall_InvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.Stride = 0
	opts.MoveDest = ""
	delete(opts.Symbols, SiteSwap)

	err := opts.Validate()
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("Validate() error = %v, want ErrInvalidInput", err)
	}
	if err := testOptions().Validate(); err != nil {
		t.Errorf("Validate() on valid options error = %v", err)
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestSession_Entry(t *testing.T) {
	h := install(t, newFakeDebugger(3, 1, 2))

	h.dbg.hit(t, "sort")

	if got := h.session.State(); got != StateRunning {
		t.Fatalf("State() = %v, want running", got)
	}
	if len(h.started) != 1 || !slices.Equal(h.started[0], []int64{3, 1, 2}) {
		t.Errorf("started with %v, want [[3 1 2]]", h.started)
	}
	want := bounds.Bounds{Base: base, Count: 3, Stride: stride}
	if got := h.session.Bounds(); got != want {
		t.Errorf("Bounds() = %+v, want %+v", got, want)
	}
	for _, site := range Sites {
		if !h.session.SiteEnabled(site) {
			t.Errorf("%s disabled after entry", site)
		}
	}

	// A recursive or repeated entry does not restart the session.
	h.dbg.hit(t, "sort")
	if len(h.started) != 1 {
		t.Errorf("starter called %d times, want 1", len(h.started))
	}
}

func TestSession_EntryStartFailureAborts(t *testing.T) {
	dbg := newFakeDebugger(1, 2)
	queue := channel.New()
	s, err := Install(context.Background(), dbg, testOptions(), Deps{
		Queue: queue,
		Start: func([]int64, bounds.Bounds) error { return fmt.Errorf("no terminal") },
	})
	if err != nil {
		t.Fatal(err)
	}

	dbg.hit(t, "sort")

	if s.State() != StateAborted {
		t.Errorf("State() = %v, want aborted", s.State())
	}
	if !queue.Closed() {
		t.Error("queue should be closed after abort")
	}
}

func TestSession_MoveRecords(t *testing.T) {
	const tmp = 0x7ffd0000
	tests := []struct {
		name     string
		site     string
		dst, src uint64
		want     string
	}{
		{"slot to slot", "move_assign", slot(2), slot(0), "Move(0, 2)"},
		{"slot to temporary", "move_ctor", tmp, slot(1), "MoveToTemp(1, 0x7ffd0000)"},
		{"temporary to slot", "move_assign", slot(0), tmp, "MoveFromTemp(0x7ffd0000, 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := install(t, newFakeDebugger(3, 1, 2))
			h.dbg.hit(t, "sort")

			h.dbg.move(t, tt.site, tt.dst, tt.src)

			got := h.records()
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("records = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestSession_SwapSuppressesMoves(t *testing.T) {
	h := install(t, newFakeDebugger(3, 1, 2, 5))
	h.dbg.hit(t, "sort")

	h.dbg.swap(t, slot(0), slot(2))
	if h.session.SiteEnabled(SiteMoveConstruct) || h.session.SiteEnabled(SiteMoveAssign) {
		t.Fatal("move sites enabled inside a swap")
	}
	// The swap's own moves are not observed.
	h.dbg.move(t, "move_ctor", 0x7ffd0000, slot(0))
	h.dbg.move(t, "move_assign", slot(0), slot(2))

	// A nested swap keeps the window open until the outer call returns.
	h.dbg.swap(t, slot(1), slot(3))
	h.dbg.ret(t)
	if h.session.SiteEnabled(SiteMoveAssign) {
		t.Error("move sites re-enabled before the outermost swap returned")
	}
	h.dbg.move(t, "move_assign", slot(1), slot(3))
	h.dbg.ret(t)
	if !h.session.SiteEnabled(SiteMoveConstruct) || !h.session.SiteEnabled(SiteMoveAssign) {
		t.Error("move sites not re-enabled after the swap returned")
	}

	h.dbg.move(t, "move_assign", slot(1), slot(0))

	want := []string{"Swap(0, 2)", "Swap(1, 3)", "Move(0, 1)"}
	if got := h.records(); !slices.Equal(got, want) {
		t.Errorf("records = %v, want %v", got, want)
	}
	wantEvents := []string{
		event.TypeSessionArmed,
		event.TypeSessionStarted,
		event.TypeSuppressionOpened,
		event.TypeSuppressionOpened,
		event.TypeSuppressionClosed,
		event.TypeSuppressionClosed,
	}
	if !slices.Equal(h.eventTypes(), wantEvents) {
		t.Errorf("events = %v, want %v", h.eventTypes(), wantEvents)
	}
}

func TestSession_MoveBetweenTemporariesAborts(t *testing.T) {
	h := install(t, newFakeDebugger(3, 1, 2))
	h.dbg.hit(t, "sort")
	h.dbg.move(t, "move_assign", slot(0), slot(1))

	h.dbg.move(t, "move_ctor", 0x7ffd0000, 0x7ffd0010)

	if got := h.session.State(); got != StateAborted {
		t.Fatalf("State() = %v, want aborted", got)
	}
	err := h.session.Err()
	if !errors.Is(err, errors.ErrUnsupportedOperationShape) {
		t.Errorf("Err() = %v, want ErrUnsupportedOperationShape", err)
	}
	var ie *errors.InstrumentError
	if !errors.As(err, &ie) || ie.Site != "move_construct" || ie.Seq == 0 {
		t.Errorf("Err() = %v, want site and seq context", err)
	}
	for _, site := range Sites {
		if h.session.SiteEnabled(site) {
			t.Errorf("%s still enabled after abort", site)
		}
	}
	if !h.queue.Closed() {
		t.Error("queue should be closed after abort")
	}
	if got := h.records(); !slices.Equal(got, []string{"Move(1, 0)"}) {
		t.Errorf("records = %v, want the one produced before the abort", got)
	}
	if last := h.events[len(h.events)-1]; last.EventType() != event.TypeSessionAborted {
		t.Errorf("last event = %s, want %s", last.EventType(), event.TypeSessionAborted)
	}
}

func TestSession_SwapOutsideContainerAborts(t *testing.T) {
	h := install(t, newFakeDebugger(3, 1, 2))
	h.dbg.hit(t, "sort")

	h.dbg.swap(t, slot(0), 0x7ffd0000)

	if !errors.Is(h.session.Err(), errors.ErrUnsupportedOperationShape) {
		t.Errorf("Err() = %v, want ErrUnsupportedOperationShape", h.session.Err())
	}
	if h.queue.Len() != 0 {
		t.Errorf("queue has %d records, want none", h.queue.Len())
	}
}

func TestSession_ReadFailureAborts(t *testing.T) {
	h := install(t, newFakeDebugger(3, 1, 2))
	h.dbg.hit(t, "sort")
	delete(h.dbg.locals, "&other")

	h.dbg.move(t, "move_assign", slot(0), slot(1))

	if !errors.Is(h.session.Err(), &errors.DebuggerError{}) {
		t.Errorf("Err() = %v, want a DebuggerError cause", h.session.Err())
	}
	if h.session.State() != StateAborted {
		t.Errorf("State() = %v, want aborted", h.session.State())
	}
}

func TestSession_EntryReturnFinishes(t *testing.T) {
	h := install(t, newFakeDebugger(2, 1))
	h.dbg.hit(t, "sort")
	h.dbg.swap(t, slot(0), slot(1))
	if !h.dbg.ret(t) {
		t.Error("swap return should resume the program")
	}
	if h.dbg.ret(t) {
		t.Error("algorithm return should leave the program halted")
	}

	if got := h.session.State(); got != StateFinished {
		t.Fatalf("State() = %v, want finished", got)
	}
	for _, site := range Sites {
		if h.session.SiteEnabled(site) {
			t.Errorf("%s still enabled after finish", site)
		}
	}
	if !h.queue.Closed() {
		t.Error("queue should be closed after finish")
	}
	finished, ok := h.events[len(h.events)-1].(event.SessionFinishedEvent)
	if !ok {
		t.Fatalf("last event = %T, want SessionFinishedEvent", h.events[len(h.events)-1])
	}
	if finished.Records != 1 {
		t.Errorf("finished.Records = %d, want 1", finished.Records)
	}

	// Late hits are ignored.
	h.dbg.enabled[h.dbg.id("move_assign")] = true
	h.dbg.move(t, "move_assign", slot(0), slot(1))
	if got := h.records(); !slices.Equal(got, []string{"Swap(0, 1)"}) {
		t.Errorf("records = %v", got)
	}
}

func TestSession_LateHitAfterFinish(t *testing.T) {
	var buf bytes.Buffer
	dbg := newFakeDebugger(2, 1)
	queue := channel.New()
	s, err := Install(context.Background(), dbg, testOptions(), Deps{
		Queue:  queue,
		Start:  func([]int64, bounds.Bounds) error { return nil },
		Logger: logging.NewWriterLogger(&buf, logging.LevelDebug),
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	dbg.hit(t, "sort")
	dbg.ret(t)
	if s.State() != StateFinished {
		t.Fatalf("State() = %v, want finished", s.State())
	}

	// A swap hit that was pending when the sites were disabled.
	dbg.enabled[dbg.id("swap")] = true
	dbg.swap(t, slot(0), slot(1))

	if s.State() != StateFinished {
		t.Errorf("late hit changed state to %v", s.State())
	}
	if n := len(queue.Drain()); n != 0 {
		t.Errorf("late hit produced %d records", n)
	}
	out := buf.String()
	for _, want := range []string{`"site":"swap"`, errors.ErrSessionFinished.Error()} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestSession_Remove(t *testing.T) {
	h := install(t, newFakeDebugger(1))
	h.session.Remove(context.Background())
	if len(h.dbg.symbols) != 0 {
		t.Errorf("%d breakpoints left after Remove", len(h.dbg.symbols))
	}
}

func TestSession_RecordsUseSlotIndices(t *testing.T) {
	// A sanity check that the records the session produces use slot indices,
	// not addresses.
	h := install(t, newFakeDebugger(4, 3))
	h.dbg.hit(t, "sort")
	h.dbg.swap(t, slot(0), slot(1))
	for _, r := range h.queue.Drain() {
		if r.Kind != record.KindSwap || r.Src != 0 || r.Dst != 1 {
			t.Errorf("record = %+v", r)
		}
	}
}

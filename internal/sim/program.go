// Package sim runs a traced program in-process. The program fills a vector of
// wrapped ints, shuffles it, and sorts it through the same swap, move-construct
// and move-assign primitives a C++ standard library sort uses. Program
// implements debugger.Session, so the choreographer can instrument it exactly
// as it would a program running under GDB.
//
// The program runs on its own goroutine and hands control to the caller of Run
// at every breakpoint hit or return trigger. Actions run on the Run goroutine
// while the program goroutine is parked, so frame and memory reads need no
// locking.
package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
)

// Function names of the simulated program.
const (
	EntrySymbol         = "std::sort<std::vector<int_wrapper_t, std::allocator<int_wrapper_t> >::iterator>"
	SwapSymbol          = "swap(int_wrapper_t&, int_wrapper_t&)"
	MoveConstructSymbol = "int_wrapper_t::int_wrapper_t(int_wrapper_t&&)"
	MoveAssignSymbol    = "int_wrapper_t::operator=(int_wrapper_t&&)"
	MainSymbol          = "main"
)

// Expressions the simulated frames can evaluate.
const (
	BeginExpr  = "A._M_impl._M_start"
	EndExpr    = "A._M_impl._M_finish"
	SwapAExpr  = "&a"
	SwapBExpr  = "&b"
	ThisExpr   = "this"
	OtherExpr  = "&other"
	FirstExpr  = "__first"
	LastExpr   = "__last"
	stackTop   = 0x7ffffffde000
	heapBase   = 0x55555556aeb0
	textBase   = 0x401000
	textStride = 0x100
)

// Options configures the simulated program.
type Options struct {
	Size      int
	Seed      uint64
	Algorithm Algorithm
	// Base is the address of the first element. Zero picks a heap-like default.
	Base uint64
	// Stride is the element size in bytes. Zero means 4.
	Stride uint64
}

type breakpoint struct {
	id      debugger.BreakpointID
	pattern string
	g       glob.Glob
	enabled bool
	action  debugger.Action
}

type frame struct {
	fn     string
	locals map[string]uint64
	sp     uint64
	finish []debugger.Action
}

type stop struct {
	hits   []*breakpoint
	finish []debugger.Action
	pc     uint64
	exited bool
}

// Program is a simulated traced program.
type Program struct {
	opts Options
	base uint64

	mu     sync.Mutex
	bps    map[debugger.BreakpointID]*breakpoint
	nextID debugger.BreakpointID

	// Owned by the program goroutine while it runs, by the Run goroutine
	// while it is parked.
	mem      map[uint64]int64
	frames   []*frame
	sp       uint64
	selected int
	text     map[string]uint64

	stops     chan stop
	cont      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	started bool
	paused  bool
	exited  bool
}

// New creates a program that has not started running.
func New(opts Options) (*Program, error) {
	if opts.Size < 0 {
		return nil, errors.NewValidationError("size must not be negative").WithField("sim.size").WithValue(opts.Size)
	}
	if opts.Algorithm == "" {
		opts.Algorithm = Introsort
	}
	if _, err := ParseAlgorithm(string(opts.Algorithm)); err != nil {
		return nil, err
	}
	if opts.Stride == 0 {
		opts.Stride = 4
	}
	base := opts.Base
	if base == 0 {
		base = heapBase
	}
	return &Program{
		opts:  opts,
		base:  base,
		bps:   make(map[debugger.BreakpointID]*breakpoint),
		mem:   make(map[uint64]int64),
		sp:    stackTop,
		text:  make(map[string]uint64),
		stops: make(chan stop),
		cont:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

// Capabilities implements debugger.Session.
func (p *Program) Capabilities() debugger.Capabilities {
	return debugger.Capabilities{Name: "sim", Version: "1", MutableActions: true}
}

// PlaceBreakpoint accepts an exact function name or a glob pattern over the
// program's function names.
func (p *Program) PlaceBreakpoint(_ context.Context, symbol string) (debugger.BreakpointID, error) {
	g, err := glob.Compile(symbol)
	if err != nil {
		return 0, errors.NewDebuggerError("invalid breakpoint pattern", err).WithCommand("break " + symbol)
	}
	matched := false
	for _, fn := range functions {
		if g.Match(fn) {
			matched = true
			break
		}
	}
	if !matched {
		return 0, errors.NewDebuggerError(fmt.Sprintf("Function %q not defined", symbol), nil).
			WithCommand("break " + symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	bp := &breakpoint{id: p.nextID, pattern: symbol, g: g, enabled: true}
	p.bps[bp.id] = bp
	return bp.id, nil
}

// PlaceBreakpointAt is not simulated.
func (p *Program) PlaceBreakpointAt(_ context.Context, addr uint64) (debugger.BreakpointID, error) {
	return 0, unsimulated(fmt.Sprintf("break *0x%x", addr))
}

// RemoveBreakpoint implements debugger.Session.
func (p *Program) RemoveBreakpoint(_ context.Context, id debugger.BreakpointID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.bps[id]; !ok {
		return noBreakpoint(id)
	}
	delete(p.bps, id)
	return nil
}

// SetEnabled implements debugger.Session.
func (p *Program) SetEnabled(_ context.Context, id debugger.BreakpointID, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	bp, ok := p.bps[id]
	if !ok {
		return noBreakpoint(id)
	}
	bp.enabled = enabled
	return nil
}

// OnHit implements debugger.Session.
func (p *Program) OnHit(id debugger.BreakpointID, action debugger.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bp, ok := p.bps[id]; ok {
		bp.action = action
	}
}

// FinishOnReturn attaches action to the selected frame.
func (p *Program) FinishOnReturn(_ context.Context, action debugger.Action) error {
	f, err := p.selectedFrame()
	if err != nil {
		return err
	}
	if f.fn == MainSymbol {
		return errors.NewDebuggerError(`"finish" not meaningful in the outermost frame.`, nil)
	}
	f.finish = append(f.finish, action)
	return nil
}

// ReadAddress looks expr up among the selected frame's locals.
func (p *Program) ReadAddress(_ context.Context, expr string) (uint64, error) {
	f, err := p.selectedFrame()
	if err != nil {
		return 0, err
	}
	v, ok := f.locals[expr]
	if !ok {
		return 0, errors.NewDebuggerError(fmt.Sprintf("No symbol %q in current context.", expr), nil).
			WithCommand("print " + expr)
	}
	return v, nil
}

// ReadWord implements debugger.Session.
func (p *Program) ReadWord(_ context.Context, addr uint64, size int) (int64, error) {
	if !p.paused && !p.exited {
		return 0, running()
	}
	switch size {
	case 1, 2, 4, 8:
	default:
		return 0, errors.NewValidationError("unsupported word size").WithValue(size)
	}
	v, ok := p.mem[addr]
	if !ok {
		return 0, errors.NewDebuggerError(fmt.Sprintf("Cannot access memory at address 0x%x", addr), nil)
	}
	return v, nil
}

// SelectOlderFrame implements debugger.Session.
func (p *Program) SelectOlderFrame(context.Context) error {
	if _, err := p.selectedFrame(); err != nil {
		return err
	}
	if p.selected == 0 {
		return errors.NewDebuggerError("Initial frame selected; you cannot go up.", nil).WithCommand("up")
	}
	p.selected--
	return nil
}

// FrameRange is not simulated.
func (p *Program) FrameRange(context.Context) (uint64, uint64, error) {
	return 0, 0, unsimulated("disassemble")
}

// Disassemble is not simulated.
func (p *Program) Disassemble(context.Context, uint64, uint64) ([]debugger.Instruction, error) {
	return nil, unsimulated("disassemble")
}

// StepInstruction is not simulated.
func (p *Program) StepInstruction(context.Context) (uint64, error) {
	return 0, unsimulated("nexti")
}

// StepInto is not simulated.
func (p *Program) StepInto(context.Context) (uint64, error) {
	return 0, unsimulated("stepi")
}

// FrameFunction implements debugger.Session.
func (p *Program) FrameFunction(context.Context) (string, error) {
	f, err := p.selectedFrame()
	if err != nil {
		return "", err
	}
	return f.fn, nil
}

// Run starts or resumes the program and dispatches actions until it exits,
// an action declines to resume, or a breakpoint without an action is hit.
func (p *Program) Run(ctx context.Context) (debugger.Stop, error) {
	select {
	case <-p.done:
		return debugger.Stop{}, errors.NewDebuggerError("the program was killed", errors.ErrDebuggerExited)
	default:
	}

	switch {
	case p.exited:
		return debugger.Stop{Reason: debugger.StopExited}, nil
	case !p.started:
		p.started = true
		go p.main()
	case p.paused:
		p.resume()
	}

	for {
		var st stop
		select {
		case st = <-p.stops:
		case <-ctx.Done():
			p.Close()
			return debugger.Stop{}, ctx.Err()
		}
		if st.exited {
			p.exited = true
			return debugger.Stop{Reason: debugger.StopExited}, nil
		}

		p.paused = true
		p.selected = len(p.frames) - 1
		resume, err := p.dispatch(ctx, st)
		if err != nil || !resume {
			return debugger.Stop{Reason: debugger.StopHalted, PC: st.pc}, err
		}
		p.resume()
	}
}

// Close stops the program goroutine. The program cannot be resumed after.
func (p *Program) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Values returns the current contents of the container. Call it while the
// program is halted or after it exited.
func (p *Program) Values() []int64 {
	values := make([]int64, p.opts.Size)
	for i := range values {
		values[i] = p.mem[p.addr(i)]
	}
	return values
}

// Base returns the address of the first element.
func (p *Program) Base() uint64 {
	return p.base
}

func (p *Program) dispatch(ctx context.Context, st stop) (bool, error) {
	resume := true
	for _, bp := range st.hits {
		p.mu.Lock()
		action := bp.action
		p.mu.Unlock()
		if action == nil {
			resume = false
			continue
		}
		ok, err := action(ctx)
		if err != nil {
			return false, err
		}
		resume = resume && ok
	}
	for _, action := range st.finish {
		ok, err := action(ctx)
		if err != nil {
			return false, err
		}
		resume = resume && ok
	}
	return resume, nil
}

func (p *Program) resume() {
	p.paused = false
	p.cont <- struct{}{}
}

func (p *Program) selectedFrame() (*frame, error) {
	if !p.paused {
		return nil, running()
	}
	if p.selected < 0 || p.selected >= len(p.frames) {
		return nil, errors.NewDebuggerError("No stack.", nil)
	}
	return p.frames[p.selected], nil
}

// park hands control to the Run goroutine and waits to be resumed.
func (p *Program) park(st stop) {
	select {
	case p.stops <- st:
	case <-p.done:
		runtime.Goexit()
	}
	select {
	case <-p.cont:
	case <-p.done:
		runtime.Goexit()
	}
}

// call runs body as function fn with the given locals, stopping at enabled
// breakpoints on entry and at return triggers on exit.
func (p *Program) call(fn string, locals map[string]uint64, body func()) {
	f := &frame{fn: fn, locals: locals, sp: p.sp}
	p.frames = append(p.frames, f)
	if hits := p.hitsFor(fn); len(hits) > 0 {
		p.park(stop{hits: hits, pc: p.pc(fn)})
	}

	body()

	p.frames = p.frames[:len(p.frames)-1]
	for a := p.sp; a < f.sp; a += p.opts.Stride {
		delete(p.mem, a)
	}
	p.sp = f.sp
	if len(f.finish) > 0 {
		p.park(stop{finish: f.finish, pc: p.pc(fn)})
	}
}

func (p *Program) hitsFor(fn string) []*breakpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	var hits []*breakpoint
	for id := debugger.BreakpointID(1); id <= p.nextID; id++ {
		bp, ok := p.bps[id]
		if ok && bp.enabled && bp.g.Match(fn) {
			hits = append(hits, bp)
		}
	}
	return hits
}

// alloca reserves one element on the stack of the innermost frame.
func (p *Program) alloca() uint64 {
	p.sp -= p.opts.Stride
	return p.sp
}

func (p *Program) pc(fn string) uint64 {
	if pc, ok := p.text[fn]; ok {
		return pc
	}
	pc := textBase + uint64(len(p.text))*textStride
	p.text[fn] = pc
	return pc
}

func (p *Program) addr(i int) uint64 {
	return p.base + uint64(i)*p.opts.Stride
}

func (p *Program) main() {
	n := p.opts.Size
	p.call(MainSymbol, map[string]uint64{
		BeginExpr: p.addr(0),
		EndExpr:   p.addr(n),
	}, func() {
		for i := range n {
			p.mem[p.addr(i)] = int64(i + 1)
		}
		rng := rand.New(rand.NewPCG(p.opts.Seed, p.opts.Seed))
		for i := n - 1; i > 0; i-- {
			if j := rng.IntN(i + 1); j != i {
				p.swap(p.addr(i), p.addr(j))
			}
		}
		p.sort(0, n)
	})

	select {
	case p.stops <- stop{exited: true}:
	case <-p.done:
	}
}

func running() error {
	return errors.NewDebuggerError("The program is not being run.", nil)
}

func noBreakpoint(id debugger.BreakpointID) error {
	return errors.NewDebuggerError(fmt.Sprintf("No breakpoint number %d.", id), nil)
}

func unsimulated(command string) error {
	return errors.NewDebuggerError("instruction-level commands are not simulated", errors.ErrCapabilityUnsupported).
		WithCommand(command)
}

package choreo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/channel"
	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/logging"
)

// Options names the instrumented symbols and how to read the container and
// operands from the traced program.
type Options struct {
	// Symbols maps each site to the function it breaks on.
	Symbols map[Site]string

	// Begin and End are evaluated in the caller of the algorithm entry and
	// give the [begin, end) address range of the container.
	Begin string
	End   string
	// Stride is the element size in bytes.
	Stride uint64
	// ValueSize is the size in bytes of the integer displayed per element,
	// read from the start of each element.
	ValueSize int

	// SwapOperands are the expressions giving the addresses of the two
	// elements passed to the swap primitive.
	SwapOperands [2]string
	// MoveDest and MoveSource give the destination and source addresses of a
	// move-construct or move-assign call.
	MoveDest   string
	MoveSource string
}

// DefaultOptions matches a std::sort over a std::vector of a wrapped int.
func DefaultOptions() Options {
	return Options{
		Symbols: map[Site]string{
			SiteEntry:         "std::sort<std::vector<int_wrapper_t, std::allocator<int_wrapper_t> >::iterator>",
			SiteSwap:          "swap(int_wrapper_t&, int_wrapper_t&)",
			SiteMoveConstruct: "int_wrapper_t::int_wrapper_t(int_wrapper_t&&)",
			SiteMoveAssign:    "int_wrapper_t::operator=(int_wrapper_t&&)",
		},
		Begin:        "A._M_impl._M_start",
		End:          "A._M_impl._M_finish",
		Stride:       4,
		ValueSize:    4,
		SwapOperands: [2]string{"&a", "&b"},
		MoveDest:     "this",
		MoveSource:   "&other",
	}
}

// Validate reports missing symbols or expressions.
func (o Options) Validate() error {
	var errs []error
	for _, site := range Sites {
		if o.Symbols[site] == "" {
			errs = append(errs, errors.NewValidationError("symbol is required").
				WithField("sites."+site.String()))
		}
	}
	required := map[string]string{
		"container.begin":       o.Begin,
		"container.end":         o.End,
		"container.swap_a":      o.SwapOperands[0],
		"container.swap_b":      o.SwapOperands[1],
		"container.move_dest":   o.MoveDest,
		"container.move_source": o.MoveSource,
	}
	for field, expr := range required {
		if expr == "" {
			errs = append(errs, errors.NewValidationError("expression is required").WithField(field))
		}
	}
	if o.Stride == 0 {
		errs = append(errs, errors.NewValidationError("stride must be positive").
			WithField("container.stride").WithValue(o.Stride))
	}
	switch o.ValueSize {
	case 1, 2, 4, 8:
	default:
		errs = append(errs, errors.NewValidationError("value size must be 1, 2, 4 or 8").
			WithField("container.value_size").WithValue(o.ValueSize))
	}
	return errors.Join(errs...)
}

// Starter launches the visualization driver with the initial container
// contents. It is called once, on the debugger goroutine, from the entry hit.
type Starter func(initial []int64, b bounds.Bounds) error

// Deps are the collaborators a Session publishes to.
type Deps struct {
	Queue  *channel.Queue
	Start  Starter
	Bus    *event.Bus      // optional
	Logger *logging.Logger // optional
}

// Result is what a callback asks the session to do once it returns.
type Result struct {
	Resume  bool
	Enable  []Site
	Disable []Site
}

// Callback handles one hit. It runs while the traced program is halted.
type Callback func(ctx context.Context, s *Session) (Result, error)

type siteState struct {
	id      debugger.BreakpointID
	enabled bool
}

// Session is one instrumentation session: it owns the breakpoint site
// states, the container bounds sampled at entry, and the producing end of
// the channel.
type Session struct {
	id     string
	dbg    debugger.Session
	opts   Options
	queue  *channel.Queue
	start  Starter
	bus    *event.Bus
	logger *logging.Logger

	// Touched only on the debugger goroutine.
	sites  map[Site]*siteState
	bounds bounds.Bounds
	depth  int

	hits atomic.Uint64

	mu    sync.Mutex
	state State
	err   error
}

// Install places the four breakpoints, arms the entry site and attaches the
// callbacks. It refuses to place anything when the debugger cannot run
// mutable breakpoint actions, and removes what it placed if any placement
// fails.
func Install(ctx context.Context, dbg debugger.Session, opts Options, deps Deps) (*Session, error) {
	caps := dbg.Capabilities()
	if !caps.MutableActions {
		return nil, errors.NewInstrumentError(
			fmt.Sprintf("%s %s cannot run writable breakpoint actions", caps.Name, caps.Version),
			errors.ErrCapabilityUnsupported)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Queue == nil || deps.Start == nil {
		return nil, errors.NewValidationError("a queue and a starter are required")
	}

	s := &Session{
		id:     newSessionID(),
		dbg:    dbg,
		opts:   opts,
		queue:  deps.Queue,
		start:  deps.Start,
		bus:    deps.Bus,
		logger: deps.Logger,
		sites:  make(map[Site]*siteState, len(Sites)),
	}
	if s.bus == nil {
		s.bus = event.NewBus(nil)
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	s.logger = s.logger.WithSession(s.id)

	for _, site := range Sites {
		symbol := opts.Symbols[site]
		id, err := dbg.PlaceBreakpoint(ctx, symbol)
		if err != nil {
			s.Remove(ctx)
			return nil, errors.NewInstrumentError(fmt.Sprintf("cannot place breakpoint on %q", symbol), err).
				WithSite(site.String())
		}
		s.sites[site] = &siteState{id: id, enabled: true}
		if site != SiteEntry {
			if err := s.setSite(ctx, site, false); err != nil {
				s.Remove(ctx)
				return nil, errors.NewInstrumentError("cannot disable breakpoint", err).WithSite(site.String())
			}
		}
	}

	dbg.OnHit(s.sites[SiteEntry].id, s.action(SiteEntry, onEntry))
	dbg.OnHit(s.sites[SiteSwap].id, s.action(SiteSwap, onSwap))
	dbg.OnHit(s.sites[SiteMoveConstruct].id, s.action(SiteMoveConstruct, onMove(SiteMoveConstruct)))
	dbg.OnHit(s.sites[SiteMoveAssign].id, s.action(SiteMoveAssign, onMove(SiteMoveAssign)))

	s.logger.Info("session armed", "entry", opts.Symbols[SiteEntry], "debugger", caps.Name, "version", caps.Version)
	s.bus.Publish(event.NewSessionArmedEvent(s.id, opts.Symbols[SiteEntry]))
	return s, nil
}

func newSessionID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "session"
	}
	return hex.EncodeToString(b[:])
}

// ID returns the session identifier used in logs and events.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state. Safe to call from any goroutine.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that aborted the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Bounds returns the container bounds sampled at entry.
func (s *Session) Bounds() bounds.Bounds {
	return s.bounds
}

// Hits returns the number of hits handled, return triggers included.
func (s *Session) Hits() uint64 {
	return s.hits.Load()
}

// SiteEnabled reports the recorded enabled state of site. Call it from the
// debugger goroutine or after Run has returned.
func (s *Session) SiteEnabled(site Site) bool {
	st, ok := s.sites[site]
	return ok && st.enabled
}

// Remove deletes every breakpoint the session placed.
func (s *Session) Remove(ctx context.Context) {
	for site, st := range s.sites {
		if err := s.dbg.RemoveBreakpoint(ctx, st.id); err != nil {
			s.logger.Warn("failed to remove breakpoint", "site", site.String(), "error", err.Error())
		}
		delete(s.sites, site)
	}
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if err != nil {
		s.err = err
	}
}

// action adapts a callback to the debugger's action signature. Errors abort
// the session; the program is always resumed so it is never left halted by
// a failed callback.
func (s *Session) action(site Site, cb Callback) debugger.Action {
	return func(ctx context.Context) (bool, error) {
		seq := s.hits.Add(1)
		logger := s.logger.WithSite(site.String())
		if state := s.State(); state.Terminal() {
			// A hit that was already pending when the sites were disabled.
			logger.Debug("ignoring hit", "seq", seq, "state", state.String(), "reason", errors.ErrSessionFinished.Error())
			return true, nil
		}
		logger.Debug("hit", "seq", seq, "state", s.State().String())
		res, err := cb(ctx, s)
		if err == nil {
			err = s.apply(ctx, res)
		}
		if err != nil {
			s.abort(ctx, site, seq, err)
			return true, nil
		}
		return res.Resume, nil
	}
}

func (s *Session) apply(ctx context.Context, res Result) error {
	for _, site := range res.Disable {
		if err := s.setSite(ctx, site, false); err != nil {
			return err
		}
	}
	for _, site := range res.Enable {
		if err := s.setSite(ctx, site, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) setSite(ctx context.Context, site Site, enabled bool) error {
	st, ok := s.sites[site]
	if !ok || st.enabled == enabled {
		return nil
	}
	if err := s.dbg.SetEnabled(ctx, st.id, enabled); err != nil {
		return errors.Wrapf(err, "cannot set %s enabled=%t", site, enabled)
	}
	st.enabled = enabled
	return nil
}

func (s *Session) disableAll(ctx context.Context) {
	for _, site := range Sites {
		if err := s.setSite(ctx, site, false); err != nil {
			s.logger.Warn("failed to disable site", "site", site.String(), "error", err.Error())
		}
	}
}

func (s *Session) abort(ctx context.Context, site Site, seq uint64, err error) {
	var ie *errors.InstrumentError
	if !errors.As(err, &ie) {
		ie = errors.NewInstrumentError("instrumentation aborted", err)
	}
	if ie.Site == "" {
		ie.WithSite(site.String())
	}
	if ie.Seq == 0 {
		ie.WithSeq(seq)
	}

	s.setState(StateAborted, ie)
	s.disableAll(ctx)
	s.queue.Close()

	s.logger.WithSite(site.String()).Error("session aborted",
		"seq", seq, "severity", errors.GetSeverity(ie).String(), "error", ie.Error())
	s.bus.Publish(event.NewSessionAbortedEvent(s.id, ie))
}

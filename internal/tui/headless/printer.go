// Package headless is a line-oriented renderer for non-interactive output:
// one line per applied record, with the container state after it.
package headless

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/channel"
	"github.com/Iron-Ham/sortwatch/internal/container"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/logging"
	"github.com/Iron-Ham/sortwatch/internal/tui"
	"github.com/Iron-Ham/sortwatch/internal/util"
)

type started struct {
	values []int64
	bounds bounds.Bounds
}

// Printer renders records as text lines. It implements tui.Renderer.
type Printer struct {
	out    io.Writer
	poll   time.Duration
	queue  *channel.Queue
	bus    *event.Bus
	subID  string
	logger *logging.Logger

	started chan started
	exited  chan error
	events  chan event.Event
	done    chan struct{}
	once    sync.Once

	state  *container.Model
	failed bool
}

var _ tui.Renderer = (*Printer)(nil)

// New creates a Printer that drains queue every poll interval.
func New(out io.Writer, poll time.Duration, queue *channel.Queue, bus *event.Bus, logger *logging.Logger) *Printer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	p := &Printer{
		out:     out,
		poll:    poll,
		queue:   queue,
		bus:     bus,
		logger:  logger,
		started: make(chan started, 1),
		exited:  make(chan error, 1),
		events:  make(chan event.Event, 16),
		done:    make(chan struct{}),
	}
	if bus != nil {
		p.subID = bus.SubscribeAll(func(ev event.Event) {
			select {
			case p.events <- ev:
			case <-p.done:
			}
		})
	}
	return p
}

// Start records the initial snapshot. Only the first call counts.
func (p *Printer) Start(initial []int64, b bounds.Bounds) error {
	values := make([]int64, len(initial))
	copy(values, initial)
	select {
	case p.started <- started{values: values, bounds: b}:
	default:
	}
	return nil
}

// Exited reports that the traced program is gone.
func (p *Printer) Exited(err error) {
	select {
	case p.exited <- err:
	default:
	}
}

// Run prints until the session finishes or aborts, the traced program
// exits, or ctx is cancelled. Every queued record is printed first.
func (p *Printer) Run(ctx context.Context) error {
	defer p.once.Do(func() {
		close(p.done)
		if p.bus != nil {
			p.bus.Unsubscribe(p.subID)
		}
	})

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-p.started:
			p.begin(s)

		case ev := <-p.events:
			if p.printEvent(ev) {
				return nil
			}

		case <-ticker.C:
			p.flush()

		case err := <-p.exited:
			p.settle()
			for len(p.events) > 0 {
				if p.printEvent(<-p.events) {
					return err
				}
			}
			if p.state == nil {
				p.printf("the program exited before the algorithm was called\n")
			}
			return err
		}
	}
}

// settle takes a pending start and prints every queued record.
func (p *Printer) settle() {
	select {
	case s := <-p.started:
		p.begin(s)
	default:
	}
	p.flush()
}

func (p *Printer) begin(s started) {
	p.state = container.New(s.values)
	p.printf("start  %d elements at %s  %s\n", len(s.values), util.Hex(s.bounds.Base), p.snapshot())
}

// printEvent prints a lifecycle event and reports whether it ends the
// session. Records produced before the end are printed ahead of it.
func (p *Printer) printEvent(ev event.Event) bool {
	switch e := ev.(type) {
	case event.SessionArmedEvent:
		p.printf("armed  %s\n", e.EntrySymbol)
	case event.SessionFinishedEvent:
		p.settle()
		p.printf("finish %d records, %d hits\n", e.Records, e.Hits)
		return true
	case event.SessionAbortedEvent:
		p.settle()
		p.printf("abort  %v\n", e.Err)
		return true
	}
	return false
}

// flush applies every queued record. A model error stops further
// application; an unknown record is skipped.
func (p *Printer) flush() {
	if p.state == nil {
		return
	}
	for _, r := range p.queue.Drain() {
		if p.failed {
			continue
		}
		if _, err := p.state.Apply(r); err != nil {
			if !errors.IsFatal(err) {
				p.logger.Warn("skipping unknown operation", "record", r.String(), "seq", r.Seq)
				p.printf("%-6d skip %s\n", r.Seq, r)
				continue
			}
			p.failed = true
			p.logger.Error("container model rejected record",
				"record", r.String(), "seq", r.Seq, "severity", errors.GetSeverity(err).String(), "error", err.Error())
			p.printf("%-6d error %v\n", r.Seq, err)
			continue
		}
		p.printf("%-6d %-24s %s\n", r.Seq, r, p.snapshot())
	}
}

// snapshot formats the slots, then any held temporaries.
func (p *Printer) snapshot() string {
	values, ok := p.state.Values()
	parts := make([]string, len(values))
	for i, v := range values {
		if ok[i] {
			parts[i] = fmt.Sprint(v)
		} else {
			parts[i] = "_"
		}
	}
	s := "[" + strings.Join(parts, " ") + "]"

	var temps []string
	for _, t := range p.state.Temporaries() {
		if t.Held {
			temps = append(temps, fmt.Sprintf("%s=%d", t.Token, t.Element.Value))
		}
	}
	if len(temps) > 0 {
		s += " {" + strings.Join(temps, " ") + "}"
	}
	return s
}

func (p *Printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

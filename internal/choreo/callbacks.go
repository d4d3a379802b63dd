package choreo

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/record"
)

var resume = Result{Resume: true}

// onEntry samples the container from the caller's frame, starts the driver
// and opens observation. Re-entries are ignored: only the first call is
// visualized.
func onEntry(ctx context.Context, s *Session) (Result, error) {
	if s.State() != StateArmed {
		s.logger.Debug("ignoring repeated entry hit", "state", s.State().String())
		return resume, nil
	}

	// The return trigger belongs to the entry frame, so install it before
	// moving to the caller.
	if err := s.dbg.FinishOnReturn(ctx, s.action(SiteEntry, onEntryReturn)); err != nil {
		return Result{}, err
	}
	if err := s.dbg.SelectOlderFrame(ctx); err != nil {
		return Result{}, err
	}

	begin, err := s.dbg.ReadAddress(ctx, s.opts.Begin)
	if err != nil {
		return Result{}, err
	}
	end, err := s.dbg.ReadAddress(ctx, s.opts.End)
	if err != nil {
		return Result{}, err
	}
	b, err := bounds.FromRange(begin, end, s.opts.Stride)
	if err != nil {
		return Result{}, err
	}

	values := make([]int64, b.Count)
	for i := range values {
		v, err := s.dbg.ReadWord(ctx, b.Address(i), s.opts.ValueSize)
		if err != nil {
			return Result{}, errors.Wrapf(err, "cannot read element %d", i)
		}
		values[i] = v
	}

	if err := s.start(values, b); err != nil {
		return Result{}, errors.Wrap(err, "cannot start visualization")
	}
	s.bounds = b
	s.setState(StateRunning, nil)

	s.logger.Info("session started", "base", bounds.TokenFor(b.Base), "count", b.Count, "stride", b.Stride)
	s.bus.Publish(event.NewSessionStartedEvent(s.id, b.Base, b.Stride, values))

	return Result{Resume: true, Enable: []Site{SiteSwap, SiteMoveConstruct, SiteMoveAssign}}, nil
}

// onEntryReturn ends observation when the algorithm returns. The program
// stays halted at the return so it outlives the visualization; whoever
// drives the debugger resumes it once the view is closed.
func onEntryReturn(ctx context.Context, s *Session) (Result, error) {
	if s.State() != StateRunning {
		return resume, nil
	}
	s.setState(StateFinished, nil)
	s.disableAll(ctx)
	s.queue.Close()

	s.logger.Info("session finished", "records", s.queue.Produced(), "hits", s.Hits())
	s.bus.Publish(event.NewSessionFinishedEvent(s.id, s.queue.Produced(), s.Hits()))
	return Result{Resume: false}, nil
}

// onSwap emits Swap(a, b) and opens a suppression window covering the moves
// the swap primitive performs internally.
func onSwap(ctx context.Context, s *Session) (Result, error) {
	if s.State() != StateRunning {
		return resume, nil
	}

	a, err := s.locate(ctx, s.opts.SwapOperands[0])
	if err != nil {
		return Result{}, err
	}
	b, err := s.locate(ctx, s.opts.SwapOperands[1])
	if err != nil {
		return Result{}, err
	}
	if !a.InBounds || !b.InBounds {
		return Result{}, errors.NewInstrumentError(
			fmt.Sprintf("swap operand outside the container: %s, %s", a, b),
			errors.ErrUnsupportedOperationShape)
	}

	if err := s.dbg.FinishOnReturn(ctx, s.action(SiteSwap, onSwapReturn)); err != nil {
		return Result{}, err
	}
	r := s.queue.Push(record.Swap(a.Slot, b.Slot))
	s.depth++

	s.logger.Debug("record", "record", r.String(), "seq", r.Seq)
	s.bus.Publish(event.NewSuppressionEvent(s.id, true, s.depth))
	return Result{Resume: true, Disable: moveSites}, nil
}

// onSwapReturn closes one suppression window. Move sites come back only when
// the outermost window closes.
func onSwapReturn(_ context.Context, s *Session) (Result, error) {
	if s.depth > 0 {
		s.depth--
	}
	s.bus.Publish(event.NewSuppressionEvent(s.id, false, s.depth))
	if s.depth > 0 || s.State() != StateRunning {
		return resume, nil
	}
	return Result{Resume: true, Enable: moveSites}, nil
}

// onMove returns the callback for a move-construct or move-assign site.
func onMove(site Site) Callback {
	return func(ctx context.Context, s *Session) (Result, error) {
		if s.State() != StateRunning {
			return resume, nil
		}
		if s.depth > 0 {
			// A backend may deliver a hit that was pending when the site was
			// disabled; it belongs to the swap.
			s.logger.Debug("move hit inside swap", "site", site.String())
			return resume, nil
		}

		dst, err := s.locate(ctx, s.opts.MoveDest)
		if err != nil {
			return Result{}, err
		}
		src, err := s.locate(ctx, s.opts.MoveSource)
		if err != nil {
			return Result{}, err
		}
		rec, ok := record.FromMove(dst, src)
		if !ok {
			return Result{}, errors.NewInstrumentError(
				fmt.Sprintf("move between temporaries %s and %s", src.Token, dst.Token),
				errors.ErrUnsupportedOperationShape)
		}

		r := s.queue.Push(rec)
		s.logger.Debug("record", "record", r.String(), "seq", r.Seq)
		return resume, nil
	}
}

func (s *Session) locate(ctx context.Context, expr string) (bounds.Location, error) {
	addr, err := s.dbg.ReadAddress(ctx, expr)
	if err != nil {
		return bounds.Location{}, err
	}
	return s.bounds.Classify(addr), nil
}

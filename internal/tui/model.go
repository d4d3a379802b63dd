package tui

import (
	"time"

	"github.com/Iron-Ham/sortwatch/internal/bounds"
	"github.com/Iron-Ham/sortwatch/internal/channel"
	"github.com/Iron-Ham/sortwatch/internal/config"
	"github.com/Iron-Ham/sortwatch/internal/container"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/event"
	"github.com/Iron-Ham/sortwatch/internal/logging"
	"github.com/Iron-Ham/sortwatch/internal/record"
	"github.com/Iron-Ham/sortwatch/internal/util"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Settings controls the renderer's pacing.
type Settings struct {
	PollInterval time.Duration
	SwapDuration time.Duration
	MoveDuration time.Duration
	FramePeriod  time.Duration
	// Entry is shown in the header while waiting for the algorithm.
	Entry string
}

// NewSettings derives Settings from the visual configuration.
func NewSettings(v config.VisualConfig, entry string) Settings {
	return Settings{
		PollInterval: v.PollInterval,
		SwapDuration: v.SwapDuration,
		MoveDuration: v.MoveDuration,
		FramePeriod:  v.FramePeriod(),
		Entry:        entry,
	}
}

func (s Settings) duration(k record.Kind) time.Duration {
	if k == record.KindSwap {
		return s.SwapDuration
	}
	return s.MoveDuration
}

type phase int

const (
	phaseWaiting phase = iota
	phaseRunning
	phaseFinished
	phaseAborted
)

// Messages

type pollMsg time.Time
type frameMsg time.Time

// StartedMsg carries the container snapshot taken at the algorithm entry.
type StartedMsg struct {
	Values []int64
	Bounds bounds.Bounds
}

// EventMsg forwards a session lifecycle event.
type EventMsg struct {
	Event event.Event
}

// ExitedMsg reports that the traced program is gone.
type ExitedMsg struct {
	Err error
}

// Model is the bubbletea model of the visualization driver. It owns the
// container model; records reach it only through the queue.
type Model struct {
	settings Settings
	queue    *channel.Queue
	logger   *logging.Logger

	help   help.Model
	width  int
	height int

	phase      phase
	paused     bool
	exited     bool
	exitErr    error
	sessionErr error
	// modelErr stops the application of further records.
	modelErr error
	depth    int
	records  uint64 // produced, from the finished event

	state   *container.Model
	bounds  bounds.Bounds
	layout  layout
	pending []record.Record
	flight  *flight
	framing bool
	now     time.Time

	applied uint64
	skipped uint64
	last    record.Record
}

// NewModel creates a Model draining queue.
func NewModel(settings Settings, queue *channel.Queue, logger *logging.Logger) Model {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return Model{
		settings: settings,
		queue:    queue,
		logger:   logger,
		help:     help.New(),
		now:      time.Now(),
	}
}

func (m Model) pollTick() tea.Cmd {
	return tea.Tick(m.settings.PollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m Model) frameTick() tea.Cmd {
	return tea.Tick(m.settings.FramePeriod, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Init starts the poll loop
func (m Model) Init() tea.Cmd {
	return m.pollTick()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case StartedMsg:
		m.start(msg)
		return m, nil

	case pollMsg:
		m.now = time.Time(msg)
		if m.state != nil {
			m.pending = append(m.pending, m.queue.Drain()...)
		}
		cmd := m.advance(false)
		return m, tea.Batch(m.pollTick(), cmd)

	case frameMsg:
		m.now = time.Time(msg)
		if m.flight != nil && m.flight.done(m.now) {
			m.flight = nil
		}
		m.advance(false)
		if m.flight == nil {
			m.framing = false
			return m, nil
		}
		return m, m.frameTick()

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case ExitedMsg:
		m.exited = true
		m.exitErr = msg.Err
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Pause):
		m.paused = !m.paused
		if !m.paused {
			cmd := m.advance(false)
			return m, cmd
		}
	case key.Matches(msg, keys.Step):
		if m.paused && m.flight == nil {
			cmd := m.advance(true)
			return m, cmd
		}
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) start(msg StartedMsg) {
	if m.state != nil {
		return
	}
	m.state = container.New(msg.Values)
	m.bounds = msg.Bounds
	m.layout = layout{label: labelWidth(msg.Values)}
	if m.phase == phaseWaiting {
		m.phase = phaseRunning
	}
	m.logger.Info("visualization started", "size", len(msg.Values), "base", util.Hex(msg.Bounds.Base))
}

func (m *Model) handleEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.SessionArmedEvent:
		if e.EntrySymbol != "" {
			m.settings.Entry = e.EntrySymbol
		}
	case event.SessionFinishedEvent:
		m.phase = phaseFinished
		m.records = e.Records
	case event.SessionAbortedEvent:
		m.phase = phaseAborted
		m.sessionErr = e.Err
	case event.SuppressionEvent:
		m.depth = e.Depth
	}
}

// advance applies pending records until one starts an animation. With
// step set it applies a single record even while paused.
func (m *Model) advance(step bool) tea.Cmd {
	for m.flight == nil && len(m.pending) > 0 && m.modelErr == nil {
		if m.paused && !step {
			return nil
		}
		r := m.pending[0]
		m.pending = m.pending[1:]

		anim, err := m.state.Apply(r)
		if err != nil {
			if !errors.IsFatal(err) {
				m.skipped++
				m.logger.Warn("skipping unknown operation", "record", r.String(), "seq", r.Seq)
				continue
			}
			m.modelErr = err
			m.logger.Error("container model rejected record",
				"record", r.String(), "seq", r.Seq, "severity", errors.GetSeverity(err).String(), "error", err.Error())
			return nil
		}
		m.applied++
		m.last = r

		if d := m.settings.duration(r.Kind); d > 0 {
			m.flight = &flight{anim: anim, start: m.now, duration: d}
		}
		if step {
			break
		}
	}
	if m.flight != nil && !m.framing {
		m.framing = true
		return m.frameTick()
	}
	return nil
}

// stateName names the badge shown in the header.
func (m Model) stateName() string {
	switch {
	case m.modelErr != nil:
		return "error"
	case m.paused:
		return "paused"
	}
	switch m.phase {
	case phaseRunning:
		return "running"
	case phaseFinished:
		return "finished"
	case phaseAborted:
		return "aborted"
	default:
		return "waiting"
	}
}

// Values returns the current slot values; ok is false for empty slots.
func (m Model) Values() (values []int64, ok []bool) {
	if m.state == nil {
		return nil, nil
	}
	return m.state.Values()
}

// Pending returns the number of records drained but not yet applied.
func (m Model) Pending() int {
	return len(m.pending)
}

// Err returns the model error that stopped the visualization, if any.
func (m Model) Err() error {
	return m.modelErr
}

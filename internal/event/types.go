package event

import "time"

// Event types published by the choreographer.
const (
	TypeSessionArmed      = "session.armed"
	TypeSessionStarted    = "session.started"
	TypeSessionFinished   = "session.finished"
	TypeSessionAborted    = "session.aborted"
	TypeSuppressionOpened = "suppression.opened"
	TypeSuppressionClosed = "suppression.closed"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// SessionArmedEvent is emitted once the breakpoints are placed and only the
// algorithm-entry site is enabled.
type SessionArmedEvent struct {
	baseEvent
	SessionID   string
	EntrySymbol string
}

// NewSessionArmedEvent creates a SessionArmedEvent.
func NewSessionArmedEvent(sessionID, entrySymbol string) SessionArmedEvent {
	return SessionArmedEvent{
		baseEvent:   newBaseEvent(TypeSessionArmed),
		SessionID:   sessionID,
		EntrySymbol: entrySymbol,
	}
}

// SessionStartedEvent is emitted when the algorithm entry was hit and the
// container snapshot has been taken.
type SessionStartedEvent struct {
	baseEvent
	SessionID string
	Base      uint64  // Address of the first element
	Stride    uint64  // Element size in bytes
	Values    []int64 // Initial container contents
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(sessionID string, base, stride uint64, values []int64) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent: newBaseEvent(TypeSessionStarted),
		SessionID: sessionID,
		Base:      base,
		Stride:    stride,
		Values:    values,
	}
}

// SessionFinishedEvent is emitted when the algorithm returned.
type SessionFinishedEvent struct {
	baseEvent
	SessionID string
	Records   uint64 // Number of records produced
	Hits      uint64 // Number of breakpoint hits handled
}

// NewSessionFinishedEvent creates a SessionFinishedEvent.
func NewSessionFinishedEvent(sessionID string, records, hits uint64) SessionFinishedEvent {
	return SessionFinishedEvent{
		baseEvent: newBaseEvent(TypeSessionFinished),
		SessionID: sessionID,
		Records:   records,
		Hits:      hits,
	}
}

// SessionAbortedEvent is emitted when a protocol violation stopped the
// instrumentation. The traced program keeps running unobserved.
type SessionAbortedEvent struct {
	baseEvent
	SessionID string
	Err       error
}

// NewSessionAbortedEvent creates a SessionAbortedEvent.
func NewSessionAbortedEvent(sessionID string, err error) SessionAbortedEvent {
	return SessionAbortedEvent{
		baseEvent: newBaseEvent(TypeSessionAborted),
		SessionID: sessionID,
		Err:       err,
	}
}

// SuppressionEvent is emitted when a swap call opens or closes a window in
// which move hits are not observed.
type SuppressionEvent struct {
	baseEvent
	SessionID string
	Depth     int // Nesting depth after the change
}

// NewSuppressionEvent creates a SuppressionEvent.
func NewSuppressionEvent(sessionID string, opened bool, depth int) SuppressionEvent {
	t := TypeSuppressionClosed
	if opened {
		t = TypeSuppressionOpened
	}
	return SuppressionEvent{
		baseEvent: newBaseEvent(t),
		SessionID: sessionID,
		Depth:     depth,
	}
}

// Package event provides a pub-sub bus carrying instrumentation session
// lifecycle notifications: armed, started, suppression window changes,
// finished and aborted.
//
// The bus decouples the breakpoint choreographer, which publishes on the
// debugger goroutine, from its observers: the logger and the renderer, which
// forwards events into its own event loop instead of touching renderer state
// from the debugger goroutine.
//
// Operation records do not travel on the bus. They go through the
// channel package, whose drain contract preserves their order for the
// container model.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeSessionAborted, func(e event.Event) {
//	    aborted := e.(event.SessionAbortedEvent)
//	    program.Send(abortedMsg{err: aborted.Err})
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    logger.Debug("session event", "type", e.EventType())
//	})
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - session.armed, session.started, session.finished, session.aborted
//   - suppression.opened, suppression.closed
package event

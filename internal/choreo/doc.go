// Package choreo is the breakpoint choreographer. It owns the enabled state of
// the four instrumented sites, turns each hit into at most one operation
// record, and hides the moves a swap primitive performs internally.
//
// # States
//
//	Armed    only the algorithm-entry site is enabled, so setup work such as
//	         shuffling the container is not observed
//	Running  entry was hit once; swap and move sites are enabled
//	Finished the entry call returned; every site is disabled
//	Aborted  a protocol violation was observed; every site is disabled and
//	         the program keeps running unobserved
//
// # Suppression
//
// A swap hit emits Swap(a, b), disables both move sites and installs a return
// trigger for that swap call which re-enables them. Windows nest: moves come
// back only when the outermost open swap returns.
//
// # Threading
//
// Callbacks run on the debugger goroutine while the traced program is halted.
// They receive the *Session explicitly and return a Result describing which
// sites to toggle and whether to resume; the session applies it after the
// callback returns. The only value that leaves the debugger goroutine is the
// record pushed onto the channel.
package choreo

// Package logging provides structured logging for sortwatch.
//
// It wraps Go's log/slog to emit JSON lines, either to {dir}/debug.log or to
// stderr. A full-screen renderer owns the terminal while a session runs, so
// anything worth reading afterwards goes to the log file.
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	logger := base.WithSession("a1b2").WithSite("swap")
//	logger.Debug("hit", "a", 3, "b", 7)
//
// produces
//
//	{"level":"DEBUG","msg":"hit","session_id":"a1b2","site":"swap","a":3,"b":7}
//
// All types in this package are safe for concurrent use.
package logging

// Package errors provides centralized error definitions and error handling utilities
// for sortwatch. It defines the sentinel errors for every protocol violation the
// instrumentation can observe, domain error types carrying the context of the
// violation, and classification helpers used to decide whether a session survives.
//
// # Error Kinds
//
// Sentinel errors name the violated invariant:
//   - ErrCapabilityUnsupported: the debugging session cannot run mutable breakpoint actions
//   - ErrUnsupportedOperationShape: a move between two temporaries
//   - ErrMissingTemporary: a move out of a temporary that was never registered
//   - ErrUnknownOperation: a record kind the interpretation stage does not recognise
//   - ErrEmptySlot: a move out of a slot that no longer holds an element
//
// Domain error types carry the context:
//   - InstrumentError: raised by the breakpoint choreographer (site, sequence number)
//   - ModelError: raised by the container state model (record, slot, token)
//   - DebuggerError: raised by a debugging session backend (command, output)
//
// # Usage
//
//	err := errors.NewInstrumentError("move between temporaries", errors.ErrUnsupportedOperationShape).
//		WithSite("move_assign")
//
//	if errors.Is(err, errors.ErrUnsupportedOperationShape) { ... }
//	if errors.IsFatal(err) { abort() }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that end the instrumentation session.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Instrumentation sentinel errors
var (
	// ErrCapabilityUnsupported indicates the debugging session lacks writable breakpoint actions.
	ErrCapabilityUnsupported = New("debugger does not support mutable breakpoint actions")
	// ErrUnsupportedOperationShape indicates a move whose source and destination are both temporaries.
	ErrUnsupportedOperationShape = New("unsupported operation shape")
	// ErrSessionFinished indicates a hit arrived after the session reached a terminal state.
	ErrSessionFinished = New("instrumentation session finished")
	// ErrInvalidBounds indicates the tracked container could not be described.
	ErrInvalidBounds = New("invalid container bounds")
)

// Container model sentinel errors
var (
	// ErrMissingTemporary indicates a move from a temporary that was never registered.
	ErrMissingTemporary = New("missing temporary")
	// ErrUnknownOperation indicates a record of an unrecognised kind.
	ErrUnknownOperation = New("unknown operation")
	// ErrEmptySlot indicates a move out of a slot that holds no element.
	ErrEmptySlot = New("slot is empty")
)

// Debugger sentinel errors
var (
	// ErrDebuggerExited indicates the debugger process is gone.
	ErrDebuggerExited = New("debugger exited")
	// ErrNoMatch indicates no disassembled instruction matched the requested mnemonic.
	ErrNoMatch = New("no matching instruction")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SortwatchError is the base interface for all sortwatch errors.
type SortwatchError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// InstrumentError represents errors raised while choreographing breakpoints.
//
// Example:
//
//	err := errors.NewInstrumentError("move between temporaries", errors.ErrUnsupportedOperationShape)
//	err = err.WithSite("move_construct").WithSeq(12)
//	fmt.Println(err) // "instrument error [site=move_construct, seq=12]: move between temporaries: unsupported operation shape"
type InstrumentError struct {
	baseError
	Site string
	Seq  uint64
}

// NewInstrumentError creates a new InstrumentError.
func NewInstrumentError(message string, cause error) *InstrumentError {
	return &InstrumentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
	}
}

// WithSite adds the instrumented site name to the error context.
func (e *InstrumentError) WithSite(site string) *InstrumentError {
	e.Site = site
	return e
}

// WithSeq adds the sequence number of the hit to the error context.
func (e *InstrumentError) WithSeq(seq uint64) *InstrumentError {
	e.Seq = seq
	return e
}

// WithSeverity sets the error severity.
func (e *InstrumentError) WithSeverity(s Severity) *InstrumentError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *InstrumentError) Error() string {
	var parts []string
	if e.Site != "" {
		parts = append(parts, fmt.Sprintf("site=%s", e.Site))
	}
	if e.Seq != 0 {
		parts = append(parts, fmt.Sprintf("seq=%d", e.Seq))
	}
	return e.format("instrument error", parts)
}

// Is checks if this error matches the target.
func (e *InstrumentError) Is(target error) bool {
	if _, ok := target.(*InstrumentError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ModelError represents errors raised by the container state model while
// applying an operation record.
//
// Example:
//
//	err := errors.NewModelError("cannot move from temporary", errors.ErrMissingTemporary).
//		WithRecord("MoveFromTemp(0x7ffd10, 3)").WithToken("0x7ffd10")
type ModelError struct {
	baseError
	Record string
	Slot   int
	Token  string
}

// NewModelError creates a new ModelError.
func NewModelError(message string, cause error) *ModelError {
	return &ModelError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
		Slot: -1,
	}
}

// WithRecord adds the rendered operation record to the error context.
func (e *ModelError) WithRecord(record string) *ModelError {
	e.Record = record
	return e
}

// WithSlot adds the slot index involved in the violation.
func (e *ModelError) WithSlot(slot int) *ModelError {
	e.Slot = slot
	return e
}

// WithToken adds the temporary token involved in the violation.
func (e *ModelError) WithToken(token string) *ModelError {
	e.Token = token
	return e
}

// WithSeverity sets the error severity.
func (e *ModelError) WithSeverity(s Severity) *ModelError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *ModelError) Error() string {
	var parts []string
	if e.Record != "" {
		parts = append(parts, fmt.Sprintf("record=%s", e.Record))
	}
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}
	if e.Token != "" {
		parts = append(parts, fmt.Sprintf("token=%s", e.Token))
	}
	return e.format("model error", parts)
}

// Is checks if this error matches the target.
func (e *ModelError) Is(target error) bool {
	if _, ok := target.(*ModelError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// DebuggerError represents failures reported by a debugging session backend.
//
// Example:
//
//	err := errors.NewDebuggerError("breakpoint placement failed", cause).
//		WithCommand("-break-insert swap").WithOutput(`msg="No symbol table is loaded."`)
type DebuggerError struct {
	baseError
	Command string
	Output  string
}

// NewDebuggerError creates a new DebuggerError.
func NewDebuggerError(message string, cause error) *DebuggerError {
	return &DebuggerError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithCommand adds the debugger command that failed.
func (e *DebuggerError) WithCommand(cmd string) *DebuggerError {
	e.Command = cmd
	return e
}

// WithOutput adds the debugger's response text.
func (e *DebuggerError) WithOutput(output string) *DebuggerError {
	e.Output = output
	return e
}

// Error returns the formatted error message.
func (e *DebuggerError) Error() string {
	var parts []string
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%q", e.Command))
	}
	if e.Output != "" {
		parts = append(parts, fmt.Sprintf("output=%q", e.Output))
	}
	return e.format("debugger error", parts)
}

// Is checks if this error matches the target.
func (e *DebuggerError) Is(target error) bool {
	if _, ok := target.(*DebuggerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("stride must be positive").WithField("container.stride").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal reports whether err ends the current instrumentation session.
// Every error is fatal except ErrUnknownOperation, which the interpretation
// stage logs and skips.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !Is(err, ErrUnknownOperation)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var swErr SortwatchError
	if As(err, &swErr) {
		return swErr.IsUserFacing()
	}

	var validation *ValidationError
	return As(err, &validation)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement SortwatchError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var swErr SortwatchError
	if As(err, &swErr) {
		return swErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to read swap operands")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

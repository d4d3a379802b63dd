package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstrumentError(t *testing.T) {
	err := NewInstrumentError("move between temporaries", ErrUnsupportedOperationShape).
		WithSite("move_assign").
		WithSeq(12)

	want := "instrument error [site=move_assign, seq=12]: move between temporaries: unsupported operation shape"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrUnsupportedOperationShape) {
		t.Error("errors.Is(err, ErrUnsupportedOperationShape) = false, want true")
	}
	if !errors.Is(err, &InstrumentError{}) {
		t.Error("errors.Is(err, &InstrumentError{}) = false, want true")
	}
	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityCritical)
	}
}

func TestModelError(t *testing.T) {
	tests := []struct {
		name string
		err  *ModelError
		want string
	}{
		{
			name: "no context",
			err:  NewModelError("bad record", nil),
			want: "model error: bad record",
		},
		{
			name: "slot zero is shown",
			err:  NewModelError("source empty", ErrEmptySlot).WithSlot(0),
			want: "model error [slot=0]: source empty: slot is empty",
		},
		{
			name: "record and token",
			err: NewModelError("cannot move from temporary", ErrMissingTemporary).
				WithRecord("MoveFromTemp(0x10, 3)").WithToken("0x10"),
			want: "model error [record=MoveFromTemp(0x10, 3), token=0x10]: cannot move from temporary: missing temporary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDebuggerError(t *testing.T) {
	err := NewDebuggerError("breakpoint placement failed", ErrDebuggerExited).
		WithCommand("-break-insert swap")

	if !strings.Contains(err.Error(), `command="-break-insert swap"`) {
		t.Errorf("Error() = %q, missing command", err.Error())
	}
	if !Is(err, ErrDebuggerExited) {
		t.Error("Is(err, ErrDebuggerExited) = false, want true")
	}
}

func TestValidationError_IsInvalidInput(t *testing.T) {
	err := NewValidationError("stride must be positive").WithField("container.stride").WithValue(0)

	if !Is(err, ErrInvalidInput) {
		t.Error("Is(err, ErrInvalidInput) = false, want true")
	}
	want := "validation error [field=container.stride, value=0]: stride must be positive"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown operation", NewModelError("skip", ErrUnknownOperation), false},
		{"wrapped unknown operation", fmt.Errorf("apply: %w", ErrUnknownOperation), false},
		{"missing temporary", NewModelError("gap", ErrMissingTemporary), true},
		{"shape", NewInstrumentError("shape", ErrUnsupportedOperationShape), true},
		{"plain", New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true")
	}
	if IsUserFacing(New("internal")) {
		t.Error("plain errors should not be user facing")
	}
	wrapped := Wrap(NewInstrumentError("x", nil), "context")
	if !IsUserFacing(wrapped) {
		t.Error("wrapped InstrumentError should be user facing")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(nil); got != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v", got)
	}
	if got := GetSeverity(New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v", got)
	}
	if got := GetSeverity(NewValidationError("x")); got != SeverityWarning {
		t.Errorf("GetSeverity(validation) = %v", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrMissingTemporary, "record %d", 7)
	if err.Error() != "record 7: missing temporary" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrMissingTemporary) {
		t.Error("Wrapf lost the cause")
	}
}

package disasm

import (
	"context"
	"regexp"

	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
)

// DefaultStepIgnore matches the library functions StepToUser and
// FinishToUser pass through.
const DefaultStepIgnore = `^(std::|__gnu)`

// ignored reports whether fn is library code. Frames without a symbol count
// as library code.
func ignored(ignore *regexp.Regexp, fn string) bool {
	return fn == "" || (ignore != nil && ignore.MatchString(fn))
}

// StepToUser steps into instructions until execution reaches a function
// other than the starting one that ignore does not match, and returns that
// function. It gives up after limit steps.
func StepToUser(ctx context.Context, dbg debugger.Session, ignore *regexp.Regexp, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	start, err := dbg.FrameFunction(ctx)
	if err != nil {
		return "", err
	}
	for range limit {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := dbg.StepInto(ctx); err != nil {
			return "", err
		}
		fn, err := dbg.FrameFunction(ctx)
		if err != nil {
			return "", err
		}
		if fn != start && !ignored(ignore, fn) {
			return fn, nil
		}
	}
	return "", errors.Wrapf(errors.ErrNoMatch, "no user function within %d steps", limit)
}

// FinishToUser runs until the current function returns, repeating while the
// caller is library code, and returns the first caller ignore does not
// match. A stop for any other reason ends the walk where it halted.
func FinishToUser(ctx context.Context, dbg debugger.Session, ignore *regexp.Regexp) (string, error) {
	for {
		returned := false
		err := dbg.FinishOnReturn(ctx, func(context.Context) (bool, error) {
			returned = true
			return false, nil
		})
		if err != nil {
			return "", err
		}
		stop, err := dbg.Run(ctx)
		if err != nil {
			return "", err
		}
		if stop.Reason == debugger.StopExited {
			return "", errors.NewDebuggerError("the program exited before returning to user code", errors.ErrDebuggerExited)
		}
		fn, err := dbg.FrameFunction(ctx)
		if err != nil {
			return "", err
		}
		if !returned || !ignored(ignore, fn) {
			return fn, nil
		}
	}
}

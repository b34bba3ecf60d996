package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// LevelCritical is logged for panics recovered by the poll loop. It sits above
// slog.LevelError so handlers keep it even at the strictest level.
const LevelCritical = slog.Level(12)

// errorClass is the outcome category of one unit of poll-loop work.
type errorClass int

const (
	classNone errorClass = iota
	// classRecoverable errors are logged and the loop carries on.
	classRecoverable
	// classCritical marks a recovered panic. Logged at LevelCritical, loop carries on.
	classCritical
	// classShutdown is the root context ending. It is the only class that stops the loop.
	classShutdown
)

// panicError wraps a value recovered from a panic together with its stack.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// classifyError decides how the poll loop reacts to err. A cancellation is only
// treated as shutdown when the loop's own context is done; a deadline hit by a
// single request stays recoverable.
func classifyError(ctx context.Context, err error) errorClass {
	if err == nil {
		return classNone
	}

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return classShutdown
	}

	var pe *panicError
	if errors.As(err, &pe) {
		return classCritical
	}

	return classRecoverable
}

// recoverAsError converts a panic in the calling function into a *panicError
// stored in *errp. It must be deferred directly.
func recoverAsError(errp *error) {
	if v := recover(); v != nil {
		*errp = &panicError{value: v, stack: debug.Stack()}
	}
}

// logFailure logs err at the severity its class calls for. Shutdown and nil
// errors are not logged.
func logFailure(ctx context.Context, logger *slog.Logger, msg string, err error, args ...any) {
	switch classifyError(ctx, err) {
	case classRecoverable:
		logger.Error(msg, append(args, "error", err)...)
	case classCritical:
		var pe *panicError
		errors.As(err, &pe)
		logger.Log(ctx, LevelCritical, msg, append(args, "error", err, "stack", string(pe.stack))...)
	}
}

// ReplaceLevelName renders LevelCritical as "CRITICAL" in slog handler output.
// Intended for slog.HandlerOptions.ReplaceAttr.
func ReplaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError is returned by Recover in place of a handler panic. A panic is
// retried like any other failure.
type PanicError struct {
	DefinitionID string
	Value        any
	Stack        []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.DefinitionID, e.Value)
}

// Recover converts handler panics into a *PanicError and logs the stack.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				pe := &PanicError{DefinitionID: a.Job.DefinitionID, Value: r, Stack: debug.Stack()}
				logger.Error("job handler panicked",
					slog.String("job_definition_id", a.Job.DefinitionID),
					slog.String("job_id", a.Job.ID),
					slog.Int("retried", a.Job.Retried),
					slog.Any("panic", r),
					slog.String("stack", string(pe.Stack)),
				)
				retErr = pe
			}
		}()
		return next(ctx)
	}
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Timeout bounds each attempt with d; zero or negative disables it. An
// attempt cut short by this deadline returns an error wrapping
// context.DeadlineExceeded, which Classify reports as FailureTimeout and the
// executor retries. The deadline is per attempt, so a redelivery starts a
// fresh one.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		err := next(ctx)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			// The handler swallowed the cancellation; keep the cause visible.
			err = fmt.Errorf("%w (handler returned: %w)", context.DeadlineExceeded, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("job attempt timed out",
				slog.String("job_definition_id", a.Job.DefinitionID),
				slog.String("job_id", a.Job.ID),
				slog.Duration("timeout", d),
			)
		}
		return err
	}
}

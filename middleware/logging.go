package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging logs the start and outcome of every attempt. Failures are logged
// with their classification and whether they end the job: a final failure
// at warn level, one that will be retried at info. Operator retries carry
// admin=true so they can be told apart from the executor's own backoff.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		log := logger.With(
			slog.String("job_definition_id", a.Job.DefinitionID),
			slog.String("job_id", a.Job.ID),
			slog.String("job_name", a.Job.Name),
			slog.Int("retried", a.Job.Retried),
			slog.Int("max_retries", a.Job.MaxRetries),
		)
		if a.Admin {
			log = log.With(slog.Bool("admin", true))
		}

		log.Debug("job attempt started", slog.Bool("retry", a.Retry))

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err == nil {
			log.Info("job attempt completed", slog.Duration("elapsed", elapsed))
			return nil
		}

		failure := Classify(err)
		final := failure.Final(a.Job)
		level := slog.LevelInfo
		if final {
			level = slog.LevelWarn
		}
		log.LogAttrs(ctx, level, "job attempt failed",
			slog.Duration("elapsed", elapsed),
			slog.String("failure", string(failure)),
			slog.Bool("final", final),
			slog.Int("remaining", a.Remaining()),
			slog.String("error", err.Error()),
		)
		return err
	}
}

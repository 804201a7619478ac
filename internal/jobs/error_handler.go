package jobs

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ErrorHandler logs job errors and panics so failed enrollments are visible
// to operators. River applies its own retry policy.
type ErrorHandler struct{}

// HandleError logs one job error.
func (*ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job errored",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempt,
		"error", err,
	)

	return nil
}

// HandlePanic logs one job panic.
func (*ErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job panicked",
		"job_id", job.ID,
		"kind", job.Kind,
		"panic", panicVal,
		"trace", trace,
	)

	return nil
}

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/service"
)

// batchEnroller is the minimal interface needed by the worker.
type batchEnroller interface {
	EnrollBatch(ctx context.Context, req *models.BatchEnrollmentRequest) (*models.BatchEnrollmentResult, error)
}

// BatchEnrollmentWorker executes asynchronous batch enrollments. Outcomes are
// logged; policy rejections cancel the job (retrying a duplicate face cannot
// succeed), while scan failures are left to River's retry policy.
type BatchEnrollmentWorker struct {
	river.WorkerDefaults[BatchEnrollmentArgs]

	batchService batchEnroller
	logger       *slog.Logger
}

// NewBatchEnrollmentWorker creates the worker. Logger may be nil.
func NewBatchEnrollmentWorker(batchService batchEnroller, logger *slog.Logger) *BatchEnrollmentWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchEnrollmentWorker{batchService: batchService, logger: logger}
}

// isTerminal reports whether a batch enrollment failure can never succeed on
// retry: the same frames will be rejected on every attempt.
func isTerminal(err error) bool {
	return errors.Is(err, service.ErrNoValidFrames) ||
		errors.Is(err, faceerrors.ErrValidation) ||
		errors.Is(err, faceerrors.ErrConflict)
}

const batchEnrollmentTimeout = 2 * time.Minute

// Timeout limits how long a single batch enrollment job can run.
func (w *BatchEnrollmentWorker) Timeout(*river.Job[BatchEnrollmentArgs]) time.Duration {
	return batchEnrollmentTimeout
}

// Work runs the batch pre-check and commit for the job's frames.
func (w *BatchEnrollmentWorker) Work(ctx context.Context, job *river.Job[BatchEnrollmentArgs]) error {
	args := job.Args

	result, err := w.batchService.EnrollBatch(ctx, &models.BatchEnrollmentRequest{
		Name:        args.Name,
		Region:      args.Region,
		BusinessKey: args.BusinessKey,
		Rank:        args.Rank,
		Description: args.Description,
		Frames:      args.Frames,
	})
	if err != nil {
		var dup *faceerrors.DuplicateError
		if errors.As(err, &dup) {
			w.logger.Warn("async batch enrollment rejected",
				"job_id", job.ID,
				"name", args.Name,
				"frame_index", dup.FrameIndex,
				"conflict_name", dup.ConflictName,
				"score", dup.Score,
			)

			// Terminal: the same frames will conflict on every attempt.
			return river.JobCancel(err)
		}

		if isTerminal(err) {
			w.logger.Warn("async batch enrollment invalid", "job_id", job.ID, "name", args.Name, "error", err)

			return river.JobCancel(err)
		}

		// CheckFailed and store errors retry per the River policy.
		return err
	}

	w.logger.Info("async batch enrollment completed",
		"job_id", job.ID,
		"identity_id", result.Identity.ID.String(),
		"committed", result.CommittedCount,
		"skipped", result.SkippedCount,
	)

	return nil
}

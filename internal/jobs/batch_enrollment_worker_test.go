package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/service"
)

type stubBatchService struct {
	result *models.BatchEnrollmentResult
	err    error
}

func (s *stubBatchService) EnrollBatch(_ context.Context, _ *models.BatchEnrollmentRequest) (*models.BatchEnrollmentResult, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.result, nil
}

func testJob() *river.Job[BatchEnrollmentArgs] {
	return &river.Job[BatchEnrollmentArgs]{
		JobRow: &rivertype.JobRow{ID: 42, Kind: "batch_enrollment"},
		Args: BatchEnrollmentArgs{
			Name:        "Alice",
			Region:      "eu-west",
			BusinessKey: "emp-001",
			Frames:      []models.BatchFrame{{Index: 0, Embedding: []float32{1, 0, 0}}},
		},
	}
}

func TestWorkSucceeds(t *testing.T) {
	worker := NewBatchEnrollmentWorker(&stubBatchService{
		result: &models.BatchEnrollmentResult{
			Identity:       &models.Identity{Name: "Alice"},
			CommittedCount: 1,
		},
	}, nil)

	err := worker.Work(context.Background(), testJob())
	assert.NoError(t, err)
}

func TestWorkDuplicateStillCarriesCause(t *testing.T) {
	cause := &faceerrors.DuplicateError{
		Kind:         faceerrors.DuplicateCrossIdentity,
		ConflictName: "Bob",
		Score:        90,
		FrameIndex:   0,
	}
	worker := NewBatchEnrollmentWorker(&stubBatchService{err: cause}, nil)

	err := worker.Work(context.Background(), testJob())
	require.Error(t, err)
	assert.True(t, errors.Is(err, faceerrors.ErrDuplicate))
}

func TestIsTerminalClassification(t *testing.T) {
	terminal := []error{
		service.ErrNoValidFrames,
		faceerrors.NewValidationError("frames", "bad frame"),
		faceerrors.NewConflictError("business key taken"),
	}
	for _, err := range terminal {
		assert.True(t, isTerminal(err), "expected terminal: %v", err)
	}

	retryable := []error{
		faceerrors.NewCheckFailedError("scan timed out"),
		errors.New("connection reset"),
	}
	for _, err := range retryable {
		assert.False(t, isTerminal(err), "expected retryable: %v", err)
	}
}

func TestWorkRetriesOnCheckFailed(t *testing.T) {
	// A failed scan may succeed on retry once the store recovers; the error
	// must surface as-is so River applies its retry policy.
	cause := faceerrors.NewCheckFailedError("scan timed out")
	worker := NewBatchEnrollmentWorker(&stubBatchService{err: cause}, nil)

	err := worker.Work(context.Background(), testJob())
	require.Error(t, err)
	assert.Equal(t, cause, err)
}

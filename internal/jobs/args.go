// Package jobs provides River job arguments, workers, and helpers for
// asynchronous batch enrollment.
package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/veriface/hub/internal/models"
)

// BatchEnrollmentArgs is the payload for an asynchronous video-enrollment job.
// Frames carry the already-extracted embeddings; the detector is never called
// from inside a job, so the enrollment lock is held only for scan+commit.
type BatchEnrollmentArgs struct {
	Name        string              `json:"name"`
	Region      string              `json:"region"`
	BusinessKey string              `json:"business_key"`
	Rank        *string             `json:"rank,omitempty"`
	Description *string             `json:"description,omitempty"`
	Frames      []models.BatchFrame `json:"frames"`
}

// Kind identifies the job type in the river_job table.
func (BatchEnrollmentArgs) Kind() string { return "batch_enrollment" }

// Inserter enqueues jobs. Abstracted so handlers can be tested without a
// running River client.
type Inserter interface {
	InsertBatchEnrollment(ctx context.Context, args BatchEnrollmentArgs) error
}

// RiverInserter enqueues jobs on a River client.
type RiverInserter struct {
	client *river.Client[pgx.Tx]
}

// NewRiverInserter creates an Inserter backed by the given River client.
func NewRiverInserter(client *river.Client[pgx.Tx]) *RiverInserter {
	return &RiverInserter{client: client}
}

// InsertBatchEnrollment enqueues one batch enrollment job.
func (i *RiverInserter) InsertBatchEnrollment(ctx context.Context, args BatchEnrollmentArgs) error {
	if _, err := i.client.Insert(ctx, args, nil); err != nil {
		return fmt.Errorf("insert batch enrollment job: %w", err)
	}

	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/repository"
	"github.com/veriface/hub/internal/similarity"
)

// ErrNoValidFrames is returned when an enrollment batch contains no usable frame.
var ErrNoValidFrames = errors.New("no valid frames in batch")

// BatchService runs multi-frame enrollment sessions. A batch is all-or-nothing:
// every frame is pre-checked against the store as it exists before the batch,
// and a conflict on any frame aborts the whole session with nothing committed.
type BatchService struct {
	enrollment *EnrollmentService

	// frameSkipThreshold is the score above which two frames of the same
	// batch count as the same shot; the later frame is skipped, not stored.
	// Much looser than the duplicate threshold so legitimate multiple angles
	// of the enrolling person are kept.
	frameSkipThreshold float64

	logger *slog.Logger
}

// NewBatchService creates a BatchService sharing the enrollment service's
// session lock. Logger may be nil.
func NewBatchService(enrollment *EnrollmentService, frameSkipThreshold float64, logger *slog.Logger) *BatchService {
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchService{
		enrollment:         enrollment,
		frameSkipThreshold: frameSkipThreshold,
		logger:             logger,
	}
}

// EnrollBatch pre-checks every usable frame against the pre-batch store and,
// only if all pass, commits them in a single transaction through a
// check-skipping insert path (the pre-check already cleared them, and frames
// of the same session must not reject each other mid-commit).
//
// A conflicting frame aborts the entire batch: the returned DuplicateError
// carries the frame index and the conflicting identity's name, and zero
// frames are persisted.
func (s *BatchService) EnrollBatch(ctx context.Context, req *models.BatchEnrollmentRequest) (*models.BatchEnrollmentResult, error) {
	usable, err := s.usableFrames(req.Frames)
	if err != nil {
		return nil, err
	}

	if len(usable) == 0 {
		return nil, ErrNoValidFrames
	}

	// The whole pre-check + commit sequence runs under the enrollment lock:
	// a concurrent enrollment must not slip between a clean pre-check and
	// the commit.
	s.enrollment.mu.Lock()
	defer s.enrollment.mu.Unlock()

	for _, frame := range usable {
		outcome, err := s.enrollment.scanForDuplicate(ctx, frame.Embedding, req.Name)
		if err != nil {
			s.enrollment.recordDecision(ctx, models.DecisionCheckFailed)

			return nil, err
		}

		if outcome.conflict != nil {
			outcome.conflict.FrameIndex = frame.Index
			s.enrollment.recordDecision(ctx, outcome.decision)
			s.logger.Info("batch enrollment rejected",
				"decision", outcome.decision,
				"claimed_name", req.Name,
				"frame_index", frame.Index,
				"conflict_name", outcome.conflict.ConflictName,
				"score", outcome.conflict.Score,
			)

			return nil, outcome.conflict
		}
	}

	accepted, skipped := s.dropNearDuplicateFrames(usable)

	ident, records, err := s.commitBatch(ctx, req, accepted)
	if err != nil {
		return nil, err
	}

	s.enrollment.recordDecision(ctx, models.DecisionAccepted)
	s.logger.Info("batch enrollment accepted",
		"identity_id", ident.ID.String(),
		"name", ident.Name,
		"committed", len(records),
		"skipped", skipped,
	)

	ids := make([]uuid.UUID, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}

	return &models.BatchEnrollmentResult{
		Identity:       ident,
		EmbeddingIDs:   ids,
		CommittedCount: len(records),
		SkippedCount:   skipped,
	}, nil
}

// usableFrames validates frame vectors. A mis-dimensioned frame aborts the
// batch (it signals a detector misconfiguration); a zero-norm frame is merely
// unusable and is dropped, like a frame with no detectable face.
func (s *BatchService) usableFrames(frames []models.BatchFrame) ([]models.BatchFrame, error) {
	usable := make([]models.BatchFrame, 0, len(frames))

	for _, frame := range frames {
		if len(frame.Embedding) != s.enrollment.dim {
			return nil, faceerrors.NewValidationError("frames", fmt.Sprintf(
				"frame %d has %d dimensions, expected %d",
				frame.Index, len(frame.Embedding), s.enrollment.dim))
		}

		if _, err := similarity.Normalize(frame.Embedding); err != nil {
			s.logger.Warn("dropping degenerate frame", "frame_index", frame.Index)

			continue
		}

		usable = append(usable, frame)
	}

	return usable, nil
}

// dropNearDuplicateFrames removes frames that are near-identical to an
// earlier accepted frame of the same batch.
func (s *BatchService) dropNearDuplicateFrames(frames []models.BatchFrame) (accepted []models.BatchFrame, skipped int) {
	for _, frame := range frames {
		isDup := false

		for _, kept := range accepted {
			res, err := similarity.Score(frame.Embedding, kept.Embedding)
			if err != nil {
				// Both frames already passed validation; a scoring failure
				// here means keep the frame rather than lose the angle.
				continue
			}

			if res.Score >= s.frameSkipThreshold {
				isDup = true

				break
			}
		}

		if isDup {
			skipped++

			s.logger.Debug("skipping near-duplicate frame", "frame_index", frame.Index)

			continue
		}

		accepted = append(accepted, frame)
	}

	return accepted, skipped
}

// commitBatch persists all accepted frames in one transaction. Caller must
// hold the enrollment lock.
func (s *BatchService) commitBatch(
	ctx context.Context, req *models.BatchEnrollmentRequest, frames []models.BatchFrame,
) (*models.Identity, []models.FaceEmbedding, error) {
	embs := make([]repository.NewEmbedding, len(frames))
	for i, frame := range frames {
		embs[i] = repository.NewEmbedding{Vector: frame.Embedding, Metadata: frame.Metadata}
	}

	ident, err := s.enrollment.identities.GetByBusinessKey(ctx, req.BusinessKey)
	if err != nil {
		if !errors.Is(err, faceerrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("lookup identity: %w", err)
		}

		createReq := &models.CreateIdentityRequest{
			Name:        req.Name,
			Region:      req.Region,
			BusinessKey: req.BusinessKey,
			Rank:        req.Rank,
			Description: req.Description,
		}

		newIdent, records, err := s.enrollment.embeddings.CreateIdentityWithEmbeddings(ctx, createReq, embs)
		if err != nil {
			return nil, nil, err
		}

		return newIdent, records, nil
	}

	if ident.Name != req.Name {
		return nil, nil, faceerrors.NewConflictError(fmt.Sprintf(
			"business key %q belongs to %q, not %q", req.BusinessKey, ident.Name, req.Name))
	}

	records, err := s.enrollment.embeddings.AddEmbeddings(ctx, ident.ID, embs)
	if err != nil {
		return nil, nil, err
	}

	return ident, records, nil
}

// Package service implements the enrollment, batch, recognition, and identity
// services on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/observability"
	"github.com/veriface/hub/internal/repository"
	"github.com/veriface/hub/internal/similarity"
)

// IdentitiesRepositoryForEnrollment provides the identity lookups the enrollment path needs.
type IdentitiesRepositoryForEnrollment interface {
	GetByBusinessKey(ctx context.Context, businessKey string) (*models.Identity, error)
}

// EmbeddingsRepositoryForEnrollment provides the embedding operations the enrollment path needs.
type EmbeddingsRepositoryForEnrollment interface {
	ScanCandidates(ctx context.Context, queryVector []float32, maxDistance float64) ([]models.StoredFace, error)
	CreateIdentityWithEmbeddings(ctx context.Context, req *models.CreateIdentityRequest, embs []repository.NewEmbedding) (*models.Identity, []models.FaceEmbedding, error)
	AddEmbeddings(ctx context.Context, identityID uuid.UUID, embs []repository.NewEmbedding) ([]models.FaceEmbedding, error)
}

// EnrollmentService runs the duplicate policy and commits accepted
// enrollments. It is also the session coordinator: the scan+commit window of
// every enrollment is serialized behind mu, so concurrent enrollments cannot
// both pass a duplicate check against a store state that is stale by commit
// time. Recognition search does not take this lock.
type EnrollmentService struct {
	identities IdentitiesRepositoryForEnrollment
	embeddings EmbeddingsRepositoryForEnrollment

	dim         int
	threshold   float64
	scanTimeout time.Duration

	metrics observability.EnrollmentMetrics
	logger  *slog.Logger

	mu sync.Mutex
}

// EnrollmentServiceParams configures EnrollmentService. Metrics and Logger may be nil.
type EnrollmentServiceParams struct {
	Identities IdentitiesRepositoryForEnrollment
	Embeddings EmbeddingsRepositoryForEnrollment

	// EmbeddingDim is the fixed vector length; candidates of any other length
	// are rejected before the scan.
	EmbeddingDim int

	// DuplicateThreshold is the combined score (0-100) above which a candidate
	// is rejected as an already-registered face.
	DuplicateThreshold float64

	// ScanTimeout bounds the duplicate-scan query. A timeout denies the
	// enrollment (fail-closed); it never lets the candidate through.
	ScanTimeout time.Duration

	Metrics observability.EnrollmentMetrics
	Logger  *slog.Logger
}

// NewEnrollmentService creates an EnrollmentService.
func NewEnrollmentService(p EnrollmentServiceParams) *EnrollmentService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EnrollmentService{
		identities:  p.Identities,
		embeddings:  p.Embeddings,
		dim:         p.EmbeddingDim,
		threshold:   p.DuplicateThreshold,
		scanTimeout: p.ScanTimeout,
		metrics:     p.Metrics,
		logger:      logger,
	}
}

// Enroll validates one candidate embedding, runs the duplicate policy against
// the whole store, and on acceptance persists the embedding (creating the
// identity on first enrollment). Rejections return a DuplicateError carrying
// the conflicting identity's name; scan failures return a CheckFailedError
// and deny the enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, req *models.EnrollmentRequest) (*models.EnrollmentResult, error) {
	if err := s.validateCandidate(req.Embedding); err != nil {
		return nil, err
	}

	// Feature extraction happens before this call; only the scan+commit
	// window holds the enrollment lock.
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome, err := s.scanForDuplicate(ctx, req.Embedding, req.Name)
	if err != nil {
		s.recordDecision(ctx, models.DecisionCheckFailed)

		return &models.EnrollmentResult{Decision: models.DecisionCheckFailed}, err
	}

	if outcome.conflict != nil {
		s.recordDecision(ctx, outcome.decision)
		s.logger.Info("enrollment rejected",
			"decision", outcome.decision,
			"claimed_name", req.Name,
			"conflict_name", outcome.conflict.ConflictName,
			"score", outcome.conflict.Score,
		)

		return &models.EnrollmentResult{Decision: outcome.decision, MaxScore: outcome.maxScore}, outcome.conflict
	}

	ident, record, err := s.commit(ctx, req)
	if err != nil {
		return nil, err
	}

	s.recordDecision(ctx, models.DecisionAccepted)
	s.logger.Info("enrollment accepted",
		"identity_id", ident.ID.String(),
		"name", ident.Name,
		"region", ident.Region,
		"max_score", outcome.maxScore,
	)

	return &models.EnrollmentResult{
		Decision:  models.DecisionAccepted,
		Identity:  ident,
		Embedding: record,
		MaxScore:  outcome.maxScore,
	}, nil
}

// validateCandidate rejects mis-dimensioned and zero-norm vectors before any
// store access.
func (s *EnrollmentService) validateCandidate(vector []float32) error {
	if len(vector) != s.dim {
		return faceerrors.NewValidationError("embedding",
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), s.dim))
	}

	if _, err := similarity.Normalize(vector); err != nil {
		return err
	}

	return nil
}

// scanOutcome is the result of one duplicate-policy scan.
type scanOutcome struct {
	decision models.EnrollmentDecision
	conflict *faceerrors.DuplicateError
	maxScore float64
}

// scanForDuplicate compares the candidate against every stored embedding that
// could exceed the duplicate threshold, across all regions. The vector index
// pre-filters candidates by cosine distance; the exact blended score decides.
// Any failure to read or score a stored record fails closed: the enrollment
// is denied, never silently passed.
func (s *EnrollmentService) scanForDuplicate(ctx context.Context, vector []float32, claimedName string) (scanOutcome, error) {
	scanCtx := ctx

	if s.scanTimeout > 0 {
		var cancel context.CancelFunc

		scanCtx, cancel = context.WithTimeout(ctx, s.scanTimeout)
		defer cancel()
	}

	start := time.Now()

	candidates, err := s.embeddings.ScanCandidates(scanCtx, vector, similarity.CandidateDistanceBound(s.threshold))
	if err != nil {
		s.logger.Error("duplicate scan failed", "error", err)

		return scanOutcome{}, faceerrors.NewCheckFailedError(fmt.Sprintf("duplicate scan failed: %v", err))
	}

	outcome := scanOutcome{decision: models.DecisionAccepted}

	var best *models.StoredFace

	for i := range candidates {
		res, err := similarity.Score(vector, candidates[i].Embedding)
		if err != nil {
			// A stored vector that cannot be scored means the uniqueness
			// invariant cannot be verified. Deny and leave the record ID in
			// the log for operator follow-up.
			s.logger.Error("unscorable stored embedding, denying enrollment",
				"embedding_id", candidates[i].EmbeddingID.String(),
				"identity_id", candidates[i].IdentityID.String(),
				"error", err,
			)

			return scanOutcome{}, faceerrors.NewCheckFailedError(
				fmt.Sprintf("stored embedding %s cannot be scored", candidates[i].EmbeddingID))
		}

		if res.Score > outcome.maxScore {
			outcome.maxScore = res.Score
			best = &candidates[i]
		}
	}

	if s.metrics != nil {
		s.metrics.RecordScanDuration(ctx, time.Since(start), len(candidates))
	}

	if best != nil && outcome.maxScore > s.threshold {
		kind := faceerrors.DuplicateCrossIdentity
		outcome.decision = models.DecisionRejectedCrossIdentity

		if best.IdentityName == claimedName {
			kind = faceerrors.DuplicateSamePerson
			outcome.decision = models.DecisionRejectedSamePerson
		}

		outcome.conflict = &faceerrors.DuplicateError{
			Kind:         kind,
			ConflictID:   best.IdentityID.String(),
			ConflictName: best.IdentityName,
			Score:        outcome.maxScore,
			FrameIndex:   -1,
		}
	}

	return outcome, nil
}

// commit persists one accepted embedding, creating the identity when the
// business key is not yet registered. Caller must hold the enrollment lock.
func (s *EnrollmentService) commit(ctx context.Context, req *models.EnrollmentRequest) (*models.Identity, *models.FaceEmbedding, error) {
	emb := repository.NewEmbedding{Vector: req.Embedding, Metadata: req.Metadata}

	ident, err := s.identities.GetByBusinessKey(ctx, req.BusinessKey)
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

		newIdent, records, err := s.embeddings.CreateIdentityWithEmbeddings(ctx, createReq, []repository.NewEmbedding{emb})
		if err != nil {
			return nil, nil, err
		}

		return newIdent, &records[0], nil
	}

	if ident.Name != req.Name {
		return nil, nil, faceerrors.NewConflictError(fmt.Sprintf(
			"business key %q belongs to %q, not %q", req.BusinessKey, ident.Name, req.Name))
	}

	records, err := s.embeddings.AddEmbeddings(ctx, ident.ID, []repository.NewEmbedding{emb})
	if err != nil {
		return nil, nil, err
	}

	return ident, &records[0], nil
}

func (s *EnrollmentService) recordDecision(ctx context.Context, decision models.EnrollmentDecision) {
	if s.metrics != nil {
		s.metrics.RecordDecision(ctx, string(decision))
	}
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/similarity"
)

// EmbeddingsRepositoryForSearch provides the read operations needed for recognition search.
type EmbeddingsRepositoryForSearch interface {
	NearestByEmbedding(ctx context.Context, queryVector []float32, region string, maxDistance float64, limit int) ([]models.Match, error)
}

// RecognitionService performs region-scoped similarity search over stored
// embeddings. Searches are lock-free and may run concurrently with an
// in-progress enrollment; reading slightly stale data is acceptable here.
type RecognitionService struct {
	embeddings EmbeddingsRepositoryForSearch

	dim             int
	defaultMinScore float64

	// bestEffort degrades store errors to empty results. Configured
	// explicitly; never applies to the enrollment path.
	bestEffort bool

	logger *slog.Logger
}

// RecognitionServiceParams configures RecognitionService. Logger may be nil.
type RecognitionServiceParams struct {
	Embeddings      EmbeddingsRepositoryForSearch
	EmbeddingDim    int
	DefaultMinScore float64
	BestEffort      bool
	Logger          *slog.Logger
}

// NewRecognitionService creates a RecognitionService.
func NewRecognitionService(p RecognitionServiceParams) *RecognitionService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RecognitionService{
		embeddings:      p.Embeddings,
		dim:             p.EmbeddingDim,
		defaultMinScore: p.DefaultMinScore,
		bestEffort:      p.BestEffort,
		logger:          logger,
	}
}

// Search returns stored embeddings similar to the query vector within region,
// closest first. minScore (0-100) filters matches; pass 0 to use the
// configured default. Results never include another region's records, even
// when globally closer.
func (s *RecognitionService) Search(
	ctx context.Context, vector []float32, region string, minScore float64, limit int,
) ([]models.Match, error) {
	if len(vector) != s.dim {
		return nil, faceerrors.NewValidationError("embedding",
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), s.dim))
	}

	if _, err := similarity.Normalize(vector); err != nil {
		return nil, err
	}

	if region == "" {
		return nil, faceerrors.NewValidationError("region", "region is required")
	}

	if minScore <= 0 {
		minScore = s.defaultMinScore
	}

	// The store orders by cosine distance; score = (1 - distance) * 100, so
	// the minimum score maps directly to a distance cutoff.
	maxDistance := 1 - minScore/100

	matches, err := s.embeddings.NearestByEmbedding(ctx, vector, region, maxDistance, limit)
	if err != nil {
		if s.bestEffort {
			s.logger.Warn("search degraded to empty results", "error", err, "region", region)

			return []models.Match{}, nil
		}

		return nil, fmt.Errorf("nearest face embeddings: %w", err)
	}

	for i := range matches {
		matches[i].Score = similarity.DistanceToScore(matches[i].Distance)
	}

	return matches, nil
}

// Identify returns the best match for the query vector within region, or a
// NotFoundError when nothing scores at or above minScore.
func (s *RecognitionService) Identify(
	ctx context.Context, vector []float32, region string, minScore float64,
) (*models.Match, error) {
	matches, err := s.Search(ctx, vector, region, minScore, 1)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return nil, faceerrors.NewNotFoundError("identity", "no identity matched the probe")
	}

	return &matches[0], nil
}

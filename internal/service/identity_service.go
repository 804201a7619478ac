package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
)

// IdentitiesRepository is the full identity data access interface.
type IdentitiesRepository interface {
	Create(ctx context.Context, req *models.CreateIdentityRequest) (*models.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetByBusinessKey(ctx context.Context, businessKey string) (*models.Identity, error)
	GetByNameAndRegion(ctx context.Context, name, region string) (*models.Identity, error)
	List(ctx context.Context, filters *models.ListIdentitiesFilters) ([]models.Identity, error)
	Count(ctx context.Context, filters *models.ListIdentitiesFilters) (int64, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateIdentityRequest) (*models.Identity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EmbeddingsReader provides the embedding reads the identity service exposes.
type EmbeddingsReader interface {
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]models.FaceEmbedding, error)
	CountByIdentity(ctx context.Context, identityID uuid.UUID) (int64, error)
}

// IdentityService provides identity profile CRUD. Face enrollment goes
// through EnrollmentService; this service never writes embeddings.
type IdentityService struct {
	identities IdentitiesRepository
	embeddings EmbeddingsReader
}

// NewIdentityService creates an IdentityService.
func NewIdentityService(identities IdentitiesRepository, embeddings EmbeddingsReader) *IdentityService {
	return &IdentityService{identities: identities, embeddings: embeddings}
}

// Create registers an identity without any face on file.
func (s *IdentityService) Create(ctx context.Context, req *models.CreateIdentityRequest) (*models.Identity, error) {
	if req.Name == "" {
		return nil, faceerrors.NewValidationError("name", "name is required")
	}

	if req.Region == "" {
		return nil, faceerrors.NewValidationError("region", "region is required")
	}

	if req.BusinessKey == "" {
		return nil, faceerrors.NewValidationError("business_key", "business_key is required")
	}

	ident, err := s.identities.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	return ident, nil
}

// Get retrieves an identity by ID.
func (s *IdentityService) Get(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.identities.GetByID(ctx, id)
}

// GetByBusinessKey retrieves an identity by business key.
func (s *IdentityService) GetByBusinessKey(ctx context.Context, businessKey string) (*models.Identity, error) {
	return s.identities.GetByBusinessKey(ctx, businessKey)
}

// List retrieves identities and the total count for the filters.
func (s *IdentityService) List(ctx context.Context, filters *models.ListIdentitiesFilters) (*models.ListIdentitiesResponse, error) {
	identities, err := s.identities.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	total, err := s.identities.Count(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("count identities: %w", err)
	}

	return &models.ListIdentitiesResponse{
		Data:   identities,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// Update edits an identity's profile fields.
func (s *IdentityService) Update(ctx context.Context, id uuid.UUID, req *models.UpdateIdentityRequest) (*models.Identity, error) {
	return s.identities.Update(ctx, id, req)
}

// Delete removes an identity and, by cascade, every embedding it owns.
func (s *IdentityService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.identities.Delete(ctx, id)
}

// ListEmbeddings returns the embeddings on file for an identity.
func (s *IdentityService) ListEmbeddings(ctx context.Context, id uuid.UUID) ([]models.FaceEmbedding, error) {
	if _, err := s.identities.GetByID(ctx, id); err != nil {
		return nil, err
	}

	return s.embeddings.ListByIdentity(ctx, id)
}

package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/jobs"
	"github.com/veriface/hub/internal/models"
)

type mockIdentityService struct {
	identities map[uuid.UUID]*models.Identity

	createErr error
}

func newMockIdentityService(identities ...*models.Identity) *mockIdentityService {
	byID := make(map[uuid.UUID]*models.Identity)
	for _, ident := range identities {
		byID[ident.ID] = ident
	}

	return &mockIdentityService{identities: byID}
}

func (m *mockIdentityService) Create(_ context.Context, req *models.CreateIdentityRequest) (*models.Identity, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}

	if req.Name == "" {
		return nil, faceerrors.NewValidationError("name", "name is required")
	}

	ident := &models.Identity{ID: uuid.New(), Name: req.Name, Region: req.Region, BusinessKey: req.BusinessKey}
	m.identities[ident.ID] = ident

	return ident, nil
}

func (m *mockIdentityService) Get(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	ident, ok := m.identities[id]
	if !ok {
		return nil, faceerrors.NewNotFoundError("identity", "")
	}

	return ident, nil
}

func (m *mockIdentityService) GetByBusinessKey(_ context.Context, key string) (*models.Identity, error) {
	for _, ident := range m.identities {
		if ident.BusinessKey == key {
			return ident, nil
		}
	}

	return nil, faceerrors.NewNotFoundError("identity", "")
}

func (m *mockIdentityService) List(_ context.Context, filters *models.ListIdentitiesFilters) (*models.ListIdentitiesResponse, error) {
	data := make([]models.Identity, 0, len(m.identities))
	for _, ident := range m.identities {
		data = append(data, *ident)
	}

	return &models.ListIdentitiesResponse{
		Data:   data,
		Total:  int64(len(data)),
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

func (m *mockIdentityService) Update(_ context.Context, id uuid.UUID, req *models.UpdateIdentityRequest) (*models.Identity, error) {
	ident, ok := m.identities[id]
	if !ok {
		return nil, faceerrors.NewNotFoundError("identity", "")
	}

	if req.Name != nil {
		ident.Name = *req.Name
	}

	return ident, nil
}

func (m *mockIdentityService) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.identities, id)

	return nil
}

func (m *mockIdentityService) ListEmbeddings(_ context.Context, id uuid.UUID) ([]models.FaceEmbedding, error) {
	if _, ok := m.identities[id]; !ok {
		return nil, faceerrors.NewNotFoundError("identity", "")
	}

	return []models.FaceEmbedding{}, nil
}

type mockEnrollmentService struct {
	result *models.EnrollmentResult
	err    error

	lastRequest *models.EnrollmentRequest
}

func (m *mockEnrollmentService) Enroll(_ context.Context, req *models.EnrollmentRequest) (*models.EnrollmentResult, error) {
	m.lastRequest = req

	if m.err != nil {
		return nil, m.err
	}

	return m.result, nil
}

type mockBatchService struct {
	result *models.BatchEnrollmentResult
	err    error

	lastRequest *models.BatchEnrollmentRequest
}

func (m *mockBatchService) EnrollBatch(_ context.Context, req *models.BatchEnrollmentRequest) (*models.BatchEnrollmentResult, error) {
	m.lastRequest = req

	if m.err != nil {
		return nil, m.err
	}

	return m.result, nil
}

type mockRecognitionService struct {
	matches []models.Match
	match   *models.Match
	err     error

	lastRegion   string
	lastMinScore float64
	lastLimit    int
}

func (m *mockRecognitionService) Search(_ context.Context, _ []float32, region string, minScore float64, limit int) ([]models.Match, error) {
	m.lastRegion = region
	m.lastMinScore = minScore
	m.lastLimit = limit

	if m.err != nil {
		return nil, m.err
	}

	return m.matches, nil
}

func (m *mockRecognitionService) Identify(_ context.Context, _ []float32, region string, minScore float64) (*models.Match, error) {
	m.lastRegion = region
	m.lastMinScore = minScore

	if m.err != nil {
		return nil, m.err
	}

	return m.match, nil
}

type mockInserter struct {
	inserted []jobs.BatchEnrollmentArgs
	err      error
}

func (m *mockInserter) InsertBatchEnrollment(_ context.Context, args jobs.BatchEnrollmentArgs) error {
	if m.err != nil {
		return m.err
	}

	m.inserted = append(m.inserted, args)

	return nil
}

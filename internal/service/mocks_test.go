package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/repository"
)

// mockIdentityStore implements identity lookups against an in-memory map
// keyed by business key.
type mockIdentityStore struct {
	byKey map[string]*models.Identity

	getErr error
}

func newMockIdentityStore(identities ...*models.Identity) *mockIdentityStore {
	byKey := make(map[string]*models.Identity)
	for _, ident := range identities {
		byKey[ident.BusinessKey] = ident
	}

	return &mockIdentityStore{byKey: byKey}
}

func (m *mockIdentityStore) GetByBusinessKey(_ context.Context, businessKey string) (*models.Identity, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}

	ident, ok := m.byKey[businessKey]
	if !ok {
		return nil, faceerrors.NewNotFoundError("identity", "")
	}

	return ident, nil
}

// mockEmbeddingStore implements the enrollment-path embedding operations and
// records what was committed.
type mockEmbeddingStore struct {
	candidates []models.StoredFace
	scanErr    error

	scanCalls       int
	lastMaxDistance float64

	createCalls    int
	createErr      error
	addCalls       int
	addErr         error
	lastCommitted  []repository.NewEmbedding
	lastIdentityID uuid.UUID
}

func (m *mockEmbeddingStore) ScanCandidates(_ context.Context, _ []float32, maxDistance float64) ([]models.StoredFace, error) {
	m.scanCalls++
	m.lastMaxDistance = maxDistance

	if m.scanErr != nil {
		return nil, m.scanErr
	}

	return m.candidates, nil
}

func (m *mockEmbeddingStore) CreateIdentityWithEmbeddings(
	_ context.Context, req *models.CreateIdentityRequest, embs []repository.NewEmbedding,
) (*models.Identity, []models.FaceEmbedding, error) {
	m.createCalls++

	if m.createErr != nil {
		return nil, nil, m.createErr
	}

	m.lastCommitted = embs

	ident := &models.Identity{
		ID:          uuid.New(),
		Name:        req.Name,
		Region:      req.Region,
		BusinessKey: req.BusinessKey,
		Rank:        req.Rank,
		Description: req.Description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	return ident, m.newRecords(ident.ID, embs), nil
}

func (m *mockEmbeddingStore) AddEmbeddings(
	_ context.Context, identityID uuid.UUID, embs []repository.NewEmbedding,
) ([]models.FaceEmbedding, error) {
	m.addCalls++

	if m.addErr != nil {
		return nil, m.addErr
	}

	m.lastCommitted = embs
	m.lastIdentityID = identityID

	return m.newRecords(identityID, embs), nil
}

func (m *mockEmbeddingStore) newRecords(identityID uuid.UUID, embs []repository.NewEmbedding) []models.FaceEmbedding {
	records := make([]models.FaceEmbedding, len(embs))
	for i, emb := range embs {
		records[i] = models.FaceEmbedding{
			ID:         uuid.New(),
			IdentityID: identityID,
			Embedding:  emb.Vector,
			ImageRef:   emb.Metadata.ImageRef,
			Confidence: emb.Metadata.Confidence,
			Quality:    emb.Metadata.Quality,
			BBox:       emb.Metadata.BBox,
			CreatedAt:  time.Now(),
		}
	}

	return records
}

func storedFace(name, region string, vector []float32) models.StoredFace {
	return models.StoredFace{
		EmbeddingID:  uuid.New(),
		IdentityID:   uuid.New(),
		IdentityName: name,
		Region:       region,
		Embedding:    vector,
	}
}

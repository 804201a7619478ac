package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
)

func newTestBatchService(identities *mockIdentityStore, embeddings *mockEmbeddingStore, frameSkipThreshold float64) *BatchService {
	enrollment := newTestEnrollmentService(identities, embeddings, 60)

	return NewBatchService(enrollment, frameSkipThreshold, nil)
}

func batchReq(name, region, key string, vectors ...[]float32) *models.BatchEnrollmentRequest {
	frames := make([]models.BatchFrame, len(vectors))
	for i, v := range vectors {
		frames[i] = models.BatchFrame{Index: i, Embedding: v}
	}

	return &models.BatchEnrollmentRequest{
		Name:        name,
		Region:      region,
		BusinessKey: key,
		Frames:      frames,
	}
}

func TestEnrollBatchCommitsAllFrames(t *testing.T) {
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{}
	svc := newTestBatchService(identities, embeddings, 98)

	result, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{1, 0, 0}, []float32{0, 1, 0}))
	require.NoError(t, err)

	assert.Equal(t, 2, result.CommittedCount)
	assert.Equal(t, 0, result.SkippedCount)
	assert.Len(t, result.EmbeddingIDs, 2)
	require.NotNil(t, result.Identity)
	assert.Equal(t, "Alice", result.Identity.Name)

	// All frames land in one transactional create.
	assert.Equal(t, 1, embeddings.createCalls)
	assert.Len(t, embeddings.lastCommitted, 2)
}

func TestEnrollBatchAbortsOnConflictingFrame(t *testing.T) {
	// Frame 1 matches a stored face. The whole batch must abort with nothing
	// committed, and the error must carry the offending frame index.
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{
		candidates: []models.StoredFace{storedFace("Mallory", "us-east", []float32{0, 1, 0})},
	}
	svc := newTestBatchService(identities, embeddings, 98)

	_, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{1, 0, 0}, []float32{0, 1, 0}))
	require.Error(t, err)

	var dup *faceerrors.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, faceerrors.DuplicateCrossIdentity, dup.Kind)
	assert.Equal(t, "Mallory", dup.ConflictName)
	assert.Equal(t, 1, dup.FrameIndex)

	assert.Equal(t, 0, embeddings.createCalls)
	assert.Equal(t, 0, embeddings.addCalls)
}

func TestEnrollBatchNoValidFrames(t *testing.T) {
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{}
	svc := newTestBatchService(identities, embeddings, 98)

	_, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{0, 0, 0}, []float32{0, 0, 0}))

	require.ErrorIs(t, err, ErrNoValidFrames)
	assert.Equal(t, 0, embeddings.scanCalls)
}

func TestEnrollBatchDropsDegenerateFrames(t *testing.T) {
	// A zero-norm frame is unusable, like a frame with no detectable face; it
	// is dropped rather than failing the batch.
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{}
	svc := newTestBatchService(identities, embeddings, 98)

	result, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{0, 0, 0}, []float32{1, 0, 0}))
	require.NoError(t, err)

	assert.Equal(t, 1, result.CommittedCount)
	assert.Len(t, embeddings.lastCommitted, 1)
}

func TestEnrollBatchMisdimensionedFrameAborts(t *testing.T) {
	// A wrong-length frame signals a detector misconfiguration, not a bad
	// frame: abort the whole batch.
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{}
	svc := newTestBatchService(identities, embeddings, 98)

	_, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{1, 0, 0}, []float32{1, 0}))
	require.Error(t, err)

	assert.True(t, errors.Is(err, faceerrors.ErrValidation))
	assert.Equal(t, 0, embeddings.scanCalls)
	assert.Equal(t, 0, embeddings.createCalls)
}

func TestEnrollBatchSkipsNearIdenticalFrames(t *testing.T) {
	// Consecutive video frames of a still subject are near-identical; storing
	// them all adds no signal. Distinct angles must still be kept.
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{}
	svc := newTestBatchService(identities, embeddings, 98)

	result, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001",
			[]float32{1, 0, 0},
			[]float32{1, 0.001, 0}, // same shot as frame 0
			[]float32{0, 1, 0},     // genuinely different angle
		))
	require.NoError(t, err)

	assert.Equal(t, 2, result.CommittedCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Len(t, embeddings.lastCommitted, 2)
}

func TestEnrollBatchFailsClosedOnScanError(t *testing.T) {
	identities := newMockIdentityStore()
	embeddings := &mockEmbeddingStore{scanErr: errors.New("connection reset")}
	svc := newTestBatchService(identities, embeddings, 98)

	_, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{1, 0, 0}))
	require.Error(t, err)

	assert.True(t, errors.Is(err, faceerrors.ErrCheckFailed))
	assert.Equal(t, 0, embeddings.createCalls)
}

func TestEnrollBatchAddsToExistingIdentity(t *testing.T) {
	existing := &models.Identity{
		ID:          uuid.New(),
		Name:        "Alice",
		Region:      "eu-west",
		BusinessKey: "emp-001",
	}
	identities := newMockIdentityStore(existing)
	embeddings := &mockEmbeddingStore{}
	svc := newTestBatchService(identities, embeddings, 98)

	result, err := svc.EnrollBatch(context.Background(),
		batchReq("Alice", "eu-west", "emp-001", []float32{1, 0, 0}))
	require.NoError(t, err)

	assert.Equal(t, existing.ID, result.Identity.ID)
	assert.Equal(t, 1, embeddings.addCalls)
	assert.Equal(t, 0, embeddings.createCalls)
}

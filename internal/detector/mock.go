package detector

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/veriface/hub/internal/models"
)

// MockClient implements the Client interface for testing purposes.
// It reports exactly one face per image, with a deterministic embedding
// derived from the image hash, so identical images always match and distinct
// images almost never do.
type MockClient struct {
	dimensions int
}

// NewMockClient creates a mock detector with the given embedding dimension.
func NewMockClient(dimensions int) *MockClient {
	return &MockClient{dimensions: dimensions}
}

// Detect returns one face with a deterministic unit-length embedding.
func (c *MockClient) Detect(_ context.Context, image []byte) ([]Face, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image cannot be empty")
	}

	return []Face{{
		BBox:       models.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100},
		Confidence: 0.99,
		Embedding:  c.deterministicEmbedding(image),
	}}, nil
}

// deterministicEmbedding creates a normalized embedding vector from the image hash.
func (c *MockClient) deterministicEmbedding(image []byte) []float32 {
	hash := sha256.Sum256(image)
	embedding := make([]float32, c.dimensions)

	var sum float64

	for i := 0; i < c.dimensions; i++ {
		// Use hash bytes cyclically, shifted into [-1, 1]
		b := hash[i%len(hash)]
		embedding[i] = (float32(b) / 127.5) - 1.0
		sum += float64(embedding[i]) * float64(embedding[i])
	}

	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		embedding[0] = 1 // hash of all 0x80 bytes; keep the vector usable
		return embedding
	}

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

// Ensure MockClient implements Client interface
var _ Client = (*MockClient)(nil)

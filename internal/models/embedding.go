package models

import (
	"time"

	"github.com/google/uuid"
)

// BoundingBox is the detector-reported face location in the source image,
// kept for audit only; it plays no role in matching.
type BoundingBox struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// FaceEmbedding is one stored biometric sample owned by an identity.
type FaceEmbedding struct {
	ID         uuid.UUID    `json:"id"`
	IdentityID uuid.UUID    `json:"identity_id"`
	Embedding  []float32    `json:"-"`
	ImageRef   *string      `json:"image_ref,omitempty"`
	Confidence float64      `json:"confidence"`
	Quality    float64      `json:"quality"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// EmbeddingMetadata carries the non-vector attributes of a new embedding.
// JSON tags keep it serializable inside job payloads.
type EmbeddingMetadata struct {
	ImageRef   *string      `json:"image_ref,omitempty"`
	Confidence float64      `json:"confidence"`
	Quality    float64      `json:"quality"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// Match pairs a stored embedding with its owner and the search distance.
// Score is the 0-100 similarity derived from the store's cosine distance.
type Match struct {
	Embedding FaceEmbedding `json:"embedding"`
	Identity  Identity      `json:"identity"`
	Distance  float64       `json:"distance"`
	Score     float64       `json:"score"`
}

// StoredFace is one row of the duplicate-scan candidate set: an embedding
// joined with the owning identity's name and region.
type StoredFace struct {
	EmbeddingID  uuid.UUID
	IdentityID   uuid.UUID
	IdentityName string
	Region       string
	Embedding    []float32
}

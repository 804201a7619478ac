package models

import "github.com/google/uuid"

// EnrollmentDecision is the terminal state of one enrollment attempt.
type EnrollmentDecision string

const (
	// DecisionAccepted means no stored embedding exceeded the duplicate threshold.
	DecisionAccepted EnrollmentDecision = "accepted"
	// DecisionRejectedSamePerson means the face is already on file for the claimed identity.
	DecisionRejectedSamePerson EnrollmentDecision = "rejected_same_person"
	// DecisionRejectedCrossIdentity means the face is on file under a different identity.
	DecisionRejectedCrossIdentity EnrollmentDecision = "rejected_cross_identity"
	// DecisionCheckFailed means the duplicate scan could not complete; enrollment is denied.
	DecisionCheckFailed EnrollmentDecision = "check_failed"
)

// EnrollmentRequest declares one candidate embedding for one identity.
// The identity is created on first successful enrollment if it does not exist.
type EnrollmentRequest struct {
	Name        string            `json:"name"`
	Region      string            `json:"region"`
	BusinessKey string            `json:"business_key"`
	Rank        *string           `json:"rank,omitempty"`
	Description *string           `json:"description,omitempty"`
	Embedding   []float32         `json:"embedding"`
	Metadata    EmbeddingMetadata `json:"metadata"`
}

// EnrollmentResult reports the outcome of a single enrollment.
type EnrollmentResult struct {
	Decision  EnrollmentDecision `json:"decision"`
	Identity  *Identity          `json:"identity,omitempty"`
	Embedding *FaceEmbedding     `json:"embedding,omitempty"`
	// MaxScore is the highest combined score observed during the scan.
	MaxScore float64 `json:"max_score"`
}

// BatchFrame is one candidate embedding extracted from an enrollment session frame.
type BatchFrame struct {
	Index     int               `json:"index"`
	Embedding []float32         `json:"embedding"`
	Metadata  EmbeddingMetadata `json:"metadata"`
}

// BatchEnrollmentRequest declares a multi-frame enrollment session for one identity.
// It is transient: either every usable frame commits or none do.
type BatchEnrollmentRequest struct {
	Name        string       `json:"name"`
	Region      string       `json:"region"`
	BusinessKey string       `json:"business_key"`
	Rank        *string      `json:"rank,omitempty"`
	Description *string      `json:"description,omitempty"`
	Frames      []BatchFrame `json:"frames"`
}

// BatchEnrollmentResult reports the outcome of a batch enrollment session.
type BatchEnrollmentResult struct {
	Identity       *Identity   `json:"identity,omitempty"`
	EmbeddingIDs   []uuid.UUID `json:"embedding_ids"`
	CommittedCount int         `json:"committed_count"`
	SkippedCount   int         `json:"skipped_count"`
}

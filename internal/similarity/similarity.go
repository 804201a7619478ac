// Package similarity computes blended cosine/euclidean similarity between
// face embeddings on a common 0-100 score scale.
package similarity

import (
	"math"

	"github.com/veriface/hub/internal/faceerrors"
)

// Blend weights. Cosine dominates because it is robust to illumination scale
// changes; euclidean acts as a secondary discriminator for angle/pose shifts.
const (
	cosineWeight    = 0.8
	euclideanWeight = 0.2
)

// Result holds the pairwise similarity metrics for two embeddings.
type Result struct {
	Cosine    float64
	Euclidean float64
	// Score is the blended similarity on a 0-100 scale, higher = more similar.
	Score float64
}

// Score computes the blended similarity of two embeddings:
//
//	combined = cosine*0.8 + ((2 - euclidean)/2)*0.2
//	score    = combined * 100
//
// Both vectors are unit-normalized first. Returns a DegenerateVectorError for
// zero-norm input and a ValidationError on length mismatch.
func Score(a, b []float32) (Result, error) {
	if len(a) != len(b) {
		return Result{}, faceerrors.NewValidationError("embedding", "embedding length mismatch")
	}

	if len(a) == 0 {
		return Result{}, faceerrors.NewValidationError("embedding", "embedding is empty")
	}

	an, err := Normalize(a)
	if err != nil {
		return Result{}, err
	}

	bn, err := Normalize(b)
	if err != nil {
		return Result{}, err
	}

	var dot, dist float64

	for i := range an {
		dot += float64(an[i]) * float64(bn[i])

		d := float64(an[i]) - float64(bn[i])
		dist += d * d
	}

	euclidean := math.Sqrt(dist)
	combined := dot*cosineWeight + ((2-euclidean)/2)*euclideanWeight

	return Result{
		Cosine:    dot,
		Euclidean: euclidean,
		Score:     combined * 100,
	}, nil
}

// Normalize returns a unit-length copy of v.
// A zero-norm vector cannot be normalized and fails with a DegenerateVectorError.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, faceerrors.NewDegenerateVectorError("embedding has zero norm")
	}

	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / norm)
	}

	return out, nil
}

// DistanceToScore converts a pgvector cosine distance (0..2) to the common
// 0-100 score scale: similarity = 1 - distance; score = similarity * 100.
// This simpler path is used only for indexed bulk search; exact pairwise
// duplicate checks use the full blended formula in Score.
func DistanceToScore(distance float64) float64 {
	return (1 - distance) * 100
}

// CandidateDistanceBound returns a cosine-distance cutoff that is guaranteed
// to include every stored embedding whose blended score against the candidate
// could exceed threshold (a 0-100 percentage). Derivation: for unit vectors
// the euclidean term satisfies (2-e)/2 <= 1, so combined <= cosine*0.8 + 0.2;
// combined > t/100 therefore implies cosine > (t/100 - 0.2)/0.8, i.e.
// distance < 1 - (t/100 - 0.2)/0.8. Used to pre-filter the duplicate scan
// through the vector index without changing the full-scan semantics.
func CandidateDistanceBound(threshold float64) float64 {
	bound := 1 - (threshold/100-euclideanWeight)/cosineWeight
	if bound < 0 {
		return 0
	}

	if bound > 2 {
		return 2
	}

	return bound
}

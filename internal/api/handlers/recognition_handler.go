package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/veriface/hub/internal/api/response"
	"github.com/veriface/hub/internal/detector"
	"github.com/veriface/hub/internal/models"
)

// RecognitionServicer is the recognition service interface.
type RecognitionServicer interface {
	Search(ctx context.Context, vector []float32, region string, minScore float64, limit int) ([]models.Match, error)
	Identify(ctx context.Context, vector []float32, region string, minScore float64) (*models.Match, error)
}

// RecognitionHandler handles similarity search and identification requests.
type RecognitionHandler struct {
	recognition RecognitionServicer
	detector    detector.Client
	logger      *slog.Logger
}

// NewRecognitionHandler creates a new RecognitionHandler. Detector may be nil
// when only pre-extracted probe embeddings are accepted.
func NewRecognitionHandler(recognition RecognitionServicer, det detector.Client, logger *slog.Logger) *RecognitionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecognitionHandler{recognition: recognition, detector: det, logger: logger}
}

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// searchRequest is the wire form of a recognition query. Exactly one of
// Embedding or ImageBase64 must be set.
type searchRequest struct {
	Region      string    `json:"region"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	MinScore    float64   `json:"min_score,omitempty"`
	Limit       int       `json:"limit,omitempty"`
}

// Search handles POST /v1/recognition/search: top-K matches within a region.
func (h *RecognitionHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, vector, ok := h.decodeProbe(w, r)
	if !ok {
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	matches, err := h.recognition.Search(r.Context(), vector, req.Region, req.MinScore, limit)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": matches})
}

// Identify handles POST /v1/recognition/identify: the single best match
// within a region, or 404 when nothing scores above the minimum.
func (h *RecognitionHandler) Identify(w http.ResponseWriter, r *http.Request) {
	req, vector, ok := h.decodeProbe(w, r)
	if !ok {
		return
	}

	match, err := h.recognition.Identify(r.Context(), vector, req.Region, req.MinScore)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, match)
}

// decodeProbe decodes the request and resolves the probe embedding, running
// the detector when the caller sends an image. A probe photo must show exactly
// one face.
func (h *RecognitionHandler) decodeProbe(w http.ResponseWriter, r *http.Request) (*searchRequest, []float32, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)

		return nil, nil, false
	}

	if len(req.Embedding) > 0 {
		return &req, req.Embedding, true
	}

	if req.ImageBase64 == "" {
		response.RespondUnprocessableEntity(w, "either embedding or image_base64 is required")

		return nil, nil, false
	}

	if h.detector == nil {
		response.RespondServiceUnavailable(w, "image-based recognition is not enabled")

		return nil, nil, false
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		response.RespondUnprocessableEntity(w, "image_base64 is not valid base64")

		return nil, nil, false
	}

	faces, err := h.detector.Detect(r.Context(), image)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "face detection failed", "error", err)
		response.RespondServiceUnavailable(w, "face detection failed")

		return nil, nil, false
	}

	switch len(faces) {
	case 0:
		response.RespondUnprocessableEntity(w, "no face detected in image")

		return nil, nil, false
	case 1:
		return &req, faces[0].Embedding, true
	default:
		response.RespondUnprocessableEntity(w, "multiple faces detected in image; probe must show exactly one face")

		return nil, nil, false
	}
}

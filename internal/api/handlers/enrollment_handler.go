package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/veriface/hub/internal/api/response"
	"github.com/veriface/hub/internal/detector"
	"github.com/veriface/hub/internal/jobs"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/service"
)

// EnrollmentServicer is the single-enrollment service interface.
type EnrollmentServicer interface {
	Enroll(ctx context.Context, req *models.EnrollmentRequest) (*models.EnrollmentResult, error)
}

// BatchServicer is the batch-enrollment service interface.
type BatchServicer interface {
	EnrollBatch(ctx context.Context, req *models.BatchEnrollmentRequest) (*models.BatchEnrollmentResult, error)
}

// EnrollmentHandler handles face enrollment requests. Embedding extraction
// from images happens here, before the service takes the enrollment lock.
type EnrollmentHandler struct {
	enrollment EnrollmentServicer
	batch      BatchServicer
	detector   detector.Client
	inserter   jobs.Inserter
	logger     *slog.Logger
}

// EnrollmentHandlerParams configures EnrollmentHandler. Detector may be nil
// when only pre-extracted embeddings are accepted; Inserter may be nil when
// async batch enrollment is disabled.
type EnrollmentHandlerParams struct {
	Enrollment EnrollmentServicer
	Batch      BatchServicer
	Detector   detector.Client
	Inserter   jobs.Inserter
	Logger     *slog.Logger
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(p EnrollmentHandlerParams) *EnrollmentHandler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &EnrollmentHandler{
		enrollment: p.Enrollment,
		batch:      p.Batch,
		detector:   p.Detector,
		inserter:   p.Inserter,
		logger:     logger,
	}
}

// enrollRequest is the wire form of a single enrollment. Exactly one of
// Embedding or ImageBase64 must be set.
type enrollRequest struct {
	Name        string  `json:"name"`
	Region      string  `json:"region"`
	BusinessKey string  `json:"business_key"`
	Rank        *string `json:"rank,omitempty"`
	Description *string `json:"description,omitempty"`

	Embedding   []float32 `json:"embedding,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
}

// batchEnrollRequest is the wire form of a batch enrollment session.
type batchEnrollRequest struct {
	Name        string  `json:"name"`
	Region      string  `json:"region"`
	BusinessKey string  `json:"business_key"`
	Rank        *string `json:"rank,omitempty"`
	Description *string `json:"description,omitempty"`

	Frames []batchFrameRequest `json:"frames"`
}

// batchFrameRequest is one frame of a batch. Exactly one of Embedding or
// ImageBase64 must be set.
type batchFrameRequest struct {
	Embedding   []float32 `json:"embedding,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
}

// Enroll handles POST /v1/enrollments.
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)

		return
	}

	if err := validateEnrollFields(req.Name, req.Region, req.BusinessKey); err != "" {
		response.RespondUnprocessableEntity(w, err)

		return
	}

	embedding := req.Embedding
	metadata := models.EmbeddingMetadata{ImageRef: optionalString(req.ImageRef)}

	if len(embedding) == 0 {
		if req.ImageBase64 == "" {
			response.RespondUnprocessableEntity(w, "either embedding or image_base64 is required")

			return
		}

		face, ok := h.extractSingleFace(w, r, req.ImageBase64)
		if !ok {
			return
		}

		embedding = face.Embedding
		metadata.Confidence = face.Confidence
		metadata.BBox = &face.BBox
	}

	result, err := h.enrollment.Enroll(r.Context(), &models.EnrollmentRequest{
		Name:        req.Name,
		Region:      req.Region,
		BusinessKey: req.BusinessKey,
		Rank:        req.Rank,
		Description: req.Description,
		Embedding:   embedding,
		Metadata:    metadata,
	})
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, result)
}

// EnrollBatch handles POST /v1/enrollments/batch. With ?async=true the batch
// is enqueued and processed by a background worker; the response is 202.
func (h *EnrollmentHandler) EnrollBatch(w http.ResponseWriter, r *http.Request) {
	var req batchEnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)

		return
	}

	if err := validateEnrollFields(req.Name, req.Region, req.BusinessKey); err != "" {
		response.RespondUnprocessableEntity(w, err)

		return
	}

	if len(req.Frames) == 0 {
		response.RespondUnprocessableEntity(w, "frames must not be empty")

		return
	}

	frames, ok := h.resolveFrames(w, r, req.Frames)
	if !ok {
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.enqueueBatch(w, r, &req, frames)

		return
	}

	result, err := h.batch.EnrollBatch(r.Context(), &models.BatchEnrollmentRequest{
		Name:        req.Name,
		Region:      req.Region,
		BusinessKey: req.BusinessKey,
		Rank:        req.Rank,
		Description: req.Description,
		Frames:      frames,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoValidFrames) {
			response.RespondUnprocessableEntity(w, err.Error())

			return
		}

		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, result)
}

func (h *EnrollmentHandler) enqueueBatch(w http.ResponseWriter, r *http.Request, req *batchEnrollRequest, frames []models.BatchFrame) {
	if h.inserter == nil {
		response.RespondServiceUnavailable(w, "asynchronous enrollment is not enabled")

		return
	}

	err := h.inserter.InsertBatchEnrollment(r.Context(), jobs.BatchEnrollmentArgs{
		Name:        req.Name,
		Region:      req.Region,
		BusinessKey: req.BusinessKey,
		Rank:        req.Rank,
		Description: req.Description,
		Frames:      frames,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enqueue batch enrollment", "error", err)
		response.RespondInternalServerError(w, "failed to enqueue batch enrollment")

		return
	}

	response.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// resolveFrames turns wire frames into embedding frames, extracting embeddings
// from image frames via the detector. A frame with no detectable face is
// dropped; a frame with several faces keeps the highest-confidence one, since
// session frames show a single subject.
func (h *EnrollmentHandler) resolveFrames(w http.ResponseWriter, r *http.Request, wireFrames []batchFrameRequest) ([]models.BatchFrame, bool) {
	frames := make([]models.BatchFrame, 0, len(wireFrames))

	for i, wf := range wireFrames {
		frame := models.BatchFrame{
			Index:    i,
			Metadata: models.EmbeddingMetadata{ImageRef: optionalString(wf.ImageRef)},
		}

		switch {
		case len(wf.Embedding) > 0:
			frame.Embedding = wf.Embedding
		case wf.ImageBase64 != "":
			face, found, ok := h.extractBestFace(w, r, i, wf.ImageBase64)
			if !ok {
				return nil, false
			}

			if !found {
				h.logger.InfoContext(r.Context(), "no face detected in frame, dropping", "frame_index", i)

				continue
			}

			frame.Embedding = face.Embedding
			frame.Metadata.Confidence = face.Confidence
			frame.Metadata.BBox = &face.BBox
		default:
			response.RespondUnprocessableEntity(w,
				"each frame requires either embedding or image_base64")

			return nil, false
		}

		frames = append(frames, frame)
	}

	return frames, true
}

// extractSingleFace runs the detector on an enrollment photo. A single
// enrollment must be unambiguous: zero or multiple faces is a client error.
func (h *EnrollmentHandler) extractSingleFace(w http.ResponseWriter, r *http.Request, imageBase64 string) (detector.Face, bool) {
	faces, ok := h.detect(w, r, imageBase64)
	if !ok {
		return detector.Face{}, false
	}

	switch len(faces) {
	case 0:
		response.RespondUnprocessableEntity(w, "no face detected in image")

		return detector.Face{}, false
	case 1:
		return faces[0], true
	default:
		response.RespondUnprocessableEntity(w, "multiple faces detected in image; enrollment photo must show exactly one face")

		return detector.Face{}, false
	}
}

func (h *EnrollmentHandler) extractBestFace(w http.ResponseWriter, r *http.Request, frameIndex int, imageBase64 string) (face detector.Face, found, ok bool) {
	faces, ok := h.detect(w, r, imageBase64)
	if !ok {
		return detector.Face{}, false, false
	}

	if len(faces) == 0 {
		return detector.Face{}, false, true
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}

	if len(faces) > 1 {
		h.logger.WarnContext(r.Context(), "multiple faces in frame, keeping highest confidence",
			"frame_index", frameIndex, "faces", len(faces))
	}

	return best, true, true
}

func (h *EnrollmentHandler) detect(w http.ResponseWriter, r *http.Request, imageBase64 string) ([]detector.Face, bool) {
	if h.detector == nil {
		response.RespondServiceUnavailable(w, "image-based enrollment is not enabled")

		return nil, false
	}

	image, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		response.RespondUnprocessableEntity(w, "image_base64 is not valid base64")

		return nil, false
	}

	faces, err := h.detector.Detect(r.Context(), image)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "face detection failed", "error", err)
		response.RespondServiceUnavailable(w, "face detection failed")

		return nil, false
	}

	return faces, true
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func validateEnrollFields(name, region, businessKey string) string {
	switch {
	case name == "":
		return "name is required"
	case region == "":
		return "region is required"
	case businessKey == "":
		return "business_key is required"
	default:
		return ""
	}
}

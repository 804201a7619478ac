// Package handlers contains the HTTP handlers for the API server.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/veriface/hub/internal/api/middleware"
	"github.com/veriface/hub/internal/api/response"
	"github.com/veriface/hub/internal/faceerrors"
)

// duplicateProblem extends the Problem Details body with the fields a caller
// needs to act on a duplicate rejection: which identity already owns the face.
type duplicateProblem struct {
	response.ProblemDetails

	Kind         string  `json:"kind"`
	ConflictID   string  `json:"conflict_identity_id"`
	ConflictName string  `json:"conflict_identity_name"`
	Score        float64 `json:"score"`
	FrameIndex   *int    `json:"frame_index,omitempty"`
}

// respondServiceError maps domain errors to HTTP responses. Order matters:
// DegenerateVectorError also matches ErrValidation, and DuplicateError must be
// checked before the generic conflict case.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var dupErr *faceerrors.DuplicateError
	if errors.As(err, &dupErr) {
		respondDuplicate(w, dupErr)

		return
	}

	switch {
	case errors.Is(err, faceerrors.ErrValidation):
		response.RespondUnprocessableEntity(w, err.Error())
	case errors.Is(err, faceerrors.ErrNotFound):
		response.RespondNotFound(w, err.Error())
	case errors.Is(err, faceerrors.ErrConflict):
		response.RespondConflict(w, err.Error())
	case errors.Is(err, faceerrors.ErrCheckFailed):
		response.RespondServiceUnavailable(w, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.RespondInternalServerError(w, "an unexpected error occurred")
	}
}

func respondDuplicate(w http.ResponseWriter, dupErr *faceerrors.DuplicateError) {
	problem := duplicateProblem{
		ProblemDetails: response.ProblemDetails{
			Type:   "about:blank",
			Title:  "Duplicate Face",
			Status: http.StatusConflict,
			Detail: dupErr.Error(),
		},
		Kind:         string(dupErr.Kind),
		ConflictID:   dupErr.ConflictID,
		ConflictName: dupErr.ConflictName,
		Score:        dupErr.Score,
	}

	if dupErr.FrameIndex >= 0 {
		idx := dupErr.FrameIndex
		problem.FrameIndex = &idx
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusConflict)

	response.RespondJSONBody(w, problem)
}

// respondDecodeError distinguishes an oversized body from malformed JSON.
func respondDecodeError(w http.ResponseWriter, err error) {
	if middleware.IsBodyTooLarge(err) {
		middleware.RespondBodyTooLarge(w)

		return
	}

	response.RespondBadRequest(w, "invalid JSON body: "+err.Error())
}

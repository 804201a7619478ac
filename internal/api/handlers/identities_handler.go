package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/veriface/hub/internal/api/response"
	"github.com/veriface/hub/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// IdentityServicer is the service interface the identities handler depends on.
type IdentityServicer interface {
	Create(ctx context.Context, req *models.CreateIdentityRequest) (*models.Identity, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetByBusinessKey(ctx context.Context, businessKey string) (*models.Identity, error)
	List(ctx context.Context, filters *models.ListIdentitiesFilters) (*models.ListIdentitiesResponse, error)
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateIdentityRequest) (*models.Identity, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListEmbeddings(ctx context.Context, id uuid.UUID) ([]models.FaceEmbedding, error)
}

// IdentitiesHandler handles identity profile CRUD requests.
type IdentitiesHandler struct {
	service IdentityServicer
}

// NewIdentitiesHandler creates a new IdentitiesHandler.
func NewIdentitiesHandler(service IdentityServicer) *IdentitiesHandler {
	return &IdentitiesHandler{service: service}
}

// Create handles POST /v1/identities.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)

		return
	}

	ident, err := h.service.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, ident)
}

// Get handles GET /v1/identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	ident, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, ident)
}

// List handles GET /v1/identities. Supports region, name, limit, and offset
// query parameters.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListIdentitiesFilters{Limit: defaultListLimit}

	query := r.URL.Query()

	if region := query.Get("region"); region != "" {
		filters.Region = &region
	}

	if name := query.Get("name"); name != "" {
		filters.Name = &name
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxListLimit {
			response.RespondBadRequest(w, "limit must be an integer between 1 and "+strconv.Itoa(maxListLimit))

			return
		}

		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			response.RespondBadRequest(w, "offset must be a non-negative integer")

			return
		}

		filters.Offset = offset
	}

	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Update handles PATCH /v1/identities/{id}.
func (h *IdentitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDecodeError(w, err)

		return
	}

	ident, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, ident)
}

// Delete handles DELETE /v1/identities/{id}. Removing an identity removes
// every embedding it owns; the operation is idempotent.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEmbeddings handles GET /v1/identities/{id}/embeddings.
func (h *IdentitiesHandler) ListEmbeddings(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	embeddings, err := h.service.ListEmbeddings(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{"data": embeddings})
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondBadRequest(w, "invalid identity ID: must be a UUID")

		return uuid.Nil, false
	}

	return id, true
}

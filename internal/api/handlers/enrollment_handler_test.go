package handlers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriface/hub/internal/detector"
	"github.com/veriface/hub/internal/faceerrors"
	"github.com/veriface/hub/internal/models"
)

func newEnrollmentRouter(p EnrollmentHandlerParams) http.Handler {
	h := NewEnrollmentHandler(p)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/enrollments", h.Enroll)
	mux.HandleFunc("POST /v1/enrollments/batch", h.EnrollBatch)

	return mux
}

func acceptedResult() *models.EnrollmentResult {
	return &models.EnrollmentResult{
		Decision: models.DecisionAccepted,
		Identity: &models.Identity{ID: uuid.New(), Name: "Alice"},
	}
}

func TestEnrollAccepted(t *testing.T) {
	enrollment := &mockEnrollmentService{result: acceptedResult()}
	router := newEnrollmentRouter(EnrollmentHandlerParams{Enrollment: enrollment})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","embedding":[1,0,0]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var result models.EnrollmentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.DecisionAccepted, result.Decision)

	require.NotNil(t, enrollment.lastRequest)
	assert.Equal(t, []float32{1, 0, 0}, enrollment.lastRequest.Embedding)
}

func TestEnrollDuplicateRejection(t *testing.T) {
	enrollment := &mockEnrollmentService{err: &faceerrors.DuplicateError{
		Kind:         faceerrors.DuplicateCrossIdentity,
		ConflictID:   uuid.NewString(),
		ConflictName: "Bob",
		Score:        87.5,
		FrameIndex:   -1,
	}}
	router := newEnrollmentRouter(EnrollmentHandlerParams{Enrollment: enrollment})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","embedding":[1,0,0]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "cross_identity", problem["kind"])
	assert.Equal(t, "Bob", problem["conflict_identity_name"])
	assert.InDelta(t, 87.5, problem["score"].(float64), 1e-9)
	assert.NotContains(t, problem, "frame_index")
}

func TestEnrollCheckFailed(t *testing.T) {
	enrollment := &mockEnrollmentService{err: faceerrors.NewCheckFailedError("scan timed out")}
	router := newEnrollmentRouter(EnrollmentHandlerParams{Enrollment: enrollment})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","embedding":[1,0,0]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnrollRequiredFields(t *testing.T) {
	router := newEnrollmentRouter(EnrollmentHandlerParams{Enrollment: &mockEnrollmentService{}})

	cases := []string{
		`{"region":"eu-west","business_key":"emp-001","embedding":[1]}`,
		`{"name":"Alice","business_key":"emp-001","embedding":[1]}`,
		`{"name":"Alice","region":"eu-west","embedding":[1]}`,
		`{"name":"Alice","region":"eu-west","business_key":"emp-001"}`,
	}

	for i, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/enrollments", strings.NewReader(body))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "case %d", i)
	}
}

func TestEnrollFromImage(t *testing.T) {
	enrollment := &mockEnrollmentService{result: acceptedResult()}
	router := newEnrollmentRouter(EnrollmentHandlerParams{
		Enrollment: enrollment,
		Detector:   detector.NewMockClient(8),
	})

	image := base64.StdEncoding.EncodeToString([]byte("photo-bytes"))
	body := fmt.Sprintf(`{"name":"Alice","region":"eu-west","business_key":"emp-001","image_base64":%q}`, image)
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, enrollment.lastRequest)
	assert.Len(t, enrollment.lastRequest.Embedding, 8)
	assert.Greater(t, enrollment.lastRequest.Metadata.Confidence, 0.0)
}

func TestEnrollFromImageWithoutDetector(t *testing.T) {
	router := newEnrollmentRouter(EnrollmentHandlerParams{Enrollment: &mockEnrollmentService{}})

	image := base64.StdEncoding.EncodeToString([]byte("photo-bytes"))
	body := fmt.Sprintf(`{"name":"Alice","region":"eu-west","business_key":"emp-001","image_base64":%q}`, image)
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEnrollBatchSync(t *testing.T) {
	batch := &mockBatchService{result: &models.BatchEnrollmentResult{
		Identity:       &models.Identity{ID: uuid.New(), Name: "Alice"},
		CommittedCount: 2,
	}}
	router := newEnrollmentRouter(EnrollmentHandlerParams{Batch: batch})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001",
		"frames":[{"embedding":[1,0,0]},{"embedding":[0,1,0]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, batch.lastRequest)
	require.Len(t, batch.lastRequest.Frames, 2)
	assert.Equal(t, 0, batch.lastRequest.Frames[0].Index)
	assert.Equal(t, 1, batch.lastRequest.Frames[1].Index)
}

func TestEnrollBatchConflictCarriesFrameIndex(t *testing.T) {
	batch := &mockBatchService{err: &faceerrors.DuplicateError{
		Kind:         faceerrors.DuplicateSamePerson,
		ConflictName: "Alice",
		Score:        99.0,
		FrameIndex:   3,
	}}
	router := newEnrollmentRouter(EnrollmentHandlerParams{Batch: batch})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","frames":[{"embedding":[1,0,0]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "same_person", problem["kind"])
	assert.InDelta(t, 3, problem["frame_index"].(float64), 1e-9)
}

func TestEnrollBatchEmptyFrames(t *testing.T) {
	router := newEnrollmentRouter(EnrollmentHandlerParams{Batch: &mockBatchService{}})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","frames":[]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEnrollBatchAsync(t *testing.T) {
	inserter := &mockInserter{}
	router := newEnrollmentRouter(EnrollmentHandlerParams{Batch: &mockBatchService{}, Inserter: inserter})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","frames":[{"embedding":[1,0,0]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments/batch?async=true", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, inserter.inserted, 1)
	assert.Equal(t, "emp-001", inserter.inserted[0].BusinessKey)
	assert.Len(t, inserter.inserted[0].Frames, 1)
}

func TestEnrollBatchAsyncDisabled(t *testing.T) {
	router := newEnrollmentRouter(EnrollmentHandlerParams{Batch: &mockBatchService{}})

	body := `{"name":"Alice","region":"eu-west","business_key":"emp-001","frames":[{"embedding":[1,0,0]}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/enrollments/batch?async=true", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

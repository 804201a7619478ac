// Package detector provides the client for the external face-detection
// microservice, which turns raw image bytes into bounding boxes, detection
// confidences, and fixed-length embedding vectors.
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/veriface/hub/internal/models"
)

// Face is one detected face in an image. Zero faces is a valid detector
// response, not an error.
type Face struct {
	BBox       models.BoundingBox `json:"bbox"`
	Confidence float64            `json:"confidence"`
	Embedding  []float32          `json:"embedding"`
}

// Client extracts face embeddings from images.
type Client interface {
	Detect(ctx context.Context, image []byte) ([]Face, error)
}

// HTTPClient is an HTTP client for the face-detector microservice.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a detector client. requestsPerSecond caps the call
// rate to the detector; use 0 to disable rate limiting.
func NewHTTPClient(baseURL string, requestsPerSecond float64) *HTTPClient {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Embedding extraction can be slow on large frames
		},
		limiter: limiter,
	}
}

type detectRequest struct {
	Image string `json:"image"` // base64-encoded image bytes
}

type detectResponse struct {
	Faces []Face `json:"faces"`
}

// Detect sends the image to the detector and returns all detected faces.
func (c *HTTPClient) Detect(ctx context.Context, image []byte) ([]Face, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("detector rate limit wait: %w", err)
		}
	}

	jsonBody, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detect request: %w", err)
	}

	url := c.baseURL + "/detect"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detector returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Faces, nil
}

// Ensure HTTPClient implements Client interface
var _ Client = (*HTTPClient)(nil)

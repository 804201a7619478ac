package middleware

import (
	"errors"
	"net/http"

	"github.com/veriface/hub/internal/api/response"
)

// MaxBody limits request body size to maxBytes; oversized bodies surface as a
// 413 when the handler reads them. Image-bearing enrollment requests make this
// cap load-bearing. Use 0 or negative to disable.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// IsBodyTooLarge reports whether err was caused by exceeding the MaxBody cap.
// Handlers use it to answer 413 instead of a generic 400 on decode failures.
func IsBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError

	return errors.As(err, &maxBytesErr)
}

// RespondBodyTooLarge writes the 413 response for an oversized request.
func RespondBodyTooLarge(w http.ResponseWriter) {
	response.RespondError(w, http.StatusRequestEntityTooLarge,
		"Request Entity Too Large", "request body exceeds maximum allowed size")
}

// Error taxonomy mapping - translates pipeline failures into HTTP status
// codes and a stable error body shape.
//
// DESIGN: Validation faults are the client's (400). Unknown providers or
// models and signing failures are server misconfiguration (500). A backend's
// own error status is forwarded when it is a sensible HTTP code; transport
// failures surface as 502. Errors inside an established stream never reach
// this path: they are reported in-band as terminal chunks.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/candor-ai/chat-gateway/internal/backend"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	typ := "api_error"
	switch {
	case status == http.StatusTooManyRequests:
		typ = "rate_limit_error"
	case status >= 400 && status < 500:
		typ = "invalid_request_error"
	}
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: message, Type: typ}})
}

// statusForError maps a pre-stream pipeline error to an HTTP status.
func statusForError(err error) int {
	var modelErr *backend.ModelError
	if errors.As(err, &modelErr) {
		return http.StatusInternalServerError
	}

	var signErr *backend.SigningError
	if errors.As(err, &signErr) {
		return http.StatusInternalServerError
	}

	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		// Forward the backend's status when it is a sensible HTTP code.
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 600 {
			return httpErr.StatusCode
		}
		return http.StatusBadGateway
	}

	var transportErr *backend.TransportError
	if errors.As(err, &transportErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

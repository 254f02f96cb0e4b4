package httputil

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/orbsec/organization-service/pkg/faults"
)

// now is the clock used for error timestamps
var now = time.Now

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	StatusCode   int    `json:"statusCode"`
	// Timestamp is milliseconds since the Unix epoch
	Timestamp int64 `json:"timestamp"`
}

// WriteErrorMessage writes an error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{
		ErrorMessage: message,
		StatusCode:   status,
		Timestamp:    now().UnixMilli(),
	})
}

// StatusFor maps an error onto an HTTP status code
func StatusFor(err error) int {
	switch faults.KindOf(err) {
	case faults.NotFound:
		return http.StatusNotFound
	case faults.Unauthorized:
		return http.StatusUnauthorized
	case faults.ValidationFailed:
		return http.StatusBadRequest
	case faults.Unavailable, faults.Timeout, faults.Rejected:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteFault writes the error response for a classified error. Unknown
// failures never leak their message.
func WriteFault(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := faults.Message(err)
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	WriteErrorMessage(w, status, msg)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// WriteInternalError writes a 500 without exposing err
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

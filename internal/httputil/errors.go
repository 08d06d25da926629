package httputil

import (
	"encoding/json"
	"net/http"
)

// Error types carried in the envelope.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeAPI            = "api_error"
	TypeProxy          = "proxy_error"
	TypeServer         = "server_error"
	TypeInternal       = "internal_error"
)

// APIError matches the OpenAI error response format.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func WriteError(w http.ResponseWriter, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	})
}

func WriteBadRequestError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, TypeInvalidRequest, "", message)
}

func WriteBodyTooLargeError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, TypeInvalidRequest, "body_too_large", message)
}

func WriteRateLimitError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, TypeInvalidRequest, "rate_limit_exceeded", message)
}

func WriteAPIError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, TypeAPI, "", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, TypeInternal, "", message)
}

func WriteServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, TypeServer, "", message)
}

func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, TypeInvalidRequest, "not_found", message)
}

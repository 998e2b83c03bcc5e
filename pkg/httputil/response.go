// Package httputil provides HTTP handler utilities for the response envelope,
// JSON decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platterhq/platter/pkg/apperrors"
)

// Response is the envelope returned by every API endpoint.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope with the given message and data
func WriteSuccess(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteAppError writes a failure envelope. The HTTP status comes from the
// error's code; plain errors map to 500 with a generic message so internal
// details never reach the client.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := "internal server error"
	if appErr := apperrors.AsError(err); appErr != nil && appErr.Code != apperrors.CodeInternal {
		message = appErr.Message
	}
	WriteJSON(w, apperrors.HTTPStatus(code), Response{
		Success: false,
		Message: message,
	})
}

// WriteErrorMessage writes a failure envelope with an explicit status code
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{
		Success: false,
		Message: message,
	})
}

// Package handlers implements the HTTP API for the workflow engine.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bayonhq/coagent/store"
	"github.com/bayonhq/coagent/types"
)

// Response is the uniform JSON envelope for all API responses.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo carries a machine-readable error kind and a human message.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteJSON writes v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope around data.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteError writes an error envelope, mapping the error to an HTTP status
// and a stable error kind.
func WriteError(w http.ResponseWriter, err error) {
	kindLabel := string(types.KindOf(err))
	if errors.Is(err, store.ErrNotFound) {
		kindLabel = "not-found"
	}

	WriteJSON(w, statusForError(err, types.KindOf(err)), Response{
		Success: false,
		Error: &ErrorInfo{
			Kind:    kindLabel,
			Message: err.Error(),
		},
		Timestamp: time.Now().UTC(),
	})
}

func statusForError(err error, kind types.ErrorKind) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}

	switch kind {
	case types.ErrKindValidation, types.ErrKindDefinition:
		return http.StatusBadRequest
	case types.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case types.ErrKindAgentUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body into dst, rejecting unknown fields.
func DecodeJSONBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewError(types.ErrKindValidation, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

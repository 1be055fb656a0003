// Package httputil holds the JSON response and request helpers shared by
// the HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "attest/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// WriteError maps a domain error onto an HTTP status. Internal errors never
// leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	status := StatusFor(code)
	if status != http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.Description = de.Message
		}
	}
	WriteJSON(w, status, resp)
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeValidation, dErrors.CodeUnsatisfiable:
		return http.StatusUnprocessableEntity
	case dErrors.CodeConflict, dErrors.CodeInvalidState, dErrors.CodeStaleSelection:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeProvingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Preparable requests normalize and validate themselves after decoding.
type Preparable interface {
	Normalize()
	Validate() error
}

// DecodeAndPrepare decodes a JSON body into T, then normalizes and validates
// it. Failures are already written to w; callers return when ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparable
}](ctx context.Context, w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req := PT(new(T))
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return nil, false
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			err = dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return (*T)(req), true
}

// Package httputil centralizes JSON encoding and error translation for the
// thin HTTP layer so every handler produces the same envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "immigo/pkg/domainerrors"
	"immigo/pkg/platform/sentinel"
)

// WriteJSON encodes v with the given status. Encoding failures are swallowed;
// by then the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the shared JSON error envelope.
// Internal errors never leak their message to the client.
func WriteError(w http.ResponseWriter, err error) {
	code := codeFor(err)
	body := map[string]string{"error": string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) && de.Message != "" {
		body["error_description"] = de.Message
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// codeFor honors an explicit domain error code first, then falls back to the
// storage and upstream sentinels so handlers can pass store errors through.
func codeFor(err error) dErrors.Code {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrLeaseHeld):
		return dErrors.CodeConflict
	case errors.Is(err, sentinel.ErrKeyMismatch):
		return dErrors.CodeInvariantViolation
	case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, sentinel.ErrMalformed):
		return dErrors.CodeUnavailable
	}
	return dErrors.CodeInternal
}

// Decode reads a JSON request body into dst, writing a bad_request envelope
// on failure. Returns false when the handler should stop.
func Decode[T any](w http.ResponseWriter, r *http.Request, dst *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

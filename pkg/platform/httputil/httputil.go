// Package httputil centralizes JSON response writing so handlers stay thin
// and error envelopes remain consistent across the API surface.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "storegate/pkg/domainerrors"
)

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError translates a coded domain error into a JSON error envelope.
// Internal errors omit the description so infrastructure details never reach
// callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	var ge *dErrors.GatewayError
	if errors.As(err, &ge) && code != dErrors.CodeInternal {
		body.Description = ge.Message
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

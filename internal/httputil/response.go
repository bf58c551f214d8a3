// Package httputil holds the JSON response helpers shared by the API
// handlers and the middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/mintline/edition_layer/internal/errors"
)

// ErrorBody is the envelope every error response uses.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes an error envelope.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message, Details: details}})
}

// WriteError maps err onto its business code and status. Errors without a
// code become 500 INTERNAL and their text is not exposed.
func WriteError(w http.ResponseWriter, err error) *apperrors.ServiceError {
	svcErr := apperrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = apperrors.Internal("internal error", err)
	}
	WriteErrorResponse(w, svcErr.HTTPStatus, string(svcErr.Code), svcErr.Message, svcErr.Details)
	return svcErr
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("invalid request body: " + err.Error())
	}
	return nil
}

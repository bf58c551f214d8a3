// Package errors defines the typed service errors returned by every operation
// of the allocation engine and their HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure category. Codes are stable and are exposed
// to API clients.
type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeOutOfStock        ErrorCode = "OUT_OF_STOCK"
	CodeNotPublished      ErrorCode = "NOT_PUBLISHED"
	CodeOpenLimitReached  ErrorCode = "OPEN_LIMIT_REACHED"
	CodeExhaustedPool     ErrorCode = "EXHAUSTED_POOL"
	CodeSelfTransaction   ErrorCode = "SELF_TRANSACTION"
	CodeOwnershipMismatch ErrorCode = "OWNERSHIP_MISMATCH"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeAlreadyOpened     ErrorCode = "ALREADY_OPENED"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeValidation        ErrorCode = "VALIDATION_FAILED"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeInternal          ErrorCode = "INTERNAL"
)

// ServiceError is the error type surfaced by services and handlers.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches any ServiceError carrying the same code, so callers can write
// errors.Is(err, errors.OutOfStock("")).
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), nil).
		WithDetails("resource", resource).WithDetails("id", id)
}

func OutOfStock(collectionID string) *ServiceError {
	return newError(CodeOutOfStock, http.StatusConflict, "collection is sold out", nil).
		WithDetails("collection_id", collectionID)
}

func NotPublished(message string) *ServiceError {
	if message == "" {
		message = "not available for sale"
	}
	return newError(CodeNotPublished, http.StatusConflict, message, nil)
}

func OpenLimitReached(collectionID string, limit int) *ServiceError {
	return newError(CodeOpenLimitReached, http.StatusConflict, "open limit reached", nil).
		WithDetails("collection_id", collectionID).WithDetails("open_limit", limit)
}

func ExhaustedPool(collectionID string) *ServiceError {
	return newError(CodeExhaustedPool, http.StatusConflict, "no pool item has remaining quantity", nil).
		WithDetails("collection_id", collectionID)
}

func SelfTransaction() *ServiceError {
	return newError(CodeSelfTransaction, http.StatusBadRequest, "buyer already owns this item", nil)
}

func OwnershipMismatch(message string) *ServiceError {
	if message == "" {
		message = "owner changed or does not match"
	}
	return newError(CodeOwnershipMismatch, http.StatusConflict, message, nil)
}

func InvalidTransition(from, to string) *ServiceError {
	return newError(CodeInvalidTransition, http.StatusConflict, fmt.Sprintf("cannot move from %s to %s", from, to), nil).
		WithDetails("from", from).WithDetails("to", to)
}

func AlreadyOpened(instanceID string) *ServiceError {
	return newError(CodeAlreadyOpened, http.StatusConflict, "box instance already opened", nil).
		WithDetails("instance_id", instanceID)
}

// Unauthorized reports an authenticated caller lacking rights for an operation.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "caller is not allowed to perform this operation"
	}
	return newError(CodeUnauthorized, http.StatusForbidden, message, nil)
}

// Unauthenticated reports a request with no usable identity.
func Unauthenticated(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthenticated, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

func Conflict(message string, err error) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, err)
}

func RateLimited() *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a ServiceError from the chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err carries a ServiceError with the given code.
func HasCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// Wrap turns any error into a ServiceError, keeping existing ones as-is.
func Wrap(err error, message string) *ServiceError {
	if err == nil {
		return nil
	}
	if se := GetServiceError(err); se != nil {
		return se
	}
	return Internal(message, err)
}

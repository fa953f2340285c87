package engine

import (
	"fmt"
	"net/http"
	"strings"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
	Allowed []string      `json:"-"` // verbs for the Allow header on 405
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) HTTPStatus() int {
	return e.Status
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// ValidationError reports a request body the controller refuses to apply.
func ValidationError(msg string, details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Status:  http.StatusBadRequest,
		Message: msg,
		Details: details,
	}
}

// CapabilityError reports an action the controller is not configured for.
func CapabilityError(action string, allowed []string) *AppError {
	return &AppError{
		Code:    "METHOD_NOT_ALLOWED",
		Status:  http.StatusMethodNotAllowed,
		Message: fmt.Sprintf("%s is not supported by this resource", action),
		Allowed: allowed,
	}
}

func NotFoundError(resource string, pk any) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s with id %v not found", resource, pk),
	}
}

// InternalError is the opaque error returned in place of storage and other
// unexpected failures.
func InternalError() *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
	}
}

// joinFields renders a, b & c.
func joinFields(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " & " + names[len(names)-1]
	}
}

// Package httperrors provides the error payload every web service returns to
// its clients.
package httperrors

import (
	"net/http"
)

// HTTPErrorResponse is sent whenever a request cannot be served.
type HTTPErrorResponse struct {
	StatusCode int    `json:"statuscode" description:"http status code"`
	Message    string `json:"message" description:"error message"`
}

// NewHTTPError creates a response for the given status code and error.
func NewHTTPError(code int, err error) *HTTPErrorResponse {
	return &HTTPErrorResponse{
		StatusCode: code,
		Message:    err.Error(),
	}
}

// Error implements the error interface so an HTTPErrorResponse can travel
// through error returns.
func (e *HTTPErrorResponse) Error() string {
	return e.Message
}

// NotFound creates a 404 response.
func NotFound(err error) *HTTPErrorResponse {
	return NewHTTPError(http.StatusNotFound, err)
}

// Conflict creates a 409 response.
func Conflict(err error) *HTTPErrorResponse {
	return NewHTTPError(http.StatusConflict, err)
}

// UnprocessableEntity creates a 422 response.
func UnprocessableEntity(err error) *HTTPErrorResponse {
	return NewHTTPError(http.StatusUnprocessableEntity, err)
}

// BadRequest creates a 400 response.
func BadRequest(err error) *HTTPErrorResponse {
	return NewHTTPError(http.StatusBadRequest, err)
}

// InternalServerError creates a 500 response.
func InternalServerError(err error) *HTTPErrorResponse {
	return NewHTTPError(http.StatusInternalServerError, err)
}

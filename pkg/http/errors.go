package http

import (
	"fmt"
	"net/http"
)

// AppError is an error a handler wants rendered with a specific status.
type AppError struct {
	FieldError
	Status int `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

// NotFound builds a 404 error.
func NotFound(format string, a ...any) *AppError {
	return &AppError{
		FieldError: FieldError{Code: "ERR_NOT_FOUND", Message: fmt.Sprintf(format, a...)},
		Status:     http.StatusNotFound,
	}
}

// BadParam builds a 400 error attributed to one query parameter.
func BadParam(field, format string, a ...any) *AppError {
	return &AppError{
		FieldError: FieldError{Code: "ERR_BAD_PARAM", Field: field, Message: fmt.Sprintf(format, a...)},
		Status:     http.StatusBadRequest,
	}
}

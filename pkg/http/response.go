package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// JSON writes data inside the envelope with the given status.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Status: status, Message: http.StatusText(status), Data: data})
}

func OK(c echo.Context, data any) error { return JSON(c, http.StatusOK, data) }

// List writes rows as a Page.
func List(c echo.Context, rows any, total int64) error {
	return JSON(c, http.StatusOK, Page{Rows: rows, Total: total})
}

// Invalid writes the field errors of a rejected request.
func Invalid(c echo.Context, errs []FieldError) error {
	return JSON(c, http.StatusBadRequest, errs)
}

// Internal hides the cause; handlers log it before calling.
func Internal(c echo.Context) error {
	return JSON(c, http.StatusInternalServerError, "internal error")
}

// Fail renders an *AppError with its own status and anything else as Internal.
func Fail(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return JSON(c, appErr.Status, []FieldError{appErr.FieldError})
	}
	return Internal(c)
}

package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// messages renders a failed tag. %[1]s is the field, %[2]s the tag parameter.
var messages = map[string]string{
	"required": "%[1]s is required",
	"oneof":    "%[1]s must be one of %[2]s",
	"gt":       "%[1]s must be > %[2]s",
	"gte":      "%[1]s must be >= %[2]s",
	"lt":       "%[1]s must be < %[2]s",
	"lte":      "%[1]s must be <= %[2]s",
	"min":      "%[1]s must be at least %[2]s",
	"max":      "%[1]s must be at most %[2]s",
}

// BindQuery binds query parameters into req, fills `default` tags for absent ones and validates
// the result. A nil return means req is ready to use.
func BindQuery(c echo.Context, req any) []FieldError {
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, req); err != nil {
		return fieldErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return fieldErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return fieldErrors(err)
	}
	return nil
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg = fmt.Sprint(he.Message)
		}
		return []FieldError{{Code: "ERR_BIND", Message: msg}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		tmpl, ok := messages[fe.Tag()]
		if !ok {
			tmpl = "%[1]s failed %[3]s"
		}
		fieldErr := FieldError{
			Code:    "ERR_" + strings.ToUpper(fe.Tag()),
			Field:   field,
			Message: fmt.Sprintf(tmpl, field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Tag()),
		}
		if p := fe.Param(); p != "" {
			fieldErr.Params = map[string]any{fe.Tag(): p}
		}
		out = append(out, fieldErr)
	}
	return out
}

package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gotap/tapd/errs"
	"github.com/gotap/tapd/param"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("oneofci", oneofci)
	v.RegisterStructValidation(checkDoQuery, param.Set{})
	return v
}

// checkDoQuery enforces spec.md §6: a doQuery request needs a non-empty
// QUERY and, if LANG is set, it must be ADQL (already checked by the
// oneofci tag on Lang; this only covers the cross-field requirement that
// doQuery doesn't need enforcing there).
func checkDoQuery(sl validator.StructLevel) {
	s := sl.Current().Interface().(param.Set)
	if !strings.EqualFold(s.Request, "doQuery") {
		return
	}
	if strings.TrimSpace(s.Query) == "" {
		sl.ReportError(s.Query, "Query", "Query", "required_for_doquery", "")
	}
}

// oneofci is "oneof", case-insensitively: validate:"oneofci=doQuery getCapabilities".
func oneofci(fl validator.FieldLevel) bool {
	val := strings.ToLower(fl.Field().String())
	for _, opt := range strings.Split(fl.Param(), " ") {
		if val == strings.ToLower(opt) {
			return true
		}
	}
	return false
}

// Params validates s against spec.md §6's standard parameter table,
// wrapping the first validator.FieldError under errs.ErrInvalidParam.
func Params(s *param.Set) error {
	if err := validate.Struct(s); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return fmt.Errorf("%w: %s", errs.ErrInvalidParam, describe(ve[0]))
		}
		return fmt.Errorf("%w: %v", errs.ErrInvalidParam, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_for_doquery":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneofci":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

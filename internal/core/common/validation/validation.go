package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	errors "github.com/frahmantamala/facilities-maintenance/internal"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// report json field names, not Go struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// notblank rejects strings that are empty once surrounding whitespace is dropped
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// Collect validates s against its `validate` tags and returns every failing
// field. Callers append domain-level checks before calling AsError.
func Collect(s interface{}) errors.ValidationErrors {
	var out errors.ValidationErrors

	err := validate.Struct(s)
	if err == nil {
		return out
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		out.Add("", err.Error(), errors.ErrCodeValidationFailed)
		return out
	}

	for _, fe := range fieldErrors {
		out.Add(fe.Field(), fieldMessage(fe), codeFor(fe.Tag()))
	}
	return out
}

func IsEmail(s string) bool {
	return s != "" && validate.Var(s, "email") == nil
}

// Struct is Collect followed by AsError.
func Struct(s interface{}) error {
	return Collect(s).AsError()
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func codeFor(tag string) errors.ErrorCode {
	switch tag {
	case "required", "notblank":
		return errors.ErrCodeRequired
	case "max":
		return errors.ErrCodeTooLong
	default:
		return errors.ErrCodeInvalidValue
	}
}

package validation

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func FormatValidationError(err error) []Error {
	var errors []Error
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			errors = append(errors, Error{
				Field:   e.Field(),
				Message: e.Error(), // Use built-in error message
			})
		}
	}

	return errors
}

// FirstField names the first failing field, or "" when err is not a validation error.
func FirstField(err error) string {
	if errs := FormatValidationError(err); len(errs) > 0 {
		return errs[0].Field
	}
	return ""
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// Error represents a validation error
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

package validator

import (
	"unicode"

	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/cropdesk/cropdesk/internal/workspace"
	"github.com/go-playground/validator/v10"
)

func toolValidator(registry *tools.Registry) func(fl validator.FieldLevel) bool {
	return func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, found := registry.Lookup(val)
		return found
	}
}

// userIDValidator accepts printable ids without path separators.
func userIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" {
		return false
	}
	for _, r := range val {
		if !unicode.IsPrint(r) || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}

func jobIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return workspace.ValidJobID(val)
}

func pathElementValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return workspace.ValidPathElement(val)
}

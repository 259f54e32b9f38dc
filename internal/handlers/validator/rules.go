package validator

import (
	"github.com/cropdesk/cropdesk/internal/tools"
	"github.com/go-playground/validator/v10"
)

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewUploadValidationRules(registry *tools.Registry) []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("tool", toolValidator(registry)),
		},
		{
			Rule: registerFn("user_id", userIDValidator),
		},
	}
}

func NewArtifactValidationRules(registry *tools.Registry) []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("tool", toolValidator(registry)),
		},
		{
			Rule: registerFn("job_id", jobIDValidator),
		},
		{
			Rule: registerFn("path_element", pathElementValidator),
		},
	}
}

package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationRule struct {
	Rule func(v *validator.Validate)
}

// Validator is a wrapper around the actual validator
// It sets up the validator and extract the rule error message from the underlying error
type Validator struct {
	validator *validator.Validate
	rules     []ValidationRule
}

func NewValidator() *Validator {
	v := validator.New()
	return &Validator{validator: v}
}

func (v *Validator) Register(rules ...ValidationRule) {
	for _, validationRule := range rules {
		validationRule.Rule(v.validator)
	}
	v.rules = append(v.rules, rules...)
}

func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, message(fe))
	}
	return NewErrInvalidField("%s", strings.Join(msgs, "; "))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s has more chars than allowed", field)
	case "tool":
		return fmt.Sprintf("unknown tool %q", fe.Value())
	case "job_id":
		return "invalid job id"
	case "path_element":
		return fmt.Sprintf("%s contains invalid characters", field)
	case "user_id":
		return "user id contains invalid characters"
	default:
		return fmt.Sprintf("%s failed on %s", field, fe.Tag())
	}
}

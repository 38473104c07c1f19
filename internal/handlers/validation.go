package handlers

import (
	"fmt"

	"github.com/BradenHooton/bnetlogin/internal/models"
	"github.com/go-playground/validator/v10"
)

// Global validator instance (reused across all handlers)
var validate = validator.New()

// ValidateRequest validates a request struct using go-playground/validator
// Returns a user-friendly error message if validation fails
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return fmt.Errorf("validation failed: %s: %s", ve[0].Namespace(), formatValidationError(ve[0]))
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateLoginForm checks the submitted values against the lengths advertised by the form
func ValidateLoginForm(form *models.LoginForm, descriptor models.FormInputs) error {
	if err := ValidateRequest(form); err != nil {
		return err
	}

	limits := make(map[string]uint32, len(descriptor.Inputs))
	for _, input := range descriptor.Inputs {
		if input.MaxLength > 0 {
			limits[input.InputID] = input.MaxLength
		}
	}

	for _, input := range form.Inputs {
		limit, ok := limits[input.InputID]
		if !ok {
			continue
		}
		if err := validate.Var(input.Value, fmt.Sprintf("max=%d", limit)); err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
				return fmt.Errorf("validation failed: %s: %s", input.InputID, formatValidationError(ve[0]))
			}
			return fmt.Errorf("validation failed: %s: %w", input.InputID, err)
		}
	}
	return nil
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

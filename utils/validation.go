package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate

	// slugRegex matches lowercase DNS labels, so a slug can double as a subdomain
	slugRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

	// credentialNameRegex matches names safe to use as a URL path segment
	credentialNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("tenantslug", func(fl validator.FieldLevel) bool {
		return ValidateSlug(fl.Field().String()) == nil
	})
	_ = validate.RegisterValidation("credname", func(fl validator.FieldLevel) bool {
		return ValidateCredentialName(fl.Field().String()) == nil
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()

		switch err.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "uuid":
			fields[field] = fmt.Sprintf("%s must be a valid UUID", field)
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "tenantslug":
			fields[field] = fmt.Sprintf("%s must be a lowercase DNS label that is not a UUID", field)
		case "credname":
			fields[field] = fmt.Sprintf("%s may contain letters, digits, '.', '_' and '-'", field)
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, err.Tag())
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// ValidateSlug checks a tenant slug. A UUID-shaped slug is rejected so that the
// id and slug namespaces never overlap.
func ValidateSlug(slug string) error {
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("invalid slug format: %q", slug)
	}
	if _, err := uuid.Parse(slug); err == nil {
		return fmt.Errorf("slug must not be a UUID: %q", slug)
	}
	return nil
}

// ValidateCredentialName checks the name of a stored credential
func ValidateCredentialName(name string) error {
	if !credentialNameRegex.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid credential name: %q", name)
	}
	return nil
}

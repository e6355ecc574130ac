package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// iso8601DurationPattern matches the PnDTnHnMnS subset of ISO-8601
// durations used throughout GatewayConfig (spec.md §6), requiring at
// least one designator.
var iso8601DurationPattern = regexp.MustCompile(`^P(?:\d+D)?(?:T(?:\d+H)?(?:\d+M)?(?:\d+(?:\.\d+)?S)?)?$`)

// RegisterCustomValidators registers gateway-specific validation rules.
// Must be called before validating GatewayConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	// iso8601duration: validates strings like "PT5M", "PT30S", "P1DT2H"
	if err := v.RegisterValidation("iso8601duration", validateISO8601Duration); err != nil {
		return fmt.Errorf("failed to register iso8601duration validator: %w", err)
	}
	return nil
}

// validateISO8601Duration validates an ISO-8601 duration field. An empty
// value is treated as valid; SetDefaults fills the zero value in before
// Validate is called in the normal startup path.
func validateISO8601Duration(fl validator.FieldLevel) bool {
	d := fl.Field().String()
	if d == "" {
		return true
	}
	if d == "P" || d == "PT" {
		return false
	}
	return iso8601DurationPattern.MatchString(d)
}

// Validate validates the GatewayConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with
// actionable error messages.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRegistryBackend(); err != nil {
		return err
	}

	if err := c.validateRevocationBackend(); err != nil {
		return err
	}

	return nil
}

// validateRegistryBackend ensures a sqlite_path is set whenever the
// registry backend is sqlite.
func (c *GatewayConfig) validateRegistryBackend() error {
	if c.Registry.Backend == "sqlite" && c.Registry.SQLitePath == "" {
		return errors.New("registry: backend is sqlite but sqlite_path is not set")
	}
	return nil
}

// validateRevocationBackend ensures a sqlite_path is set whenever the
// revocation backend is sqlite: revocation.sqlite_path, or, when that is
// empty, registry.sqlite_path, whose database file is then shared.
func (c *GatewayConfig) validateRevocationBackend() error {
	if c.Revocation.Backend == "sqlite" && c.Revocation.SQLitePath == "" && c.Registry.SQLitePath == "" {
		return errors.New("revocation: backend is sqlite but neither revocation.sqlite_path nor registry.sqlite_path is set")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "iso8601duration":
		return fmt.Sprintf("%s must be an ISO-8601 duration (e.g. PT5M)", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

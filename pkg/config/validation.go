package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// CollectErrors drops nil results and returns the rest.
func CollectErrors(errs ...*ValidationError) ValidationErrors {
	var out ValidationErrors
	for _, err := range errs {
		if err != nil {
			out = append(out, *err)
		}
	}
	return out
}

// RequireNonEmpty validates that a string field is not empty
func RequireNonEmpty(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// RequireInRange validates that an integer lies in [min, max].
func RequireInRange(field string, value, min, max int) *ValidationError {
	if value < min || value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d, got %d", min, max, value),
		}
	}
	return nil
}

// RequireNonNegative validates that an integer field is zero or positive
func RequireNonNegative(field string, value int) *ValidationError {
	if value < 0 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be non-negative, got %d", value),
		}
	}
	return nil
}

// RequirePositiveDuration validates that a duration is positive
func RequirePositiveDuration(field string, value time.Duration) *ValidationError {
	if value <= 0 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be positive, got %s", value),
		}
	}
	return nil
}

// RequireMinLength validates that a string has at least minLength characters.
func RequireMinLength(field, value string, minLength int) *ValidationError {
	if len(value) < minLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %d characters", minLength),
		}
	}
	return nil
}

// RequireOneOf validates that value is one of allowed.
func RequireOneOf(field, value string, allowed []string) *ValidationError {
	if !slices.Contains(allowed, value) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of [%s], got %q", strings.Join(allowed, ", "), value),
		}
	}
	return nil
}

// RequireSubset validates that every entry of values is one of allowed.
func RequireSubset(field string, values, allowed []string) *ValidationError {
	for _, v := range values {
		if !slices.Contains(allowed, v) {
			return &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown value %q, allowed: [%s]", v, strings.Join(allowed, ", ")),
			}
		}
	}
	return nil
}

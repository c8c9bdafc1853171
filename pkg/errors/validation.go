package errors

import (
	"math"
	"strings"
	"unicode"
)

// MaxNameLength bounds recipe, building and resource names.
const MaxNameLength = 256

// ValidateName validates a recipe, building or resource name.
// what names the kind of entity in the error message ("recipe", "resource", ...).
//
// Names are free text but must be non-empty, reasonably short, free of
// control characters and without surrounding whitespace, since they are used
// verbatim as row and column names in solver problems and as cache keys.
func ValidateName(what, name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "%s name cannot be empty", what)
	}

	if len(name) > MaxNameLength {
		return New(ErrCodeInvalidInput, "%s name too long (max %d characters)", what, MaxNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "%s name contains invalid control characters: %q", what, name)
		}
	}

	if strings.TrimSpace(name) != name {
		return New(ErrCodeInvalidInput, "%s name has surrounding whitespace: %q", what, name)
	}

	return nil
}

// ValidateClock validates a clock percentage. Valid clocks are finite and
// non-negative; recipe totals spread over several buildings may exceed 250.
func ValidateClock(what string, clock float64) error {
	if math.IsNaN(clock) || math.IsInf(clock, 0) {
		return New(ErrCodeInvalidInput, "%s clock must be finite", what)
	}
	if clock < 0 {
		return New(ErrCodeInvalidInput, "%s clock cannot be negative (got %g)", what, clock)
	}
	return nil
}

// ValidateFinite rejects NaN and infinite values.
func ValidateFinite(what string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return New(ErrCodeInvalidInput, "%s must be a finite number", what)
	}
	return nil
}

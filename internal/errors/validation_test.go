package errors

import (
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("code", "is required", "")

	if err.Field != "code" {
		t.Errorf("Expected field to be 'code', got '%s'", err.Field)
	}

	if err.Message != "is required" {
		t.Errorf("Expected message to be 'is required', got '%s'", err.Message)
	}

	expected := "validation error on field 'code': is required"
	if err.Error() != expected {
		t.Errorf("Expected error message to be '%s', got '%s'", expected, err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "validation failed" {
		t.Errorf("Expected 'validation failed' for empty errors, got '%s'", errs.Error())
	}

	errs = append(errs, *NewValidationError("color", "must be a hex color value (e.g. #1a7f37)", "blue"))
	expected := "validation failed: color must be a hex color value (e.g. #1a7f37)"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for single error, got '%s'", expected, errs.Error())
	}

	errs = append(errs, *NewValidationError("name", "is required", nil))
	expected = "validation failed: 2 field errors"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for multiple errors, got '%s'", expected, errs.Error())
	}
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("sort_order", "must be at most 1000000", "max", 2000000)

	if err.Rule != "max" {
		t.Errorf("Expected rule to be 'max', got '%s'", err.Rule)
	}

	if err.Field != "sort_order" {
		t.Errorf("Expected field to be 'sort_order', got '%s'", err.Field)
	}
}

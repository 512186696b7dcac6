package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Validator is the central validation entry point: struct-tag validation plus
// the row validator feeding the import executor.
type Validator struct {
	structValidator *validator.Validate
	rowValidator    *RowValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	registerCustomValidators(structValidator)

	return &Validator{
		structValidator: structValidator,
		rowValidator:    NewRowValidator(structValidator),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if converted := ToValidationErrors(err); len(converted) > 0 {
			return converted
		}
		return err
	}
	return nil
}

// Rows returns the row validator
func (v *Validator) Rows() *RowValidator {
	return v.rowValidator
}

var dictionaryCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("dictionary_code", validateDictionaryCode)
}

// validateDictionaryCode enforces snake_case dictionary identifiers
func validateDictionaryCode(fl validator.FieldLevel) bool {
	return dictionaryCodePattern.MatchString(fl.Field().String())
}

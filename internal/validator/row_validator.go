package validator

import (
	"fmt"
	"strings"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// RowError is one structural problem found in an import row before execution.
type RowError struct {
	Row     int    `json:"row"` // 1-based position in the uploaded set
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s %s", e.Row, e.Field, e.Message)
}

// RowValidator performs the structural checks the import executor relies on:
// non-empty code and default name, well-formed display attributes, duplicate
// codes within the upload. Target resolution (create vs update) stays with
// the executor.
type RowValidator struct {
	validate *validator.Validate
}

func NewRowValidator(validate *validator.Validate) *RowValidator {
	return &RowValidator{validate: validate}
}

// ValidateRows checks every row and returns all structural errors found.
// Rows are normalized in place (trimmed code and names).
func (v *RowValidator) ValidateRows(rows []models.ImportRow) []RowError {
	var errs []RowError
	seen := make(map[string]int, len(rows))

	for i := range rows {
		row := &rows[i]
		rowNum := i + 1

		row.Code = strings.TrimSpace(row.Code)
		row.Name = strings.TrimSpace(row.Name)

		if err := v.validate.Struct(row); err != nil {
			for _, fieldErr := range ToValidationErrors(err) {
				errs = append(errs, RowError{
					Row:     rowNum,
					Field:   strings.ToLower(fieldErr.Field),
					Message: fieldErr.Message,
					Value:   fmt.Sprintf("%v", fieldErr.Value),
				})
			}
			continue
		}

		if firstRow, dup := seen[row.Code]; dup {
			errs = append(errs, RowError{
				Row:     rowNum,
				Field:   "code",
				Message: fmt.Sprintf("duplicates row %d", firstRow),
				Value:   row.Code,
			})
			continue
		}
		seen[row.Code] = rowNum
	}

	return errs
}

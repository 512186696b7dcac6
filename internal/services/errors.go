package services

import (
	"errors"
	"fmt"

	apperrors "github.com/agroplatform/dictionary-service/internal/errors"
	"github.com/agroplatform/dictionary-service/internal/repositories"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")

	// Dictionary specific errors
	ErrDictionaryNotFound = errors.New("dictionary not found")
	ErrItemNotFound       = errors.New("dictionary item not found")
	ErrItemCodeExists     = errors.New("item code already exists in dictionary")
	ErrItemVersionStale   = errors.New("dictionary item was modified by someone else")

	// Import batch specific errors
	ErrBatchNotFound = errors.New("import batch not found")
	ErrEmptyImport   = errors.New("import contains no rows")

	// Undo/redo state-precondition errors: rejected immediately, no mutation
	// is attempted.
	ErrInvalidState  = errors.New("batch is not in a state that allows this operation")
	ErrNotTopOfStack = errors.New("batch is not at the top of the undo/redo stack")

	// History purge guard
	ErrBatchProtected = errors.New("batch is the current undo/redo top and cannot be deleted")

	// Lock contention
	ErrDictionaryBusy = errors.New("another import, undo or redo is running for this dictionary")
)

// ===== ROW-LEVEL ERRORS =====

// RowErrorReason is the closed set of recoverable per-row import failures.
type RowErrorReason string

const (
	RowErrCodeAlreadyExists RowErrorReason = "CodeAlreadyExists"
	RowErrCodeNotFound      RowErrorReason = "CodeNotFound"
	RowErrInvalidRow        RowErrorReason = "InvalidRow"
)

// RowError is one recoverable row failure, rendered into the batch error log
// as "Row N: Reason(code)".
type RowError struct {
	Row    int            `json:"row"`
	Code   string         `json:"code"`
	Reason RowErrorReason `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

func (e *RowError) Error() string {
	return e.LogLine()
}

// LogLine formats the error the way it is stored in ImportBatch.ErrorLog.
func (e *RowError) LogLine() string {
	if e.Detail != "" {
		return fmt.Sprintf("Row %d: %s(%s): %s", e.Row, e.Reason, e.Code, e.Detail)
	}
	return fmt.Sprintf("Row %d: %s(%s)", e.Row, e.Reason, e.Code)
}

// ===== CONFLICT REPORTING =====

// EntryConflict describes one journal entry that could not be undone or
// redone because the stored item no longer matches the expected snapshot.
type EntryConflict struct {
	SequenceNo int    `json:"sequence_no"`
	ItemID     uint   `json:"item_id"`
	ItemCode   string `json:"item_code"`
	Reason     string `json:"reason"`
}

// ===== SHARED VALIDATION TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDictionaryNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrBatchNotFound) ||
		repositories.IsNotFoundError(err)
}

// IsStatePrecondition checks if error is a rejected undo/redo precondition
func IsStatePrecondition(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotTopOfStack) ||
		errors.Is(err, ErrBatchProtected)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrEmptyImport) {
		return true
	}
	var ve ValidationErrors
	return errors.As(err, &ve)
}

// IsConflict checks if error represents an optimistic-version conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrItemVersionStale) || repositories.IsConflictError(err)
}

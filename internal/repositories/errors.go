package repositories

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ConflictError is returned by version-checked writes when the stored row no
// longer carries the version the caller expected. It is the signal undo/redo
// uses to detect intervening edits.
type ConflictError struct {
	ItemID          uint  `json:"item_id"`
	ExpectedVersion int64 `json:"expected_version"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on item %d: expected version %d", e.ItemID, e.ExpectedVersion)
}

func NewConflictError(itemID uint, expectedVersion int64) *ConflictError {
	return &ConflictError{ItemID: itemID, ExpectedVersion: expectedVersion}
}

// IsNotFoundError checks if error represents a missing record
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsConflictError checks if error represents an optimistic-version conflict
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

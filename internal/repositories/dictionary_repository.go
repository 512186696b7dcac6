package repositories

import (
	"context"

	"github.com/agroplatform/dictionary-service/internal/models"
	"gorm.io/gorm"
)

// DictionaryRepository manages the dictionary definitions themselves.
type DictionaryRepository interface {
	Create(ctx context.Context, tx *gorm.DB, dictionary *models.Dictionary) error
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Dictionary, error)
	List(ctx context.Context, tx *gorm.DB) ([]*models.Dictionary, error)
}

// DictionaryItemRepository is the mutable table of lookup rows the import
// executor reads and writes. All version-checked writes fail with a
// *ConflictError when the stored version differs from expectedVersion.
type DictionaryItemRepository interface {
	// Lookups
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.DictionaryItem, error)
	GetByCode(ctx context.Context, tx *gorm.DB, dictionaryCode, code string) (*models.DictionaryItem, error)
	List(ctx context.Context, tx *gorm.DB, dictionaryCode string, filters ItemFilters) ([]*models.DictionaryItem, int64, error)

	// Writes. Create inserts the item as given (explicit ID allowed, used by
	// redo to resurrect a row under its original surrogate key).
	Create(ctx context.Context, tx *gorm.DB, item *models.DictionaryItem) error

	// UpdateChecked writes every mutable column of item verbatim, including
	// item.Version, but only if the stored row still carries expectedVersion.
	UpdateChecked(ctx context.Context, tx *gorm.DB, item *models.DictionaryItem, expectedVersion int64) error

	// DeleteChecked removes the row permanently, only if it still carries
	// expectedVersion. Used exclusively by rollback of created items.
	DeleteChecked(ctx context.Context, tx *gorm.DB, id uint, expectedVersion int64) error
}

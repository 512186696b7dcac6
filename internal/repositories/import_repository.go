package repositories

import (
	"context"

	"github.com/agroplatform/dictionary-service/internal/models"
	"gorm.io/gorm"
)

// ImportBatchRepository persists import batch metadata and exposes the
// history queries backing the import-history view and undo/redo preconditions.
type ImportBatchRepository interface {
	Create(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ImportBatch, error)
	GetByIDWithEntries(ctx context.Context, tx *gorm.DB, id uint) (*models.ImportBatch, error)
	Update(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	ListByDictionary(ctx context.Context, tx *gorm.DB, dictionaryCode string, filters BatchFilters) ([]*models.ImportBatch, int64, error)

	// GetPreviousCompleted returns the most recent completed batch for the
	// dictionary older than beforeID, or ErrNotFound. Used to regress the
	// undo pointer after a full rollback.
	GetPreviousCompleted(ctx context.Context, tx *gorm.DB, dictionaryCode string, beforeID uint) (*models.ImportBatch, error)
}

// ChangeJournalRepository is the append-only store of before/after snapshots.
type ChangeJournalRepository interface {
	AppendAll(ctx context.Context, tx *gorm.DB, entries []models.ChangeJournalEntry) error

	// GetByBatch returns the batch's entries ordered by sequence number
	// ascending.
	GetByBatch(ctx context.Context, tx *gorm.DB, batchID uint) ([]models.ChangeJournalEntry, error)
}

// UndoStackRepository persists the per-dictionary (undoTop, redoTop) pair.
type UndoStackRepository interface {
	// Get returns the stack row for the dictionary; a dictionary with no
	// import history yet yields an empty stack, not an error.
	Get(ctx context.Context, tx *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error)

	// GetForUpdate is Get with a row-level lock; must run inside a
	// transaction.
	GetForUpdate(ctx context.Context, tx *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error)

	// Save upserts the stack row.
	Save(ctx context.Context, tx *gorm.DB, stack *models.UndoRedoStack) error
}

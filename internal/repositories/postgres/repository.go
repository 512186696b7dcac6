package postgres

import (
	"context"

	"github.com/agroplatform/dictionary-service/internal/repositories"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB

	dictionary     repositories.DictionaryRepository
	dictionaryItem repositories.DictionaryItemRepository
	importBatch    repositories.ImportBatchRepository
	changeJournal  repositories.ChangeJournalRepository
	undoStack      repositories.UndoStackRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &Repository{
		db:             db,
		dictionary:     NewDictionaryPostgreSQL(db),
		dictionaryItem: NewDictionaryItemPostgreSQL(db),
		importBatch:    NewImportBatchPostgreSQL(db),
		changeJournal:  NewChangeJournalPostgreSQL(db),
		undoStack:      NewUndoStackPostgreSQL(db),
	}
}

func (r *Repository) Dictionary() repositories.DictionaryRepository {
	return r.dictionary
}

func (r *Repository) DictionaryItem() repositories.DictionaryItemRepository {
	return r.dictionaryItem
}

func (r *Repository) ImportBatch() repositories.ImportBatchRepository {
	return r.importBatch
}

func (r *Repository) ChangeJournal() repositories.ChangeJournalRepository {
	return r.changeJournal
}

func (r *Repository) UndoStack() repositories.UndoStackRepository {
	return r.undoStack
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// session returns the transaction when one is supplied, otherwise the shared
// connection with the request context attached.
func session(ctx context.Context, db *gorm.DB, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

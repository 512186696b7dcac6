package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UndoStackPostgreSQL struct {
	db *gorm.DB
}

func NewUndoStackPostgreSQL(db *gorm.DB) repositories.UndoStackRepository {
	return &UndoStackPostgreSQL{db: db}
}

func (r *UndoStackPostgreSQL) Get(ctx context.Context, tx *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error) {
	return r.get(session(ctx, r.db, tx), dictionaryCode)
}

func (r *UndoStackPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error) {
	return r.get(session(ctx, r.db, tx).Clauses(clause.Locking{Strength: "UPDATE"}), dictionaryCode)
}

func (r *UndoStackPostgreSQL) get(db *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error) {
	var stack models.UndoRedoStack
	err := db.Where("dictionary_code = ?", dictionaryCode).First(&stack).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No import history yet: empty stack, both pointers clear.
			return &models.UndoRedoStack{DictionaryCode: dictionaryCode}, nil
		}
		return nil, fmt.Errorf("failed to get undo stack for %s: %w", dictionaryCode, err)
	}
	return &stack, nil
}

func (r *UndoStackPostgreSQL) Save(ctx context.Context, tx *gorm.DB, stack *models.UndoRedoStack) error {
	err := session(ctx, r.db, tx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dictionary_code"}},
			UpdateAll: true,
		}).
		Create(stack).Error
	if err != nil {
		return fmt.Errorf("failed to save undo stack for %s: %w", stack.DictionaryCode, err)
	}
	return nil
}

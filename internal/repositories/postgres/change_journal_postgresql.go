package postgres

import (
	"context"
	"fmt"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"gorm.io/gorm"
)

type ChangeJournalPostgreSQL struct {
	db *gorm.DB
}

func NewChangeJournalPostgreSQL(db *gorm.DB) repositories.ChangeJournalRepository {
	return &ChangeJournalPostgreSQL{db: db}
}

func (r *ChangeJournalPostgreSQL) AppendAll(ctx context.Context, tx *gorm.DB, entries []models.ChangeJournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := session(ctx, r.db, tx).Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to append journal entries: %w", err)
	}
	return nil
}

func (r *ChangeJournalPostgreSQL) GetByBatch(ctx context.Context, tx *gorm.DB, batchID uint) ([]models.ChangeJournalEntry, error) {
	var entries []models.ChangeJournalEntry
	err := session(ctx, r.db, tx).
		Where("batch_id = ?", batchID).
		Order("sequence_no ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load journal for batch %d: %w", batchID, err)
	}
	return entries, nil
}

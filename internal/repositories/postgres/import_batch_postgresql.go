package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"gorm.io/gorm"
)

type ImportBatchPostgreSQL struct {
	db *gorm.DB
}

func NewImportBatchPostgreSQL(db *gorm.DB) repositories.ImportBatchRepository {
	return &ImportBatchPostgreSQL{db: db}
}

func (r *ImportBatchPostgreSQL) Create(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) error {
	if err := session(ctx, r.db, tx).Create(batch).Error; err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

func (r *ImportBatchPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := session(ctx, r.db, tx).First(&batch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get import batch %d: %w", id, err)
	}
	return &batch, nil
}

func (r *ImportBatchPostgreSQL) GetByIDWithEntries(ctx context.Context, tx *gorm.DB, id uint) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := session(ctx, r.db, tx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_no ASC")
		}).
		First(&batch, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get import batch %d: %w", id, err)
	}
	return &batch, nil
}

func (r *ImportBatchPostgreSQL) Update(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) error {
	if err := session(ctx, r.db, tx).Save(batch).Error; err != nil {
		return fmt.Errorf("failed to update import batch %d: %w", batch.ID, err)
	}
	return nil
}

func (r *ImportBatchPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	result := session(ctx, r.db, tx).Delete(&models.ImportBatch{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete import batch %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *ImportBatchPostgreSQL) ListByDictionary(ctx context.Context, tx *gorm.DB, dictionaryCode string, filters repositories.BatchFilters) ([]*models.ImportBatch, int64, error) {
	query := session(ctx, r.db, tx).
		Model(&models.ImportBatch{}).
		Where("dictionary_code = ?", dictionaryCode)

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PerformedBy != nil {
		query = query.Where("performed_by = ?", *filters.PerformedBy)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count import batches: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var batches []*models.ImportBatch
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&batches).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list import batches: %w", err)
	}

	return batches, total, nil
}

func (r *ImportBatchPostgreSQL) GetPreviousCompleted(ctx context.Context, tx *gorm.DB, dictionaryCode string, beforeID uint) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := session(ctx, r.db, tx).
		Where("dictionary_code = ? AND status = ? AND id < ?",
			dictionaryCode, models.ImportBatchCompleted, beforeID).
		Order("id DESC").
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get previous completed batch: %w", err)
	}
	return &batch, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"gorm.io/gorm"
)

type DictionaryItemPostgreSQL struct {
	db *gorm.DB
}

func NewDictionaryItemPostgreSQL(db *gorm.DB) repositories.DictionaryItemRepository {
	return &DictionaryItemPostgreSQL{db: db}
}

// ===== LOOKUPS =====

func (r *DictionaryItemPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.DictionaryItem, error) {
	var item models.DictionaryItem
	err := session(ctx, r.db, tx).First(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dictionary item %d: %w", id, err)
	}
	return &item, nil
}

func (r *DictionaryItemPostgreSQL) GetByCode(ctx context.Context, tx *gorm.DB, dictionaryCode, code string) (*models.DictionaryItem, error) {
	var item models.DictionaryItem
	err := session(ctx, r.db, tx).
		Where("dictionary_code = ? AND code = ?", dictionaryCode, code).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dictionary item %s/%s: %w", dictionaryCode, code, err)
	}
	return &item, nil
}

func (r *DictionaryItemPostgreSQL) List(ctx context.Context, tx *gorm.DB, dictionaryCode string, filters repositories.ItemFilters) ([]*models.DictionaryItem, int64, error) {
	query := session(ctx, r.db, tx).
		Model(&models.DictionaryItem{}).
		Where("dictionary_code = ?", dictionaryCode)

	query = r.applyFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count dictionary items: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []*models.DictionaryItem
	err := query.
		Order(r.sortClause(filters)).
		Limit(limit).
		Offset(filters.Offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dictionary items: %w", err)
	}

	return items, total, nil
}

// ===== WRITES =====

func (r *DictionaryItemPostgreSQL) Create(ctx context.Context, tx *gorm.DB, item *models.DictionaryItem) error {
	if err := session(ctx, r.db, tx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create dictionary item %s/%s: %w", item.DictionaryCode, item.Code, err)
	}
	return nil
}

func (r *DictionaryItemPostgreSQL) UpdateChecked(ctx context.Context, tx *gorm.DB, item *models.DictionaryItem, expectedVersion int64) error {
	// Select forces writing zero values (false, "", 0) and the caller-chosen
	// version, so restored snapshots land verbatim.
	result := session(ctx, r.db, tx).
		Model(&models.DictionaryItem{}).
		Where("id = ? AND version = ?", item.ID, expectedVersion).
		Select("code", "name", "name_en", "name_ru", "name_uz",
			"icon", "color", "symbol", "sort_order", "is_active", "version").
		Updates(item)
	if result.Error != nil {
		return fmt.Errorf("failed to update dictionary item %d: %w", item.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.NewConflictError(item.ID, expectedVersion)
	}
	return nil
}

func (r *DictionaryItemPostgreSQL) DeleteChecked(ctx context.Context, tx *gorm.DB, id uint, expectedVersion int64) error {
	result := session(ctx, r.db, tx).
		Unscoped().
		Where("id = ? AND version = ?", id, expectedVersion).
		Delete(&models.DictionaryItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete dictionary item %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.NewConflictError(id, expectedVersion)
	}
	return nil
}

// ===== HELPERS =====

func (r *DictionaryItemPostgreSQL) applyFilters(query *gorm.DB, filters repositories.ItemFilters) *gorm.DB {
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where(
			"code ILIKE ? OR name ILIKE ? OR name_en ILIKE ? OR name_ru ILIKE ? OR name_uz ILIKE ?",
			pattern, pattern, pattern, pattern, pattern)
	}
	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	return query
}

func (r *DictionaryItemPostgreSQL) sortClause(filters repositories.ItemFilters) string {
	column := "sort_order"
	switch filters.SortBy {
	case "code", "name", "updated_at", "sort_order":
		column = filters.SortBy
	}
	direction := "ASC"
	if filters.SortOrder == "desc" {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s, code ASC", column, direction)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"gorm.io/gorm"
)

type DictionaryPostgreSQL struct {
	db *gorm.DB
}

func NewDictionaryPostgreSQL(db *gorm.DB) repositories.DictionaryRepository {
	return &DictionaryPostgreSQL{db: db}
}

func (d *DictionaryPostgreSQL) Create(ctx context.Context, tx *gorm.DB, dictionary *models.Dictionary) error {
	if err := session(ctx, d.db, tx).Create(dictionary).Error; err != nil {
		return fmt.Errorf("failed to create dictionary: %w", err)
	}
	return nil
}

func (d *DictionaryPostgreSQL) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Dictionary, error) {
	var dictionary models.Dictionary
	err := session(ctx, d.db, tx).
		Where("code = ?", code).
		First(&dictionary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dictionary %s: %w", code, err)
	}
	return &dictionary, nil
}

func (d *DictionaryPostgreSQL) List(ctx context.Context, tx *gorm.DB) ([]*models.Dictionary, error) {
	var dictionaries []*models.Dictionary
	err := session(ctx, d.db, tx).
		Order("code ASC").
		Find(&dictionaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list dictionaries: %w", err)
	}
	return dictionaries, nil
}

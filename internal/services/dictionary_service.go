package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agroplatform/dictionary-service/internal/cache"
	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/agroplatform/dictionary-service/internal/validator"
)

const itemListCacheTTL = 5 * time.Minute

// DictionaryService is the read and single-item edit surface. Bulk changes
// go through ImportService; the direct writes here still bump the item
// version so they participate in undo/redo conflict detection.
type DictionaryService interface {
	CreateDictionary(ctx context.Context, dictionary *models.Dictionary) error
	GetDictionary(ctx context.Context, code string) (*models.Dictionary, error)
	ListDictionaries(ctx context.Context) ([]*models.Dictionary, error)

	ListItems(ctx context.Context, dictionaryCode string, filters repositories.ItemFilters) (*ItemListResult, error)
	GetItem(ctx context.Context, id uint) (*models.DictionaryItem, error)
	CreateItem(ctx context.Context, dictionaryCode string, row *models.ImportRow) (*models.DictionaryItem, error)
	UpdateItem(ctx context.Context, id uint, row *models.ImportRow, expectedVersion int64) (*models.DictionaryItem, error)
	DeleteItem(ctx context.Context, id uint, expectedVersion int64) error
}

// ItemListResult is one page of items together with the total match count.
type ItemListResult struct {
	Items []*models.DictionaryItem `json:"items"`
	Total int64                    `json:"total"`
}

type dictionaryService struct {
	repo      repositories.Repository
	validator *validator.Validator
	cache     cache.CacheService
	logger    utils.Logger
}

func NewDictionaryService(repo repositories.Repository, v *validator.Validator, cacheService cache.CacheService, logger utils.Logger) DictionaryService {
	return &dictionaryService{
		repo:      repo,
		validator: v,
		cache:     cacheService,
		logger:    logger,
	}
}

func (s *dictionaryService) CreateDictionary(ctx context.Context, dictionary *models.Dictionary) error {
	if err := s.validator.ValidateStruct(dictionary); err != nil {
		return err
	}
	if _, err := s.repo.Dictionary().GetByCode(ctx, nil, dictionary.Code); err == nil {
		return fmt.Errorf("%w: dictionary %q already exists", ErrBadRequest, dictionary.Code)
	} else if !repositories.IsNotFoundError(err) {
		return err
	}
	if err := s.repo.Dictionary().Create(ctx, nil, dictionary); err != nil {
		return err
	}
	s.logger.Info("dictionary created", "code", dictionary.Code)
	return nil
}

func (s *dictionaryService) GetDictionary(ctx context.Context, code string) (*models.Dictionary, error) {
	dictionary, err := s.repo.Dictionary().GetByCode(ctx, nil, code)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrDictionaryNotFound
		}
		return nil, err
	}
	return dictionary, nil
}

func (s *dictionaryService) ListDictionaries(ctx context.Context) ([]*models.Dictionary, error) {
	return s.repo.Dictionary().List(ctx, nil)
}

// ListItems serves listings cache-first. The cache key hashes the full filter
// set, so every distinct page and search is cached independently and the
// whole family is wiped on any write via ItemListPattern.
func (s *dictionaryService) ListItems(ctx context.Context, dictionaryCode string, filters repositories.ItemFilters) (*ItemListResult, error) {
	if _, err := s.repo.Dictionary().GetByCode(ctx, nil, dictionaryCode); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrDictionaryNotFound
		}
		return nil, err
	}

	key := cache.ItemListKey(dictionaryCode, hashFilters(filters))
	var cached ItemListResult
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("item list cache read failed", "key", key, "error", err)
	}

	items, total, err := s.repo.DictionaryItem().List(ctx, nil, dictionaryCode, filters)
	if err != nil {
		return nil, err
	}

	result := &ItemListResult{Items: items, Total: total}
	if err := s.cache.Set(ctx, key, result, itemListCacheTTL); err != nil {
		s.logger.Warn("item list cache write failed", "key", key, "error", err)
	}
	return result, nil
}

func (s *dictionaryService) GetItem(ctx context.Context, id uint) (*models.DictionaryItem, error) {
	item, err := s.repo.DictionaryItem().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *dictionaryService) CreateItem(ctx context.Context, dictionaryCode string, row *models.ImportRow) (*models.DictionaryItem, error) {
	if _, err := s.repo.Dictionary().GetByCode(ctx, nil, dictionaryCode); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrDictionaryNotFound
		}
		return nil, err
	}
	if err := s.validator.ValidateStruct(row); err != nil {
		return nil, err
	}

	if _, err := s.repo.DictionaryItem().GetByCode(ctx, nil, dictionaryCode, row.Code); err == nil {
		return nil, ErrItemCodeExists
	} else if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	item := &models.DictionaryItem{
		DictionaryCode: dictionaryCode,
		Code:           row.Code,
		Version:        1,
		IsActive:       true,
	}
	applyRowToItem(item, row)

	if err := s.repo.DictionaryItem().Create(ctx, nil, item); err != nil {
		return nil, err
	}

	s.invalidate(ctx, dictionaryCode)
	s.logger.Info("item created", "id", item.ID, "dictionary_code", dictionaryCode, "code", item.Code)
	return item, nil
}

// UpdateItem is an optimistic-concurrency write: the caller submits the
// version it last read and loses with ErrItemVersionStale when it is behind.
func (s *dictionaryService) UpdateItem(ctx context.Context, id uint, row *models.ImportRow, expectedVersion int64) (*models.DictionaryItem, error) {
	if err := s.validator.ValidateStruct(row); err != nil {
		return nil, err
	}

	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Code != row.Code {
		if _, err := s.repo.DictionaryItem().GetByCode(ctx, nil, item.DictionaryCode, row.Code); err == nil {
			return nil, ErrItemCodeExists
		} else if !repositories.IsNotFoundError(err) {
			return nil, err
		}
		item.Code = row.Code
	}

	applyRowToItem(item, row)
	item.Version = expectedVersion + 1

	if err := s.repo.DictionaryItem().UpdateChecked(ctx, nil, item, expectedVersion); err != nil {
		if repositories.IsConflictError(err) {
			return nil, ErrItemVersionStale
		}
		return nil, err
	}

	s.invalidate(ctx, item.DictionaryCode)
	s.logger.Info("item updated", "id", id, "dictionary_code", item.DictionaryCode, "version", item.Version)
	return item, nil
}

func (s *dictionaryService) DeleteItem(ctx context.Context, id uint, expectedVersion int64) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DictionaryItem().DeleteChecked(ctx, nil, id, expectedVersion); err != nil {
		if repositories.IsConflictError(err) {
			return ErrItemVersionStale
		}
		return err
	}

	s.invalidate(ctx, item.DictionaryCode)
	s.logger.Info("item deleted", "id", id, "dictionary_code", item.DictionaryCode)
	return nil
}

func (s *dictionaryService) invalidate(ctx context.Context, dictionaryCode string) {
	if err := s.cache.DeletePattern(ctx, cache.ItemListPattern(dictionaryCode)); err != nil {
		s.logger.Warn("failed to invalidate item cache", "dictionary_code", dictionaryCode, "error", err)
	}
}

func hashFilters(filters repositories.ItemFilters) string {
	data, _ := json.Marshal(filters)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

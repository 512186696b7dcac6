package repositories

import (
	"context"
	"time"

	"github.com/agroplatform/dictionary-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type ItemFilters struct {
	Search     string `json:"search"` // matches code or any name column
	ActiveOnly bool   `json:"active_only"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	SortBy     string `json:"sort_by"`    // "sort_order", "code", "name", "updated_at"
	SortOrder  string `json:"sort_order"` // "asc", "desc"
}

type BatchFilters struct {
	Status      *models.ImportBatchStatus `json:"status"`
	PerformedBy *string                   `json:"performed_by"`
	DateFrom    *time.Time                `json:"date_from"`
	DateTo      *time.Time                `json:"date_to"`
	Limit       int                       `json:"limit"`
	Offset      int                       `json:"offset"`
}

// ===== AGGREGATE REPOSITORY =====

// Repository bundles all persistence entry points. Transaction runs fn inside
// one database transaction; the provided tx must be passed down into the
// individual repository calls that should share it.
type Repository interface {
	Dictionary() DictionaryRepository
	DictionaryItem() DictionaryItemRepository
	ImportBatch() ImportBatchRepository
	ChangeJournal() ChangeJournalRepository
	UndoStack() UndoStackRepository

	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// DictionaryItem is one lookup row of a dictionary (machine types, units,
// categories and similar shared reference tables).
type DictionaryItem struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	DictionaryCode string `json:"dictionary_code" gorm:"not null;size:100;uniqueIndex:idx_dictionary_item_code"`
	Code           string `json:"code" gorm:"not null;size:100;uniqueIndex:idx_dictionary_item_code"`

	// Names: default plus the three fixed locales
	Name   string `json:"name" gorm:"not null;size:255"`
	NameEn string `json:"name_en" gorm:"size:255"`
	NameRu string `json:"name_ru" gorm:"size:255"`
	NameUz string `json:"name_uz" gorm:"size:255"`

	// Display attributes
	Icon      *string `json:"icon,omitempty" gorm:"size:100"`
	Color     *string `json:"color,omitempty" gorm:"size:20"`
	Symbol    *string `json:"symbol,omitempty" gorm:"size:20"`
	SortOrder int     `json:"sort_order" gorm:"default:0;index"`
	IsActive  bool    `json:"is_active" gorm:"default:true"`

	// Version is a monotonic counter bumped on every write. It is the sole
	// conflict-detection marker protecting undo/redo from clobbering edits
	// made between import and rollback.
	Version int64 `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (DictionaryItem) TableName() string {
	return "dictionary_items"
}

// Dictionary describes one lookup table (group of DictionaryItems).
type Dictionary struct {
	Code        string    `json:"code" gorm:"primaryKey;size:100"`
	Name        string    `json:"name" gorm:"not null;size:255"`
	Description string    `json:"description" gorm:"size:1000"`
	IsSystem    bool      `json:"is_system" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Dictionary) TableName() string {
	return "dictionaries"
}

// ImportRow is one already-parsed tabular row handed to the import executor.
type ImportRow struct {
	Code      string  `json:"code" validate:"required,max=100"`
	Name      string  `json:"name" validate:"required,max=255"`
	NameEn    string  `json:"name_en" validate:"omitempty,max=255"`
	NameRu    string  `json:"name_ru" validate:"omitempty,max=255"`
	NameUz    string  `json:"name_uz" validate:"omitempty,max=255"`
	Icon      *string `json:"icon,omitempty" validate:"omitempty,max=100"`
	Color     *string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Symbol    *string `json:"symbol,omitempty" validate:"omitempty,max=20"`
	SortOrder *int    `json:"sort_order,omitempty" validate:"omitempty,min=0,max=1000000"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

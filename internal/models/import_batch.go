package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type ImportMode string

const (
	ImportModeCreate ImportMode = "create"
	ImportModeUpdate ImportMode = "update"
	ImportModeUpsert ImportMode = "upsert"
)

// ParseImportMode converts a wire value into a closed ImportMode variant.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(s) {
	case ImportModeCreate, ImportModeUpdate, ImportModeUpsert:
		return ImportMode(s), nil
	default:
		return "", fmt.Errorf("unknown import mode %q", s)
	}
}

type ImportBatchStatus string

const (
	ImportBatchPending    ImportBatchStatus = "pending"
	ImportBatchInProgress ImportBatchStatus = "in_progress"
	ImportBatchCompleted  ImportBatchStatus = "completed"
	ImportBatchFailed     ImportBatchStatus = "failed"
	ImportBatchRolledBack ImportBatchStatus = "rolled_back"
)

// ImportBatch is one bulk-import attempt against a dictionary.
//
// Invariant: SuccessfulRecords + FailedRecords == TotalRecords once the batch
// is finalized (completed or failed).
type ImportBatch struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	DictionaryCode string            `json:"dictionary_code" gorm:"not null;size:100;index"`
	FileName       string            `json:"file_name" gorm:"size:255"`
	Mode           ImportMode        `json:"mode" gorm:"not null;size:20"`
	Status         ImportBatchStatus `json:"status" gorm:"not null;default:pending;index"`

	TotalRecords      int `json:"total_records"`
	SuccessfulRecords int `json:"successful_records"`
	FailedRecords     int `json:"failed_records"`

	// ErrorLog holds ordered, human-readable row-level error lines ([]string).
	ErrorLog datatypes.JSON `json:"error_log" gorm:"type:jsonb"`

	PerformedBy  string     `json:"performed_by" gorm:"not null;size:255;index"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`
	RolledBackBy *string    `json:"rolled_back_by,omitempty" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Entries []ChangeJournalEntry `json:"entries,omitempty" gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

func (ImportBatch) TableName() string {
	return "import_batches"
}

// IsFinal reports whether the batch can no longer change counters.
func (b *ImportBatch) IsFinal() bool {
	switch b.Status {
	case ImportBatchCompleted, ImportBatchFailed, ImportBatchRolledBack:
		return true
	}
	return false
}

type JournalOperation string

const (
	JournalOpCreated JournalOperation = "created"
	JournalOpUpdated JournalOperation = "updated"
)

// ChangeJournalEntry is one reversible mutation performed by a batch: a full
// before/after snapshot pair for a single dictionary item. Entries are owned
// exclusively by their batch and immutable once the batch finalizes.
//
// SequenceNo follows input row order. Undo replays entries in reverse
// sequence order, redo in forward order.
type ChangeJournalEntry struct {
	BatchID    uint             `json:"batch_id" gorm:"primaryKey;autoIncrement:false"`
	SequenceNo int              `json:"sequence_no" gorm:"primaryKey;autoIncrement:false"`
	ItemID     uint             `json:"item_id" gorm:"not null;index"`
	Operation  JournalOperation `json:"operation" gorm:"not null;size:20"`

	// BeforeState is the full item snapshot prior to the mutation; null when
	// the batch created the item. AfterState is the snapshot as written.
	BeforeState datatypes.JSON `json:"before_state,omitempty" gorm:"type:jsonb"`
	AfterState  datatypes.JSON `json:"after_state" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (ChangeJournalEntry) TableName() string {
	return "change_journal_entries"
}

// UndoRedoStack is the persisted per-dictionary pointer pair tracking which
// batch may be undone and which undone batch may be redone. One row per
// dictionary so multiple server instances observe the same stack.
type UndoRedoStack struct {
	DictionaryCode string    `json:"dictionary_code" gorm:"primaryKey;size:100"`
	UndoTopID      *uint     `json:"undo_top_id,omitempty"`
	RedoTopID      *uint     `json:"redo_top_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (UndoRedoStack) TableName() string {
	return "undo_redo_stacks"
}

// StackCapabilities reports whether a given batch is currently eligible for
// undo or redo on its dictionary.
type StackCapabilities struct {
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}

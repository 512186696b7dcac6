package events

import (
	"time"

	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents different types of dictionary events
type EventType string

const (
	// Import lifecycle events
	EventImportCompleted  EventType = "dictionary.import.completed"
	EventImportFailed     EventType = "dictionary.import.failed"
	EventImportRolledBack EventType = "dictionary.import.rolled_back"
	EventImportRedone     EventType = "dictionary.import.redone"

	// Stack observer events, consumed by UI affordances to enable/disable
	// undo and redo controls
	EventStackChanged EventType = "dictionary.stack.changed"
)

// DictionaryEvent is the base envelope for all dictionary events
type DictionaryEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Import event payloads

type ImportCompletedEvent struct {
	BatchID           uint              `json:"batch_id"`
	DictionaryCode    string            `json:"dictionary_code"`
	Mode              models.ImportMode `json:"mode"`
	TotalRecords      int               `json:"total_records"`
	SuccessfulRecords int               `json:"successful_records"`
	FailedRecords     int               `json:"failed_records"`
	PerformedBy       string            `json:"performed_by"`
}

type ImportFailedEvent struct {
	BatchID        uint              `json:"batch_id"`
	DictionaryCode string            `json:"dictionary_code"`
	Mode           models.ImportMode `json:"mode"`
	TotalRecords   int               `json:"total_records"`
	FailedRecords  int               `json:"failed_records"`
	PerformedBy    string            `json:"performed_by"`
}

type ImportRolledBackEvent struct {
	BatchID         uint   `json:"batch_id"`
	DictionaryCode  string `json:"dictionary_code"`
	EntriesReverted int    `json:"entries_reverted"`
	RolledBackBy    string `json:"rolled_back_by"`
}

type ImportRedoneEvent struct {
	BatchID        uint   `json:"batch_id"`
	DictionaryCode string `json:"dictionary_code"`
	EntriesApplied int    `json:"entries_applied"`
	RedoneBy       string `json:"redone_by"`
}

type StackChangedEvent struct {
	DictionaryCode string `json:"dictionary_code"`
	UndoTopID      *uint  `json:"undo_top_id,omitempty"`
	RedoTopID      *uint  `json:"redo_top_id,omitempty"`
}

// NewDictionaryEvent creates an event envelope with standard metadata
func NewDictionaryEvent(eventType EventType, data interface{}) *DictionaryEvent {
	return &DictionaryEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    "dictionary-service",
		Version:   "1.0",
		Data:      data,
	}
}

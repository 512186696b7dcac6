package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agroplatform/dictionary-service/internal/cache"
	"github.com/agroplatform/dictionary-service/internal/events"
	"github.com/agroplatform/dictionary-service/internal/lock"
	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/agroplatform/dictionary-service/internal/validator"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportService is the bulk import / undo-redo transaction engine. Every
// mutation it performs is captured in the change journal, making each
// completed batch exactly reversible and re-appliable.
type ImportService interface {
	Execute(ctx context.Context, req *ImportRequest) (*models.ImportBatch, error)
	Undo(ctx context.Context, batchID uint, performedBy string) (*UndoResult, error)
	Redo(ctx context.Context, batchID uint, performedBy string) (*RedoResult, error)

	History(ctx context.Context, dictionaryCode string, filters repositories.BatchFilters) ([]*models.ImportBatch, int64, error)
	GetBatch(ctx context.Context, batchID uint) (*models.ImportBatch, error)
	DeleteBatch(ctx context.Context, batchID uint) error
	Capabilities(ctx context.Context, batchID uint) (*models.StackCapabilities, error)
}

// ImportRequest carries one validated batch of rows for one dictionary.
type ImportRequest struct {
	DictionaryCode string
	FileName       string
	Mode           models.ImportMode
	Rows           []models.ImportRow

	// SkipErrors selects the only sanctioned partial-commit path: failing
	// rows are logged and skipped while the rest commit. With SkipErrors
	// false any row failure voids the whole batch.
	SkipErrors  bool
	PerformedBy string
}

// UndoResult reports the outcome of a rollback attempt.
type UndoResult struct {
	BatchID         uint            `json:"batch_id"`
	DictionaryCode  string          `json:"dictionary_code"`
	RolledBack      bool            `json:"rolled_back"`
	EntriesReverted int             `json:"entries_reverted"`
	Conflicts       []EntryConflict `json:"conflicts,omitempty"`
}

// RedoResult reports the outcome of a re-apply attempt.
type RedoResult struct {
	BatchID        uint            `json:"batch_id"`
	DictionaryCode string          `json:"dictionary_code"`
	Redone         bool            `json:"redone"`
	EntriesApplied int             `json:"entries_applied"`
	Conflicts      []EntryConflict `json:"conflicts,omitempty"`
}

type importService struct {
	repo      repositories.Repository
	stack     StackService
	validator *validator.Validator
	locker    lock.DictionaryLocker
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    utils.Logger
}

func NewImportService(
	repo repositories.Repository,
	stack StackService,
	v *validator.Validator,
	locker lock.DictionaryLocker,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger utils.Logger,
) ImportService {
	return &importService{
		repo:      repo,
		stack:     stack,
		validator: v,
		locker:    locker,
		cache:     cacheService,
		publisher: publisher,
		logger:    logger,
	}
}

// errRowAborted distinguishes a strict-mode row failure (normal outcome,
// batch finalized as failed) from a storage failure inside the transaction.
var errRowAborted = errors.New("row failure aborted strict import")

// ===== EXECUTE =====

func (s *importService) Execute(ctx context.Context, req *ImportRequest) (*models.ImportBatch, error) {
	if req.DictionaryCode == "" {
		return nil, NewValidationError("dictionary_code", "is required", "")
	}
	if len(req.Rows) == 0 {
		return nil, ErrEmptyImport
	}
	if _, err := models.ParseImportMode(string(req.Mode)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if _, err := s.repo.Dictionary().GetByCode(ctx, nil, req.DictionaryCode); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrDictionaryNotFound
		}
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, req.DictionaryCode)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, ErrDictionaryBusy
		}
		return nil, err
	}
	defer release()

	// Structural problems become row errors, subject to the same
	// skip-errors policy as executor-level failures.
	invalid := make(map[int]*RowError)
	for _, re := range s.validator.Rows().ValidateRows(req.Rows) {
		if _, seen := invalid[re.Row]; !seen {
			invalid[re.Row] = &RowError{
				Row:    re.Row,
				Code:   req.Rows[re.Row-1].Code,
				Reason: RowErrInvalidRow,
				Detail: re.Field + " " + re.Message,
			}
		}
	}

	batch := &models.ImportBatch{
		DictionaryCode: req.DictionaryCode,
		FileName:       req.FileName,
		Mode:           req.Mode,
		Status:         models.ImportBatchPending,
		TotalRecords:   len(req.Rows),
		ErrorLog:       encodeErrorLog(nil),
		PerformedBy:    req.PerformedBy,
	}
	if err := s.repo.ImportBatch().Create(ctx, nil, batch); err != nil {
		return nil, err
	}

	batch.Status = models.ImportBatchInProgress
	if err := s.repo.ImportBatch().Update(ctx, nil, batch); err != nil {
		return nil, err
	}

	s.logger.Info("starting import",
		"batch_id", batch.ID,
		"dictionary_code", req.DictionaryCode,
		"mode", req.Mode,
		"total_records", len(req.Rows),
		"skip_errors", req.SkipErrors,
		"performed_by", req.PerformedBy)

	if req.SkipErrors {
		return s.executeSkipErrors(ctx, batch, req, invalid)
	}
	return s.executeStrict(ctx, batch, req, invalid)
}

// executeStrict applies every row inside one transaction; the first failing
// row discards all work.
func (s *importService) executeStrict(ctx context.Context, batch *models.ImportBatch, req *ImportRequest, invalid map[int]*RowError) (*models.ImportBatch, error) {
	if len(invalid) > 0 {
		var lines []string
		for rowNum := 1; rowNum <= len(req.Rows); rowNum++ {
			if re, bad := invalid[rowNum]; bad {
				lines = append(lines, re.LogLine())
			}
		}
		return s.finalizeFailed(ctx, batch, lines, 0)
	}

	var entries []models.ChangeJournalEntry
	var abort *RowError
	txErr := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		for i := range req.Rows {
			entry, rowErr, err := s.applyRow(ctx, tx, batch, &req.Rows[i], i+1, len(entries)+1)
			if err != nil {
				return err
			}
			if rowErr != nil {
				abort = rowErr
				return errRowAborted
			}
			entries = append(entries, *entry)
		}
		return s.repo.ChangeJournal().AppendAll(ctx, tx, entries)
	})

	switch {
	case txErr == nil:
		return s.finalizeCompleted(ctx, batch, len(entries), nil)
	case errors.Is(txErr, errRowAborted):
		return s.finalizeFailed(ctx, batch, []string{abort.LogLine()}, 0)
	default:
		// Storage failure: the transaction rolled back every mutation, so
		// zero partial state remains. Finalize and surface the fault.
		if _, ferr := s.finalizeFailed(ctx, batch, []string{"import aborted: storage error"}, 0); ferr != nil {
			s.logger.Error("failed to finalize aborted batch", "batch_id", batch.ID, "error", ferr)
		}
		return batch, fmt.Errorf("import failed: %w", txErr)
	}
}

// executeSkipErrors commits each non-failing row in its own transaction, so
// a mid-batch fault retains exactly the rows processed before it.
func (s *importService) executeSkipErrors(ctx context.Context, batch *models.ImportBatch, req *ImportRequest, invalid map[int]*RowError) (*models.ImportBatch, error) {
	var errorLog []string
	successful := 0

	for i := range req.Rows {
		rowNum := i + 1
		if re, bad := invalid[rowNum]; bad {
			errorLog = append(errorLog, re.LogLine())
			continue
		}

		var rowErr *RowError
		txErr := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
			entry, re, err := s.applyRow(ctx, tx, batch, &req.Rows[i], rowNum, successful+1)
			if err != nil {
				return err
			}
			if re != nil {
				rowErr = re
				return nil
			}
			return s.repo.ChangeJournal().AppendAll(ctx, tx, []models.ChangeJournalEntry{*entry})
		})
		if txErr != nil {
			errorLog = append(errorLog, fmt.Sprintf("Row %d: import aborted: storage error", rowNum))
			if _, ferr := s.finalizeFailed(ctx, batch, errorLog, successful); ferr != nil {
				s.logger.Error("failed to finalize aborted batch", "batch_id", batch.ID, "error", ferr)
			}
			return batch, fmt.Errorf("import failed at row %d: %w", rowNum, txErr)
		}
		if rowErr != nil {
			errorLog = append(errorLog, rowErr.LogLine())
			continue
		}
		successful++
	}

	return s.finalizeCompleted(ctx, batch, successful, errorLog)
}

// applyRow resolves the row target by (dictionaryCode, code) and performs the
// mode-specific mutation, returning the journal entry that reverses it.
func (s *importService) applyRow(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch, row *models.ImportRow, rowNum, seq int) (*models.ChangeJournalEntry, *RowError, error) {
	target, err := s.repo.DictionaryItem().GetByCode(ctx, tx, batch.DictionaryCode, row.Code)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, nil, err
	}
	exists := err == nil

	switch batch.Mode {
	case models.ImportModeCreate:
		if exists {
			return nil, &RowError{Row: rowNum, Code: row.Code, Reason: RowErrCodeAlreadyExists}, nil
		}
		return s.createFromRow(ctx, tx, batch, row, seq)
	case models.ImportModeUpdate:
		if !exists {
			return nil, &RowError{Row: rowNum, Code: row.Code, Reason: RowErrCodeNotFound}, nil
		}
		return s.updateFromRow(ctx, tx, batch, target, row, seq)
	default: // upsert
		if exists {
			return s.updateFromRow(ctx, tx, batch, target, row, seq)
		}
		return s.createFromRow(ctx, tx, batch, row, seq)
	}
}

func (s *importService) createFromRow(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch, row *models.ImportRow, seq int) (*models.ChangeJournalEntry, *RowError, error) {
	item := &models.DictionaryItem{
		DictionaryCode: batch.DictionaryCode,
		Code:           row.Code,
		Version:        1,
		IsActive:       true,
	}
	applyRowToItem(item, row)

	if err := s.repo.DictionaryItem().Create(ctx, tx, item); err != nil {
		return nil, nil, err
	}

	after, err := snapshotItem(item)
	if err != nil {
		return nil, nil, err
	}
	return &models.ChangeJournalEntry{
		BatchID:    batch.ID,
		SequenceNo: seq,
		ItemID:     item.ID,
		Operation:  models.JournalOpCreated,
		AfterState: after,
	}, nil, nil
}

func (s *importService) updateFromRow(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch, target *models.DictionaryItem, row *models.ImportRow, seq int) (*models.ChangeJournalEntry, *RowError, error) {
	before, err := snapshotItem(target)
	if err != nil {
		return nil, nil, err
	}

	updated := *target
	applyRowToItem(&updated, row)
	updated.Version = target.Version + 1

	if err := s.repo.DictionaryItem().UpdateChecked(ctx, tx, &updated, target.Version); err != nil {
		return nil, nil, err
	}

	after, err := snapshotItem(&updated)
	if err != nil {
		return nil, nil, err
	}
	return &models.ChangeJournalEntry{
		BatchID:     batch.ID,
		SequenceNo:  seq,
		ItemID:      updated.ID,
		Operation:   models.JournalOpUpdated,
		BeforeState: before,
		AfterState:  after,
	}, nil, nil
}

// finalizeCompleted commits batch counters, pushes the undo stack and
// announces the result. Completion and stack push share one transaction.
func (s *importService) finalizeCompleted(ctx context.Context, batch *models.ImportBatch, successful int, errorLog []string) (*models.ImportBatch, error) {
	batch.Status = models.ImportBatchCompleted
	batch.SuccessfulRecords = successful
	batch.FailedRecords = batch.TotalRecords - successful
	batch.ErrorLog = encodeErrorLog(errorLog)

	var stackAfter *models.UndoRedoStack
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.ImportBatch().Update(ctx, tx, batch); err != nil {
			return err
		}
		var err error
		stackAfter, err = s.stack.Push(ctx, tx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateItems(ctx, batch.DictionaryCode)
	s.publish(ctx, events.EventImportCompleted, events.ImportCompletedEvent{
		BatchID:           batch.ID,
		DictionaryCode:    batch.DictionaryCode,
		Mode:              batch.Mode,
		TotalRecords:      batch.TotalRecords,
		SuccessfulRecords: batch.SuccessfulRecords,
		FailedRecords:     batch.FailedRecords,
		PerformedBy:       batch.PerformedBy,
	})
	s.stack.NotifyChanged(ctx, stackAfter)

	s.logger.Info("import completed",
		"batch_id", batch.ID,
		"dictionary_code", batch.DictionaryCode,
		"successful_records", batch.SuccessfulRecords,
		"failed_records", batch.FailedRecords)
	return batch, nil
}

func (s *importService) finalizeFailed(ctx context.Context, batch *models.ImportBatch, errorLog []string, successful int) (*models.ImportBatch, error) {
	batch.Status = models.ImportBatchFailed
	batch.SuccessfulRecords = successful
	batch.FailedRecords = batch.TotalRecords - successful
	batch.ErrorLog = encodeErrorLog(errorLog)

	if err := s.repo.ImportBatch().Update(ctx, nil, batch); err != nil {
		return nil, err
	}

	if successful > 0 {
		s.invalidateItems(ctx, batch.DictionaryCode)
	}
	s.publish(ctx, events.EventImportFailed, events.ImportFailedEvent{
		BatchID:        batch.ID,
		DictionaryCode: batch.DictionaryCode,
		Mode:           batch.Mode,
		TotalRecords:   batch.TotalRecords,
		FailedRecords:  batch.FailedRecords,
		PerformedBy:    batch.PerformedBy,
	})

	s.logger.Warn("import failed",
		"batch_id", batch.ID,
		"dictionary_code", batch.DictionaryCode,
		"failed_records", batch.FailedRecords)
	return batch, nil
}

// ===== UNDO =====

func (s *importService) Undo(ctx context.Context, batchID uint, performedBy string) (*UndoResult, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, batch.DictionaryCode)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, ErrDictionaryBusy
		}
		return nil, err
	}
	defer release()

	if batch.Status != models.ImportBatchCompleted {
		return nil, fmt.Errorf("%w: batch %d is %s, undo requires completed", ErrInvalidState, batchID, batch.Status)
	}
	stack, err := s.repo.UndoStack().Get(ctx, nil, batch.DictionaryCode)
	if err != nil {
		return nil, err
	}
	if stack.UndoTopID == nil || *stack.UndoTopID != batchID {
		return nil, fmt.Errorf("%w: a more recent batch must be undone first", ErrNotTopOfStack)
	}

	entries, err := s.repo.ChangeJournal().GetByBatch(ctx, nil, batchID)
	if err != nil {
		return nil, err
	}

	result := &UndoResult{BatchID: batchID, DictionaryCode: batch.DictionaryCode}

	// Reverse sequence order: later rows are reverted first.
	for i := len(entries) - 1; i >= 0; i-- {
		conflict, err := s.revertEntry(ctx, &entries[i])
		if err != nil {
			s.invalidateItems(ctx, batch.DictionaryCode)
			return nil, fmt.Errorf("undo aborted at entry %d: %w", entries[i].SequenceNo, err)
		}
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, *conflict)
			continue
		}
		result.EntriesReverted++
	}

	s.invalidateItems(ctx, batch.DictionaryCode)

	if len(result.Conflicts) > 0 {
		// Conflicted entries were skipped; the batch stays completed and
		// the stack pointers stay put until the operator resolves them.
		s.logger.Warn("undo finished with conflicts",
			"batch_id", batchID,
			"reverted", result.EntriesReverted,
			"conflicts", len(result.Conflicts))
		return result, nil
	}

	now := time.Now()
	var stackAfter *models.UndoRedoStack
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		batch.Status = models.ImportBatchRolledBack
		batch.RolledBackAt = &now
		batch.RolledBackBy = &performedBy
		if err := s.repo.ImportBatch().Update(ctx, tx, batch); err != nil {
			return err
		}
		var err error
		stackAfter, err = s.stack.MarkUndone(ctx, tx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.RolledBack = true
	s.publish(ctx, events.EventImportRolledBack, events.ImportRolledBackEvent{
		BatchID:         batchID,
		DictionaryCode:  batch.DictionaryCode,
		EntriesReverted: result.EntriesReverted,
		RolledBackBy:    performedBy,
	})
	s.stack.NotifyChanged(ctx, stackAfter)

	s.logger.Info("import rolled back",
		"batch_id", batchID,
		"dictionary_code", batch.DictionaryCode,
		"entries_reverted", result.EntriesReverted,
		"performed_by", performedBy)
	return result, nil
}

// revertEntry undoes one journal entry. A version mismatch means an
// unrelated edit landed after the import; the entry is skipped and reported,
// never overwritten. Entries already sitting at their target state (left
// there by an earlier partially-conflicted pass) count as reverted, so a
// retry after resolving conflicts can finish the rollback.
func (s *importService) revertEntry(ctx context.Context, entry *models.ChangeJournalEntry) (*EntryConflict, error) {
	after, err := decodeSnapshot(entry.AfterState)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.DictionaryItem().GetByID(ctx, nil, entry.ItemID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			if entry.Operation == models.JournalOpCreated {
				// The target state for a created entry is absence.
				return nil, nil
			}
			return s.conflict(entry, after.Code, "item no longer exists"), nil
		}
		return nil, err
	}
	if current.Version != after.Version {
		if entry.Operation == models.JournalOpUpdated {
			before, derr := decodeSnapshot(entry.BeforeState)
			if derr != nil {
				return nil, derr
			}
			if itemStateEqual(current, before) {
				return nil, nil
			}
		}
		return s.conflict(entry, after.Code,
			fmt.Sprintf("item modified after import (version %d, expected %d)", current.Version, after.Version)), nil
	}

	switch entry.Operation {
	case models.JournalOpCreated:
		err = s.repo.DictionaryItem().DeleteChecked(ctx, nil, entry.ItemID, after.Version)
	case models.JournalOpUpdated:
		before, derr := decodeSnapshot(entry.BeforeState)
		if derr != nil {
			return nil, derr
		}
		restored := *before
		err = s.repo.DictionaryItem().UpdateChecked(ctx, nil, &restored, after.Version)
	default:
		return nil, fmt.Errorf("unknown journal operation %q", entry.Operation)
	}

	if err != nil {
		if repositories.IsConflictError(err) {
			return s.conflict(entry, after.Code, "item modified concurrently"), nil
		}
		return nil, err
	}
	return nil, nil
}

// ===== REDO =====

func (s *importService) Redo(ctx context.Context, batchID uint, performedBy string) (*RedoResult, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, batch.DictionaryCode)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, ErrDictionaryBusy
		}
		return nil, err
	}
	defer release()

	if batch.Status != models.ImportBatchRolledBack {
		return nil, fmt.Errorf("%w: batch %d is %s, redo requires rolled_back", ErrInvalidState, batchID, batch.Status)
	}
	stack, err := s.repo.UndoStack().Get(ctx, nil, batch.DictionaryCode)
	if err != nil {
		return nil, err
	}
	if stack.RedoTopID == nil || *stack.RedoTopID != batchID {
		return nil, fmt.Errorf("%w: the batch was superseded by a newer import", ErrNotTopOfStack)
	}

	entries, err := s.repo.ChangeJournal().GetByBatch(ctx, nil, batchID)
	if err != nil {
		return nil, err
	}

	result := &RedoResult{BatchID: batchID, DictionaryCode: batch.DictionaryCode}

	// Forward sequence order, the same order the import originally used.
	for i := range entries {
		conflict, err := s.reapplyEntry(ctx, &entries[i])
		if err != nil {
			s.invalidateItems(ctx, batch.DictionaryCode)
			return nil, fmt.Errorf("redo aborted at entry %d: %w", entries[i].SequenceNo, err)
		}
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, *conflict)
			continue
		}
		result.EntriesApplied++
	}

	s.invalidateItems(ctx, batch.DictionaryCode)

	if len(result.Conflicts) > 0 {
		s.logger.Warn("redo finished with conflicts",
			"batch_id", batchID,
			"applied", result.EntriesApplied,
			"conflicts", len(result.Conflicts))
		return result, nil
	}

	var stackAfter *models.UndoRedoStack
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		batch.Status = models.ImportBatchCompleted
		batch.RolledBackAt = nil
		batch.RolledBackBy = nil
		if err := s.repo.ImportBatch().Update(ctx, tx, batch); err != nil {
			return err
		}
		var err error
		stackAfter, err = s.stack.MarkRedone(ctx, tx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.Redone = true
	s.publish(ctx, events.EventImportRedone, events.ImportRedoneEvent{
		BatchID:        batchID,
		DictionaryCode: batch.DictionaryCode,
		EntriesApplied: result.EntriesApplied,
		RedoneBy:       performedBy,
	})
	s.stack.NotifyChanged(ctx, stackAfter)

	s.logger.Info("import redone",
		"batch_id", batchID,
		"dictionary_code", batch.DictionaryCode,
		"entries_applied", result.EntriesApplied,
		"performed_by", performedBy)
	return result, nil
}

// reapplyEntry re-applies one journal entry's afterState, expecting to find
// the exact state the undo left behind. Entries already at their afterState
// (applied by an earlier partially-conflicted pass) count as applied, so a
// retry after resolving conflicts can finish the redo.
func (s *importService) reapplyEntry(ctx context.Context, entry *models.ChangeJournalEntry) (*EntryConflict, error) {
	after, err := decodeSnapshot(entry.AfterState)
	if err != nil {
		return nil, err
	}

	switch entry.Operation {
	case models.JournalOpCreated:
		// Undo deleted the item, so it must be absent, and its code free.
		existing, err := s.repo.DictionaryItem().GetByID(ctx, nil, entry.ItemID)
		if err == nil {
			if itemStateEqual(existing, after) {
				return nil, nil
			}
			return s.conflict(entry, after.Code, "item already exists"), nil
		}
		if !repositories.IsNotFoundError(err) {
			return nil, err
		}
		if _, err := s.repo.DictionaryItem().GetByCode(ctx, nil, after.DictionaryCode, after.Code); err == nil {
			return s.conflict(entry, after.Code, "code was taken by another item"), nil
		} else if !repositories.IsNotFoundError(err) {
			return nil, err
		}

		item := *after
		if err := s.repo.DictionaryItem().Create(ctx, nil, &item); err != nil {
			return nil, err
		}
		return nil, nil

	case models.JournalOpUpdated:
		before, err := decodeSnapshot(entry.BeforeState)
		if err != nil {
			return nil, err
		}

		current, err := s.repo.DictionaryItem().GetByID(ctx, nil, entry.ItemID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return s.conflict(entry, after.Code, "item no longer exists"), nil
			}
			return nil, err
		}
		if current.Version != before.Version {
			if itemStateEqual(current, after) {
				return nil, nil
			}
			return s.conflict(entry, after.Code,
				fmt.Sprintf("item modified after undo (version %d, expected %d)", current.Version, before.Version)), nil
		}

		restored := *after
		if err := s.repo.DictionaryItem().UpdateChecked(ctx, nil, &restored, before.Version); err != nil {
			if repositories.IsConflictError(err) {
				return s.conflict(entry, after.Code, "item modified concurrently"), nil
			}
			return nil, err
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown journal operation %q", entry.Operation)
	}
}

// ===== HISTORY / MAINTENANCE =====

func (s *importService) History(ctx context.Context, dictionaryCode string, filters repositories.BatchFilters) ([]*models.ImportBatch, int64, error) {
	return s.repo.ImportBatch().ListByDictionary(ctx, nil, dictionaryCode, filters)
}

func (s *importService) GetBatch(ctx context.Context, batchID uint) (*models.ImportBatch, error) {
	return s.getBatch(ctx, batchID)
}

func (s *importService) DeleteBatch(ctx context.Context, batchID uint) error {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return err
	}

	stack, err := s.repo.UndoStack().Get(ctx, nil, batch.DictionaryCode)
	if err != nil {
		return err
	}
	if (stack.UndoTopID != nil && *stack.UndoTopID == batchID) ||
		(stack.RedoTopID != nil && *stack.RedoTopID == batchID) {
		return ErrBatchProtected
	}

	// Journal entries go with the batch via the FK cascade.
	if err := s.repo.ImportBatch().Delete(ctx, nil, batchID); err != nil {
		return err
	}

	s.logger.Info("import batch deleted", "batch_id", batchID, "dictionary_code", batch.DictionaryCode)
	return nil
}

func (s *importService) Capabilities(ctx context.Context, batchID uint) (*models.StackCapabilities, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return s.stack.Capabilities(ctx, batch)
}

// ===== HELPERS =====

func (s *importService) getBatch(ctx context.Context, batchID uint) (*models.ImportBatch, error) {
	batch, err := s.repo.ImportBatch().GetByID(ctx, nil, batchID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return batch, nil
}

func (s *importService) conflict(entry *models.ChangeJournalEntry, code, reason string) *EntryConflict {
	return &EntryConflict{
		SequenceNo: entry.SequenceNo,
		ItemID:     entry.ItemID,
		ItemCode:   code,
		Reason:     reason,
	}
}

func (s *importService) invalidateItems(ctx context.Context, dictionaryCode string) {
	if err := s.cache.DeletePattern(ctx, cache.ItemListPattern(dictionaryCode)); err != nil {
		s.logger.Warn("failed to invalidate item cache", "dictionary_code", dictionaryCode, "error", err)
	}
}

func (s *importService) publish(ctx context.Context, eventType events.EventType, data interface{}) {
	event := events.NewDictionaryEvent(eventType, data)
	if err := s.publisher.PublishDictionaryEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", eventType, "error", err)
	}
}

// applyRowToItem writes the row's fields onto the item. Optional attributes
// only overwrite when the row provides them.
func applyRowToItem(item *models.DictionaryItem, row *models.ImportRow) {
	item.Name = row.Name
	item.NameEn = row.NameEn
	item.NameRu = row.NameRu
	item.NameUz = row.NameUz
	if row.Icon != nil {
		item.Icon = row.Icon
	}
	if row.Color != nil {
		item.Color = row.Color
	}
	if row.Symbol != nil {
		item.Symbol = row.Symbol
	}
	if row.SortOrder != nil {
		item.SortOrder = *row.SortOrder
	}
	if row.IsActive != nil {
		item.IsActive = *row.IsActive
	}
}

// itemStateEqual compares the versioned content of two items, everything a
// journal snapshot captures except timestamps.
func itemStateEqual(a, b *models.DictionaryItem) bool {
	return a.Code == b.Code &&
		a.Name == b.Name &&
		a.NameEn == b.NameEn &&
		a.NameRu == b.NameRu &&
		a.NameUz == b.NameUz &&
		strPtrEqual(a.Icon, b.Icon) &&
		strPtrEqual(a.Color, b.Color) &&
		strPtrEqual(a.Symbol, b.Symbol) &&
		a.SortOrder == b.SortOrder &&
		a.IsActive == b.IsActive &&
		a.Version == b.Version
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func snapshotItem(item *models.DictionaryItem) (datatypes.JSON, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot item %d: %w", item.ID, err)
	}
	return datatypes.JSON(data), nil
}

func decodeSnapshot(snapshot datatypes.JSON) (*models.DictionaryItem, error) {
	var item models.DictionaryItem
	if err := json.Unmarshal(snapshot, &item); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &item, nil
}

func encodeErrorLog(lines []string) datatypes.JSON {
	if lines == nil {
		lines = []string{}
	}
	data, _ := json.Marshal(lines)
	return datatypes.JSON(data)
}

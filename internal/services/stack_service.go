package services

import (
	"context"

	"github.com/agroplatform/dictionary-service/internal/events"
	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"gorm.io/gorm"
)

// StackService maintains the per-dictionary (undoTop, redoTop) pointer pair
// and tells observers when it changes. The pair is persisted, one row per
// dictionary, so every server instance sees the same stack.
//
// Push/MarkUndone/MarkRedone must run inside the caller's transaction,
// under the dictionary lock. They also re-check the ordering invariants
// themselves.
type StackService interface {
	Push(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) (*models.UndoRedoStack, error)
	MarkUndone(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) (*models.UndoRedoStack, error)
	MarkRedone(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) (*models.UndoRedoStack, error)

	Get(ctx context.Context, dictionaryCode string) (*models.UndoRedoStack, error)
	Capabilities(ctx context.Context, batch *models.ImportBatch) (*models.StackCapabilities, error)

	// NotifyChanged publishes the stack-changed observer event. Callers
	// invoke it after their transaction commits.
	NotifyChanged(ctx context.Context, stack *models.UndoRedoStack)
}

type stackService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    utils.Logger
}

func NewStackService(repo repositories.Repository, publisher events.EventPublisher, logger utils.Logger) StackService {
	return &stackService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Push makes the batch the new undo top and clears any redo history.
func (s *stackService) Push(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) (*models.UndoRedoStack, error) {
	stack, err := s.repo.UndoStack().GetForUpdate(ctx, tx, batch.DictionaryCode)
	if err != nil {
		return nil, err
	}

	stack.UndoTopID = &batch.ID
	stack.RedoTopID = nil

	if err := s.repo.UndoStack().Save(ctx, tx, stack); err != nil {
		return nil, err
	}
	return stack, nil
}

// MarkUndone regresses the undo pointer to the next-older completed batch and
// exposes the undone batch for redo.
func (s *stackService) MarkUndone(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) (*models.UndoRedoStack, error) {
	stack, err := s.repo.UndoStack().GetForUpdate(ctx, tx, batch.DictionaryCode)
	if err != nil {
		return nil, err
	}
	if stack.UndoTopID == nil || *stack.UndoTopID != batch.ID {
		return nil, ErrNotTopOfStack
	}

	prev, err := s.repo.ImportBatch().GetPreviousCompleted(ctx, tx, batch.DictionaryCode, batch.ID)
	switch {
	case err == nil:
		stack.UndoTopID = &prev.ID
	case repositories.IsNotFoundError(err):
		stack.UndoTopID = nil
	default:
		return nil, err
	}
	stack.RedoTopID = &batch.ID

	if err := s.repo.UndoStack().Save(ctx, tx, stack); err != nil {
		return nil, err
	}
	return stack, nil
}

// MarkRedone is the inverse of MarkUndone.
func (s *stackService) MarkRedone(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) (*models.UndoRedoStack, error) {
	stack, err := s.repo.UndoStack().GetForUpdate(ctx, tx, batch.DictionaryCode)
	if err != nil {
		return nil, err
	}
	if stack.RedoTopID == nil || *stack.RedoTopID != batch.ID {
		return nil, ErrNotTopOfStack
	}

	stack.UndoTopID = &batch.ID
	stack.RedoTopID = nil

	if err := s.repo.UndoStack().Save(ctx, tx, stack); err != nil {
		return nil, err
	}
	return stack, nil
}

func (s *stackService) Get(ctx context.Context, dictionaryCode string) (*models.UndoRedoStack, error) {
	return s.repo.UndoStack().Get(ctx, nil, dictionaryCode)
}

// Capabilities is a pure function of the current stack pointers compared
// against the batch.
func (s *stackService) Capabilities(ctx context.Context, batch *models.ImportBatch) (*models.StackCapabilities, error) {
	stack, err := s.repo.UndoStack().Get(ctx, nil, batch.DictionaryCode)
	if err != nil {
		return nil, err
	}

	return &models.StackCapabilities{
		CanUndo: batch.Status == models.ImportBatchCompleted &&
			stack.UndoTopID != nil && *stack.UndoTopID == batch.ID,
		CanRedo: batch.Status == models.ImportBatchRolledBack &&
			stack.RedoTopID != nil && *stack.RedoTopID == batch.ID,
	}, nil
}

func (s *stackService) NotifyChanged(ctx context.Context, stack *models.UndoRedoStack) {
	event := events.NewDictionaryEvent(events.EventStackChanged, events.StackChangedEvent{
		DictionaryCode: stack.DictionaryCode,
		UndoTopID:      stack.UndoTopID,
		RedoTopID:      stack.RedoTopID,
	})
	if err := s.publisher.PublishDictionaryEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish stack change", "dictionary_code", stack.DictionaryCode, "error", err)
	}
}

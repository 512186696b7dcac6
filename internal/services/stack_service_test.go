package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/agroplatform/dictionary-service/internal/events"
	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStackTestEnv(t *testing.T) (*fakeRepo, *events.MockEventPublisher, StackService) {
	t.Helper()
	repo := newFakeRepo()
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	publisher := events.NewMockEventPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return repo, publisher, NewStackService(repo, publisher, logger)
}

func seedBatch(t *testing.T, repo *fakeRepo, code string, status models.ImportBatchStatus) *models.ImportBatch {
	t.Helper()
	batch := &models.ImportBatch{DictionaryCode: code, Mode: models.ImportModeCreate, Status: status}
	require.NoError(t, repo.ImportBatch().Create(context.Background(), nil, batch))
	return batch
}

func TestStackService_PushClearsRedoHistory(t *testing.T) {
	repo, _, stack := newStackTestEnv(t)
	ctx := context.Background()

	first := seedBatch(t, repo, "unit", models.ImportBatchRolledBack)
	second := seedBatch(t, repo, "unit", models.ImportBatchCompleted)

	require.NoError(t, repo.UndoStack().Save(ctx, nil, &models.UndoRedoStack{
		DictionaryCode: "unit",
		RedoTopID:      &first.ID,
	}))

	after, err := stack.Push(ctx, nil, second)
	require.NoError(t, err)

	require.NotNil(t, after.UndoTopID)
	assert.Equal(t, second.ID, *after.UndoTopID)
	assert.Nil(t, after.RedoTopID, "a new import must invalidate stale redo history")
}

func TestStackService_MarkUndoneRegressesToPreviousCompleted(t *testing.T) {
	repo, _, stack := newStackTestEnv(t)
	ctx := context.Background()

	older := seedBatch(t, repo, "unit", models.ImportBatchCompleted)
	seedBatch(t, repo, "unit", models.ImportBatchFailed)
	top := seedBatch(t, repo, "unit", models.ImportBatchCompleted)

	_, err := stack.Push(ctx, nil, top)
	require.NoError(t, err)

	after, err := stack.MarkUndone(ctx, nil, top)
	require.NoError(t, err)

	// Failed batches are skipped when regressing the pointer.
	require.NotNil(t, after.UndoTopID)
	assert.Equal(t, older.ID, *after.UndoTopID)
	require.NotNil(t, after.RedoTopID)
	assert.Equal(t, top.ID, *after.RedoTopID)
}

func TestStackService_MarkUndoneEmptiesStack(t *testing.T) {
	repo, _, stack := newStackTestEnv(t)
	ctx := context.Background()

	only := seedBatch(t, repo, "unit", models.ImportBatchCompleted)
	_, err := stack.Push(ctx, nil, only)
	require.NoError(t, err)

	after, err := stack.MarkUndone(ctx, nil, only)
	require.NoError(t, err)
	assert.Nil(t, after.UndoTopID)
	require.NotNil(t, after.RedoTopID)
	assert.Equal(t, only.ID, *after.RedoTopID)
}

func TestStackService_MarkUndoneRejectsNonTop(t *testing.T) {
	repo, _, stack := newStackTestEnv(t)
	ctx := context.Background()

	first := seedBatch(t, repo, "unit", models.ImportBatchCompleted)
	second := seedBatch(t, repo, "unit", models.ImportBatchCompleted)

	_, err := stack.Push(ctx, nil, first)
	require.NoError(t, err)
	_, err = stack.Push(ctx, nil, second)
	require.NoError(t, err)

	_, err = stack.MarkUndone(ctx, nil, first)
	assert.ErrorIs(t, err, ErrNotTopOfStack)
}

func TestStackService_MarkRedone(t *testing.T) {
	repo, _, stack := newStackTestEnv(t)
	ctx := context.Background()

	batch := seedBatch(t, repo, "unit", models.ImportBatchCompleted)
	_, err := stack.Push(ctx, nil, batch)
	require.NoError(t, err)
	_, err = stack.MarkUndone(ctx, nil, batch)
	require.NoError(t, err)

	after, err := stack.MarkRedone(ctx, nil, batch)
	require.NoError(t, err)
	require.NotNil(t, after.UndoTopID)
	assert.Equal(t, batch.ID, *after.UndoTopID)
	assert.Nil(t, after.RedoTopID)

	// A second redo of the same batch has nothing to re-apply.
	_, err = stack.MarkRedone(ctx, nil, batch)
	assert.ErrorIs(t, err, ErrNotTopOfStack)
}

func TestStackService_GetUnknownDictionary(t *testing.T) {
	_, _, stack := newStackTestEnv(t)

	got, err := stack.Get(context.Background(), "never_imported")
	require.NoError(t, err)
	assert.Equal(t, "never_imported", got.DictionaryCode)
	assert.Nil(t, got.UndoTopID)
	assert.Nil(t, got.RedoTopID)
}

func TestStackService_NotifyChangedPublishes(t *testing.T) {
	_, publisher, stack := newStackTestEnv(t)

	id := uint(7)
	stack.NotifyChanged(context.Background(), &models.UndoRedoStack{
		DictionaryCode: "unit",
		UndoTopID:      &id,
	})

	published := publisher.GetPublishedEvents()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventStackChanged, published[0].Type)

	data, ok := published[0].Data.(events.StackChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "unit", data.DictionaryCode)
	require.NotNil(t, data.UndoTopID)
	assert.Equal(t, id, *data.UndoTopID)
}

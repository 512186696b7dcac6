package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/agroplatform/dictionary-service/internal/events"
	"github.com/agroplatform/dictionary-service/internal/lock"
	"github.com/agroplatform/dictionary-service/internal/models"
	"github.com/agroplatform/dictionary-service/internal/repositories"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/agroplatform/dictionary-service/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ===== IN-MEMORY REPOSITORY =====

type fakeState struct {
	dictionaries map[string]models.Dictionary
	items        map[uint]models.DictionaryItem
	batches      map[uint]models.ImportBatch
	journal      []models.ChangeJournalEntry
	stacks       map[string]models.UndoRedoStack
	nextItemID   uint
	nextBatchID  uint
}

func newFakeState() *fakeState {
	return &fakeState{
		dictionaries: make(map[string]models.Dictionary),
		items:        make(map[uint]models.DictionaryItem),
		batches:      make(map[uint]models.ImportBatch),
		stacks:       make(map[string]models.UndoRedoStack),
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	for k, v := range s.dictionaries {
		c.dictionaries[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.stacks {
		c.stacks[k] = v
	}
	c.journal = append(c.journal, s.journal...)
	c.nextItemID = s.nextItemID
	c.nextBatchID = s.nextBatchID
	return c
}

// fakeRepo implements repositories.Repository with copy-on-rollback
// transaction semantics, close enough to exercise the abort paths.
type fakeRepo struct {
	state *fakeState

	// failItemCode makes item creation fail for this code, simulating a
	// storage fault mid-batch.
	failItemCode string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{state: newFakeState()}
}

func (f *fakeRepo) Dictionary() repositories.DictionaryRepository { return &fakeDictionaries{f} }

func (f *fakeRepo) DictionaryItem() repositories.DictionaryItemRepository { return &fakeItems{f} }

func (f *fakeRepo) ImportBatch() repositories.ImportBatchRepository { return &fakeBatches{f} }

func (f *fakeRepo) ChangeJournal() repositories.ChangeJournalRepository { return &fakeJournal{f} }

func (f *fakeRepo) UndoStack() repositories.UndoStackRepository { return &fakeStacks{f} }

func (f *fakeRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	snapshot := f.state.clone()
	if err := fn(nil); err != nil {
		f.state = snapshot
		return err
	}
	return nil
}

type fakeDictionaries struct{ repo *fakeRepo }

func (r *fakeDictionaries) Create(ctx context.Context, tx *gorm.DB, d *models.Dictionary) error {
	r.repo.state.dictionaries[d.Code] = *d
	return nil
}

func (r *fakeDictionaries) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Dictionary, error) {
	if d, ok := r.repo.state.dictionaries[code]; ok {
		return &d, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeDictionaries) List(ctx context.Context, tx *gorm.DB) ([]*models.Dictionary, error) {
	var out []*models.Dictionary
	for _, d := range r.repo.state.dictionaries {
		d := d
		out = append(out, &d)
	}
	return out, nil
}

type fakeItems struct{ repo *fakeRepo }

func (r *fakeItems) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.DictionaryItem, error) {
	if item, ok := r.repo.state.items[id]; ok {
		return &item, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeItems) GetByCode(ctx context.Context, tx *gorm.DB, dictionaryCode, code string) (*models.DictionaryItem, error) {
	for _, item := range r.repo.state.items {
		if item.DictionaryCode == dictionaryCode && item.Code == code {
			item := item
			return &item, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeItems) List(ctx context.Context, tx *gorm.DB, dictionaryCode string, filters repositories.ItemFilters) ([]*models.DictionaryItem, int64, error) {
	var out []*models.DictionaryItem
	for _, item := range r.repo.state.items {
		if item.DictionaryCode == dictionaryCode {
			item := item
			out = append(out, &item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeItems) Create(ctx context.Context, tx *gorm.DB, item *models.DictionaryItem) error {
	if r.repo.failItemCode != "" && item.Code == r.repo.failItemCode {
		return errors.New("connection reset by peer")
	}
	for _, existing := range r.repo.state.items {
		if existing.DictionaryCode == item.DictionaryCode && existing.Code == item.Code {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	if item.ID == 0 {
		r.repo.state.nextItemID++
		item.ID = r.repo.state.nextItemID
	} else if item.ID > r.repo.state.nextItemID {
		r.repo.state.nextItemID = item.ID
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	r.repo.state.items[item.ID] = *item
	return nil
}

func (r *fakeItems) UpdateChecked(ctx context.Context, tx *gorm.DB, item *models.DictionaryItem, expectedVersion int64) error {
	existing, ok := r.repo.state.items[item.ID]
	if !ok || existing.Version != expectedVersion {
		return repositories.NewConflictError(item.ID, expectedVersion)
	}
	updated := *item
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	r.repo.state.items[item.ID] = updated
	return nil
}

func (r *fakeItems) DeleteChecked(ctx context.Context, tx *gorm.DB, id uint, expectedVersion int64) error {
	existing, ok := r.repo.state.items[id]
	if !ok || existing.Version != expectedVersion {
		return repositories.NewConflictError(id, expectedVersion)
	}
	delete(r.repo.state.items, id)
	return nil
}

type fakeBatches struct{ repo *fakeRepo }

func (r *fakeBatches) Create(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) error {
	r.repo.state.nextBatchID++
	batch.ID = r.repo.state.nextBatchID
	batch.CreatedAt = time.Now()
	batch.UpdatedAt = time.Now()
	r.repo.state.batches[batch.ID] = *batch
	return nil
}

func (r *fakeBatches) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ImportBatch, error) {
	if batch, ok := r.repo.state.batches[id]; ok {
		return &batch, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeBatches) GetByIDWithEntries(ctx context.Context, tx *gorm.DB, id uint) (*models.ImportBatch, error) {
	batch, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	entries, _ := (&fakeJournal{r.repo}).GetByBatch(ctx, tx, id)
	batch.Entries = entries
	return batch, nil
}

func (r *fakeBatches) Update(ctx context.Context, tx *gorm.DB, batch *models.ImportBatch) error {
	if _, ok := r.repo.state.batches[batch.ID]; !ok {
		return repositories.ErrNotFound
	}
	batch.UpdatedAt = time.Now()
	r.repo.state.batches[batch.ID] = *batch
	return nil
}

func (r *fakeBatches) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if _, ok := r.repo.state.batches[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.repo.state.batches, id)
	var kept []models.ChangeJournalEntry
	for _, e := range r.repo.state.journal {
		if e.BatchID != id {
			kept = append(kept, e)
		}
	}
	r.repo.state.journal = kept
	return nil
}

func (r *fakeBatches) ListByDictionary(ctx context.Context, tx *gorm.DB, dictionaryCode string, filters repositories.BatchFilters) ([]*models.ImportBatch, int64, error) {
	var out []*models.ImportBatch
	for _, batch := range r.repo.state.batches {
		if batch.DictionaryCode != dictionaryCode {
			continue
		}
		if filters.Status != nil && batch.Status != *filters.Status {
			continue
		}
		batch := batch
		out = append(out, &batch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeBatches) GetPreviousCompleted(ctx context.Context, tx *gorm.DB, dictionaryCode string, beforeID uint) (*models.ImportBatch, error) {
	var best *models.ImportBatch
	for _, batch := range r.repo.state.batches {
		if batch.DictionaryCode != dictionaryCode || batch.ID >= beforeID || batch.Status != models.ImportBatchCompleted {
			continue
		}
		if best == nil || batch.ID > best.ID {
			batch := batch
			best = &batch
		}
	}
	if best == nil {
		return nil, repositories.ErrNotFound
	}
	return best, nil
}

type fakeJournal struct{ repo *fakeRepo }

func (r *fakeJournal) AppendAll(ctx context.Context, tx *gorm.DB, entries []models.ChangeJournalEntry) error {
	r.repo.state.journal = append(r.repo.state.journal, entries...)
	return nil
}

func (r *fakeJournal) GetByBatch(ctx context.Context, tx *gorm.DB, batchID uint) ([]models.ChangeJournalEntry, error) {
	var out []models.ChangeJournalEntry
	for _, e := range r.repo.state.journal {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNo < out[j].SequenceNo })
	return out, nil
}

type fakeStacks struct{ repo *fakeRepo }

func (r *fakeStacks) Get(ctx context.Context, tx *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error) {
	if stack, ok := r.repo.state.stacks[dictionaryCode]; ok {
		return &stack, nil
	}
	return &models.UndoRedoStack{DictionaryCode: dictionaryCode}, nil
}

func (r *fakeStacks) GetForUpdate(ctx context.Context, tx *gorm.DB, dictionaryCode string) (*models.UndoRedoStack, error) {
	return r.Get(ctx, tx, dictionaryCode)
}

func (r *fakeStacks) Save(ctx context.Context, tx *gorm.DB, stack *models.UndoRedoStack) error {
	stack.UpdatedAt = time.Now()
	r.repo.state.stacks[stack.DictionaryCode] = *stack
	return nil
}

// ===== TEST FIXTURE =====

type noopCache struct{}

func (noopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
func (noopCache) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("cache miss")
}
func (noopCache) Delete(ctx context.Context, key string) error { return nil }

func (noopCache) DeletePattern(ctx context.Context, pattern string) error { return nil }

type heldLocker struct{}

func (heldLocker) Acquire(ctx context.Context, dictionaryCode string) (func(), error) {
	return nil, lock.ErrLockHeld
}

type importTestEnv struct {
	repo      *fakeRepo
	publisher *events.MockEventPublisher
	stack     StackService
	svc       ImportService
}

const testDictionary = "machine_type"

func newImportTestEnv(t *testing.T) *importTestEnv {
	t.Helper()

	repo := newFakeRepo()
	repo.state.dictionaries[testDictionary] = models.Dictionary{
		Code: testDictionary,
		Name: "Machine types",
	}

	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	publisher := events.NewMockEventPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stack := NewStackService(repo, publisher, logger)
	svc := NewImportService(repo, stack, validator.New(), lock.NoopLocker{}, noopCache{}, publisher, logger)

	return &importTestEnv{
		repo:      repo,
		publisher: publisher,
		stack:     stack,
		svc:       svc,
	}
}

func importRow(code, name string) models.ImportRow {
	return models.ImportRow{Code: code, Name: name}
}

func (env *importTestEnv) runImport(t *testing.T, mode models.ImportMode, skipErrors bool, rows ...models.ImportRow) *models.ImportBatch {
	t.Helper()
	batch, err := env.svc.Execute(context.Background(), &ImportRequest{
		DictionaryCode: testDictionary,
		Mode:           mode,
		Rows:           rows,
		SkipErrors:     skipErrors,
		PerformedBy:    "agronomist",
	})
	require.NoError(t, err)
	return batch
}

func errorLogLines(t *testing.T, batch *models.ImportBatch) []string {
	t.Helper()
	var lines []string
	require.NoError(t, json.Unmarshal(batch.ErrorLog, &lines))
	return lines
}

func (env *importTestEnv) eventTypes() []events.EventType {
	var types []events.EventType
	for _, e := range env.publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	return types
}

// ===== EXECUTE =====

func TestImportService_Execute_CreateMode(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	batch := env.runImport(t, models.ImportModeCreate, false,
		importRow("harvester", "Harvester"),
		importRow("tractor", "Tractor"),
		importRow("seeder", "Seeder"))

	assert.Equal(t, models.ImportBatchCompleted, batch.Status)
	assert.Equal(t, 3, batch.TotalRecords)
	assert.Equal(t, 3, batch.SuccessfulRecords)
	assert.Equal(t, 0, batch.FailedRecords)
	assert.Empty(t, errorLogLines(t, batch))

	items, total, err := env.repo.DictionaryItem().List(ctx, nil, testDictionary, repositories.ItemFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for _, item := range items {
		assert.Equal(t, int64(1), item.Version)
		assert.True(t, item.IsActive)
	}

	entries, err := env.repo.ChangeJournal().GetByBatch(ctx, nil, batch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.SequenceNo)
		assert.Equal(t, models.JournalOpCreated, entry.Operation)
		assert.Nil(t, entry.BeforeState)
		assert.NotNil(t, entry.AfterState)
	}

	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.Equal(t, batch.ID, *stack.UndoTopID)
	assert.Nil(t, stack.RedoTopID)

	assert.Contains(t, env.eventTypes(), events.EventImportCompleted)
	assert.Contains(t, env.eventTypes(), events.EventStackChanged)
}

func TestImportService_Execute_StrictModeAbortsWholeBatch(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	env.publisher.ClearEvents()

	batch := env.runImport(t, models.ImportModeCreate, false,
		importRow("harvester", "Harvester"),
		importRow("tractor", "Tractor"), // already exists
		importRow("seeder", "Seeder"))

	assert.Equal(t, models.ImportBatchFailed, batch.Status)
	assert.Equal(t, 0, batch.SuccessfulRecords)
	assert.Equal(t, 3, batch.FailedRecords)
	assert.Equal(t, []string{"Row 2: CodeAlreadyExists(tractor)"}, errorLogLines(t, batch))

	// Row 1 was rolled back together with everything else.
	_, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "harvester")
	assert.True(t, repositories.IsNotFoundError(err))

	entries, err := env.repo.ChangeJournal().GetByBatch(ctx, nil, batch.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A failed batch never reaches the stack.
	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.NotEqual(t, batch.ID, *stack.UndoTopID)

	assert.Contains(t, env.eventTypes(), events.EventImportFailed)
	assert.NotContains(t, env.eventTypes(), events.EventImportCompleted)
}

func TestImportService_Execute_SkipErrorsRetainsGoodRows(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))

	batch := env.runImport(t, models.ImportModeCreate, true,
		importRow("harvester", "Harvester"),
		importRow("tractor", "Tractor"), // skipped
		importRow("seeder", "Seeder"))

	assert.Equal(t, models.ImportBatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.SuccessfulRecords)
	assert.Equal(t, 1, batch.FailedRecords)
	assert.Equal(t, []string{"Row 2: CodeAlreadyExists(tractor)"}, errorLogLines(t, batch))

	_, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "harvester")
	assert.NoError(t, err)
	_, err = env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "seeder")
	assert.NoError(t, err)

	// Only successful rows are journaled, renumbered densely.
	entries, err := env.repo.ChangeJournal().GetByBatch(ctx, nil, batch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].SequenceNo)
	assert.Equal(t, 2, entries[1].SequenceNo)
}

func TestImportService_Execute_UpdateMode(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))

	batch := env.runImport(t, models.ImportModeUpdate, true,
		importRow("tractor", "Wheeled tractor"),
		importRow("ghost", "Ghost")) // unknown code

	assert.Equal(t, models.ImportBatchCompleted, batch.Status)
	assert.Equal(t, 1, batch.SuccessfulRecords)
	assert.Equal(t, []string{"Row 2: CodeNotFound(ghost)"}, errorLogLines(t, batch))

	item, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	assert.Equal(t, "Wheeled tractor", item.Name)
	assert.Equal(t, int64(2), item.Version)

	entries, err := env.repo.ChangeJournal().GetByBatch(ctx, nil, batch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.JournalOpUpdated, entries[0].Operation)

	var before models.DictionaryItem
	require.NoError(t, json.Unmarshal(entries[0].BeforeState, &before))
	assert.Equal(t, "Tractor", before.Name)
	assert.Equal(t, int64(1), before.Version)
}

func TestImportService_Execute_UpsertMode(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))

	batch := env.runImport(t, models.ImportModeUpsert, false,
		importRow("tractor", "Wheeled tractor"),
		importRow("seeder", "Seeder"))

	assert.Equal(t, models.ImportBatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.SuccessfulRecords)

	entries, err := env.repo.ChangeJournal().GetByBatch(ctx, nil, batch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.JournalOpUpdated, entries[0].Operation)
	assert.Equal(t, models.JournalOpCreated, entries[1].Operation)
}

func TestImportService_Execute_StructuralValidation(t *testing.T) {
	env := newImportTestEnv(t)

	t.Run("strict mode fails the whole batch", func(t *testing.T) {
		batch := env.runImport(t, models.ImportModeCreate, false,
			importRow("harvester", "Harvester"),
			importRow("", "Nameless"))

		assert.Equal(t, models.ImportBatchFailed, batch.Status)
		assert.Equal(t, 0, batch.SuccessfulRecords)
		lines := errorLogLines(t, batch)
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "Row 2: InvalidRow")
	})

	t.Run("duplicate code within upload", func(t *testing.T) {
		batch := env.runImport(t, models.ImportModeCreate, true,
			importRow("plow", "Plow"),
			importRow("plow", "Plow again"))

		assert.Equal(t, models.ImportBatchCompleted, batch.Status)
		assert.Equal(t, 1, batch.SuccessfulRecords)
		assert.Equal(t, 1, batch.FailedRecords)
	})
}

func TestImportService_Execute_SkipErrorsStorageFault(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()
	env.repo.failItemCode = "seeder"

	_, err := env.svc.Execute(ctx, &ImportRequest{
		DictionaryCode: testDictionary,
		Mode:           models.ImportModeCreate,
		Rows: []models.ImportRow{
			importRow("harvester", "Harvester"),
			importRow("seeder", "Seeder"),
			importRow("plow", "Plow"),
		},
		SkipErrors:  true,
		PerformedBy: "agronomist",
	})
	require.Error(t, err)

	// Rows committed before the fault are retained; the batch is failed.
	_, getErr := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "harvester")
	assert.NoError(t, getErr)
	_, getErr = env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "plow")
	assert.True(t, repositories.IsNotFoundError(getErr))

	batches, _, err := env.repo.ImportBatch().ListByDictionary(ctx, nil, testDictionary, repositories.BatchFilters{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, models.ImportBatchFailed, batches[0].Status)
	assert.Equal(t, 1, batches[0].SuccessfulRecords)
	assert.Equal(t, 2, batches[0].FailedRecords)
}

func TestImportService_Execute_Preconditions(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	t.Run("empty rows", func(t *testing.T) {
		_, err := env.svc.Execute(ctx, &ImportRequest{
			DictionaryCode: testDictionary,
			Mode:           models.ImportModeCreate,
		})
		assert.ErrorIs(t, err, ErrEmptyImport)
	})

	t.Run("unknown dictionary", func(t *testing.T) {
		_, err := env.svc.Execute(ctx, &ImportRequest{
			DictionaryCode: "no_such_dictionary",
			Mode:           models.ImportModeCreate,
			Rows:           []models.ImportRow{importRow("a", "A")},
		})
		assert.ErrorIs(t, err, ErrDictionaryNotFound)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := env.svc.Execute(ctx, &ImportRequest{
			DictionaryCode: testDictionary,
			Mode:           models.ImportMode("merge"),
			Rows:           []models.ImportRow{importRow("a", "A")},
		})
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("dictionary busy", func(t *testing.T) {
		logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
		busy := NewImportService(env.repo, env.stack, validator.New(), heldLocker{}, noopCache{}, env.publisher, logger)
		_, err := busy.Execute(ctx, &ImportRequest{
			DictionaryCode: testDictionary,
			Mode:           models.ImportModeCreate,
			Rows:           []models.ImportRow{importRow("a", "A")},
		})
		assert.ErrorIs(t, err, ErrDictionaryBusy)
	})
}

// ===== UNDO =====

func TestImportService_Undo_RevertsCreates(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	batch := env.runImport(t, models.ImportModeCreate, false,
		importRow("harvester", "Harvester"),
		importRow("tractor", "Tractor"))
	env.publisher.ClearEvents()

	result, err := env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	assert.True(t, result.RolledBack)
	assert.Equal(t, 2, result.EntriesReverted)
	assert.Empty(t, result.Conflicts)

	_, total, err := env.repo.DictionaryItem().List(ctx, nil, testDictionary, repositories.ItemFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	after, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportBatchRolledBack, after.Status)
	require.NotNil(t, after.RolledBackBy)
	assert.Equal(t, "supervisor", *after.RolledBackBy)
	assert.NotNil(t, after.RolledBackAt)

	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	assert.Nil(t, stack.UndoTopID)
	require.NotNil(t, stack.RedoTopID)
	assert.Equal(t, batch.ID, *stack.RedoTopID)

	assert.Contains(t, env.eventTypes(), events.EventImportRolledBack)
}

func TestImportService_Undo_RestoresUpdatedState(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	update := env.runImport(t, models.ImportModeUpdate, false, importRow("tractor", "Wheeled tractor"))

	_, err := env.svc.Undo(ctx, update.ID, "supervisor")
	require.NoError(t, err)

	item, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	assert.Equal(t, "Tractor", item.Name)
	assert.Equal(t, int64(1), item.Version)

	// The undo pointer regressed to the older completed batch.
	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.NotEqual(t, update.ID, *stack.UndoTopID)
}

func TestImportService_Undo_ConflictKeepsBatchAndPointers(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	batch := env.runImport(t, models.ImportModeCreate, false,
		importRow("harvester", "Harvester"),
		importRow("tractor", "Tractor"))

	// Someone edits the tractor after the import.
	tractor, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	edited := *tractor
	edited.Name = "Crawler tractor"
	edited.Version = tractor.Version + 1
	require.NoError(t, env.repo.DictionaryItem().UpdateChecked(ctx, nil, &edited, tractor.Version))

	result, err := env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	assert.False(t, result.RolledBack)
	assert.Equal(t, 1, result.EntriesReverted)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "tractor", result.Conflicts[0].ItemCode)

	// The clean entry was reverted, the conflicted one kept.
	_, err = env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "harvester")
	assert.True(t, repositories.IsNotFoundError(err))
	kept, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	assert.Equal(t, "Crawler tractor", kept.Name)

	// Status and pointers did not move.
	after, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportBatchCompleted, after.Status)

	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.Equal(t, batch.ID, *stack.UndoTopID)
	assert.Nil(t, stack.RedoTopID)
}

func TestImportService_Undo_RetryAfterConflictResolved(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	seed := env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	batch := env.runImport(t, models.ImportModeUpsert, false,
		importRow("tractor", "Wheeled tractor"),
		importRow("seeder", "Seeder"))

	// Someone edits the tractor after the import.
	tractor, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	edited := *tractor
	edited.Name = "Crawler tractor"
	edited.Version = tractor.Version + 1
	require.NoError(t, env.repo.DictionaryItem().UpdateChecked(ctx, nil, &edited, tractor.Version))

	first, err := env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)
	assert.False(t, first.RolledBack)
	assert.Equal(t, 1, first.EntriesReverted)
	require.Len(t, first.Conflicts, 1)

	// The operator puts the tractor back to the state the import left it in.
	restored := *tractor
	require.NoError(t, env.repo.DictionaryItem().UpdateChecked(ctx, nil, &restored, edited.Version))

	retry, err := env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	// The seeder entry was already reverted by the first pass and must not
	// block the retry.
	assert.True(t, retry.RolledBack)
	assert.Equal(t, 2, retry.EntriesReverted)
	assert.Empty(t, retry.Conflicts)

	item, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	assert.Equal(t, "Tractor", item.Name)
	assert.Equal(t, int64(1), item.Version)
	_, err = env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "seeder")
	assert.True(t, repositories.IsNotFoundError(err))

	after, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportBatchRolledBack, after.Status)

	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.Equal(t, seed.ID, *stack.UndoTopID)
	require.NotNil(t, stack.RedoTopID)
	assert.Equal(t, batch.ID, *stack.RedoTopID)
}

func TestImportService_Undo_Preconditions(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	first := env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	second := env.runImport(t, models.ImportModeCreate, false, importRow("seeder", "Seeder"))

	t.Run("unknown batch", func(t *testing.T) {
		_, err := env.svc.Undo(ctx, 9999, "supervisor")
		assert.ErrorIs(t, err, ErrBatchNotFound)
	})

	t.Run("not top of stack", func(t *testing.T) {
		_, err := env.svc.Undo(ctx, first.ID, "supervisor")
		assert.ErrorIs(t, err, ErrNotTopOfStack)
	})

	t.Run("wrong status", func(t *testing.T) {
		_, err := env.svc.Undo(ctx, second.ID, "supervisor")
		require.NoError(t, err)
		_, err = env.svc.Undo(ctx, second.ID, "supervisor")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

// ===== REDO =====

func TestImportService_Redo_ReappliesBatch(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	batch := env.runImport(t, models.ImportModeCreate, false,
		importRow("harvester", "Harvester"),
		importRow("tractor", "Tractor"))

	originalTractor, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)

	_, err = env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)
	env.publisher.ClearEvents()

	result, err := env.svc.Redo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	assert.True(t, result.Redone)
	assert.Equal(t, 2, result.EntriesApplied)
	assert.Empty(t, result.Conflicts)

	// Items come back under their original identity.
	tractor, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	assert.Equal(t, originalTractor.ID, tractor.ID)
	assert.Equal(t, originalTractor.Version, tractor.Version)

	after, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportBatchCompleted, after.Status)
	assert.Nil(t, after.RolledBackAt)
	assert.Nil(t, after.RolledBackBy)

	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.Equal(t, batch.ID, *stack.UndoTopID)
	assert.Nil(t, stack.RedoTopID)

	assert.Contains(t, env.eventTypes(), events.EventImportRedone)
}

func TestImportService_Redo_ConflictOnTakenCode(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	batch := env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	_, err := env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	// The code is taken by an unrelated item before the redo.
	require.NoError(t, env.repo.DictionaryItem().Create(ctx, nil, &models.DictionaryItem{
		DictionaryCode: testDictionary,
		Code:           "tractor",
		Name:           "Different tractor",
		Version:        1,
	}))

	result, err := env.svc.Redo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	assert.False(t, result.Redone)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "tractor", result.Conflicts[0].ItemCode)

	after, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportBatchRolledBack, after.Status)
}

func TestImportService_Redo_RetryAfterConflictResolved(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	batch := env.runImport(t, models.ImportModeUpsert, false,
		importRow("seeder", "Seeder"),
		importRow("tractor", "Wheeled tractor"))

	_, err := env.svc.Undo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	// An edit between undo and redo blocks the tractor entry.
	tractor, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	edited := *tractor
	edited.Name = "Crawler tractor"
	edited.Version = tractor.Version + 1
	require.NoError(t, env.repo.DictionaryItem().UpdateChecked(ctx, nil, &edited, tractor.Version))

	first, err := env.svc.Redo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)
	assert.False(t, first.Redone)
	assert.Equal(t, 1, first.EntriesApplied)
	require.Len(t, first.Conflicts, 1)
	assert.Equal(t, "tractor", first.Conflicts[0].ItemCode)

	// The operator restores the tractor to its pre-import state.
	restored := *tractor
	require.NoError(t, env.repo.DictionaryItem().UpdateChecked(ctx, nil, &restored, edited.Version))

	retry, err := env.svc.Redo(ctx, batch.ID, "supervisor")
	require.NoError(t, err)

	// The seeder entry was already re-created by the first pass and must
	// not block the retry.
	assert.True(t, retry.Redone)
	assert.Equal(t, 2, retry.EntriesApplied)
	assert.Empty(t, retry.Conflicts)

	item, err := env.repo.DictionaryItem().GetByCode(ctx, nil, testDictionary, "tractor")
	require.NoError(t, err)
	assert.Equal(t, "Wheeled tractor", item.Name)
	assert.Equal(t, int64(2), item.Version)

	after, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportBatchCompleted, after.Status)

	stack, err := env.stack.Get(ctx, testDictionary)
	require.NoError(t, err)
	require.NotNil(t, stack.UndoTopID)
	assert.Equal(t, batch.ID, *stack.UndoTopID)
	assert.Nil(t, stack.RedoTopID)
}

func TestImportService_Redo_InvalidatedByNewImport(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	first := env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	_, err := env.svc.Undo(ctx, first.ID, "supervisor")
	require.NoError(t, err)

	// A fresh import wipes the redo history.
	env.runImport(t, models.ImportModeCreate, false, importRow("seeder", "Seeder"))

	_, err = env.svc.Redo(ctx, first.ID, "supervisor")
	assert.ErrorIs(t, err, ErrNotTopOfStack)
}

// ===== MAINTENANCE =====

func TestImportService_DeleteBatch(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	first := env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	second := env.runImport(t, models.ImportModeCreate, false, importRow("seeder", "Seeder"))

	t.Run("protected while on the stack", func(t *testing.T) {
		err := env.svc.DeleteBatch(ctx, second.ID)
		assert.ErrorIs(t, err, ErrBatchProtected)
	})

	t.Run("deletable once off the stack", func(t *testing.T) {
		require.NoError(t, env.svc.DeleteBatch(ctx, first.ID))
		_, err := env.svc.GetBatch(ctx, first.ID)
		assert.ErrorIs(t, err, ErrBatchNotFound)

		entries, err := env.repo.ChangeJournal().GetByBatch(ctx, nil, first.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestImportService_Capabilities(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	first := env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	second := env.runImport(t, models.ImportModeCreate, false, importRow("seeder", "Seeder"))

	caps, err := env.svc.Capabilities(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanUndo)
	assert.False(t, caps.CanRedo)

	caps, err = env.svc.Capabilities(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, caps.CanUndo)
	assert.False(t, caps.CanRedo)

	_, err = env.svc.Undo(ctx, second.ID, "supervisor")
	require.NoError(t, err)

	caps, err = env.svc.Capabilities(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, caps.CanUndo)
	assert.True(t, caps.CanRedo)

	caps, err = env.svc.Capabilities(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanUndo)
}

func TestImportService_History(t *testing.T) {
	env := newImportTestEnv(t)
	ctx := context.Background()

	env.runImport(t, models.ImportModeCreate, false, importRow("tractor", "Tractor"))
	env.runImport(t, models.ImportModeCreate, false, importRow("seeder", "Seeder"))

	batches, total, err := env.svc.History(ctx, testDictionary, repositories.BatchFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, batches, 2)
	// Most recent first.
	assert.Greater(t, batches[0].ID, batches[1].ID)

	completed := models.ImportBatchCompleted
	batches, _, err = env.svc.History(ctx, testDictionary, repositories.BatchFilters{Status: &completed})
	require.NoError(t, err)
	assert.Len(t, batches, 2)
}

package intake

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeReader struct {
	rows     [][]string
	fromRow  int64
	err      error
	readCall int
}

func (r *fakeReader) ReadRows(_ context.Context, _, _ string, fromRow int64) ([][]string, error) {
	r.readCall++
	r.fromRow = fromRow
	if r.err != nil {
		return nil, r.err
	}
	return r.rows, nil
}

type enqueuedItem struct {
	registrationID uuid.UUID
	kind           enums.DispatchKind
}

type fakeEnqueuer struct {
	items []enqueuedItem
	err   error
}

func (e *fakeEnqueuer) EnqueueTx(_ context.Context, _ *gorm.DB, registrationID uuid.UUID, kind enums.DispatchKind, _ *time.Time) error {
	if e.err != nil {
		return e.err
	}
	e.items = append(e.items, enqueuedItem{registrationID: registrationID, kind: kind})
	return nil
}

type fakeIntakeRepo struct {
	source         *models.SheetSource
	race           *models.Race
	distances      []models.RaceDistance
	shirts         []models.ShirtOption
	existingEmails map[string]struct{}

	created   []*models.Registration
	cursor    *int64
	createErr error
}

func (f *fakeIntakeRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeIntakeRepo) GetSource(_ context.Context, id uuid.UUID) (*models.SheetSource, error) {
	if f.source == nil || f.source.ID != id {
		return nil, nil
	}
	return f.source, nil
}

func (f *fakeIntakeRepo) ListEnabledSources(context.Context) ([]models.SheetSource, error) {
	if f.source == nil {
		return nil, nil
	}
	return []models.SheetSource{*f.source}, nil
}

func (f *fakeIntakeRepo) ListSourcesByRace(context.Context, uuid.UUID) ([]models.SheetSource, error) {
	return f.ListEnabledSources(context.Background())
}

func (f *fakeIntakeRepo) GetRace(_ context.Context, id uuid.UUID) (*models.Race, error) {
	if f.race == nil || f.race.ID != id {
		return nil, nil
	}
	return f.race, nil
}

func (f *fakeIntakeRepo) ListDistances(context.Context, uuid.UUID) ([]models.RaceDistance, error) {
	return f.distances, nil
}

func (f *fakeIntakeRepo) ListShirtOptions(context.Context, uuid.UUID) ([]models.ShirtOption, error) {
	return f.shirts, nil
}

func (f *fakeIntakeRepo) EmailExists(_ context.Context, _ uuid.UUID, email string) (bool, error) {
	_, ok := f.existingEmails[email]
	return ok, nil
}

func (f *fakeIntakeRepo) TransactionRefExists(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeIntakeRepo) CreateRegistrations(_ context.Context, registrations []*models.Registration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, registrations...)
	return nil
}

func (f *fakeIntakeRepo) AdvanceCursor(_ context.Context, _ uuid.UUID, row int64) error {
	if f.cursor == nil || *f.cursor < row {
		f.cursor = &row
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestEngine(t *testing.T, repo *fakeIntakeRepo, reader *fakeReader, enqueuer *fakeEnqueuer) *Engine {
	t.Helper()

	engine, err := NewEngine(EngineParams{
		Logger:   testLogger(),
		DB:       fakeTxRunner{},
		Repo:     repo,
		Reader:   reader,
		Enqueuer: enqueuer,
	})
	require.NoError(t, err)
	return engine
}

func newFakeRepo(sellsShirts bool) *fakeIntakeRepo {
	raceID := uuid.New()
	return &fakeIntakeRepo{
		race: &models.Race{ID: raceID, Name: "City Night Run", SellsShirts: sellsShirts},
		source: &models.SheetSource{
			ID:            uuid.New(),
			RaceID:        raceID,
			SpreadsheetID: "sheet-1",
			SheetName:     "Registrations",
			DataStartRow:  2,
		},
		distances: []models.RaceDistance{
			{ID: uuid.New(), RaceID: raceID, Name: "10K", Price: decimal.NewFromInt(25), BibPrefix: "A"},
			{ID: uuid.New(), RaceID: raceID, Name: "Half Marathon", Price: decimal.NewFromInt(40), BibPrefix: "H"},
		},
		shirts: []models.ShirtOption{
			{ID: uuid.New(), RaceID: raceID, Category: enums.ShirtCategoryMen, Type: "technical", Size: "M", Surcharge: decimal.NewFromInt(5)},
		},
		existingEmails: map[string]struct{}{},
	}
}

func TestEngineSyncFromSource_mixedBatch(t *testing.T) {
	repo := newFakeRepo(false)
	repo.existingEmails["already@example.com"] = struct{}{}

	reader := &fakeReader{rows: [][]string{
		{"Marta", "Vila", "marta@example.com", "", "", "", "10K"},
		{"Pol", "Serra", "pol@example.com", "", "", "", "21K"},
		{"Old", "Runner", "already@example.com", "", "", "", "10K"},
		{"", "", "", "", "", "", ""},
		{"Marta", "Again", "marta@example.com", "", "", "", "10K"},
	}}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	result, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `row 3: distance "21K" not found`)

	// Reader starts right after the pre-data offset.
	assert.Equal(t, int64(1), reader.fromRow)

	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.Equal(t, "marta@example.com", created.Email)
	assert.Equal(t, int64(2), created.SourceRow)
	assert.True(t, created.AmountDue.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, enums.PaymentStatusPending, created.PaymentStatus)
	assert.NotEmpty(t, created.TransactionRef)

	// Cursor covers the whole batch, errored and skipped rows included.
	require.NotNil(t, repo.cursor)
	assert.Equal(t, int64(6), *repo.cursor)

	require.Len(t, enqueuer.items, 1)
	assert.Equal(t, created.ID, enqueuer.items[0].registrationID)
	assert.Equal(t, enums.DispatchKindRegistrationConfirm, enqueuer.items[0].kind)
}

func TestEngineSyncFromSource_shirtPricing(t *testing.T) {
	repo := newFakeRepo(true)
	reader := &fakeReader{rows: [][]string{
		{"Marta", "Vila", "marta@example.com", "", "", "", "10K", "men", "technical", "m"},
		{"Pol", "Serra", "pol@example.com", "", "", "", "10K", "men", "technical", "XXL"},
		{"Nil", "Roca", "nil@example.com", "", "", "", "Half Marathon"},
	}}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	result, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Added)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 3: shirt option men/technical/XXL not available")

	require.Len(t, repo.created, 2)
	withShirt := repo.created[0]
	assert.True(t, withShirt.AmountDue.Equal(decimal.NewFromInt(30)), "price plus surcharge, got %s", withShirt.AmountDue)
	require.NotNil(t, withShirt.ShirtSize)
	assert.Equal(t, "M", *withShirt.ShirtSize)

	noShirt := repo.created[1]
	assert.True(t, noShirt.AmountDue.Equal(decimal.NewFromInt(40)))
	assert.Nil(t, noShirt.ShirtCategory)
}

func TestEngineSyncFromSource_shirtFieldsIgnoredWhenNotSold(t *testing.T) {
	repo := newFakeRepo(false)
	reader := &fakeReader{rows: [][]string{
		{"Marta", "Vila", "marta@example.com", "", "", "", "10K", "men", "technical", "m"},
	}}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	result, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Empty(t, result.Errors)
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].AmountDue.Equal(decimal.NewFromInt(25)))
	assert.Nil(t, repo.created[0].ShirtCategory)
}

func TestEngineSyncFromSource_missingEmail(t *testing.T) {
	repo := newFakeRepo(false)
	reader := &fakeReader{rows: [][]string{
		{"Marta", "Vila", "", "", "", "", "10K"},
	}}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	result, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.NoError(t, err)

	assert.Zero(t, result.Added)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 2: email is missing")

	// The bad row is still consumed.
	require.NotNil(t, repo.cursor)
	assert.Equal(t, int64(2), *repo.cursor)
}

func TestEngineSyncFromSource_readerFailureAbortsBeforeMutation(t *testing.T) {
	repo := newFakeRepo(false)
	reader := &fakeReader{err: errors.New("sheets unavailable")}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	_, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.Error(t, err)

	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeDependency, coded.Code())

	assert.Empty(t, repo.created)
	assert.Nil(t, repo.cursor)
	assert.Empty(t, enqueuer.items)
}

func TestEngineSyncFromSource_noNewRows(t *testing.T) {
	repo := newFakeRepo(false)
	lastRow := int64(9)
	repo.source.LastRow = &lastRow

	reader := &fakeReader{}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	result, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.NoError(t, err)

	assert.Zero(t, result.Added)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(9), reader.fromRow)
	assert.Nil(t, repo.cursor)
}

func TestEngineSyncFromSource_sourceNotFound(t *testing.T) {
	repo := newFakeRepo(false)
	reader := &fakeReader{}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	_, err := engine.SyncFromSource(context.Background(), uuid.New())
	require.Error(t, err)

	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeNotFound, coded.Code())
	assert.Zero(t, reader.readCall)
}

func TestEngineSyncFromSource_commitFailureKeepsCursor(t *testing.T) {
	repo := newFakeRepo(false)
	repo.createErr = errors.New("db down")
	reader := &fakeReader{rows: [][]string{
		{"Marta", "Vila", "marta@example.com", "", "", "", "10K"},
	}}
	enqueuer := &fakeEnqueuer{}
	engine := newTestEngine(t, repo, reader, enqueuer)

	_, err := engine.SyncFromSource(context.Background(), repo.source.ID)
	require.Error(t, err)

	assert.Nil(t, repo.cursor)
	assert.Empty(t, enqueuer.items)
}

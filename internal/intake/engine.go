package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

// RowReader pulls raw rows out of the external tabular source.
type RowReader interface {
	ReadRows(ctx context.Context, spreadsheetID, sheetName string, fromRow int64) ([][]string, error)
}

// ConfirmEnqueuer stages notification work inside the intake transaction.
type ConfirmEnqueuer interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SyncResult summarizes one intake pass over a source.
type SyncResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// EngineParams configure the intake engine.
type EngineParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Repo     Repository
	Reader   RowReader
	Enqueuer ConfirmEnqueuer
	TxRefs   *TxRefGenerator
}

// Engine turns spreadsheet rows into committed registrations exactly once.
type Engine struct {
	logg     *logger.Logger
	db       txRunner
	repo     Repository
	reader   RowReader
	enqueuer ConfirmEnqueuer
	txRefs   *TxRefGenerator
}

// NewEngine wires intake dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "intake repository required")
	}
	if params.Reader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "row reader required")
	}
	if params.Enqueuer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dispatch enqueuer required")
	}
	txRefs := params.TxRefs
	if txRefs == nil {
		txRefs = NewTxRefGenerator(0)
	}
	return &Engine{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repo,
		reader:   params.Reader,
		enqueuer: params.Enqueuer,
		txRefs:   txRefs,
	}, nil
}

// SyncFromSource consumes every row after the source cursor. Row-level
// failures never abort the batch; a source that cannot be reached aborts
// before any mutation so the same offset is retried later.
func (e *Engine) SyncFromSource(ctx context.Context, sourceID uuid.UUID) (*SyncResult, error) {
	source, err := e.repo.GetSource(ctx, sourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading source")
	}
	if source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "source not found")
	}

	race, err := e.repo.GetRace(ctx, source.RaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading race")
	}
	if race == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "race not found for source")
	}

	distances, err := e.repo.ListDistances(ctx, race.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading distance catalog")
	}
	distanceByName := make(map[string]models.RaceDistance, len(distances))
	for _, d := range distances {
		distanceByName[strings.ToLower(d.Name)] = d
	}

	var shirtCatalog []models.ShirtOption
	if race.SellsShirts {
		shirtCatalog, err = e.repo.ListShirtOptions(ctx, race.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading shirt catalog")
		}
	}

	offset := source.NextRowOffset()
	rows, err := e.reader.ReadRows(ctx, source.SpreadsheetID, source.SheetName, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading source rows")
	}

	ctx = e.logg.WithFields(ctx, map[string]any{
		"source_id": source.ID.String(),
		"race_id":   race.ID.String(),
		"offset":    offset,
		"rows":      len(rows),
	})

	result := &SyncResult{Errors: []string{}}
	if len(rows) == 0 {
		e.logg.Info(ctx, "source has no new rows")
		return result, nil
	}

	staged := make([]*models.Registration, 0, len(rows))
	stagedEmails := make(map[string]struct{})
	takenRefs := make(map[string]struct{})

	for i, cells := range rows {
		rowIndex := offset + int64(i) + 1
		if IsBlankRow(cells) {
			continue
		}
		candidate := ParseRow(cells, rowIndex)

		registration, skipped, rowErr := e.buildRegistration(ctx, race, candidate, distanceByName, shirtCatalog, stagedEmails, takenRefs)
		if rowErr != "" {
			result.Errors = append(result.Errors, rowErr)
			continue
		}
		if skipped {
			result.Skipped++
			continue
		}
		staged = append(staged, registration)
		stagedEmails[registration.Email] = struct{}{}
		takenRefs[registration.TransactionRef] = struct{}{}
	}

	maxRow := offset + int64(len(rows))
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := e.repo.WithTx(tx)
		if err := txRepo.CreateRegistrations(ctx, staged); err != nil {
			return fmt.Errorf("committing registrations: %w", err)
		}
		// Errored rows are consumed too; they are reported, not reprocessed.
		if err := txRepo.AdvanceCursor(ctx, source.ID, maxRow); err != nil {
			return fmt.Errorf("advancing cursor: %w", err)
		}
		for _, registration := range staged {
			if err := e.enqueuer.EnqueueTx(ctx, tx, registration.ID, enums.DispatchKindRegistrationConfirm, nil); err != nil {
				return fmt.Errorf("enqueueing confirmation for %s: %w", registration.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "committing intake batch")
	}

	result.Added = len(staged)
	ctx = e.logg.WithFields(ctx, map[string]any{
		"added":   result.Added,
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
		"cursor":  maxRow,
	})
	e.logg.Info(ctx, "intake pass complete")
	return result, nil
}

func (e *Engine) buildRegistration(
	ctx context.Context,
	race *models.Race,
	candidate Candidate,
	distanceByName map[string]models.RaceDistance,
	shirtCatalog []models.ShirtOption,
	stagedEmails map[string]struct{},
	takenRefs map[string]struct{},
) (*models.Registration, bool, string) {
	if candidate.Email == "" {
		return nil, false, fmt.Sprintf("row %d: email is missing", candidate.RowIndex)
	}

	distance, ok := distanceByName[strings.ToLower(candidate.DistanceName)]
	if !ok {
		return nil, false, fmt.Sprintf("row %d: distance %q not found", candidate.RowIndex, candidate.DistanceName)
	}

	if _, dup := stagedEmails[candidate.Email]; dup {
		return nil, true, ""
	}
	exists, err := e.repo.EmailExists(ctx, race.ID, candidate.Email)
	if err != nil {
		return nil, false, fmt.Sprintf("row %d: dedup check failed: %v", candidate.RowIndex, err)
	}
	if exists {
		return nil, true, ""
	}

	surcharge := decimal.Zero
	if race.SellsShirts && candidate.HasShirtRequest() {
		option, found := matchShirtOption(shirtCatalog, candidate)
		if !found {
			return nil, false, fmt.Sprintf(
				"row %d: shirt option %s/%s/%s not available",
				candidate.RowIndex,
				deref(candidate.ShirtCategory), deref(candidate.ShirtType), deref(candidate.ShirtSize),
			)
		}
		surcharge = option.Surcharge
	}

	ref, err := e.txRefs.Generate(ctx, e.repo.TransactionRefExists, takenRefs)
	if err != nil {
		return nil, false, fmt.Sprintf("row %d: %v", candidate.RowIndex, err)
	}

	registration := &models.Registration{
		ID:             uuid.New(),
		RaceID:         race.ID,
		DistanceID:     distance.ID,
		Email:          candidate.Email,
		FirstName:      candidate.FirstName,
		LastName:       candidate.LastName,
		Gender:         candidate.Gender,
		BirthDate:      candidate.BirthDate,
		Phone:          candidate.Phone,
		TransactionRef: ref,
		AmountDue:      distance.Price.Add(surcharge),
		PaymentStatus:  enums.PaymentStatusPending,
		SourceRow:      candidate.RowIndex,
	}
	if race.SellsShirts && candidate.HasShirtRequest() {
		registration.ShirtCategory = candidate.ShirtCategory
		registration.ShirtType = candidate.ShirtType
		registration.ShirtSize = candidate.ShirtSize
	}
	return registration, false, ""
}

func matchShirtOption(catalog []models.ShirtOption, candidate Candidate) (models.ShirtOption, bool) {
	category := strings.ToLower(deref(candidate.ShirtCategory))
	shirtType := strings.ToLower(deref(candidate.ShirtType))
	size := strings.ToLower(deref(candidate.ShirtSize))
	for _, option := range catalog {
		if strings.ToLower(string(option.Category)) == category &&
			strings.ToLower(option.Type) == shirtType &&
			strings.ToLower(option.Size) == size {
			return option, true
		}
	}
	return models.ShirtOption{}, false
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

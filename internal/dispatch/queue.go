package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

// QueueStatus is the operational snapshot the status endpoint serves.
type QueueStatus struct {
	Counts      map[enums.DispatchStatus]int64 `json:"counts"`
	EligibleNow int64                          `json:"eligible_now"`
}

// QueueParams configure the dispatch queue service.
type QueueParams struct {
	Logger *logger.Logger
	Repo   Repository
	Config config.DispatchConfig
}

// Queue admits and cancels notification work. At most one active item may
// exist per (registration, kind); the partial unique index backs that up.
type Queue struct {
	logg       *logger.Logger
	repo       Repository
	maxRetries int
	now        func() time.Time
}

// NewQueue wires the queue service.
func NewQueue(params QueueParams) (*Queue, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dispatch repository required")
	}
	maxRetries := params.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Queue{
		logg:       params.Logger,
		repo:       params.Repo,
		maxRetries: maxRetries,
		now:        time.Now,
	}, nil
}

// EnqueueTx stages an item inside the caller's transaction. A duplicate active
// item makes this a no-op so callers composing larger transactions never roll
// back over an already-queued notification.
func (q *Queue) EnqueueTx(ctx context.Context, tx *gorm.DB, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) error {
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid dispatch kind %q", kind))
	}

	item := q.newItem(registrationID, kind, scheduledAt)
	inserted, err := q.repo.WithTx(tx).CreateIfAbsent(ctx, item)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating dispatch item")
	}
	if !inserted {
		q.logg.Info(q.logg.WithRegistrationID(ctx, registrationID.String()), "dispatch item already active, skipping enqueue")
	}
	return nil
}

// Enqueue admits a standalone item. A duplicate active item is a no-op: the
// existing item is returned so repeated triggers never produce a second
// notification.
func (q *Queue) Enqueue(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) (*models.DispatchItem, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid dispatch kind %q", kind))
	}

	registration, err := q.repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading registration")
	}
	if registration == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "registration not found")
	}

	// Two passes cover the window where the blocking item goes terminal
	// between the failed insert and the lookup.
	for attempt := 0; attempt < 2; attempt++ {
		item := q.newItem(registrationID, kind, scheduledAt)
		inserted, err := q.repo.CreateIfAbsent(ctx, item)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating dispatch item")
		}
		if inserted {
			ctx = q.logg.WithFields(ctx, map[string]any{
				"registration_id": registrationID.String(),
				"kind":            string(kind),
				"priority":        int(item.Priority),
			})
			q.logg.Info(ctx, "dispatch item enqueued")
			return item, nil
		}

		existing, err := q.repo.GetActiveItem(ctx, registrationID, kind)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading active dispatch item")
		}
		if existing != nil {
			q.logg.Info(q.logg.WithRegistrationID(ctx, registrationID.String()), "dispatch item already active, returning existing")
			return existing, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "could not enqueue dispatch item")
}

// Cancel withdraws the pending item for (registration, kind). Items already
// processing or terminal are left alone.
func (q *Queue) Cancel(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) error {
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid dispatch kind %q", kind))
	}

	cancelled, err := q.repo.CancelPending(ctx, registrationID, kind)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancelling dispatch item")
	}
	if cancelled == 0 {
		active, err := q.repo.HasActiveItem(ctx, registrationID, kind)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking active dispatch item")
		}
		if active {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispatch item is already processing")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "no pending dispatch item for this registration and kind")
	}

	q.logg.Info(q.logg.WithRegistrationID(ctx, registrationID.String()), "dispatch item cancelled")
	return nil
}

// CancelItem withdraws a pending item by its id.
func (q *Queue) CancelItem(ctx context.Context, itemID uuid.UUID) error {
	item, err := q.repo.GetItem(ctx, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading dispatch item")
	}
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "dispatch item not found")
	}
	return q.Cancel(ctx, item.RegistrationID, item.Kind)
}

// GetQueueStatus reports item counts by status plus how many are sendable now.
func (q *Queue) GetQueueStatus(ctx context.Context) (*QueueStatus, error) {
	counts, err := q.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting dispatch items")
	}
	eligible, err := q.repo.CountEligible(ctx, q.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting eligible dispatch items")
	}
	return &QueueStatus{Counts: counts, EligibleNow: eligible}, nil
}

func (q *Queue) newItem(registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) *models.DispatchItem {
	return &models.DispatchItem{
		ID:             uuid.New(),
		RegistrationID: registrationID,
		Kind:           kind,
		Priority:       enums.PriorityForKind(kind),
		Status:         enums.DispatchStatusPending,
		ScheduledAt:    scheduledAt,
		MaxRetries:     q.maxRetries,
	}
}

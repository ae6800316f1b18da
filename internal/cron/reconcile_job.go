package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

const reconcileBatchSize = 500

type missingItemLister interface {
	ListRegistrationsWithoutItem(ctx context.Context, kind enums.DispatchKind, limit int) ([]models.Registration, error)
}

type confirmEnqueuer interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) error
}

// ReconcileJobParams configure the confirmation backfill job.
type ReconcileJobParams struct {
	Logger   *logger.Logger
	Repo     missingItemLister
	Enqueuer confirmEnqueuer
	Schedule string
}

// NewReconcileJob builds the job that backfills confirmation items for
// registrations that somehow never got one.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("dispatch repository required")
	}
	if params.Enqueuer == nil {
		return nil, fmt.Errorf("dispatch enqueuer required")
	}
	if params.Schedule == "" {
		return nil, fmt.Errorf("schedule required")
	}
	return &reconcileJob{
		logg:     params.Logger,
		repo:     params.Repo,
		enqueuer: params.Enqueuer,
		schedule: params.Schedule,
	}, nil
}

type reconcileJob struct {
	logg     *logger.Logger
	repo     missingItemLister
	enqueuer confirmEnqueuer
	schedule string
}

func (j *reconcileJob) Name() string     { return "dispatch-reconcile" }
func (j *reconcileJob) Schedule() string { return j.schedule }

func (j *reconcileJob) Run(ctx context.Context) error {
	registrations, err := j.repo.ListRegistrationsWithoutItem(ctx, enums.DispatchKindRegistrationConfirm, reconcileBatchSize)
	if err != nil {
		return fmt.Errorf("listing registrations without confirmation: %w", err)
	}

	var errs error
	backfilled := 0
	for _, registration := range registrations {
		if err := j.enqueuer.EnqueueTx(ctx, nil, registration.ID, enums.DispatchKindRegistrationConfirm, nil); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("registration %s: %w", registration.ID, err))
			continue
		}
		backfilled++
	}

	if backfilled > 0 {
		j.logg.Info(j.logg.WithField(ctx, "backfilled", backfilled), "confirmation items backfilled")
	}
	return errs
}

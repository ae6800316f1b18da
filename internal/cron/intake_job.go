package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/marcvilanova/raceday-backend/internal/intake"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type sourceSyncer interface {
	SyncFromSource(ctx context.Context, sourceID uuid.UUID) (*intake.SyncResult, error)
}

type sourceLister interface {
	ListEnabledSources(ctx context.Context) ([]models.SheetSource, error)
}

// IntakeJobParams configure the registration intake job.
type IntakeJobParams struct {
	Logger        *logger.Logger
	Syncer        sourceSyncer
	Sources       sourceLister
	Schedule      string
	SourceTimeout time.Duration
}

// NewIntakeJob builds the job that pulls fresh rows from every enabled source.
func NewIntakeJob(params IntakeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("intake syncer required")
	}
	if params.Sources == nil {
		return nil, fmt.Errorf("source lister required")
	}
	if params.Schedule == "" {
		return nil, fmt.Errorf("schedule required")
	}
	timeout := params.SourceTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &intakeJob{
		logg:     params.Logger,
		syncer:   params.Syncer,
		sources:  params.Sources,
		schedule: params.Schedule,
		timeout:  timeout,
	}, nil
}

type intakeJob struct {
	logg     *logger.Logger
	syncer   sourceSyncer
	sources  sourceLister
	schedule string
	timeout  time.Duration
}

func (j *intakeJob) Name() string     { return "intake-sync" }
func (j *intakeJob) Schedule() string { return j.schedule }

// Run syncs each enabled source in turn. One broken source never blocks the
// others; its error joins the combined result.
func (j *intakeJob) Run(ctx context.Context) error {
	sources, err := j.sources.ListEnabledSources(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled sources: %w", err)
	}

	var errs error
	for _, source := range sources {
		sourceCtx := j.logg.WithSourceID(ctx, source.ID.String())
		syncCtx, cancel := context.WithTimeout(sourceCtx, j.timeout)
		result, err := j.syncer.SyncFromSource(syncCtx, source.ID)
		cancel()
		if err != nil {
			j.logg.Error(sourceCtx, "source sync failed", err)
			errs = multierr.Append(errs, fmt.Errorf("source %s: %w", source.ID, err))
			continue
		}
		sourceCtx = j.logg.WithFields(sourceCtx, map[string]any{
			"added":   result.Added,
			"skipped": result.Skipped,
			"errors":  len(result.Errors),
		})
		j.logg.Info(sourceCtx, "source sync complete")
	}
	return errs
}

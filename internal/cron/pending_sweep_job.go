package cron

import (
	"context"
	"fmt"

	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type pendingSweeper interface {
	RunPendingSweep(ctx context.Context) (*dispatch.SweepResult, error)
}

// PendingSweepJobParams configure the dispatch send job.
type PendingSweepJobParams struct {
	Logger   *logger.Logger
	Sweeper  pendingSweeper
	Schedule string
}

// NewPendingSweepJob builds the job that drains eligible dispatch items.
func NewPendingSweepJob(params PendingSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	if params.Schedule == "" {
		return nil, fmt.Errorf("schedule required")
	}
	return &pendingSweepJob{logg: params.Logger, sweeper: params.Sweeper, schedule: params.Schedule}, nil
}

type pendingSweepJob struct {
	logg     *logger.Logger
	sweeper  pendingSweeper
	schedule string
}

func (j *pendingSweepJob) Name() string     { return "dispatch-pending-sweep" }
func (j *pendingSweepJob) Schedule() string { return j.schedule }

func (j *pendingSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.RunPendingSweep(ctx)
	if result != nil {
		ctx = j.logg.WithFields(ctx, map[string]any{
			"sent":    result.Sent,
			"retried": result.Retried,
			"failed":  result.Failed,
		})
		j.logg.Info(ctx, "pending sweep job finished")
	}
	return err
}

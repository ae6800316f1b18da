package cron

import (
	"context"
	"fmt"

	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type failedRetrier interface {
	RunFailedRetrySweep(ctx context.Context) (*dispatch.MaintenanceResult, error)
}

// FailedRetryJobParams configure the failed-item requeue job.
type FailedRetryJobParams struct {
	Logger   *logger.Logger
	Sweeper  failedRetrier
	Schedule string
}

// NewFailedRetryJob builds the job that requeues failed items and releases
// stuck claims.
func NewFailedRetryJob(params FailedRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	if params.Schedule == "" {
		return nil, fmt.Errorf("schedule required")
	}
	return &failedRetryJob{logg: params.Logger, sweeper: params.Sweeper, schedule: params.Schedule}, nil
}

type failedRetryJob struct {
	logg     *logger.Logger
	sweeper  failedRetrier
	schedule string
}

func (j *failedRetryJob) Name() string     { return "dispatch-failed-retry" }
func (j *failedRetryJob) Schedule() string { return j.schedule }

func (j *failedRetryJob) Run(ctx context.Context) error {
	_, err := j.sweeper.RunFailedRetrySweep(ctx)
	return err
}

package cron

import (
	"context"
	"fmt"

	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type sentPurger interface {
	PurgeSent(ctx context.Context) (int64, error)
}

// PurgeJobParams configure the sent-item retention job.
type PurgeJobParams struct {
	Logger   *logger.Logger
	Sweeper  sentPurger
	Schedule string
}

// NewPurgeJob builds the job that deletes sent items past retention.
func NewPurgeJob(params PurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	if params.Schedule == "" {
		return nil, fmt.Errorf("schedule required")
	}
	return &purgeJob{logg: params.Logger, sweeper: params.Sweeper, schedule: params.Schedule}, nil
}

type purgeJob struct {
	logg     *logger.Logger
	sweeper  sentPurger
	schedule string
}

func (j *purgeJob) Name() string     { return "dispatch-purge" }
func (j *purgeJob) Schedule() string { return j.schedule }

func (j *purgeJob) Run(ctx context.Context) error {
	_, err := j.sweeper.PurgeSent(ctx)
	return err
}

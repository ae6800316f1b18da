package cron

import (
	"context"
	"fmt"

	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type scheduledPromoter interface {
	PromoteScheduled(ctx context.Context) (int64, error)
}

// PromotionJobParams configure the scheduled-item promotion job.
type PromotionJobParams struct {
	Logger   *logger.Logger
	Sweeper  scheduledPromoter
	Schedule string
}

// NewPromotionJob builds the job that promotes due scheduled items.
func NewPromotionJob(params PromotionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	if params.Schedule == "" {
		return nil, fmt.Errorf("schedule required")
	}
	return &promotionJob{logg: params.Logger, sweeper: params.Sweeper, schedule: params.Schedule}, nil
}

type promotionJob struct {
	logg     *logger.Logger
	sweeper  scheduledPromoter
	schedule string
}

func (j *promotionJob) Name() string     { return "dispatch-promotion" }
func (j *promotionJob) Schedule() string { return j.schedule }

func (j *promotionJob) Run(ctx context.Context) error {
	_, err := j.sweeper.PromoteScheduled(ctx)
	return err
}

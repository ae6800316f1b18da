package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
	"github.com/marcvilanova/raceday-backend/pkg/metrics"
)

// SweepResult summarizes one pending sweep.
type SweepResult struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// MaintenanceResult summarizes a failed-retry or promotion pass.
type MaintenanceResult struct {
	Requeued int64 `json:"requeued"`
	Released int64 `json:"released"`
}

// SweeperParams configure the dispatch sweeper.
type SweeperParams struct {
	Logger  *logger.Logger
	Repo    Repository
	Sender  Sender
	Metrics *metrics.DispatchMetrics
	Config  config.DispatchConfig
}

// Sweeper drains eligible dispatch items. Claims are single short updates so
// a slow transport send never holds a database transaction open.
type Sweeper struct {
	logg    *logger.Logger
	repo    Repository
	sender  Sender
	metrics *metrics.DispatchMetrics
	cfg     config.DispatchConfig
	now     func() time.Time
}

// NewSweeper wires the sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dispatch repository required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sender required")
	}
	cfg := params.Config
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 50
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 15 * time.Second
	}
	return &Sweeper{
		logg:    params.Logger,
		repo:    params.Repo,
		sender:  params.Sender,
		metrics: params.Metrics,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// RunPendingSweep claims and sends a batch of eligible items. One bad item
// never aborts the sweep; per-item errors are aggregated into the returned
// error alongside the partial result.
func (s *Sweeper) RunPendingSweep(ctx context.Context) (*SweepResult, error) {
	items, err := s.repo.ListEligible(ctx, s.now().UTC(), s.cfg.SweepBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing eligible dispatch items")
	}

	result := &SweepResult{}
	var itemErrs error
	for _, item := range items {
		if ctx.Err() != nil {
			itemErrs = multierr.Append(itemErrs, ctx.Err())
			break
		}
		if err := s.processItem(ctx, item, result); err != nil {
			itemErrs = multierr.Append(itemErrs, fmt.Errorf("item %s: %w", item.ID, err))
		}
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"eligible": len(items),
		"claimed":  result.Claimed,
		"sent":     result.Sent,
		"retried":  result.Retried,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
	})
	s.logg.Info(ctx, "pending sweep complete")
	return result, itemErrs
}

func (s *Sweeper) processItem(ctx context.Context, item models.DispatchItem, result *SweepResult) error {
	claimed, err := s.repo.Claim(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("claiming: %w", err)
	}
	if !claimed {
		// Another sweep won the claim between listing and updating.
		result.Skipped++
		return nil
	}
	result.Claimed++

	registration, err := s.repo.GetRegistration(ctx, item.RegistrationID)
	if err != nil {
		return s.recordFailure(ctx, item, result, fmt.Sprintf("loading registration: %v", err))
	}
	if registration == nil {
		return s.recordFailure(ctx, item, result, "registration not found")
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	messageID, err := s.sender.Send(sendCtx, &item, registration)
	cancel()
	if err != nil {
		return s.recordFailure(ctx, item, result, err.Error())
	}

	if err := s.repo.MarkSent(ctx, item.ID, messageID); err != nil {
		return fmt.Errorf("marking sent: %w", err)
	}
	result.Sent++
	s.metrics.IncSent(string(item.Kind))
	return nil
}

func (s *Sweeper) recordFailure(ctx context.Context, item models.DispatchItem, result *SweepResult, message string) error {
	if err := s.repo.RecordFailure(ctx, item.ID, message); err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}

	terminal := item.RetryCount+1 >= item.MaxRetries
	fields := map[string]any{
		"registration_id": item.RegistrationID.String(),
		"kind":            string(item.Kind),
		"retry_count":     item.RetryCount + 1,
		"max_retries":     item.MaxRetries,
		"error":           message,
	}
	if terminal {
		result.Failed++
		s.metrics.IncFailed(string(item.Kind))
		s.logg.Warn(s.logg.WithFields(ctx, fields), "dispatch item exhausted its retry budget")
	} else {
		result.Retried++
		s.metrics.IncRetried(string(item.Kind))
		s.logg.Warn(s.logg.WithFields(ctx, fields), "dispatch send failed, will retry")
	}
	return nil
}

// RunFailedRetrySweep requeues a batch of failed items and releases stuck
// processing claims left behind by dead workers.
func (s *Sweeper) RunFailedRetrySweep(ctx context.Context) (*MaintenanceResult, error) {
	limit := s.cfg.FailedRetryBatch
	if limit <= 0 {
		limit = 100
	}
	requeued, err := s.repo.RequeueFailed(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeueing failed dispatch items")
	}

	stuckAfter := s.cfg.StuckProcessingAfter
	if stuckAfter <= 0 {
		stuckAfter = 15 * time.Minute
	}
	released, err := s.repo.RequeueStuckProcessing(ctx, s.now().UTC().Add(-stuckAfter))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "releasing stuck dispatch items")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"requeued": requeued, "released": released})
	s.logg.Info(ctx, "failed retry sweep complete")
	return &MaintenanceResult{Requeued: requeued, Released: released}, nil
}

// PromoteScheduled clears elapsed schedules so due items are plain pending.
func (s *Sweeper) PromoteScheduled(ctx context.Context) (int64, error) {
	promoted, err := s.repo.PromoteScheduled(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promoting scheduled dispatch items")
	}
	if promoted > 0 {
		s.logg.Info(s.logg.WithField(ctx, "promoted", promoted), "scheduled dispatch items promoted")
	}
	return promoted, nil
}

// PurgeSent deletes sent items older than the retention window.
func (s *Sweeper) PurgeSent(ctx context.Context) (int64, error) {
	days := s.cfg.SentRetentionDays
	if days <= 0 {
		days = 90
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	purged, err := s.repo.PurgeSent(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purging sent dispatch items")
	}
	s.logg.Info(s.logg.WithField(ctx, "purged", purged), "sent dispatch items purged")
	return purged, nil
}

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
)

// Repository exposes persistence helpers for the dispatch queue.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.DispatchItem) error
	CreateIfAbsent(ctx context.Context, item *models.DispatchItem) (bool, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.DispatchItem, error)
	GetActiveItem(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) (*models.DispatchItem, error)
	GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListEligible(ctx context.Context, now time.Time, limit int) ([]models.DispatchItem, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, messageID string) error
	RecordFailure(ctx context.Context, id uuid.UUID, message string) error
	CancelPending(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) (int64, error)
	RequeueFailed(ctx context.Context, limit int) (int64, error)
	RequeueStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error)
	PromoteScheduled(ctx context.Context, now time.Time) (int64, error)
	PurgeSent(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[enums.DispatchStatus]int64, error)
	CountEligible(ctx context.Context, now time.Time) (int64, error)
	HasActiveItem(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) (bool, error)
	ListRegistrationsWithoutItem(ctx context.Context, kind enums.DispatchKind, limit int) ([]models.Registration, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a dispatch repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, item *models.DispatchItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// CreateIfAbsent inserts the item unless the partial unique index on active
// (registration, kind) pairs already holds a row. ON CONFLICT DO NOTHING keeps
// the surrounding transaction usable on Postgres, where a raised unique
// violation would poison it. Returns whether a row was inserted.
func (r *repositoryImpl) CreateIfAbsent(ctx context.Context, item *models.DispatchItem) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repositoryImpl) GetItem(ctx context.Context, id uuid.UUID) (*models.DispatchItem, error) {
	var item models.DispatchItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	var registration models.Registration
	if err := r.db.WithContext(ctx).First(&registration, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &registration, nil
}

// ListEligible returns pending items whose schedule has elapsed, highest
// priority first, oldest first within a priority band.
func (r *repositoryImpl) ListEligible(ctx context.Context, now time.Time, limit int) ([]models.DispatchItem, error) {
	var items []models.DispatchItem
	err := r.db.WithContext(ctx).
		Where("status = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)", enums.DispatchStatusPending, now).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// Claim flips one pending item to processing. A concurrent sweep that already
// claimed the item makes this a no-op; the caller must check the result.
func (r *repositoryImpl) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("id = ? AND status = ?", id, enums.DispatchStatusPending).
		Updates(map[string]any{"status": enums.DispatchStatusProcessing})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repositoryImpl) MarkSent(ctx context.Context, id uuid.UUID, messageID string) error {
	return r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("id = ? AND status = ?", id, enums.DispatchStatusProcessing).
		Updates(map[string]any{
			"status":     enums.DispatchStatusSent,
			"message_id": messageID,
			"last_error": nil,
		}).Error
}

// RecordFailure burns one retry. The item goes back to pending until the
// budget is exhausted, then lands on failed. The counter saturates at
// max_retries so a manually requeued item that fails again goes straight
// back to failed without breaching the retry-budget check.
func (r *repositoryImpl) RecordFailure(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("id = ? AND status = ?", id, enums.DispatchStatusProcessing).
		Updates(map[string]any{
			"retry_count": gorm.Expr("CASE WHEN retry_count + 1 > max_retries THEN max_retries ELSE retry_count + 1 END"),
			"status": gorm.Expr(
				"CASE WHEN retry_count + 1 >= max_retries THEN ? ELSE ? END",
				enums.DispatchStatusFailed, enums.DispatchStatusPending,
			),
			"last_error": message,
		}).Error
}

func (r *repositoryImpl) CancelPending(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("registration_id = ? AND kind = ? AND status = ?", registrationID, kind, enums.DispatchStatusPending).
		Updates(map[string]any{"status": enums.DispatchStatusCancelled})
	return res.RowsAffected, res.Error
}

// RequeueFailed returns up to limit failed items to pending for one escalated
// re-attempt. retry_count stays where it is: the escalation grants a single
// extra send, not a fresh automatic budget.
func (r *repositoryImpl) RequeueFailed(ctx context.Context, limit int) (int64, error) {
	sub := r.db.
		Model(&models.DispatchItem{}).
		Select("id").
		Where("status = ?", enums.DispatchStatusFailed).
		Order("updated_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("id IN (?)", sub).
		Updates(map[string]any{"status": enums.DispatchStatusPending})
	return res.RowsAffected, res.Error
}

// RequeueStuckProcessing releases claims whose worker died mid-send.
func (r *repositoryImpl) RequeueStuckProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("status = ? AND updated_at < ?", enums.DispatchStatusProcessing, cutoff).
		Updates(map[string]any{"status": enums.DispatchStatusPending})
	return res.RowsAffected, res.Error
}

// PromoteScheduled clears elapsed schedules so the items compete on priority
// and age alone.
func (r *repositoryImpl) PromoteScheduled(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", enums.DispatchStatusPending, now).
		Updates(map[string]any{"scheduled_at": nil})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) PurgeSent(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.DispatchStatusSent, cutoff).
		Delete(&models.DispatchItem{})
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) CountByStatus(ctx context.Context) (map[enums.DispatchStatus]int64, error) {
	type row struct {
		Status enums.DispatchStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.DispatchStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

func (r *repositoryImpl) CountEligible(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where("status = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)", enums.DispatchStatusPending, now).
		Count(&count).Error
	return count, err
}

// ListRegistrationsWithoutItem finds registrations that never got an item of
// the given kind. Feeds the reconcile job.
func (r *repositoryImpl) ListRegistrationsWithoutItem(ctx context.Context, kind enums.DispatchKind, limit int) ([]models.Registration, error) {
	var registrations []models.Registration
	err := r.db.WithContext(ctx).
		Where(
			"NOT EXISTS (SELECT 1 FROM dispatch_items WHERE dispatch_items.registration_id = registrations.id AND dispatch_items.kind = ?)",
			kind,
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&registrations).Error
	return registrations, err
}

func (r *repositoryImpl) GetActiveItem(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) (*models.DispatchItem, error) {
	var item models.DispatchItem
	err := r.db.WithContext(ctx).
		Where(
			"registration_id = ? AND kind = ? AND status IN (?)",
			registrationID, kind,
			[]enums.DispatchStatus{enums.DispatchStatusPending, enums.DispatchStatusProcessing},
		).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) HasActiveItem(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DispatchItem{}).
		Where(
			"registration_id = ? AND kind = ? AND status IN (?)",
			registrationID, kind,
			[]enums.DispatchStatus{enums.DispatchStatusPending, enums.DispatchStatusProcessing},
		).
		Count(&count).Error
	return count > 0, err
}

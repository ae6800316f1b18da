package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
)

// Repository exposes persistence helpers for payment confirmation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByTransactionRef(ctx context.Context, ref string) (*models.Registration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetDistance(ctx context.Context, id uuid.UUID) (*models.RaceDistance, error)
	CountAssignedBibs(ctx context.Context, distanceID uuid.UUID) (int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID, bib string, paidAt time.Time) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) GetByTransactionRef(ctx context.Context, ref string) (*models.Registration, error) {
	var registration models.Registration
	if err := r.db.WithContext(ctx).First(&registration, "transaction_ref = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &registration, nil
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	var registration models.Registration
	if err := r.db.WithContext(ctx).First(&registration, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &registration, nil
}

func (r *repositoryImpl) GetDistance(ctx context.Context, id uuid.UUID) (*models.RaceDistance, error) {
	var distance models.RaceDistance
	if err := r.db.WithContext(ctx).First(&distance, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &distance, nil
}

func (r *repositoryImpl) CountAssignedBibs(ctx context.Context, distanceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("distance_id = ? AND bib_number IS NOT NULL", distanceID).
		Count(&count).Error
	return count, err
}

// MarkPaid flips a pending registration to paid and records the BIB. Zero rows
// affected means the registration was not pending anymore.
func (r *repositoryImpl) MarkPaid(ctx context.Context, id uuid.UUID, bib string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"bib_number":     bib,
			"paid_at":        paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

package intake

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for intake.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetSource(ctx context.Context, id uuid.UUID) (*models.SheetSource, error)
	ListEnabledSources(ctx context.Context) ([]models.SheetSource, error)
	ListSourcesByRace(ctx context.Context, raceID uuid.UUID) ([]models.SheetSource, error)
	GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error)
	ListDistances(ctx context.Context, raceID uuid.UUID) ([]models.RaceDistance, error)
	ListShirtOptions(ctx context.Context, raceID uuid.UUID) ([]models.ShirtOption, error)
	EmailExists(ctx context.Context, raceID uuid.UUID, email string) (bool, error)
	TransactionRefExists(ctx context.Context, ref string) (bool, error)
	CreateRegistrations(ctx context.Context, registrations []*models.Registration) error
	AdvanceCursor(ctx context.Context, sourceID uuid.UUID, row int64) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an intake repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) GetSource(ctx context.Context, id uuid.UUID) (*models.SheetSource, error) {
	var source models.SheetSource
	if err := r.db.WithContext(ctx).First(&source, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &source, nil
}

func (r *repositoryImpl) ListEnabledSources(ctx context.Context) ([]models.SheetSource, error) {
	var sources []models.SheetSource
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("created_at ASC").
		Find(&sources).Error
	return sources, err
}

func (r *repositoryImpl) ListSourcesByRace(ctx context.Context, raceID uuid.UUID) ([]models.SheetSource, error) {
	var sources []models.SheetSource
	err := r.db.WithContext(ctx).
		Where("race_id = ? AND enabled = ?", raceID, true).
		Order("created_at ASC").
		Find(&sources).Error
	return sources, err
}

func (r *repositoryImpl) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	var race models.Race
	if err := r.db.WithContext(ctx).First(&race, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &race, nil
}

func (r *repositoryImpl) ListDistances(ctx context.Context, raceID uuid.UUID) ([]models.RaceDistance, error) {
	var distances []models.RaceDistance
	err := r.db.WithContext(ctx).
		Where("race_id = ?", raceID).
		Find(&distances).Error
	return distances, err
}

func (r *repositoryImpl) ListShirtOptions(ctx context.Context, raceID uuid.UUID) ([]models.ShirtOption, error) {
	var options []models.ShirtOption
	err := r.db.WithContext(ctx).
		Where("race_id = ?", raceID).
		Find(&options).Error
	return options, err
}

func (r *repositoryImpl) EmailExists(ctx context.Context, raceID uuid.UUID, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("race_id = ? AND email = ?", raceID, strings.ToLower(email)).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) TransactionRefExists(ctx context.Context, ref string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("transaction_ref = ?", ref).
		Count(&count).Error
	return count > 0, err
}

func (r *repositoryImpl) CreateRegistrations(ctx context.Context, registrations []*models.Registration) error {
	if len(registrations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(registrations).Error
}

// AdvanceCursor moves the high-water mark forward, never backward.
func (r *repositoryImpl) AdvanceCursor(ctx context.Context, sourceID uuid.UUID, row int64) error {
	return r.db.WithContext(ctx).
		Model(&models.SheetSource{}).
		Where("id = ? AND (last_row IS NULL OR last_row < ?)", sourceID, row).
		UpdateColumn("last_row", row).Error
}

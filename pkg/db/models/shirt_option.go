package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marcvilanova/raceday-backend/pkg/enums"
)

// ShirtOption is one sellable (category, type, size) combination for a race.
type ShirtOption struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RaceID    uuid.UUID           `gorm:"column:race_id;type:uuid;not null;index"`
	Category  enums.ShirtCategory `gorm:"column:category;type:shirt_category;not null"`
	Type      string              `gorm:"column:type;type:text;not null"`
	Size      string              `gorm:"column:size;type:text;not null"`
	Surcharge decimal.Decimal     `gorm:"column:surcharge;type:numeric(10,2);not null;default:0"`
	CreatedAt time.Time           `gorm:"column:created_at;type:timestamptz;default:now()"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RaceDistance is one entry in a race's distance catalog. Names are matched
// case-insensitively during intake; BibPrefix seeds assigned BIB numbers.
type RaceDistance struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RaceID    uuid.UUID       `gorm:"column:race_id;type:uuid;not null;index"`
	Name      string          `gorm:"column:name;type:text;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	BibPrefix string          `gorm:"column:bib_prefix;type:text;not null;default:''"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz;default:now()"`
}

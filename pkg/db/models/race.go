package models

import (
	"time"

	"github.com/google/uuid"
)

// Race is a single event edition participants register for.
type Race struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string     `gorm:"column:name;type:text;not null"`
	EventDate   *time.Time `gorm:"column:event_date;type:date"`
	SellsShirts bool       `gorm:"column:sells_shirts;not null;default:false"`
	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamptz;default:now()"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;type:timestamptz;default:now()"`

	Distances    []RaceDistance `gorm:"foreignKey:RaceID"`
	ShirtOptions []ShirtOption  `gorm:"foreignKey:RaceID"`
}

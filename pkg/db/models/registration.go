package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marcvilanova/raceday-backend/pkg/enums"
)

// Registration is a participant admitted by the intake engine. Email is stored
// lowercased; (race_id, email) is the dedup boundary and TransactionRef is
// globally unique.
type Registration struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RaceID         uuid.UUID           `gorm:"column:race_id;type:uuid;not null;uniqueIndex:ux_registrations_race_email,priority:1"`
	DistanceID     uuid.UUID           `gorm:"column:distance_id;type:uuid;not null"`
	Email          string              `gorm:"column:email;type:text;not null;uniqueIndex:ux_registrations_race_email,priority:2"`
	FirstName      string              `gorm:"column:first_name;type:text;not null"`
	LastName       string              `gorm:"column:last_name;type:text;not null"`
	Gender         *string             `gorm:"column:gender;type:text"`
	BirthDate      *time.Time          `gorm:"column:birth_date;type:date"`
	Phone          *string             `gorm:"column:phone;type:text"`
	ShirtCategory  *string             `gorm:"column:shirt_category;type:text"`
	ShirtType      *string             `gorm:"column:shirt_type;type:text"`
	ShirtSize      *string             `gorm:"column:shirt_size;type:text"`
	TransactionRef string              `gorm:"column:transaction_ref;type:text;not null;uniqueIndex:ux_registrations_transaction_ref"`
	AmountDue      decimal.Decimal     `gorm:"column:amount_due;type:numeric(10,2);not null"`
	PaymentStatus  enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	BibNumber      *string             `gorm:"column:bib_number;type:text"`
	PaidAt         *time.Time          `gorm:"column:paid_at;type:timestamptz"`
	SourceRow      int64               `gorm:"column:source_row;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;type:timestamptz;default:now()"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;type:timestamptz;default:now()"`
}

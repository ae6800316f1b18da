package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marcvilanova/raceday-backend/pkg/enums"
)

// DispatchItem is one unit of notification work. Items are retained after
// reaching a terminal state for audit; sent items are purged by retention age.
type DispatchItem struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RegistrationID uuid.UUID              `gorm:"column:registration_id;type:uuid;not null;index"`
	Kind           enums.DispatchKind     `gorm:"column:kind;type:dispatch_kind;not null"`
	Priority       enums.DispatchPriority `gorm:"column:priority;not null;default:1"`
	Status         enums.DispatchStatus   `gorm:"column:status;type:dispatch_status;not null;default:'pending'"`
	ScheduledAt    *time.Time             `gorm:"column:scheduled_at;type:timestamptz"`
	RetryCount     int                    `gorm:"column:retry_count;not null;default:0"`
	MaxRetries     int                    `gorm:"column:max_retries;not null;default:3"`
	LastError      *string                `gorm:"column:last_error;type:text"`
	MessageID      *string                `gorm:"column:message_id;type:text"`
	CreatedAt      time.Time              `gorm:"column:created_at;type:timestamptz;default:now()"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;type:timestamptz;default:now()"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// SheetSource binds a race to an external spreadsheet range and carries the
// sync cursor. LastRow never decreases; it is advanced only inside the same
// transaction that commits the rows it covers.
type SheetSource struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RaceID        uuid.UUID `gorm:"column:race_id;type:uuid;not null;index"`
	SpreadsheetID string    `gorm:"column:spreadsheet_id;type:text;not null"`
	SheetName     string    `gorm:"column:sheet_name;type:text;not null"`
	DataStartRow  int64     `gorm:"column:data_start_row;not null;default:2"`
	LastRow       *int64    `gorm:"column:last_row"`
	// No default tag: gorm omits zero-value fields that carry one, which
	// would silently turn Enabled=false into the column default.
	Enabled   bool      `gorm:"column:enabled;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;default:now()"`
}

// NextRowOffset returns the row index after which fresh rows begin.
func (s SheetSource) NextRowOffset() int64 {
	if s.LastRow != nil {
		return *s.LastRow
	}
	return s.DataStartRow - 1
}

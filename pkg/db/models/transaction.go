package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is an accounting transaction owned by the bookkeeping
// subsystem. The audit core reads these records and never writes them.
type Transaction struct {
	ID       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EntityID uuid.UUID       `gorm:"column:entity_id;type:uuid;not null;index"`
	Date     time.Time       `gorm:"column:date;not null"`
	Amount   decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Category string          `gorm:"column:category"`
	VendorID *uuid.UUID      `gorm:"column:vendor_id;type:uuid"`
}

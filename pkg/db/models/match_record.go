package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

// MatchRecord is the persisted outcome of a three-way match. It holds
// weak references to the procurement documents: the record never owns or
// mutates them. Tolerances are snapshotted at computation time so the
// record stays reproducible after policy changes.
type MatchRecord struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntityID  uuid.UUID `gorm:"column:entity_id;type:uuid;not null;index"`
	POID      uuid.UUID `gorm:"column:po_id;type:uuid;not null"`
	GRNID     uuid.UUID `gorm:"column:grn_id;type:uuid;not null"`
	InvoiceID uuid.UUID `gorm:"column:invoice_id;type:uuid;not null"`

	Status       enums.MatchStatus `gorm:"column:status;type:match_status_enum;not null;default:PENDING"`
	LineResults  json.RawMessage   `gorm:"column:line_results;type:jsonb"`
	Tolerances   json.RawMessage   `gorm:"column:tolerances;type:jsonb"`
	FraudSignals json.RawMessage   `gorm:"column:fraud_signals;type:jsonb"`

	RejectedBy      *uuid.UUID `gorm:"column:rejected_by;type:uuid"`
	RejectedAt      *time.Time `gorm:"column:rejected_at"`
	RejectionReason *string    `gorm:"column:rejection_reason"`

	ComputedAt *time.Time `gorm:"column:computed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

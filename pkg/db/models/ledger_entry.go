package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

// UniqueLedgerSequence is the constraint guarding single-writer sequence
// allocation per entity. An insert that loses the race fails on it.
const UniqueLedgerSequence = "ux_ledger_entries_entity_sequence"

// LedgerEntry is one link of the append-only hash chain for an entity.
// Entries are insert-only: the repository exposes no update or delete,
// and the migration installs a trigger rejecting both at the database.
type LedgerEntry struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntityID       uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;uniqueIndex:ux_ledger_entries_entity_sequence,priority:1"`
	SequenceNumber int64                 `gorm:"column:sequence_number;not null;uniqueIndex:ux_ledger_entries_entity_sequence,priority:2"`
	Timestamp      time.Time             `gorm:"column:timestamp;not null"`
	EntryType      enums.LedgerEntryType `gorm:"column:entry_type;type:ledger_entry_type_enum;not null"`
	ReferenceType  string                `gorm:"column:reference_type"`
	ReferenceID    string                `gorm:"column:reference_id"`
	Payload        json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	PreviousHash   string                `gorm:"column:previous_hash;type:char(64);not null"`
	Hash           string                `gorm:"column:hash;type:char(64);not null"`
	CreatedBy      uuid.UUID             `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}

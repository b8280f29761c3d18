package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

// AuditFinding is a single result produced by an audit run. Findings are
// append-only within a run; only the resolution annotation may change.
type AuditFinding struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID       uuid.UUID             `gorm:"column:run_id;type:uuid;not null;index"`
	RiskLevel   enums.RiskLevel       `gorm:"column:risk_level;type:risk_level_enum;not null"`
	Category    enums.FindingCategory `gorm:"column:category;type:finding_category_enum;not null"`
	Title       string                `gorm:"column:title;not null"`
	Description string                `gorm:"column:description"`

	// Weak reference to the external record the finding concerns.
	ReferenceType string `gorm:"column:reference_type"`
	ReferenceID   string `gorm:"column:reference_id"`

	Evidence       json.RawMessage      `gorm:"column:evidence;type:jsonb"`
	EvidenceRef    *string              `gorm:"column:evidence_ref"`
	EvidenceStatus enums.EvidenceStatus `gorm:"column:evidence_status;type:evidence_status_enum;not null;default:pending"`

	ResolutionStatus enums.ResolutionStatus `gorm:"column:resolution_status;type:resolution_status_enum;not null;default:open"`
	ResolutionNote   *string                `gorm:"column:resolution_note"`
	ResolvedBy       *uuid.UUID             `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt       *time.Time             `gorm:"column:resolved_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

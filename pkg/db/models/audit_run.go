package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

// AuditRun is one execution of the forensic audit pipeline over an
// entity and period. Runs are never reopened; re-analysis creates a
// new run with its own parameter snapshot.
type AuditRun struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EntityID    uuid.UUID            `gorm:"column:entity_id;type:uuid;not null;index"`
	PeriodStart time.Time            `gorm:"column:period_start;not null"`
	PeriodEnd   time.Time            `gorm:"column:period_end;not null"`
	RunType     enums.AuditRunType   `gorm:"column:run_type;type:audit_run_type_enum;not null"`
	Status      enums.AuditRunStatus `gorm:"column:status;type:audit_run_status_enum;not null;default:pending"`
	Parameters  json.RawMessage      `gorm:"column:parameters;type:jsonb"`

	CriticalCount      int `gorm:"column:critical_count;not null;default:0"`
	HighCount          int `gorm:"column:high_count;not null;default:0"`
	MediumCount        int `gorm:"column:medium_count;not null;default:0"`
	LowCount           int `gorm:"column:low_count;not null;default:0"`
	InformationalCount int `gorm:"column:informational_count;not null;default:0"`

	FailedAnalyses []string `gorm:"column:failed_analyses;serializer:json"`
	FailureReason  *string  `gorm:"column:failure_reason"`

	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TotalFindings sums the per-severity counters.
func (r AuditRun) TotalFindings() int {
	return r.CriticalCount + r.HighCount + r.MediumCount + r.LowCount + r.InformationalCount
}

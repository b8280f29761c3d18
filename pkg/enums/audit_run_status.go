package enums

import "fmt"

// AuditRunStatus tracks the lifecycle of a forensic audit run.
type AuditRunStatus string

const (
	AuditRunStatusPending   AuditRunStatus = "pending"
	AuditRunStatusRunning   AuditRunStatus = "running"
	AuditRunStatusCompleted AuditRunStatus = "completed"
	AuditRunStatusFailed    AuditRunStatus = "failed"
	AuditRunStatusCancelled AuditRunStatus = "cancelled"
)

var validAuditRunStatuses = []AuditRunStatus{
	AuditRunStatusPending,
	AuditRunStatusRunning,
	AuditRunStatusCompleted,
	AuditRunStatusFailed,
	AuditRunStatusCancelled,
}

// String implements fmt.Stringer.
func (s AuditRunStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AuditRunStatus.
func (s AuditRunStatus) IsValid() bool {
	for _, candidate := range validAuditRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a run may no longer transition. Runs are
// never reopened; re-analysis creates a new run.
func (s AuditRunStatus) IsTerminal() bool {
	switch s {
	case AuditRunStatusCompleted, AuditRunStatusFailed, AuditRunStatusCancelled:
		return true
	}
	return false
}

// ParseAuditRunStatus converts raw input into an AuditRunStatus.
func ParseAuditRunStatus(value string) (AuditRunStatus, error) {
	for _, candidate := range validAuditRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit run status %q", value)
}

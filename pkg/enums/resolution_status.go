package enums

import "fmt"

// ResolutionStatus annotates how a finding was handled by reviewers.
// Resolution is a mutable annotation; the finding itself never changes.
type ResolutionStatus string

const (
	ResolutionStatusOpen          ResolutionStatus = "open"
	ResolutionStatusInvestigating ResolutionStatus = "investigating"
	ResolutionStatusResolved      ResolutionStatus = "resolved"
	ResolutionStatusFalsePositive ResolutionStatus = "false_positive"
	ResolutionStatusAccepted      ResolutionStatus = "accepted_risk"
)

var validResolutionStatuses = []ResolutionStatus{
	ResolutionStatusOpen,
	ResolutionStatusInvestigating,
	ResolutionStatusResolved,
	ResolutionStatusFalsePositive,
	ResolutionStatusAccepted,
}

// IsValid reports whether the value is a known ResolutionStatus.
func (s ResolutionStatus) IsValid() bool {
	for _, candidate := range validResolutionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseResolutionStatus converts raw input into a ResolutionStatus.
func ParseResolutionStatus(value string) (ResolutionStatus, error) {
	for _, candidate := range validResolutionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resolution status %q", value)
}

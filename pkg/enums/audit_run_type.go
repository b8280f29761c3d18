package enums

import "fmt"

// AuditRunType identifies which analyses an audit run covers.
type AuditRunType string

const (
	AuditRunTypeFull          AuditRunType = "full"
	AuditRunTypeIntegrityOnly AuditRunType = "integrity_only"
	AuditRunTypeStatistical   AuditRunType = "statistical"
)

var validAuditRunTypes = []AuditRunType{
	AuditRunTypeFull,
	AuditRunTypeIntegrityOnly,
	AuditRunTypeStatistical,
}

// IsValid reports whether the value is a known AuditRunType.
func (t AuditRunType) IsValid() bool {
	for _, candidate := range validAuditRunTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAuditRunType converts raw input into an AuditRunType.
func ParseAuditRunType(value string) (AuditRunType, error) {
	for _, candidate := range validAuditRunTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit run type %q", value)
}

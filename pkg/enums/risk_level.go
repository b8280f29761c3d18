package enums

import "fmt"

// RiskLevel grades the severity of an audit finding.
type RiskLevel string

const (
	RiskLevelCritical      RiskLevel = "critical"
	RiskLevelHigh          RiskLevel = "high"
	RiskLevelMedium        RiskLevel = "medium"
	RiskLevelLow           RiskLevel = "low"
	RiskLevelInformational RiskLevel = "informational"
)

var validRiskLevels = []RiskLevel{
	RiskLevelCritical,
	RiskLevelHigh,
	RiskLevelMedium,
	RiskLevelLow,
	RiskLevelInformational,
}

// String implements fmt.Stringer.
func (r RiskLevel) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiskLevel.
func (r RiskLevel) IsValid() bool {
	for _, candidate := range validRiskLevels {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRiskLevel converts raw input into a RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, error) {
	for _, candidate := range validRiskLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid risk level %q", value)
}

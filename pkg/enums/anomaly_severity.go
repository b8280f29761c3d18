package enums

// AnomalySeverity grades a z-score outlier by its distance from the group mean.
type AnomalySeverity string

const (
	AnomalySeverityLow    AnomalySeverity = "low"
	AnomalySeverityMedium AnomalySeverity = "medium"
	AnomalySeverityHigh   AnomalySeverity = "high"
)

// IsValid reports whether the value is a known AnomalySeverity.
func (s AnomalySeverity) IsValid() bool {
	switch s {
	case AnomalySeverityLow, AnomalySeverityMedium, AnomalySeverityHigh:
		return true
	}
	return false
}

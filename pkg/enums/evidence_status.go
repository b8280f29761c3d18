package enums

// EvidenceStatus tracks whether a finding's evidence reached the WORM archive.
type EvidenceStatus string

const (
	EvidenceStatusPending  EvidenceStatus = "pending"
	EvidenceStatusArchived EvidenceStatus = "archived"
	EvidenceStatusFailed   EvidenceStatus = "failed"
)

// IsValid reports whether the value is a known EvidenceStatus.
func (s EvidenceStatus) IsValid() bool {
	switch s {
	case EvidenceStatusPending, EvidenceStatusArchived, EvidenceStatusFailed:
		return true
	}
	return false
}

package enums

import "fmt"

// MatchStatus tracks the lifecycle of a three-way match record.
//
// PENDING -> {MATCHED, PARTIAL_MATCH, DISCREPANCY} is computed by the
// match engine and may be recomputed. REJECTED is set only by a manual
// reviewer action and is sticky until an explicit reset.
type MatchStatus string

const (
	MatchStatusPending      MatchStatus = "PENDING"
	MatchStatusMatched      MatchStatus = "MATCHED"
	MatchStatusPartialMatch MatchStatus = "PARTIAL_MATCH"
	MatchStatusDiscrepancy  MatchStatus = "DISCREPANCY"
	MatchStatusRejected     MatchStatus = "REJECTED"
)

var validMatchStatuses = []MatchStatus{
	MatchStatusPending,
	MatchStatusMatched,
	MatchStatusPartialMatch,
	MatchStatusDiscrepancy,
	MatchStatusRejected,
}

// String implements fmt.Stringer.
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known MatchStatus.
func (s MatchStatus) IsValid() bool {
	for _, candidate := range validMatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseMatchStatus converts raw input into a MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, error) {
	for _, candidate := range validMatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match status %q", value)
}

// LineMatchStatus grades a single resolved PO/GRN/Invoice line triple.
type LineMatchStatus string

const (
	LineMatchStatusMatched      LineMatchStatus = "matched"
	LineMatchStatusPartialMatch LineMatchStatus = "partial_match"
	LineMatchStatusDiscrepancy  LineMatchStatus = "discrepancy"
)

// IsValid reports whether the value is a known LineMatchStatus.
func (s LineMatchStatus) IsValid() bool {
	switch s {
	case LineMatchStatusMatched, LineMatchStatusPartialMatch, LineMatchStatusDiscrepancy:
		return true
	}
	return false
}

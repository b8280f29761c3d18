package enums

// BenfordClassification grades how far an observed digit distribution
// departs from the theoretical Benford distribution.
type BenfordClassification string

const (
	BenfordConforming              BenfordClassification = "conforming"
	BenfordNonConforming           BenfordClassification = "non_conforming"
	BenfordCriticallyNonConforming BenfordClassification = "critically_non_conforming"
)

// IsValid reports whether the value is a known BenfordClassification.
func (c BenfordClassification) IsValid() bool {
	switch c {
	case BenfordConforming, BenfordNonConforming, BenfordCriticallyNonConforming:
		return true
	}
	return false
}

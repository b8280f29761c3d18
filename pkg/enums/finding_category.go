package enums

import "fmt"

// FindingCategory groups audit findings by the weakness they expose.
type FindingCategory string

const (
	FindingCategoryDataIntegrity      FindingCategory = "data_integrity"
	FindingCategoryFraudIndicator     FindingCategory = "fraud_indicator"
	FindingCategoryProcessWeakness    FindingCategory = "process_weakness"
	FindingCategoryStatisticalAnomaly FindingCategory = "statistical_anomaly"
	FindingCategoryInconclusive       FindingCategory = "inconclusive"
)

var validFindingCategories = []FindingCategory{
	FindingCategoryDataIntegrity,
	FindingCategoryFraudIndicator,
	FindingCategoryProcessWeakness,
	FindingCategoryStatisticalAnomaly,
	FindingCategoryInconclusive,
}

// IsValid reports whether the value is a known FindingCategory.
func (c FindingCategory) IsValid() bool {
	for _, candidate := range validFindingCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseFindingCategory converts raw input into a FindingCategory.
func ParseFindingCategory(value string) (FindingCategory, error) {
	for _, candidate := range validFindingCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid finding category %q", value)
}

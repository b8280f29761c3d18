package enums

import "fmt"

// GroupBy selects the transaction attribute z-score groups are keyed on.
type GroupBy string

const (
	GroupByCategory GroupBy = "category"
	GroupByVendor   GroupBy = "vendor"
)

// IsValid reports whether the value is a known GroupBy.
func (g GroupBy) IsValid() bool {
	return g == GroupByCategory || g == GroupByVendor
}

// ParseGroupBy converts raw input into a GroupBy.
func ParseGroupBy(value string) (GroupBy, error) {
	switch GroupBy(value) {
	case GroupByCategory:
		return GroupByCategory, nil
	case GroupByVendor:
		return GroupByVendor, nil
	}
	return "", fmt.Errorf("invalid group_by %q", value)
}

package enums

import "fmt"

// DigitPosition selects which digit a Benford analysis tests.
type DigitPosition string

const (
	DigitPositionFirst  DigitPosition = "first"
	DigitPositionSecond DigitPosition = "second"
)

// IsValid reports whether the value is a known DigitPosition.
func (p DigitPosition) IsValid() bool {
	return p == DigitPositionFirst || p == DigitPositionSecond
}

// ParseDigitPosition converts raw input into a DigitPosition.
func ParseDigitPosition(value string) (DigitPosition, error) {
	switch DigitPosition(value) {
	case DigitPositionFirst:
		return DigitPositionFirst, nil
	case DigitPositionSecond:
		return DigitPositionSecond, nil
	}
	return "", fmt.Errorf("invalid digit position %q", value)
}

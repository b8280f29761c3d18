package enums

// ViolationKind classifies a chain verification failure.
//
// A hash mismatch means an entry's stored content no longer produces its
// stored hash (tampering). A sequence gap means an entry is missing from
// the chain, which can only happen by deletion below the storage API. A
// previous-hash mismatch means an entry was relinked to a different
// predecessor than the one actually stored before it.
type ViolationKind string

const (
	ViolationHashMismatch     ViolationKind = "hash_mismatch"
	ViolationSequenceGap      ViolationKind = "sequence_gap"
	ViolationPrevHashMismatch ViolationKind = "prev_hash_mismatch"
)

// IsValid reports whether the value is a known ViolationKind.
func (k ViolationKind) IsValid() bool {
	switch k {
	case ViolationHashMismatch, ViolationSequenceGap, ViolationPrevHashMismatch:
		return true
	}
	return false
}

package enums

import "fmt"

// LedgerEntryType maps to the ledger_entry_type_enum enum in Postgres.
type LedgerEntryType string

const (
	LedgerEntryTypeTransactionCreated  LedgerEntryType = "transaction_created"
	LedgerEntryTypeTransactionModified LedgerEntryType = "transaction_modified"
	LedgerEntryTypeTransactionDeleted  LedgerEntryType = "transaction_deleted"
	LedgerEntryTypeApprovalGranted     LedgerEntryType = "approval_granted"
	LedgerEntryTypeApprovalRejected    LedgerEntryType = "approval_rejected"
	LedgerEntryTypeCreditApplied       LedgerEntryType = "credit_applied"
	LedgerEntryTypeFilingEvent         LedgerEntryType = "filing_event"
	LedgerEntryTypeReconciliation      LedgerEntryType = "reconciliation"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeTransactionCreated,
	LedgerEntryTypeTransactionModified,
	LedgerEntryTypeTransactionDeleted,
	LedgerEntryTypeApprovalGranted,
	LedgerEntryTypeApprovalRejected,
	LedgerEntryTypeCreditApplied,
	LedgerEntryTypeFilingEvent,
	LedgerEntryTypeReconciliation,
}

// String implements fmt.Stringer.
func (t LedgerEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}

package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateAuditRun    OutboxAggregateType = "audit_run"
	AggregateMatchRecord OutboxAggregateType = "match_record"
	AggregateLedgerEntry OutboxAggregateType = "ledger_entry"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateAuditRun,
	AggregateMatchRecord,
	AggregateLedgerEntry,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventAuditRunCompleted    OutboxEventType = "audit.run.completed"
	EventAuditRunFailed       OutboxEventType = "audit.run.failed"
	EventIntegrityViolation   OutboxEventType = "audit.integrity.violation"
	EventMatchComputed        OutboxEventType = "procurement.match.computed"
	EventMatchRejected        OutboxEventType = "procurement.match.rejected"
	EventLedgerEntryAppended  OutboxEventType = "ledger.entry.appended"
	EventFindingEvidenceReady OutboxEventType = "audit.finding.evidence_ready"
)

var validOutboxEventTypes = []OutboxEventType{
	EventAuditRunCompleted,
	EventAuditRunFailed,
	EventIntegrityViolation,
	EventMatchComputed,
	EventMatchRejected,
	EventLedgerEntryAppended,
	EventFindingEvidenceReady,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

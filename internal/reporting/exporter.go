package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
)

// rowInserter is the slice of the BigQuery client the exporter needs.
type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// FindingRow is the BigQuery representation of one audit finding.
type FindingRow struct {
	RunID            string    `bigquery:"run_id"`
	FindingID        string    `bigquery:"finding_id"`
	EntityID         string    `bigquery:"entity_id"`
	RiskLevel        string    `bigquery:"risk_level"`
	Category         string    `bigquery:"category"`
	Title            string    `bigquery:"title"`
	ReferenceType    string    `bigquery:"reference_type"`
	ReferenceID      string    `bigquery:"reference_id"`
	EvidenceRef      string    `bigquery:"evidence_ref"`
	RunStatus        string    `bigquery:"run_status"`
	RunPeriodStart   time.Time `bigquery:"run_period_start"`
	RunPeriodEnd     time.Time `bigquery:"run_period_end"`
	FindingCreatedAt time.Time `bigquery:"finding_created_at"`
	ExportedAt       time.Time `bigquery:"exported_at"`
}

// Exporter streams completed-run findings to the analytics warehouse.
// Export is best-effort reporting: callers log failures and move on, the
// audit run itself never depends on it.
type Exporter struct {
	inserter rowInserter
	table    string
	now      func() time.Time
}

// Option adjusts exporter construction.
type Option func(*Exporter)

// WithClock substitutes the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// NewExporter wires an exporter over the given inserter.
func NewExporter(inserter rowInserter, cfg config.BigQueryConfig, opts ...Option) (*Exporter, error) {
	if inserter == nil {
		return nil, fmt.Errorf("bigquery inserter required")
	}
	if cfg.FindingsTable == "" {
		return nil, fmt.Errorf("findings table required")
	}
	e := &Exporter{inserter: inserter, table: cfg.FindingsTable, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExportRunFindings flattens a run's findings into warehouse rows and
// streams them in one insert.
func (e *Exporter) ExportRunFindings(ctx context.Context, run *models.AuditRun, findings []models.AuditFinding) error {
	if run == nil || run.ID == uuid.Nil {
		return fmt.Errorf("audit run required")
	}
	if len(findings) == 0 {
		return nil
	}

	exportedAt := e.now().UTC()
	rows := make([]any, 0, len(findings))
	for _, f := range findings {
		row := FindingRow{
			RunID:            run.ID.String(),
			FindingID:        f.ID.String(),
			EntityID:         run.EntityID.String(),
			RiskLevel:        string(f.RiskLevel),
			Category:         string(f.Category),
			Title:            f.Title,
			ReferenceType:    f.ReferenceType,
			ReferenceID:      f.ReferenceID,
			RunStatus:        string(run.Status),
			RunPeriodStart:   run.PeriodStart,
			RunPeriodEnd:     run.PeriodEnd,
			FindingCreatedAt: f.CreatedAt,
			ExportedAt:       exportedAt,
		}
		if f.EvidenceRef != nil {
			row.EvidenceRef = *f.EvidenceRef
		}
		rows = append(rows, row)
	}
	return e.inserter.InsertRows(ctx, e.table, rows)
}

package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/db/models"
	"github.com/taxnovahq/taxnova-backend/pkg/enums"
)

type fakeInserter struct {
	table string
	rows  []any
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.table = table
	f.rows = rows
	return f.err
}

func TestExportRunFindings(t *testing.T) {
	inserter := &fakeInserter{}
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	exporter, err := NewExporter(inserter, config.BigQueryConfig{FindingsTable: "audit_findings"},
		WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}

	ref := "gs://evidence/audit-runs/x/findings/y.json"
	run := &models.AuditRun{
		ID:       uuid.New(),
		EntityID: uuid.New(),
		Status:   enums.AuditRunStatusCompleted,
	}
	findings := []models.AuditFinding{
		{ID: uuid.New(), RunID: run.ID, RiskLevel: enums.RiskLevelHigh, Category: enums.FindingCategoryFraudIndicator, Title: "benford critical bucket", EvidenceRef: &ref},
		{ID: uuid.New(), RunID: run.ID, RiskLevel: enums.RiskLevelLow, Category: enums.FindingCategoryStatisticalAnomaly, Title: "z-score outlier"},
	}

	if err := exporter.ExportRunFindings(context.Background(), run, findings); err != nil {
		t.Fatalf("ExportRunFindings: %v", err)
	}
	if inserter.table != "audit_findings" {
		t.Errorf("table = %s", inserter.table)
	}
	if len(inserter.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(inserter.rows))
	}
	row := inserter.rows[0].(FindingRow)
	if row.EvidenceRef != ref || row.RiskLevel != "high" || !row.ExportedAt.Equal(fixed) {
		t.Errorf("row = %+v", row)
	}
}

func TestExportSkipsEmptyFindingSet(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("must not be called")}
	exporter, err := NewExporter(inserter, config.BigQueryConfig{FindingsTable: "audit_findings"})
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	run := &models.AuditRun{ID: uuid.New()}
	if err := exporter.ExportRunFindings(context.Background(), run, nil); err != nil {
		t.Errorf("empty export should be a no-op, got %v", err)
	}
}

func TestExporterConstruction(t *testing.T) {
	if _, err := NewExporter(nil, config.BigQueryConfig{FindingsTable: "t"}); err == nil {
		t.Error("expected error for nil inserter")
	}
	if _, err := NewExporter(&fakeInserter{}, config.BigQueryConfig{}); err == nil {
		t.Error("expected error for missing table")
	}
}

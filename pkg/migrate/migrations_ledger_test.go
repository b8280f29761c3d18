package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_ledger_entries.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no ledger migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS ledger_entries",
		"CHECK (sequence_number >= 1)",
		"ux_ledger_entries_entity_sequence",
		"ledger_entries_reject_mutation",
		"BEFORE UPDATE OR DELETE ON ledger_entries",
		"DROP TABLE IF EXISTS ledger_entries",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

package migrate

import (
	"os"
	"strings"
	"testing"
)

func TestCreateSQLMigrationWritesSkeleton(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Vendor Index!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_vendor_index.sql") {
		t.Errorf("path = %q, want sanitized _add_vendor_index.sql suffix", path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read created migration: %v", err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down", "-- +goose StatementBegin"} {
		if !strings.Contains(string(b), marker) {
			t.Errorf("skeleton missing %q", marker)
		}
	}

	if err := ValidateDir(dir); err != nil {
		t.Errorf("ValidateDir on created skeleton: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := CreateSQLMigration(t.TempDir(), "!!!"); err == nil {
		t.Fatal("expected error for name that sanitizes to nothing")
	}
}

func TestValidateDirAcceptsRepoMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir(migrations): %v", err)
	}
}

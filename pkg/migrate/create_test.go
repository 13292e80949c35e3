package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateSQLMigrationStampsVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "add invoice paid_at index", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260301120000_add_invoice_paid_at_index.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(body), "-- +goose Up") || !strings.Contains(string(body), "-- rollback add_invoice_paid_at_index") {
		t.Fatalf("unexpected template %s", body)
	}

	if _, err := createSQLMigration(dir, "add invoice paid_at index", now); err == nil {
		t.Fatal("expected duplicate migration to fail")
	}
}

func TestMigrationSlugRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "   ", "!!!", strings.Repeat("plan_", 20)} {
		if _, err := migrationSlug(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

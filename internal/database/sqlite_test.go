package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/formline/backend/internal/forms"
	"gorm.io/datatypes"
)

func testDSN() string {
	return fmt.Sprintf("file:database_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite(testDSN(), nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	for _, table := range []string{"form_documents", "form_submissions", "db_migrations"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	var applied migrationRecord
	if err := db.Where("name = ?", migrationNormalizeRootOriginalID).Take(&applied).Error; err != nil {
		t.Fatalf("expected migration to be recorded: %v", err)
	}
	if applied.AppliedAtSeconds <= 0 {
		t.Fatalf("expected applied timestamp, got %d", applied.AppliedAtSeconds)
	}
}

func TestNormalizeRootOriginalIDClearsSelfReferences(t *testing.T) {
	db, err := OpenSQLite(testDSN(), nil)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	selfRef := "doc-legacy"
	legacy := forms.DocumentRecord{
		ID:               selfRef,
		TenantID:         "tenant-1",
		Title:            "Legacy import",
		SectionsJSON:     datatypes.JSON([]byte(`[]`)),
		Version:          1,
		OriginalID:       &selfRef,
		ValidFromSeconds: 1700000000,
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	if err := normalizeRootOriginalID(db); err != nil {
		t.Fatalf("unexpected migration error: %v", err)
	}

	var repaired forms.DocumentRecord
	if err := db.Where("id = ?", selfRef).Take(&repaired).Error; err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if repaired.OriginalID != nil {
		t.Fatalf("expected original_id cleared on the root, got %v", *repaired.OriginalID)
	}
}

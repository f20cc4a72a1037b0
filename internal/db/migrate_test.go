package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestApplyMigrationFileIsIdempotent(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 2, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })

	migration := filepath.Join("..", "..", "migrations", "001_init.sql")
	if err := ApplyMigrationFile(sqdb, migration); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyMigrationFile(sqdb, migration); err != nil {
		t.Fatalf("second apply must be a no-op: %v", err)
	}

	for _, table := range []string{"users", "face_templates", "attendance_records", "work_schedules", "audit_log", "sessions", "export_cursor"} {
		var name string
		err := sqdb.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenSQLiteEnforcesForeignKeys(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 2, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := ApplyMigrationFile(sqdb, filepath.Join("..", "..", "migrations", "001_init.sql")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, err = sqdb.Exec(`INSERT INTO face_templates(id,user_id,ciphertext,fingerprint,quality_score,is_primary,created_at)
		VALUES ('t1','missing-user','ct','fp',90,1,CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Fatalf("expected foreign key violation for missing user")
	}
}

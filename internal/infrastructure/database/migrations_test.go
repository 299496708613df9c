package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260601_120000_create_things.up.sql":   {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
		"20260601_120000_create_things.down.sql": {Data: []byte("DROP TABLE things;")},
		"20260602_090000_add_widgets.up.sql":     {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"README.md":                              {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query error = %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "things") || !tableExists(t, db, "widgets") {
		t.Fatal("migrations did not create both tables")
	}

	// Idempotent.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d, want 2 and 0", len(applied), len(pending))
	}
	if applied[0].Version != "20260601_120000" {
		t.Errorf("first applied version = %q", applied[0].Version)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260601_120000_good.up.sql": {Data: []byte("CREATE TABLE good (id TEXT);")},
		"20260601_130000_bad.up.sql":  {Data: []byte("CREATE TABLE broken (;")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}
	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 || pending[0].Name != "bad" {
		t.Errorf("applied = %v, pending = %v, want good applied and bad pending", applied, pending)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Latest migration has no down file.
	if err := db.MigrateDown(ctx, fsys); err == nil {
		t.Error("MigrateDown() without down SQL should fail")
	}

	delete(fsys, "20260602_090000_add_widgets.up.sql")
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = '20260602_090000'"); err != nil {
		t.Fatalf("cleanup error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "things") {
		t.Error("things table should be dropped")
	}
}

func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20260601_120000_audit_logs.up.sql", "20260601_120000", true, true},
		{"20260601_120000_audit_logs.down.sql", "20260601_120000", false, true},
		{"20260601_120000_audit_logs.sql", "", false, false},
		{"notes.txt", "", false, false},
		{"single.up.sql", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, up, ok := parseMigrationFilename(tt.name)
			if version != tt.wantVersion || up != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.name, version, up, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20260601_120000_audit_logs.up.sql"); got != "audit_logs" {
		t.Errorf("extractMigrationName() = %q, want audit_logs", got)
	}
}

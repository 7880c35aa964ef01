// Package db tests for database migration management.
package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
)

func memDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"V1__first.up.sql":    {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"V1__first.down.sql":  {Data: []byte("DROP TABLE first;")},
		"V2__second.up.sql":   {Data: []byte("CREATE TABLE second (id INTEGER);")},
		"V2__second.down.sql": {Data: []byte("DROP TABLE second;")},
		"README.md":           {Data: []byte("ignored")},
		"bad_name.up.sql":     {Data: []byte("ignored")},
		"Vx__nan.up.sql":      {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?", name).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n == 1
}

// TestInitialize verifies schema_migrations table creation and constraints.
func TestInitialize(t *testing.T) {
	db := memDB(t)
	m := NewMigrator(db, testMigrations())
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if !tableExists(t, db, "schema_migrations") {
		t.Fatal("schema_migrations table not found")
	}

	// checksum must be 64 hex chars
	_, err := db.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (1, 1, 'x', 'short')")
	if err == nil {
		t.Error("short checksum should violate the CHECK constraint")
	}

	// idempotent
	if err := m.Initialize(ctx); err != nil {
		t.Errorf("second Initialize() failed: %v", err)
	}
}

// TestUp_appliesPending verifies versions are applied in order and recorded.
func TestUp_appliesPending(t *testing.T) {
	db := memDB(t)
	m := NewMigrator(db, testMigrations())
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	if !tableExists(t, db, "first") || !tableExists(t, db, "second") {
		t.Error("Up() should create both tables")
	}

	version, err := m.CurrentVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Errorf("CurrentVersion() = %d, want 2", version)
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(applied))
	}
	if applied[0].Description != "first" || applied[1].Description != "second" {
		t.Errorf("descriptions = %q, %q", applied[0].Description, applied[1].Description)
	}
	if len(applied[0].Checksum) != 64 {
		t.Errorf("checksum length = %d, want 64", len(applied[0].Checksum))
	}
}

// TestUp_checksumMismatch verifies an edited, already-applied script is rejected.
func TestUp_checksumMismatch(t *testing.T) {
	db := memDB(t)
	fsys := testMigrations()
	ctx := context.Background()

	m := NewMigrator(db, fsys)
	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatal(err)
	}

	fsys["V1__first.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE first (id INTEGER, extra TEXT);")}
	err := NewMigrator(db, fsys).Up(ctx)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Up() error = %v, want checksum mismatch", err)
	}
}

// TestUp_failedScriptRollsBack verifies a broken script leaves no trace.
func TestUp_failedScriptRollsBack(t *testing.T) {
	db := memDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"V1__broken.up.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); NOT SQL;")},
	}

	m := NewMigrator(db, fsys)
	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(ctx); err == nil {
		t.Fatal("Up() should fail on invalid SQL")
	}

	version, _ := m.CurrentVersion(ctx)
	if version != 0 {
		t.Errorf("CurrentVersion() = %d, want 0", version)
	}
	if tableExists(t, db, "ok") {
		t.Error("partial migration should be rolled back")
	}
}

// TestDown verifies the last migration is reverted.
func TestDown(t *testing.T) {
	db := memDB(t)
	m := NewMigrator(db, testMigrations())
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatal(err)
	}

	if err := m.Down(ctx); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}
	if tableExists(t, db, "second") {
		t.Error("Down() should drop table second")
	}
	if !tableExists(t, db, "first") {
		t.Error("Down() should keep table first")
	}
	if v, _ := m.CurrentVersion(ctx); v != 1 {
		t.Errorf("CurrentVersion() = %d, want 1", v)
	}

	if err := m.Down(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Down(ctx); err == nil {
		t.Error("Down() with nothing applied should fail")
	}
}

// TestDown_missingScript verifies an error when no down file exists.
func TestDown_missingScript(t *testing.T) {
	db := memDB(t)
	ctx := context.Background()
	m := NewMigrator(db, fstest.MapFS{
		"V1__only_up.up.sql": {Data: []byte("CREATE TABLE t (id INTEGER);")},
	})
	if err := m.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatal(err)
	}

	err := m.Down(ctx)
	if err == nil || !strings.Contains(err.Error(), "no rollback migration") {
		t.Errorf("Down() error = %v", err)
	}
}

// TestMigrations_embedded verifies the shipped scripts are found.
func TestMigrations_embedded(t *testing.T) {
	files, err := NewMigrator(nil, Migrations()).listUpFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("embedded up scripts = %d, want 2", len(files))
	}
	if files[0].description != "offline_events" || files[1].description != "caches" {
		t.Errorf("unexpected scripts: %+v", files)
	}
}

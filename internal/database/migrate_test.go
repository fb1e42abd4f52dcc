package database

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"
)

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db, SQLite); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}
	var applied int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	for _, table := range []string{"trainings", "enrollments", "debts", "bans", "settings", "audit_logs", "notifications"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestApplyMigrationsRunsUpSectionOnly(t *testing.T) {
	t.Parallel()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "fs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n")},
		"m/002_b.sql": {Data: []byte("CREATE TABLE b (id INTEGER);\nINSERT INTO b (id) VALUES (1);")},
		"m/readme.md": {Data: []byte("ignored")},
	}
	ctx := context.Background()
	if err := ApplyMigrations(ctx, db, fsys, "m"); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM b").Scan(&n); err != nil {
		t.Fatalf("count b: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows in b = %d, want 1", n)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO a (id) VALUES (1)"); err != nil {
		t.Fatalf("table a missing: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()
	script := `
-- leading comment
CREATE TABLE x (id INTEGER);

  -- indented comment
INSERT INTO x VALUES (1);
;
`
	got := SplitStatements(script)
	want := []string{"CREATE TABLE x (id INTEGER)", "INSERT INTO x VALUES (1)"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitStatements = %q, want %q", got, want)
	}
}

func TestForUpdate(t *testing.T) {
	t.Parallel()
	if got := MySQL.ForUpdate(); got != " FOR UPDATE" {
		t.Fatalf("MySQL.ForUpdate() = %q", got)
	}
	if got := SQLite.ForUpdate(); got != "" {
		t.Fatalf("SQLite.ForUpdate() = %q", got)
	}
}

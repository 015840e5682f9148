package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

const slotsSchema = "-- +migrate Up\nCREATE TABLE slots(slot_id INTEGER PRIMARY KEY, payload BLOB NOT NULL);\n-- +migrate Down\nDROP TABLE slots;"

func sqlFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestApplyMigrations(t *testing.T) {
	tests := []struct {
		name    string
		fs      fstest.MapFS
		root    string
		rows    int64
		key     string
		table   string
		wantErr bool
	}{
		{
			name:  "records each file",
			fs:    fstest.MapFS{"001_slots.sql": sqlFile(slotsSchema), "002_index.sql": sqlFile("CREATE INDEX slots_payload ON slots(payload);")},
			rows:  2,
			key:   "001_slots.sql",
			table: "slots",
		},
		{
			name:  "nested root keeps prefix",
			fs:    fstest.MapFS{"story/001_slots.sql": sqlFile(slotsSchema), "other/001_x.sql": sqlFile("CREATE TABLE x(id INT);")},
			root:  "story",
			rows:  1,
			key:   "story/001_slots.sql",
			table: "slots",
		},
		{
			name: "ignores non sql files and empty up sections",
			fs: fstest.MapFS{
				"README.md":     sqlFile("not sql"),
				"001_noop.sql":  sqlFile("-- +migrate Up\n\n-- +migrate Down\nDROP TABLE slots;"),
				"002_slots.sql": sqlFile(slotsSchema),
			},
			rows:  1,
			key:   "002_slots.sql",
			table: "slots",
		},
		{
			name:    "syntax error records nothing",
			fs:      fstest.MapFS{"001_bad.sql": sqlFile("CREAT TABLE slots(id INT);")},
			rows:    0,
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := openInMemoryDB(t)
			err := ApplyMigrations(db, tc.fs, tc.root)
			if tc.wantErr != (err != nil) {
				t.Fatalf("apply migrations err = %v, wantErr %t", err, tc.wantErr)
			}
			if got := countApplied(t, db); got != tc.rows {
				t.Fatalf("applied rows = %d, want %d", got, tc.rows)
			}
			if tc.key != "" && !isRecorded(t, db, tc.key) {
				t.Fatalf("expected %q to be recorded", tc.key)
			}
			if tc.table != "" && !tableExists(t, db, tc.table) {
				t.Fatalf("expected table %q", tc.table)
			}
		})
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_slots.sql":  sqlFile(slotsSchema),
		"002_column.sql": sqlFile("ALTER TABLE slots ADD COLUMN label TEXT;"),
	}
	for i := 0; i < 2; i++ {
		if err := ApplyMigrations(db, migrations, ""); err != nil {
			t.Fatalf("apply pass %d: %v", i+1, err)
		}
	}
	if got := countApplied(t, db); got != 2 {
		t.Fatalf("applied rows = %d, want 2", got)
	}

	// A bookkeeping row lost after the DDL ran must not block a rerun.
	if _, err := db.Exec("DELETE FROM schema_migrations WHERE name = '002_column.sql'"); err != nil {
		t.Fatalf("delete bookkeeping row: %v", err)
	}
	if err := ApplyMigrations(db, migrations, ""); err != nil {
		t.Fatalf("rerun with duplicate column: %v", err)
	}
	if !isRecorded(t, db, "002_column.sql") {
		t.Fatal("expected column migration to be recorded again")
	}
}

func TestApplyMigrationsRetriesFixedFile(t *testing.T) {
	db := openInMemoryDB(t)
	if err := ApplyMigrations(db, fstest.MapFS{"001_slots.sql": sqlFile("CREATE TABLE slots(")}, ""); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	if err := ApplyMigrations(db, fstest.MapFS{"001_slots.sql": sqlFile(slotsSchema)}, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if !tableExists(t, db, "slots") {
		t.Fatal("expected slots table after fix")
	}
}

func TestApplyMigrationsRequiresInputs(t *testing.T) {
	if err := ApplyMigrations(nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected nil db to fail")
	}
	if err := ApplyMigrations(openInMemoryDB(t), nil, ""); err == nil {
		t.Fatal("expected nil fs to fail")
	}
	if err := ApplyMigrations(openInMemoryDB(t), fstest.MapFS{}, "missing"); err == nil {
		t.Fatal("expected missing root to fail")
	}
}

func TestApplyMigrationsContextHonorsCancellation(t *testing.T) {
	db := openInMemoryDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ApplyMigrationsContext(ctx, db, fstest.MapFS{"001_slots.sql": sqlFile(slotsSchema)}, ""); err == nil {
		t.Fatal("expected cancelled context to fail")
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "CREATE TABLE a(id INT);", want: "CREATE TABLE a(id INT);"},
		{name: "up only", content: "-- +migrate Up\nCREATE TABLE a(id INT);", want: "\nCREATE TABLE a(id INT);"},
		{name: "up and down", content: "-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;", want: "\nCREATE TABLE a(id INT);\n"},
		{name: "down only", content: "CREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;", want: "CREATE TABLE a(id INT);\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractUpMigration(tc.content); got != tc.want {
				t.Fatalf("ExtractUpMigration() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	if IsAlreadyExistsError(nil) {
		t.Fatal("nil is not an already-exists error")
	}
	if !IsAlreadyExistsError(errors.New("SQL logic error: table slots already exists")) {
		t.Fatal("expected table exists to match")
	}
	if !IsAlreadyExistsError(errors.New("duplicate column name: label")) {
		t.Fatal("expected duplicate column to match")
	}
	if IsAlreadyExistsError(errors.New("no such table: slots")) {
		t.Fatal("unexpected match")
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countApplied(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	return n
}

func isRecorded(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found int
	err := db.QueryRow("SELECT 1 FROM schema_migrations WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("lookup migration %s: %v", name, err)
	}
	return true
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return true
}

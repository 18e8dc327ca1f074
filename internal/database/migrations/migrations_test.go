package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshStore(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"corpus", "sentences", "users", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckStatus_FreshStore(t *testing.T) {
	db := openTestDB(t)

	err := CheckStatus(db)
	if err == nil {
		t.Fatal("CheckStatus() expected error for fresh store, got nil")
	}
	if err.Error() != "store has no schema version (needs migration)" {
		t.Errorf("CheckStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := Ensure(db); err != nil {
		t.Errorf("Ensure() after double migration returned error: %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 2 {
		t.Errorf("LatestVersion() = %d, want 2", v)
	}
}

func TestSchema_CorpusIsSingleton(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO corpus (id, filename, updated_at) VALUES (1, 'a.conllu', datetime('now'))")
	if err != nil {
		t.Fatalf("insert corpus row: %v", err)
	}

	_, err = db.Exec("INSERT INTO corpus (id, filename, updated_at) VALUES (2, 'b.conllu', datetime('now'))")
	if err == nil {
		t.Error("expected CHECK violation for a second corpus row, but insert succeeded")
	}
}

func TestSchema_TokenHashUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := "INSERT INTO users (id, token_hash, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))"
	if _, err := db.Exec(insert, "user-1", "hash"); err != nil {
		t.Fatalf("insert first user: %v", err)
	}
	if _, err := db.Exec(insert, "user-2", "hash"); err == nil {
		t.Error("expected unique violation for a shared token hash, but insert succeeded")
	}

	// Cleared tokens are NULL and never collide.
	if _, err := db.Exec(insert, "user-3", nil); err != nil {
		t.Fatalf("insert user without token: %v", err)
	}
	if _, err := db.Exec(insert, "user-4", nil); err != nil {
		t.Errorf("insert second user without token: %v", err)
	}
}

// openTestDB opens an in-memory SQLite database pinned to one connection,
// since every new connection to ":memory:" is a separate database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

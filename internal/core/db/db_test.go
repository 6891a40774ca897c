package db

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/streamrouter/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "routes.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	return db
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{"sqlite://routes.db", "sqlite3", "routes.db", false},
		{"sqlite:///var/lib/sr/routes.db", "sqlite3", "/var/lib/sr/routes.db", false},
		{"sqlite://routes.db?_journal=WAL", "sqlite3", "routes.db?_journal=WAL", false},
		{"postgres://u:p@localhost/sr", "postgres", "postgres://u:p@localhost/sr", false},
		{"postgresql://localhost/sr", "postgres", "postgresql://localhost/sr", false},
		{"mysql://localhost/sr", "", "", true},
		{"sqlite://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, source, err := parseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if driver != tt.wantDriver || source != tt.wantSource {
				t.Errorf("parseURL() = (%q, %q), want (%q, %q)", driver, source, tt.wantDriver, tt.wantSource)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	input := "-- header\nCREATE TABLE a (x INT);\n\n-- second\nCREATE INDEX i ON a(x);\n"
	got := splitStatements(input)
	if len(got) != 2 {
		t.Fatalf("splitStatements() = %q, want 2 statements", got)
	}
	if got[0] != "CREATE TABLE a (x INT)" {
		t.Errorf("first statement = %q", got[0])
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	applied, err := MigrateUp(db)
	if err != nil {
		t.Fatalf("second MigrateUp() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("second MigrateUp() applied %v, want none", applied)
	}

	statuses, err := MigrateStatus(db)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v", err)
	}
	if len(statuses) < 2 {
		t.Fatalf("MigrateStatus() returned %d migrations, want at least 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.ID)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s has no applied_at", s.ID)
		}
	}
	if err := RequireMigrated(db); err != nil {
		t.Errorf("RequireMigrated() error = %v", err)
	}
}

func TestRequireMigrated_Fresh(t *testing.T) {
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := RequireMigrated(db); err == nil {
		t.Error("RequireMigrated() on fresh database should fail")
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec("UPDATE migrations SET checksum = 'tampered' WHERE migration_id = '001_initial_schema.sql'"); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := MigrateUp(db); err == nil {
		t.Error("MigrateUp() should reject a modified migration")
	}
}

func TestRouteStore(t *testing.T) {
	db := openTestDB(t)
	q, err := LoadQueries(db)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	store := NewRouteStore(q)

	first, err := store.Create(types.RouteDefinition{
		Name:       "big-orders",
		Operations: []string{"insert", "UPDATE"},
		Condition:  "$NEW.total > 100",
		Handler:    "forward:orders",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := types.ParseRouteID(string(first.RouteID)); err != nil {
		t.Errorf("Create() assigned invalid ID %q", first.RouteID)
	}

	second, err := store.Create(types.RouteDefinition{
		Name:       "audit",
		Operations: []string{"REMOVE"},
		Handler:    "log",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("duplicate name", func(t *testing.T) {
		_, err := store.Create(types.RouteDefinition{Name: "audit", Operations: []string{"INSERT"}, Handler: "log"})
		if !errors.Is(err, types.ErrDuplicateRoute) {
			t.Errorf("Create() error = %v, want ErrDuplicateRoute", err)
		}
	})

	t.Run("get", func(t *testing.T) {
		got, err := store.Get(first.RouteID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Name != "big-orders" || got.Condition != "$NEW.total > 100" || got.Handler != "forward:orders" {
			t.Errorf("Get() = %+v", got)
		}
		if len(got.Operations) != 2 || got.Operations[0] != "INSERT" || got.Operations[1] != "UPDATE" {
			t.Errorf("Get() operations = %v, want [INSERT UPDATE]", got.Operations)
		}
	})

	t.Run("list keeps creation order", func(t *testing.T) {
		defs, err := store.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(defs) != 2 || defs[0].RouteID != first.RouteID || defs[1].RouteID != second.RouteID {
			t.Errorf("List() = %+v", defs)
		}
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		updated, err := store.Upsert(types.RouteDefinition{
			Name:       "big-orders",
			Operations: []string{"INSERT"},
			Condition:  "$NEW.total > 500",
			Handler:    "log",
		})
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if updated.RouteID != first.RouteID {
			t.Errorf("Upsert() changed ID from %s to %s", first.RouteID, updated.RouteID)
		}
		defs, _ := store.List()
		if len(defs) != 2 || defs[0].Condition != "$NEW.total > 500" {
			t.Errorf("List() after Upsert = %+v", defs)
		}
	})

	t.Run("upsert creates", func(t *testing.T) {
		if _, err := store.Upsert(types.RouteDefinition{Name: "new", Operations: []string{"INSERT"}, Handler: "log"}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		defs, _ := store.List()
		if len(defs) != 3 || defs[2].Name != "new" {
			t.Errorf("List() = %+v", defs)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete(second.RouteID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := store.Get(second.RouteID); !errors.Is(err, types.ErrRouteNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrRouteNotFound", err)
		}
		if err := store.Delete(second.RouteID); !errors.Is(err, types.ErrRouteNotFound) {
			t.Errorf("second Delete() error = %v, want ErrRouteNotFound", err)
		}
	})
}

func TestAPIKeyStore(t *testing.T) {
	db := openTestDB(t)
	q, err := LoadQueries(db)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v", err)
	}
	store := NewAPIKeyStore(q)

	secretID := "0123456789abcdef0123456789abcdef"
	id, err := store.Create("ingest", "primary", secretID, []byte("hash-1"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var found struct {
		APIKeyID   string       `db:"api_key_id"`
		ClientID   string       `db:"client_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	if err := q.Get("get-api-key-by-hash", &found, []byte("hash-1")); err != nil {
		t.Fatalf("get-api-key-by-hash error = %v", err)
	}
	if found.APIKeyID != id || found.ClientID != "ingest" || found.RevokedAt.Valid {
		t.Errorf("lookup = %+v", found)
	}

	if _, err := store.Create("ingest", "dup", secretID, []byte("hash-1")); err == nil {
		t.Error("Create() with duplicate hash should fail")
	}

	if err := store.Revoke(id); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := store.Revoke(id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second Revoke() error = %v, want sql.ErrNoRows", err)
	}

	keys, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 || !keys[0].RevokedAt.Valid || keys[0].Name != "primary" {
		t.Errorf("List() = %+v", keys)
	}
}

package migrate_test

import (
	"testing"

	"asbuilt/internal/db"
	"asbuilt/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	n, err := migrate.Migrate(conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected migrations to apply on a fresh archive")
	}
	n, err = migrate.Migrate(conn)
	if err != nil || n != 0 {
		t.Fatalf("second migrate applied %d (%v)", n, err)
	}
	applied, err := migrate.Applied(conn)
	if err != nil || !applied[1] {
		t.Fatalf("version 1 not recorded: %v %v", applied, err)
	}
	for _, table := range []string{"runs", "events"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// One connection keeps the foreign_keys setting on every statement.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DatabasePath != "./scpchat.db" {
		t.Errorf("Expected DatabasePath './scpchat.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.QueueSize != 1024 {
		t.Errorf("Expected QueueSize 1024, got %d", config.QueueSize)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }},
		{"zero queue size", func(c *Config) { c.QueueSize = 0 }},
		{"negative retry delay", func(c *Config) { c.RetryDelay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMigrationManager_AppliesInVersionOrder(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/002_add_column.sql": {Data: []byte(`ALTER TABLE widgets ADD COLUMN label TEXT;`)},
		"m/001_widgets.sql":    {Data: []byte(`CREATE TABLE widgets (id TEXT PRIMARY KEY);`)},
		"m/README.md":          {Data: []byte(`not a migration`)},
	}

	mgr := NewMigrationManager(db, fsys, "m")
	applied, err := mgr.ApplyMigrations()
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if len(applied) != 2 || applied[0] != "001" || applied[1] != "002" {
		t.Errorf("expected [001 002], got %v", applied)
	}

	if _, err := db.Exec(`INSERT INTO widgets (id, label) VALUES ('w1', 'first')`); err != nil {
		t.Errorf("migrated table unusable: %v", err)
	}
}

func TestMigrationManager_SkipsApplied(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_widgets.sql": {Data: []byte(`CREATE TABLE widgets (id TEXT PRIMARY KEY);`)},
	}

	mgr := NewMigrationManager(db, fsys, "m")
	if _, err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("first ApplyMigrations failed: %v", err)
	}
	applied, err := mgr.ApplyMigrations()
	if err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected nothing applied on rerun, got %v", applied)
	}
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte(`CREATE TABLE half (id TEXT); THIS IS NOT SQL;`)},
	}

	mgr := NewMigrationManager(db, fsys, "m")
	if _, err := mgr.ApplyMigrations(); err == nil {
		t.Fatal("expected broken migration to fail")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != 0 {
		t.Errorf("failed migration should not be recorded, found %d rows", count)
	}
}

func TestMigrationManager_EmbeddedSchemaValidates(t *testing.T) {
	db := openTestDB(t)

	mgr := NewEmbeddedMigrationManager(db)
	if err := mgr.ValidateSchema(); err == nil {
		t.Error("ValidateSchema should fail before migrations run")
	}

	applied, err := mgr.ApplyMigrations()
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("embedded migrations should not be empty")
	}
	if err := mgr.ValidateSchema(); err != nil {
		t.Errorf("ValidateSchema failed after migrations: %v", err)
	}
}

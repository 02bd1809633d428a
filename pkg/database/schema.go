package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks that the audit schema is in the shape the store
// expects. It runs after migrations and before the store accepts writes.
type SchemaValidator struct {
	db *sql.DB
}

func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check in order and stops at the first failure.
func (v *SchemaValidator) Validate() error {
	checks := []func() error{
		v.ValidateTablesExist,
		v.ValidateTableStructure,
		v.ValidateIndexes,
		v.ValidateConstraints,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"connections":       "Connection lifetimes",
		"session_events":    "Session event trail",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	connectionColumns := map[string]string{
		"client_id":       "TEXT",
		"remote_addr":     "TEXT",
		"transport":       "TEXT",
		"username":        "TEXT",
		"connected_at":    "DATETIME",
		"disconnected_at": "DATETIME",
	}
	if err := v.validateColumns("connections", connectionColumns); err != nil {
		return fmt.Errorf("connections table structure invalid: %w", err)
	}

	eventColumns := map[string]string{
		"id":          "TEXT",
		"client_id":   "TEXT",
		"kind":        "TEXT",
		"detail":      "TEXT",
		"occurred_at": "DATETIME",
	}
	if err := v.validateColumns("session_events", eventColumns); err != nil {
		return fmt.Errorf("session_events table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that the query indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_connections_username":  "Username lookups",
		"idx_connections_open":      "Open connection scans",
		"idx_session_events_client": "Per-client history",
		"idx_session_events_time":   "Recent event listing",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints exercises the foreign key and CHECK constraints inside a
// transaction that is always rolled back.
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("begin constraint check: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO session_events (id, client_id, kind, occurred_at)
		VALUES ('check-event', 'check-missing-client', 'connected', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("foreign key constraint not enforced: session_events.client_id")
	}

	_, err = tx.Exec(`
		INSERT INTO connections (client_id, transport, connected_at)
		VALUES ('check-client', 'tcp', CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to create check connection: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO session_events (id, client_id, kind, occurred_at)
		VALUES ('check-event', 'check-client', 'teleported', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: session_events.kind")
	}

	_, err = tx.Exec(`
		INSERT INTO connections (client_id, transport, connected_at)
		VALUES ('check-carrier', 'carrier-pigeon', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: connections.transport")
	}
	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var defaultValue interface{}
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}
	return nil
}

// =============================================================================
// EDI Ingest - Storage Module
// =============================================================================
//
// This package connects the pipeline to a SQL database. It serves two roles:
//
//   - LookupBackend answers reference-data queries for the LOOKUP transform
//   - RecordWriter inserts mapped records, one transaction per table
//
// Table and column names come from mapping configs and are checked against
// a strict identifier pattern before they are placed into SQL text.
//
// =============================================================================

package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DefaultDriver is the database/sql driver registered by modernc.org/sqlite.
const DefaultDriver = "sqlite"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Open connects to the database and checks the connection. File-backed
// SQLite databases are switched to WAL mode.
//
// PARAMETERS:
//   - ctx: bounds the connection check
//   - driver: database/sql driver name; empty means sqlite
//   - dsn: driver-specific data source name
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	if dsn == "" {
		return nil, fmt.Errorf("no database dsn configured")
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if isSQLite(driver) && !isMemoryDSN(dsn) {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	return db, nil
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// checkIdentifiers rejects names that are not plain (optionally
// schema-qualified) SQL identifiers.
func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("invalid SQL identifier %q", name)
		}
	}
	return nil
}

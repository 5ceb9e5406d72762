package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ginjaninja78/edi-ingest/internal/logging"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// RecordWriter inserts mapped records. Each table is written in its own
// transaction, so one failing table does not roll back the others.
type RecordWriter struct {
	db     *sqlx.DB
	logger logging.Logger
}

// NewRecordWriter creates a writer over db.
func NewRecordWriter(db *sqlx.DB, logger logging.Logger) *RecordWriter {
	return &RecordWriter{db: db, logger: logging.OrNop(logger)}
}

// SaveResult writes every table of a mapping result.
//
// RETURNS:
//   - rows written per table, for the tables that committed
//   - every table failure joined into one error, or nil
func (w *RecordWriter) SaveResult(ctx context.Context, tables types.TableSet) (map[string]int, error) {
	counts := make(map[string]int)
	var errs []error

	for _, table := range tables.Tables() {
		records := tables.Records(table)
		if len(records) == 0 {
			continue
		}

		n, err := w.SaveRecords(ctx, table, records)
		if err != nil {
			w.logger.Error("Failed to write %d record(s) to %s: %v", len(records), table, err)
			errs = append(errs, fmt.Errorf("%s: %w", table, err))
			continue
		}
		counts[table] = n
		w.logger.Debug("Wrote %d record(s) to %s", n, table)
	}

	return counts, errors.Join(errs...)
}

// SaveRecords inserts records into table inside one transaction. The column
// list is taken from the first record; a column missing from a later record
// is written as NULL.
func (w *RecordWriter) SaveRecords(ctx context.Context, table string, records []*types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	columns := records[0].Keys()
	if len(columns) == 0 {
		return 0, fmt.Errorf("records for %s have no columns", table)
	}
	if err := checkIdentifiers(append([]string{table}, columns...)...); err != nil {
		return 0, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := w.db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders))

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i, rec := range records {
		for j, col := range columns {
			args[j] = rec.Value(col)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert record %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(records), nil
}

// EnsureTable creates table with one TEXT column per name unless it exists.
func (w *RecordWriter) EnsureTable(ctx context.Context, table string, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s needs at least one column", table)
	}
	if err := checkIdentifiers(append([]string{table}, columns...)...); err != nil {
		return err
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = col + " TEXT"
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ginjaninja78/edi-ingest/internal/lookup"
)

var _ lookup.Backend = (*LookupBackend)(nil)

// LookupBackend reads reference values with single-row SELECTs.
type LookupBackend struct {
	db *sqlx.DB
}

// NewLookupBackend creates a backend over db.
func NewLookupBackend(db *sqlx.DB) *LookupBackend {
	return &LookupBackend{db: db}
}

// FindByKey runs SELECT column FROM table WHERE keyColumn = keyValue.
func (b *LookupBackend) FindByKey(ctx context.Context, table, keyColumn, keyValue, column string) (any, bool, error) {
	if err := checkIdentifiers(table, keyColumn, column); err != nil {
		return nil, false, err
	}
	query := b.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1", column, table, keyColumn))
	return b.queryOne(ctx, query, keyValue)
}

// forbiddenWhereTokens would let a resolved clause end the statement or
// comment out the LIMIT.
var forbiddenWhereTokens = []string{";", "--", "/*", "*/"}

// FindWhere runs SELECT column FROM table WHERE <where>. The clause is
// taken from the mapping config as written, after placeholder resolution.
func (b *LookupBackend) FindWhere(ctx context.Context, table, where, column string) (any, bool, error) {
	if err := checkIdentifiers(table, column); err != nil {
		return nil, false, err
	}
	if err := checkWhereClause(where); err != nil {
		return nil, false, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT 1", column, table, where)
	return b.queryOne(ctx, query)
}

func checkWhereClause(where string) error {
	if strings.TrimSpace(where) == "" {
		return errors.New("empty where clause")
	}
	for _, token := range forbiddenWhereTokens {
		if strings.Contains(where, token) {
			return fmt.Errorf("where clause %q contains forbidden token %q", where, token)
		}
	}
	return nil
}

func (b *LookupBackend) queryOne(ctx context.Context, query string, args ...any) (any, bool, error) {
	var value any
	err := b.db.QueryRowxContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup query failed: %w", err)
	}
	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}
	return value, true, nil
}

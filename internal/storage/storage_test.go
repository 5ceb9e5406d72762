package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/edi-ingest/internal/lookup"
	"github.com/ginjaninja78/edi-ingest/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := Open(context.Background(), "", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE LOCATIONS (LOCODE TEXT PRIMARY KEY, NAME TEXT, COUNTRY TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO LOCATIONS VALUES ('USNYC', 'New York', 'US'), ('NLRTM', 'Rotterdam', 'NL'), ('XXNUL', NULL, 'XX')`)
	require.NoError(t, err)
	return db
}

type tableSet struct {
	order   []string
	records map[string][]*types.Record
}

func (s *tableSet) Tables() []string                      { return s.order }
func (s *tableSet) Records(table string) []*types.Record { return s.records[table] }

func record(kv ...any) *types.Record {
	r := types.NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// =============================================================================
// OPEN
// =============================================================================

func TestOpenFileDatabaseUsesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edi.db")
	db, err := Open(context.Background(), "sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "sqlite", "")
	require.Error(t, err)
}

func TestCheckIdentifiers(t *testing.T) {
	assert.NoError(t, checkIdentifiers("EDI_315_HEADER", "main.LOCATIONS", "_x1"))
	for _, bad := range []string{"", "1ABC", "A B", "A;DROP", "a.b.c", "NAME--"} {
		assert.Error(t, checkIdentifiers(bad), bad)
	}
}

// =============================================================================
// LOOKUP BACKEND
// =============================================================================

func TestLookupBackendFindByKey(t *testing.T) {
	backend := NewLookupBackend(openTestDB(t))
	ctx := context.Background()

	v, found, err := backend.FindByKey(ctx, "LOCATIONS", "LOCODE", "USNYC", "NAME")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "New York", v)

	_, found, err = backend.FindByKey(ctx, "LOCATIONS", "LOCODE", "ZZZZZ", "NAME")
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err = backend.FindByKey(ctx, "LOCATIONS", "LOCODE", "XXNUL", "NAME")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, v)

	_, _, err = backend.FindByKey(ctx, "LOCATIONS; DROP TABLE LOCATIONS", "LOCODE", "USNYC", "NAME")
	require.Error(t, err)

	_, _, err = backend.FindByKey(ctx, "MISSING_TABLE", "LOCODE", "USNYC", "NAME")
	require.Error(t, err)
}

func TestLookupBackendFindWhere(t *testing.T) {
	backend := NewLookupBackend(openTestDB(t))

	v, found, err := backend.FindWhere(context.Background(), "LOCATIONS", "COUNTRY = 'NL'", "LOCODE")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "NLRTM", v)
}

func TestLookupBackendFindWhereRejectsStatementTokens(t *testing.T) {
	db := openTestDB(t)
	backend := NewLookupBackend(db)

	tests := []struct {
		name  string
		where string
	}{
		{"statement separator", "COUNTRY = 'NL'; DROP TABLE LOCATIONS"},
		{"line comment", "COUNTRY = 'XX' OR 1=1 --"},
		{"block comment open", "COUNTRY = 'NL' /* x"},
		{"block comment close", "COUNTRY = 'NL' */"},
		{"blank", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, found, err := backend.FindWhere(context.Background(), "LOCATIONS", tt.where, "LOCODE")
			require.Error(t, err)
			assert.False(t, found)
			assert.Nil(t, v)
		})
	}

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM LOCATIONS"))
	assert.Positive(t, count)
}

func TestLookupBackendBehindCache(t *testing.T) {
	svc := lookup.NewCachedService(NewLookupBackend(openTestDB(t)), lookup.WithTimeout(time.Second))
	ctx := context.Background()

	assert.Equal(t, "Rotterdam", svc.Lookup(ctx, "LOCATIONS", "LOCODE", " NLRTM ", "NAME"))
	assert.Nil(t, svc.Lookup(ctx, "LOCATIONS", "LOCODE", "ZZZZZ", "NAME"))
	assert.Nil(t, svc.LookupWithCondition(ctx, "LOCATIONS", "NO_SUCH_COLUMN = 1", "NAME"))
	assert.Equal(t, "US", svc.LookupWithCondition(ctx, "LOCATIONS", "NAME = 'New York'", "COUNTRY"))

	stats := svc.Stats()
	assert.Equal(t, int64(4), stats.Misses)
}

// =============================================================================
// RECORD WRITER
// =============================================================================

func createTargets(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE EDI_315_HEADER (CONTROL_NO TEXT PRIMARY KEY, EVENT_DATE TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE EDI_315_EVENT (CONTROL_NO TEXT NOT NULL, LOCATION TEXT, AMOUNT TEXT, SEQ INTEGER)`)
	require.NoError(t, err)
}

func TestSaveResultWritesEveryTable(t *testing.T) {
	db := openTestDB(t)
	createTargets(t, db)
	writer := NewRecordWriter(db, nil)

	set := &tableSet{
		order: []string{"EDI_315_HEADER", "EDI_315_EVENT", "EMPTY_TABLE"},
		records: map[string][]*types.Record{
			"EDI_315_HEADER": {record("CONTROL_NO", "0001", "EVENT_DATE", time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC))},
			"EDI_315_EVENT": {
				record("CONTROL_NO", "0001", "LOCATION", "USNYC", "AMOUNT", decimal.RequireFromString("45.5"), "SEQ", 1),
				record("CONTROL_NO", "0001", "LOCATION", nil, "SEQ", 2),
			},
		},
	}

	counts, err := writer.SaveResult(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"EDI_315_HEADER": 1, "EDI_315_EVENT": 2}, counts)

	var rows []struct {
		Location *string `db:"LOCATION"`
		Amount   *string `db:"AMOUNT"`
		Seq      int     `db:"SEQ"`
	}
	require.NoError(t, db.Select(&rows, "SELECT LOCATION, AMOUNT, SEQ FROM EDI_315_EVENT ORDER BY SEQ"))
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Location)
	assert.Equal(t, "USNYC", *rows[0].Location)
	assert.Equal(t, "45.5", *rows[0].Amount)
	assert.Nil(t, rows[1].Location)
	assert.Nil(t, rows[1].Amount)
}

func TestSaveResultIsolatesFailingTables(t *testing.T) {
	db := openTestDB(t)
	createTargets(t, db)
	writer := NewRecordWriter(db, nil)

	set := &tableSet{
		order: []string{"EDI_315_HEADER", "EDI_315_EVENT"},
		records: map[string][]*types.Record{
			"EDI_315_HEADER": {record("CONTROL_NO", "0001")},
			"EDI_315_EVENT": {
				record("CONTROL_NO", "0001", "LOCATION", "USNYC"),
				record("CONTROL_NO", nil, "LOCATION", "NLRTM"),
			},
		},
	}

	counts, err := writer.SaveResult(context.Background(), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EDI_315_EVENT")
	assert.Contains(t, err.Error(), "record 2")
	assert.Equal(t, map[string]int{"EDI_315_HEADER": 1}, counts)

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM EDI_315_EVENT"))
	assert.Zero(t, n, "the failing table must be rolled back")
}

func TestSaveRecordsRejectsBadNames(t *testing.T) {
	writer := NewRecordWriter(openTestDB(t), nil)

	_, err := writer.SaveRecords(context.Background(), "EDI 315", []*types.Record{record("A", 1)})
	require.Error(t, err)

	_, err = writer.SaveRecords(context.Background(), "LOCATIONS", []*types.Record{record("NAME) VALUES (1); --", 1)})
	require.Error(t, err)

	n, err := writer.SaveRecords(context.Background(), "LOCATIONS", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	w := NewRecordWriter(db, nil)
	ctx := context.Background()

	require.NoError(t, w.EnsureTable(ctx, "CARRIERS", []string{"SCAC", "NAME"}))
	require.NoError(t, w.EnsureTable(ctx, "CARRIERS", []string{"SCAC", "NAME"}))

	n, err := w.SaveRecords(ctx, "CARRIERS", []*types.Record{record("SCAC", "MSCU", "NAME", "MSC")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Error(t, w.EnsureTable(ctx, "CARRIERS", nil))
	require.Error(t, w.EnsureTable(ctx, "BAD NAME", []string{"A"}))
}

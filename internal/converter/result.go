package converter

import (
	"bytes"
	"encoding/json"

	"github.com/ginjaninja78/edi-ingest/internal/types"
)

// MappingResult holds the records produced for one document, grouped by
// target table in the order tables were first produced.
type MappingResult struct {
	success bool
	errors  []string
	tables  []string
	records map[string][]*types.Record
}

// NewMappingResult returns an empty successful result.
func NewMappingResult() *MappingResult {
	return &MappingResult{
		success: true,
		records: make(map[string][]*types.Record),
	}
}

// FailedResult returns a result carrying validation errors and no records.
func FailedResult(errors []string) *MappingResult {
	r := NewMappingResult()
	r.success = false
	r.errors = append([]string(nil), errors...)
	return r
}

// AddRecords appends records to a table. The table is registered even when
// records is empty.
func (r *MappingResult) AddRecords(table string, records []*types.Record) {
	if _, ok := r.records[table]; !ok {
		r.tables = append(r.tables, table)
		r.records[table] = make([]*types.Record, 0, len(records))
	}
	r.records[table] = append(r.records[table], records...)
}

// Records returns the records of one table in production order.
func (r *MappingResult) Records(table string) []*types.Record {
	return r.records[table]
}

// Tables returns the table names in the order they were first produced.
func (r *MappingResult) Tables() []string {
	out := make([]string, len(r.tables))
	copy(out, r.tables)
	return out
}

// TotalRecords counts records across all tables.
func (r *MappingResult) TotalRecords() int {
	n := 0
	for _, recs := range r.records {
		n += len(recs)
	}
	return n
}

// Success is false when validation rejected the document.
func (r *MappingResult) Success() bool {
	return r.success
}

// Errors returns the validation errors of a failed result.
func (r *MappingResult) Errors() []string {
	return r.errors
}

// MarshalJSON renders {"success", "errors", "tables": {table: [records]}}
// with tables in production order.
func (r *MappingResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"success":`)
	if r.success {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}

	errs := r.errors
	if errs == nil {
		errs = []string{}
	}
	eb, err := json.Marshal(errs)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"errors":`)
	buf.Write(eb)

	buf.WriteString(`,"tables":{`)
	for i, table := range r.tables {
		if i > 0 {
			buf.WriteByte(',')
		}
		tb, err := json.Marshal(table)
		if err != nil {
			return nil, err
		}
		rb, err := json.Marshal(r.records[table])
		if err != nil {
			return nil, err
		}
		buf.Write(tb)
		buf.WriteByte(':')
		buf.Write(rb)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

package lookup

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend serves key lookups from tables registered in memory. It is
// used for dry runs without a database and in tests. Condition lookups are
// not supported.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[string][]map[string]any)}
}

// Register replaces the rows of a table.
func (m *MemoryBackend) Register(table string, rows []map[string]any) {
	m.mu.Lock()
	m.tables[table] = rows
	m.mu.Unlock()
}

// FindByKey returns column of the first row whose keyColumn renders as keyValue.
func (m *MemoryBackend) FindByKey(_ context.Context, table, keyColumn, keyValue, column string) (any, bool, error) {
	m.mu.RLock()
	rows, ok := m.tables[table]
	m.mu.RUnlock()
	if !ok {
		return nil, false, fmt.Errorf("lookup table %s not registered", table)
	}

	for _, row := range rows {
		if fmt.Sprint(row[keyColumn]) == keyValue {
			return row[column], true, nil
		}
	}
	return nil, false, nil
}

// FindWhere always fails with ErrUnsupported.
func (m *MemoryBackend) FindWhere(_ context.Context, table, _, _ string) (any, bool, error) {
	return nil, false, fmt.Errorf("%w: condition lookup on %s", ErrUnsupported, table)
}

// =============================================================================
// EDI Ingest - Lookup Service
// =============================================================================
//
// Reference-data lookups used by the LOOKUP transform. Every answer from the
// backend, including "no row", is cached for the life of the service so a
// document with thousands of records issues each distinct query once.
//
// CACHE LAYOUT:
//   table -> query key -> value | nullMarker
//
// Key lookups and condition lookups share the per-table map with distinct
// key prefixes, so ClearTable drops both kinds.
//
// =============================================================================

package lookup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ginjaninja78/edi-ingest/internal/logging"
)

// DefaultTimeout bounds a single backend query.
const DefaultTimeout = 5 * time.Second

// Service answers reference-data lookups. A nil result means "no value";
// failures are never returned to the caller.
type Service interface {
	Lookup(ctx context.Context, table, keyColumn, keyValue, column string) any
	LookupWithCondition(ctx context.Context, table, where, column string) any
}

// Backend runs the actual queries. found is false when no row matched.
type Backend interface {
	FindByKey(ctx context.Context, table, keyColumn, keyValue, column string) (value any, found bool, err error)
	FindWhere(ctx context.Context, table, where, column string) (value any, found bool, err error)
}

// ErrUnsupported is returned by backends that cannot run a query form.
var ErrUnsupported = errors.New("lookup not supported by backend")

// nullMarker records a query that returned nothing.
type nullMarker struct{}

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// CachedService is a Service over a Backend with an unbounded, explicitly
// cleared cache. It is safe for concurrent use; two goroutines missing on the
// same key may both query, and the last write wins.
type CachedService struct {
	backend Backend
	logger  logging.Logger
	timeout time.Duration

	mu     sync.RWMutex
	tables map[string]map[string]any

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a CachedService.
type Option func(*CachedService)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *CachedService) { s.logger = logging.OrNop(l) }
}

// WithTimeout sets the per-query timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *CachedService) { s.timeout = d }
}

// NewCachedService wraps backend with a cache.
func NewCachedService(backend Backend, opts ...Option) *CachedService {
	s := &CachedService{
		backend: backend,
		logger:  logging.Nop(),
		timeout: DefaultTimeout,
		tables:  make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns column from the first row of table whose keyColumn equals
// the trimmed keyValue.
func (s *CachedService) Lookup(ctx context.Context, table, keyColumn, keyValue, column string) any {
	if table == "" || keyColumn == "" || column == "" {
		s.logger.Warn("Lookup skipped - missing parameter: table=%s, keyColumn=%s, column=%s", table, keyColumn, column)
		return nil
	}
	keyValue = strings.TrimSpace(keyValue)
	key := "k\x00" + keyColumn + "\x00" + keyValue + "\x00" + column

	return s.cached(table, key, func() (any, bool, error) {
		qctx, cancel := s.queryContext(ctx)
		defer cancel()
		return s.backend.FindByKey(qctx, table, keyColumn, keyValue, column)
	}, func(value any, found bool, err error) {
		switch {
		case err != nil:
			s.logger.Error("Lookup failed: %s.%s where %s=%s: %v", table, column, keyColumn, keyValue, err)
		case !found:
			s.logger.Info("Lookup not found: %s.%s where %s='%s'", table, column, keyColumn, keyValue)
		default:
			s.logger.Debug("Lookup found: %s.%s where %s='%s' => %v", table, column, keyColumn, keyValue, value)
		}
	})
}

// LookupWithCondition returns column from the first row of table matching
// the trimmed, already resolved where clause.
func (s *CachedService) LookupWithCondition(ctx context.Context, table, where, column string) any {
	where = strings.TrimSpace(where)
	if table == "" || where == "" || column == "" {
		s.logger.Warn("Lookup skipped - missing parameter: table=%s, condition=%s, column=%s", table, where, column)
		return nil
	}
	key := "w\x00" + where + "\x00" + column

	return s.cached(table, key, func() (any, bool, error) {
		qctx, cancel := s.queryContext(ctx)
		defer cancel()
		return s.backend.FindWhere(qctx, table, where, column)
	}, func(value any, found bool, err error) {
		switch {
		case err != nil:
			s.logger.Error("Lookup failed: %s.%s where %s: %v", table, column, where, err)
		case !found:
			s.logger.Info("Lookup not found: %s.%s where %s", table, column, where)
		default:
			s.logger.Debug("Lookup found: %s.%s where %s => %v", table, column, where, value)
		}
	})
}

// cached answers from the cache or runs query once and stores the outcome.
// Errors and empty results are both stored as nullMarker.
func (s *CachedService) cached(table, key string, query func() (any, bool, error), report func(any, bool, error)) any {
	s.mu.RLock()
	entry, ok := s.tables[table][key]
	s.mu.RUnlock()

	if ok {
		s.hits.Add(1)
		if _, isNull := entry.(nullMarker); isNull {
			return nil
		}
		return entry
	}

	s.misses.Add(1)
	value, found, err := query()
	report(value, found, err)

	var stored any = nullMarker{}
	if err == nil && found && value != nil {
		stored = value
	}

	s.mu.Lock()
	t, exists := s.tables[table]
	if !exists {
		t = make(map[string]any)
		s.tables[table] = t
	}
	t[key] = stored
	s.mu.Unlock()

	if _, isNull := stored.(nullMarker); isNull {
		return nil
	}
	return stored
}

func (s *CachedService) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ClearAll drops every cached answer.
func (s *CachedService) ClearAll() {
	s.mu.Lock()
	s.tables = make(map[string]map[string]any)
	s.mu.Unlock()
	s.logger.Info("Lookup cache cleared")
}

// ClearTable drops the cached answers for one table.
func (s *CachedService) ClearTable(table string) {
	s.mu.Lock()
	delete(s.tables, table)
	s.mu.Unlock()
	s.logger.Info("Lookup cache cleared for table: %s", table)
}

// Stats returns hit and miss counters and the number of cached entries.
func (s *CachedService) Stats() Stats {
	s.mu.RLock()
	entries := 0
	for _, t := range s.tables {
		entries += len(t)
	}
	s.mu.RUnlock()

	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Entries: entries,
	}
}

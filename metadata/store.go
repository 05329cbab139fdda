// Package metadata caches schema-derived facts for the query rewriter.
//
// All cached values describe the database schema, never a particular
// query, so one store is shared by every rewrite and by concurrent
// callers. The store stays valid until an explicit Flush or, for the
// dimension range cache, until its expiry passes.
package metadata

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/ha1tch/sqlfix/pkg/errors"
	"github.com/ha1tch/sqlfix/pkg/log"
)

const (
	// MaxDimensionTableSize is the row-count ceiling below which a
	// table counts as a small dimension table.
	MaxDimensionTableSize = 10000

	// dimensionRangeTTL bounds the validity of the whole dimension
	// range cache. One timestamp covers every entry.
	dimensionRangeTTL = 10 * time.Second
)

// hllColumnQuery lists every column of type hll as a lowercased
// schema.table.column name. This is the only query this package issues.
const hllColumnQuery = `
select lower(n.nspname || '.' || c.relname || '.' || a.attname) as hll_column
from pg_attribute a
join pg_class c on a.attrelid = c.oid
join pg_namespace n on c.relnamespace = n.oid
join pg_type t on a.atttypid = t.oid
where typname = 'hll'`

// Range is an inclusive numeric key range of a dimension table on the
// fact table.
type Range struct {
	Min int64
	Max int64
}

// Store holds the schema fact caches. The zero value is not usable;
// construct with NewStore.
type Store struct {
	mu sync.Mutex

	// hllColumns is nil until the first successful population. A failed
	// population leaves it nil so the next call retries.
	hllColumns map[string]struct{}

	dimensionTables map[string]bool
	dimensionRanges map[string]Range
	rangesExpiry    time.Time

	logger *log.Logger
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore(logger *log.Logger) *Store {
	return &Store{
		dimensionTables: make(map[string]bool),
		dimensionRanges: make(map[string]Range),
		logger:          logger,
		now:             time.Now,
	}
}

// HyperLogLogColumns returns the set of lowercased schema.table.column
// names whose type is hll, populating the cache from the database on
// first need. When the catalog query fails the error is logged and an
// empty set is returned without being cached, so a later call retries
// instead of permanently assuming the schema has no hll columns.
func (s *Store) HyperLogLogColumns(ctx context.Context, db *sql.DB) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hllColumns != nil {
		return s.hllColumns
	}

	s.logger.Query().Debug(hllColumnQuery)

	columns, err := queryHllColumns(ctx, db)
	if err != nil {
		s.logger.System().Error("hll column lookup failed", err)
		return map[string]struct{}{}
	}

	s.hllColumns = columns
	return columns
}

func queryHllColumns(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, hllColumnQuery)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMetadataQuery, "catalog query failed").
			WithOp("Store.HyperLogLogColumns")
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMetadataScan, "catalog row scan failed").
				WithOp("Store.HyperLogLogColumns")
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMetadataQuery, "catalog row iteration failed").
			WithOp("Store.HyperLogLogColumns")
	}
	return columns, nil
}

// Warm populates the hll column cache ahead of the first rewrite.
// Failures are logged and swallowed, same as lazy population.
func (s *Store) Warm(ctx context.Context, db *sql.DB) {
	s.HyperLogLogColumns(ctx, db)
}

// Flush resets the hll column cache so the next rewrite re-queries the
// catalog. Safe to call concurrently with an in-flight population.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hllColumns = nil
}

// SetDimensionTable records whether the table behind key is a small
// dimension table (fewer than MaxDimensionTableSize rows).
func (s *Store) SetDimensionTable(key string, small bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimensionTables[key] = small
}

// DimensionTable reports the cached classification for key. The second
// result is false when the table has not been classified yet.
func (s *Store) DimensionTable(key string) (small, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	small, ok = s.dimensionTables[key]
	return small, ok
}

// SetDimensionRange records the key range for key. Writing past the
// cache expiry discards every stale entry and re-arms the shared
// expiry; entries are never aged out individually.
func (s *Store) SetDimensionRange(key string, min, max int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().After(s.rangesExpiry) {
		s.dimensionRanges = make(map[string]Range)
		s.rangesExpiry = s.now().Add(dimensionRangeTTL)
	}
	s.dimensionRanges[key] = Range{Min: min, Max: max}
}

// DimensionRange returns the cached range for key. An expired cache
// reports every key as absent.
func (s *Store) DimensionRange(key string) (Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().After(s.rangesExpiry) {
		return Range{}, false
	}
	r, ok := s.dimensionRanges[key]
	return r, ok
}

// Stats is a point-in-time snapshot of cache occupancy for the admin
// status endpoint.
type Stats struct {
	HllPopulated    bool `json:"hll_populated"`
	HllColumns      int  `json:"hll_columns"`
	DimensionTables int  `json:"dimension_tables"`
	DimensionRanges int  `json:"dimension_ranges"`
}

// Stats returns a snapshot of the cache state.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		HllPopulated:    s.hllColumns != nil,
		HllColumns:      len(s.hllColumns),
		DimensionTables: len(s.dimensionTables),
	}
	if !s.now().After(s.rangesExpiry) {
		st.DimensionRanges = len(s.dimensionRanges)
	}
	return st
}

package cache

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/sells-group/marketflow-cli/internal/resilience"
	"github.com/sells-group/marketflow-cli/internal/signature"
)

// DBFileName is the embedded database file created in each cache
// namespace directory, next to the source files it caches.
const DBFileName = "runtime_cache.db"

const storeSchema = `
CREATE TABLE IF NOT EXISTS json_payload_cache (
	filepath     TEXT PRIMARY KEY,
	mtime_ns     INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	payload_json TEXT NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS csv_payload_cache (
	filepath          TEXT NOT NULL,
	usecols_signature TEXT NOT NULL,
	mtime_ns          INTEGER NOT NULL,
	size              INTEGER NOT NULL,
	payload_json      TEXT NOT NULL,
	updated_at        INTEGER NOT NULL,
	PRIMARY KEY (filepath, usecols_signature)
);

CREATE INDEX IF NOT EXISTS idx_json_payload_updated ON json_payload_cache(updated_at);
CREATE INDEX IF NOT EXISTS idx_csv_payload_updated ON csv_payload_cache(updated_at);
`

// StoreOptions configures the persistent tier.
type StoreOptions struct {
	// MaxRows bounds each logical table per database file. Default: 512.
	MaxRows int
	// PruneInterval is the number of writes per table between prune
	// passes. Pruning every write would pay a DELETE scan on each save;
	// amortizing it still enforces MaxRows eventually. Default: 32.
	PruneInterval int
	// Retry governs transient-busy handling. Default: StoreRetryConfig.
	Retry resilience.RetryConfig
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.MaxRows <= 0 {
		o.MaxRows = 512
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = 32
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = resilience.StoreRetryConfig()
	}
	return o
}

// Store is the durable cache tier: one SQLite database per namespace
// directory, one logical table per payload kind. Every operation fails
// soft — a store problem degrades to a cache miss or a dropped write,
// never to a caller-visible error.
type Store struct {
	opts StoreOptions

	mu     sync.Mutex
	dbs    map[string]*sql.DB // namespace dir -> open handle
	ready  map[string]bool    // namespace dir -> schema initialized
	writes map[string]int     // namespace dir + table -> writes since last prune

	sf singleflight.Group

	schemaInits atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
}

// NewStore creates a persistent store. Databases are opened lazily, one
// per namespace directory, on first use.
func NewStore(opts StoreOptions) *Store {
	return &Store{
		opts:   opts.withDefaults(),
		dbs:    make(map[string]*sql.DB),
		ready:  make(map[string]bool),
		writes: make(map[string]int),
	}
}

// EnsureSchema initializes the database for the given namespace
// directory. It is idempotent and single-flight: when N goroutines race
// on a fresh database, exactly one runs the DDL and the rest wait for
// and reuse its result.
func (s *Store) EnsureSchema(ctx context.Context, dir string) error {
	_, err := s.ensureDB(ctx, dir)
	return err
}

func (s *Store) ensureDB(ctx context.Context, dir string) (*sql.DB, error) {
	s.mu.Lock()
	if s.ready[dir] {
		db := s.dbs[dir]
		s.mu.Unlock()
		return db, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do(dir, func() (any, error) {
		// Re-check: a previous flight may have completed while we queued.
		s.mu.Lock()
		if s.ready[dir] {
			db := s.dbs[dir]
			s.mu.Unlock()
			return db, nil
		}
		db := s.dbs[dir]
		s.mu.Unlock()

		if db == nil {
			opened, err := openCacheDB(filepath.Join(dir, DBFileName))
			if err != nil {
				return nil, err
			}
			db = opened
			s.mu.Lock()
			s.dbs[dir] = db
			s.mu.Unlock()
		}

		if _, err := db.ExecContext(ctx, storeSchema); err != nil {
			return nil, eris.Wrapf(err, "cache: init schema in %s", dir)
		}
		s.schemaInits.Add(1)

		s.mu.Lock()
		s.dbs[dir] = db
		s.ready[dir] = true
		s.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func openCacheDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: open %s", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	return db, nil
}

// invalidate clears the ready marker so the next operation re-runs
// schema initialization (the table was dropped externally).
func (s *Store) invalidate(dir string) {
	s.mu.Lock()
	s.ready[dir] = false
	s.mu.Unlock()
}

// Load returns the payload cached for key under exactly the given
// signature. A row whose stored signature differs from the caller's
// current one is a miss, never stale data to be returned.
func (s *Store) Load(ctx context.Context, key Key, sig signature.FileSignature) ([]byte, bool) {
	payload, ok := s.load(ctx, key, sig, true)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return payload, ok
}

func (s *Store) load(ctx context.Context, key Key, sig signature.FileSignature, allowReinit bool) ([]byte, bool) {
	dir := key.Namespace()
	db, err := s.ensureDB(ctx, dir)
	if err != nil {
		zap.L().Debug("cache: store unavailable for load", zap.String("dir", dir), zap.Error(err))
		return nil, false
	}

	var query string
	var args []any
	switch key.Kind {
	case KindCSV:
		query = `SELECT payload_json FROM csv_payload_cache
			WHERE filepath = ? AND usecols_signature = ? AND mtime_ns = ? AND size = ?`
		args = []any{key.Path, key.ProjectionSignature(), sig.MtimeNS, sig.SizeBytes}
	default:
		query = `SELECT payload_json FROM json_payload_cache
			WHERE filepath = ? AND mtime_ns = ? AND size = ?`
		args = []any{key.Path, sig.MtimeNS, sig.SizeBytes}
	}

	payload, err := resilience.DoVal(ctx, s.opts.Retry, func(ctx context.Context) ([]byte, error) {
		var raw []byte
		err := db.QueryRowContext(ctx, query, args...).Scan(&raw)
		return raw, err
	})
	if err == nil {
		return payload, true
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if resilience.IsSchemaMissing(err) && allowReinit {
		// Table dropped externally: invalidate the ready marker,
		// re-initialize once, and retry the read.
		s.invalidate(dir)
		return s.load(ctx, key, sig, false)
	}
	zap.L().Debug("cache: store load failed", zap.String("path", key.Path), zap.Error(err))
	return nil, false
}

// Save upserts the payload for key under sig. Writes are last-writer-wins
// per key; each upsert is a single statement and therefore atomic at the
// row level. Failures are logged and dropped.
func (s *Store) Save(ctx context.Context, key Key, sig signature.FileSignature, payload []byte) {
	s.save(ctx, key, sig, payload, true)
}

func (s *Store) save(ctx context.Context, key Key, sig signature.FileSignature, payload []byte, allowReinit bool) {
	dir := key.Namespace()
	db, err := s.ensureDB(ctx, dir)
	if err != nil {
		zap.L().Debug("cache: store unavailable for save", zap.String("dir", dir), zap.Error(err))
		return
	}

	now := time.Now().UnixNano()
	var stmt string
	var args []any
	table := tableFor(key.Kind)
	switch key.Kind {
	case KindCSV:
		stmt = `INSERT INTO csv_payload_cache (filepath, usecols_signature, mtime_ns, size, payload_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(filepath, usecols_signature) DO UPDATE SET
				mtime_ns = excluded.mtime_ns,
				size = excluded.size,
				payload_json = excluded.payload_json,
				updated_at = excluded.updated_at`
		args = []any{key.Path, key.ProjectionSignature(), sig.MtimeNS, sig.SizeBytes, string(payload), now}
	default:
		stmt = `INSERT INTO json_payload_cache (filepath, mtime_ns, size, payload_json, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(filepath) DO UPDATE SET
				mtime_ns = excluded.mtime_ns,
				size = excluded.size,
				payload_json = excluded.payload_json,
				updated_at = excluded.updated_at`
		args = []any{key.Path, sig.MtimeNS, sig.SizeBytes, string(payload), now}
	}

	err = resilience.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		_, execErr := db.ExecContext(ctx, stmt, args...)
		return execErr
	})
	if err != nil {
		if resilience.IsSchemaMissing(err) && allowReinit {
			s.invalidate(dir)
			s.save(ctx, key, sig, payload, false)
			return
		}
		zap.L().Warn("cache: store save failed", zap.String("path", key.Path), zap.Error(err))
		return
	}

	s.maybePrune(ctx, db, dir, table)
}

func tableFor(kind Kind) string {
	if kind == KindCSV {
		return "csv_payload_cache"
	}
	return "json_payload_cache"
}

// maybePrune runs a prune pass once every PruneInterval writes per table.
func (s *Store) maybePrune(ctx context.Context, db *sql.DB, dir, table string) {
	counterKey := dir + "\x1f" + table

	s.mu.Lock()
	s.writes[counterKey]++
	due := s.writes[counterKey] >= s.opts.PruneInterval
	if due {
		s.writes[counterKey] = 0
	}
	s.mu.Unlock()

	if !due {
		return
	}
	s.pruneTable(ctx, db, table)
}

// pruneTable deletes everything but the MaxRows most recently updated
// rows. Ties on updated_at break toward newer rowids.
func (s *Store) pruneTable(ctx context.Context, db *sql.DB, table string) {
	stmt := `DELETE FROM ` + table + ` WHERE rowid NOT IN (
		SELECT rowid FROM ` + table + ` ORDER BY updated_at DESC, rowid DESC LIMIT ?)`

	err := resilience.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		_, execErr := db.ExecContext(ctx, stmt, s.opts.MaxRows)
		return execErr
	})
	if err != nil {
		zap.L().Warn("cache: prune failed", zap.String("table", table), zap.Error(err))
	}
}

// Prune forces an immediate prune pass on both tables of every open
// database, regardless of the write counters.
func (s *Store) Prune(ctx context.Context) {
	s.mu.Lock()
	open := make(map[string]*sql.DB, len(s.dbs))
	for dir, db := range s.dbs {
		if s.ready[dir] {
			open[dir] = db
		}
	}
	s.mu.Unlock()

	for _, db := range open {
		s.pruneTable(ctx, db, "json_payload_cache")
		s.pruneTable(ctx, db, "csv_payload_cache")
	}
}

// RowCounts reports rows per table for every open database, keyed by
// namespace directory.
func (s *Store) RowCounts(ctx context.Context) map[string]map[string]int {
	s.mu.Lock()
	open := make(map[string]*sql.DB, len(s.dbs))
	for dir, db := range s.dbs {
		if s.ready[dir] {
			open[dir] = db
		}
	}
	s.mu.Unlock()

	counts := make(map[string]map[string]int, len(open))
	for dir, db := range open {
		counts[dir] = make(map[string]int, 2)
		for _, table := range []string{"json_payload_cache", "csv_payload_cache"} {
			var n int
			if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
				zap.L().Debug("cache: row count failed", zap.String("table", table), zap.Error(err))
				continue
			}
			counts[dir][table] = n
		}
	}
	return counts
}

// StoreStats is a point-in-time view of the persistent tier's counters.
type StoreStats struct {
	Hits        int64
	Misses      int64
	SchemaInits int64
}

// Stats returns the store's counters.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		SchemaInits: s.schemaInits.Load(),
	}
}

// Close closes every open database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for dir, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = eris.Wrapf(err, "cache: close db in %s", dir)
		}
		delete(s.dbs, dir)
		delete(s.ready, dir)
	}
	return firstErr
}

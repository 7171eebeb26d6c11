package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketflow-cli/internal/signature"
)

func newTestStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	st := NewStore(opts)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func writeSource(t *testing.T, dir, name string) (string, signature.FileSignature) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("date,buy_value,sell_value\n"), 0o644))
	sig, err := signature.Of(path)
	require.NoError(t, err)
	return path, sig
}

func TestStore_RoundTrip(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()
	path, sig := writeSource(t, dir, "7203.csv")

	key := Key{Path: path, Kind: KindCSV, Projection: []string{"date", "buy_value"}}
	payload := []byte(`{"schema_version":1,"ticker":"7203"}`)

	st.Save(ctx, key, sig, payload)

	got, ok := st.Load(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	// Idempotent: a second load with an unchanged source returns the
	// identical payload.
	again, ok := st.Load(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestStore_SignatureMismatchIsMiss(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()
	path, sig := writeSource(t, dir, "7203.csv")

	key := Key{Path: path, Kind: KindJSON}
	st.Save(ctx, key, sig, []byte("payload"))

	changed := signature.FileSignature{MtimeNS: sig.MtimeNS + 1, SizeBytes: sig.SizeBytes}
	_, ok := st.Load(ctx, key, changed)
	assert.False(t, ok, "old row must not satisfy a load under the new signature")

	_, ok = st.Load(ctx, key, sig)
	assert.True(t, ok)
}

func TestStore_ProjectionSpecificEntries(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()
	path, sig := writeSource(t, dir, "7203.csv")

	full := Key{Path: path, Kind: KindCSV, Projection: []string{"date", "buy_value", "sell_value"}}
	narrow := Key{Path: path, Kind: KindCSV, Projection: []string{"date"}}

	st.Save(ctx, full, sig, []byte("full"))
	st.Save(ctx, narrow, sig, []byte("narrow"))

	got, ok := st.Load(ctx, full, sig)
	require.True(t, ok)
	assert.Equal(t, []byte("full"), got)

	got, ok = st.Load(ctx, narrow, sig)
	require.True(t, ok)
	assert.Equal(t, []byte("narrow"), got)
}

func TestStore_UpsertLastWriterWins(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()
	path, sig := writeSource(t, dir, "7203.csv")

	key := Key{Path: path, Kind: KindJSON}
	st.Save(ctx, key, sig, []byte("v1"))
	st.Save(ctx, key, sig, []byte("v2"))

	got, ok := st.Load(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)

	counts := st.RowCounts(ctx)
	assert.Equal(t, 1, counts[dir]["json_payload_cache"])
}

func TestStore_BoundedGrowth(t *testing.T) {
	const maxRows = 100
	st := newTestStore(t, StoreOptions{MaxRows: maxRows, PruneInterval: 1})
	ctx := context.Background()
	dir := t.TempDir()

	// maxRows + 50 distinct keys; pruning every write keeps the table at
	// its budget throughout.
	for i := 0; i < maxRows+50; i++ {
		path := filepath.Join(dir, fmt.Sprintf("t%04d.csv", i))
		key := Key{Path: path, Kind: KindJSON}
		sig := signature.FileSignature{MtimeNS: int64(i + 1), SizeBytes: 10}
		st.Save(ctx, key, sig, []byte(fmt.Sprintf("payload-%d", i)))
	}

	counts := st.RowCounts(ctx)
	require.Equal(t, maxRows, counts[dir]["json_payload_cache"])

	// The survivors are the most recently updated keys.
	for i := 50; i < maxRows+50; i++ {
		path := filepath.Join(dir, fmt.Sprintf("t%04d.csv", i))
		key := Key{Path: path, Kind: KindJSON}
		sig := signature.FileSignature{MtimeNS: int64(i + 1), SizeBytes: 10}
		_, ok := st.Load(ctx, key, sig)
		assert.True(t, ok, "recent key %d should survive pruning", i)
	}
	_, ok := st.Load(ctx, Key{Path: filepath.Join(dir, "t0000.csv"), Kind: KindJSON},
		signature.FileSignature{MtimeNS: 1, SizeBytes: 10})
	assert.False(t, ok, "oldest key should have been pruned")
}

func TestStore_PruneIsAmortized(t *testing.T) {
	st := newTestStore(t, StoreOptions{MaxRows: 2, PruneInterval: 100})
	ctx := context.Background()
	dir := t.TempDir()

	for i := 0; i < 10; i++ {
		key := Key{Path: filepath.Join(dir, fmt.Sprintf("g%d.csv", i)), Kind: KindJSON}
		st.Save(ctx, key, signature.FileSignature{MtimeNS: int64(i + 1), SizeBytes: 1}, []byte("x"))
	}

	// Under the interval, no prune has run yet.
	counts := st.RowCounts(ctx)
	assert.Equal(t, 10, counts[dir]["json_payload_cache"])

	// A forced prune enforces the budget immediately.
	st.Prune(ctx)
	counts = st.RowCounts(ctx)
	assert.Equal(t, 2, counts[dir]["json_payload_cache"])
}

func TestStore_SingleFlightSchemaInit(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()

	const goroutines = 8
	var wg sync.WaitGroup
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.EnsureSchema(ctx, dir)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "goroutine %d", i)
	}
	assert.Equal(t, int64(1), st.Stats().SchemaInits,
		"exactly one goroutine should have run the DDL")
}

func TestStore_EnsureSchemaIdempotent(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, st.EnsureSchema(ctx, dir))
	require.NoError(t, st.EnsureSchema(ctx, dir))
	assert.Equal(t, int64(1), st.Stats().SchemaInits)
}

func TestStore_RecoversFromDroppedTable(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()
	path, sig := writeSource(t, dir, "7203.csv")

	key := Key{Path: path, Kind: KindJSON}
	st.Save(ctx, key, sig, []byte("payload"))

	// Drop the table out from under the store via a separate handle.
	raw, err := sql.Open("sqlite", filepath.Join(dir, DBFileName))
	require.NoError(t, err)
	_, err = raw.Exec(`DROP TABLE json_payload_cache`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	// The next load re-initializes the schema transparently and reports a
	// miss (the row is gone with the table).
	_, ok := st.Load(ctx, key, sig)
	assert.False(t, ok)
	assert.Equal(t, int64(2), st.Stats().SchemaInits)

	// And the store is usable again.
	st.Save(ctx, key, sig, []byte("payload"))
	got, ok := st.Load(ctx, key, sig)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestStore_DatabasePerNamespace(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dirA := t.TempDir()
	dirB := t.TempDir()
	pathA, sigA := writeSource(t, dirA, "a.csv")
	pathB, sigB := writeSource(t, dirB, "b.csv")

	st.Save(ctx, Key{Path: pathA, Kind: KindJSON}, sigA, []byte("a"))
	st.Save(ctx, Key{Path: pathB, Kind: KindJSON}, sigB, []byte("b"))

	assert.FileExists(t, filepath.Join(dirA, DBFileName))
	assert.FileExists(t, filepath.Join(dirB, DBFileName))
}

func TestStore_ConcurrentSavesSameKey(t *testing.T) {
	st := newTestStore(t, StoreOptions{})
	ctx := context.Background()
	dir := t.TempDir()
	path, sig := writeSource(t, dir, "7203.csv")
	key := Key{Path: path, Kind: KindJSON}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Save(ctx, key, sig, []byte(fmt.Sprintf("writer-%d", i)))
		}(i)
	}
	wg.Wait()

	// Last writer wins; exactly one row remains and it is readable.
	got, ok := st.Load(ctx, key, sig)
	require.True(t, ok)
	assert.Contains(t, string(got), "writer-")
	assert.Equal(t, 1, st.RowCounts(ctx)[dir]["json_payload_cache"])
}

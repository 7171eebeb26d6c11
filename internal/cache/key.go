// Package cache implements the tiered payload cache: a bounded in-memory
// LRU in front of a durable SQLite store co-located with the cached
// source files. Entries are validated by file signature, never by TTL.
package cache

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind selects the logical table a payload is cached in.
type Kind string

const (
	// KindJSON caches whole-file derived payloads keyed by path alone.
	KindJSON Kind = "json"
	// KindCSV caches column-projected payloads; the same source file may
	// hold one entry per projection.
	KindCSV Kind = "csv"
)

// Key is the logical identity of a cached artifact. It derives
// deterministically from caller inputs and is stable across process
// restarts.
type Key struct {
	// Path is the source file the payload was derived from.
	Path string
	// Kind selects the payload table.
	Kind Kind
	// Projection lists the CSV columns the payload was derived from.
	// Ignored for KindJSON. Order does not matter.
	Projection []string
}

// ProjectionSignature returns the canonical, order-insensitive form of
// the projection, used as part of the persistent primary key.
func (k Key) ProjectionSignature() string {
	if k.Kind != KindCSV || len(k.Projection) == 0 {
		return ""
	}
	cols := make([]string, len(k.Projection))
	copy(cols, k.Projection)
	sort.Strings(cols)
	return strings.Join(cols, ",")
}

// memoryKey is the composite key for the in-memory tier.
func (k Key) memoryKey() string {
	return k.Path + "\x1f" + string(k.Kind) + "\x1f" + k.ProjectionSignature()
}

// Namespace is the directory whose runtime_cache.db holds this key.
func (k Key) Namespace() string {
	return filepath.Dir(k.Path)
}

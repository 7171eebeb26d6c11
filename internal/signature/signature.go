// Package signature computes cheap file fingerprints used to validate
// cache entries without reading file content.
package signature

import (
	"os"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when the source file does not exist or cannot
// be stat'd. Callers treat it as "caching disabled for this key", not as
// a fatal error.
var ErrNotFound = eris.New("signature: source file not found")

// FileSignature is a point-in-time fingerprint of a source file.
// Equality of two signatures is necessary, not sufficient, evidence of
// unchanged content: a rewrite that preserves both mtime and size goes
// undetected. That imprecision is accepted in exchange for never reading
// file content on the cache hot path.
type FileSignature struct {
	MtimeNS   int64 `json:"mtime_ns"`
	SizeBytes int64 `json:"size_bytes"`
}

// Zero reports whether the signature is the zero value.
func (s FileSignature) Zero() bool {
	return s.MtimeNS == 0 && s.SizeBytes == 0
}

// Of stats path and returns its signature. A missing or unreadable path
// yields ErrNotFound.
func Of(path string) (FileSignature, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileSignature{}, eris.Wrapf(ErrNotFound, "stat %s", path)
	}
	return FileSignature{
		MtimeNS:   info.ModTime().UnixNano(),
		SizeBytes: info.Size(),
	}, nil
}

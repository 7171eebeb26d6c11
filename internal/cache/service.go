package cache

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/signature"
)

// Service ties the tiers together: signature resolution, the in-memory
// LRU, and the persistent store. It is constructed once per process (or
// per test) and injected into collectors; there is no global instance.
type Service struct {
	mem   *MemoryCache
	store *Store

	memHits   atomic.Int64
	memMisses atomic.Int64
}

// NewService creates a cache service over the given tiers.
func NewService(mem *MemoryCache, store *Store) *Service {
	return &Service{mem: mem, store: store}
}

// Load resolves the current signature for key.Path and walks the tiers:
// memory, then store (promoting a store hit into memory). The returned
// signature is the one the caller must pass back to Save so the payload
// is tagged with the file state it was derived under.
//
// A signature.ErrNotFound error means caching is disabled for this read;
// the caller recomputes from source and skips Save.
func (s *Service) Load(ctx context.Context, key Key) (payload []byte, sig signature.FileSignature, hit bool, err error) {
	sig, err = signature.Of(key.Path)
	if err != nil {
		return nil, signature.FileSignature{}, false, err
	}

	if payload, ok := s.mem.Get(key, sig); ok {
		s.memHits.Add(1)
		return payload, sig, true, nil
	}
	s.memMisses.Add(1)

	if payload, ok := s.store.Load(ctx, key, sig); ok {
		s.mem.Put(key, sig, payload)
		return payload, sig, true, nil
	}

	return nil, sig, false, nil
}

// Save writes the payload through both tiers, tagged with sig.
func (s *Service) Save(ctx context.Context, key Key, sig signature.FileSignature, payload []byte) {
	if sig.Zero() {
		zap.L().Debug("cache: refusing save without signature", zap.String("path", key.Path))
		return
	}
	s.mem.Put(key, sig, payload)
	s.store.Save(ctx, key, sig, payload)
}

// ServiceStats is a point-in-time view of both tiers' counters.
type ServiceStats struct {
	MemoryHits    int64
	MemoryMisses  int64
	MemoryEntries int
	Store         StoreStats
}

// Stats returns hit/miss counters for both tiers.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		MemoryHits:    s.memHits.Load(),
		MemoryMisses:  s.memMisses.Load(),
		MemoryEntries: s.mem.Len(),
		Store:         s.store.Stats(),
	}
}

// Store exposes the persistent tier for maintenance commands.
func (s *Service) Store() *Store {
	return s.store
}

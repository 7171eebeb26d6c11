package cache

import (
	"container/list"
	"sync"

	"github.com/sells-group/marketflow-cli/internal/signature"
)

// MemoryCache is a bounded, signature-validated LRU mapping cache keys to
// payloads. Access promotes an entry; inserting past the bound evicts the
// least-recently-used entry. Eviction never blocks and never fails.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element
}

type memoryEntry struct {
	key     string
	sig     signature.FileSignature
	payload []byte
}

// NewMemoryCache creates an LRU bounded at maxEntries (minimum 1).
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get returns the payload stored under key if its signature matches
// current. A stored entry whose signature differs from the caller's
// current signature is a miss: the check is for validity, not presence.
func (m *MemoryCache) Get(key Key, current signature.FileSignature) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key.memoryKey()]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*memoryEntry)
	if ent.sig != current {
		return nil, false
	}
	m.ll.MoveToFront(el)
	return ent.payload, true
}

// Put stores payload under key tagged with sig, superseding any previous
// entry for the key, and evicts the LRU entry if the bound is exceeded.
func (m *MemoryCache) Put(key Key, sig signature.FileSignature, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk := key.memoryKey()
	if el, ok := m.items[mk]; ok {
		ent := el.Value.(*memoryEntry)
		ent.sig = sig
		ent.payload = payload
		m.ll.MoveToFront(el)
		return
	}

	el := m.ll.PushFront(&memoryEntry{key: mk, sig: sig, payload: payload})
	m.items[mk] = el

	if m.ll.Len() > m.maxEntries {
		oldest := m.ll.Back()
		if oldest != nil {
			m.ll.Remove(oldest)
			delete(m.items, oldest.Value.(*memoryEntry).key)
		}
	}
}

// Len returns the number of resident entries.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

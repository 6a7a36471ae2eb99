package metadata

import (
	"context"
	"sync"
)

// MemoryStore keeps headers pushed by the host.
type MemoryStore struct {
	mu      sync.RWMutex
	headers map[string]Header
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		headers: make(map[string]Header),
	}
}

func (store *MemoryStore) Put(uid string, header Header) {
	normalized := make(Header, len(header))
	for k, v := range header {
		normalized[NormalizeTag(k)] = v
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.headers[uid] = normalized
}

func (store *MemoryStore) Delete(uid string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	_, found := store.headers[uid]
	delete(store.headers, uid)
	return found
}

func (store *MemoryStore) Header(uid string) (Header, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	header, found := store.headers[uid]
	return header, found
}

func (store *MemoryStore) Len() int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.headers)
}

func (store *MemoryStore) HeaderValue(_ context.Context, uid, tagID string) (string, bool) {
	header, found := store.Header(uid)
	if !found {
		return "", false
	}
	value, found := header[tagID]
	return value, found
}

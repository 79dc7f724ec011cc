package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemCache keeps entries in a map. Entries do not survive a restart.
type MemCache struct {
	mutex sync.RWMutex
	db    map[string]CacheEntry
}

func NewMemCache() *MemCache {
	return &MemCache{
		db: make(map[string]CacheEntry),
	}
}

func (m *MemCache) Name() string {
	return "memory"
}

func (m *MemCache) Location() string {
	return "memory"
}

func (m *MemCache) Get(_ context.Context, key string) (CacheEntry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return CacheEntry{}, false, nil
	}
	entry.Bytes = append([]byte(nil), entry.Bytes...)
	return entry, true, nil
}

func (m *MemCache) Put(_ context.Context, ce CacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	ce.Bytes = append([]byte(nil), ce.Bytes...)
	m.db[ce.Key] = ce
	return nil
}

func (m *MemCache) Purge(_ context.Context, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.db[key]
	delete(m.db, key)
	return ok, nil
}

func (m *MemCache) Clear(context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db = make(map[string]CacheEntry)
	return nil
}

func (m *MemCache) All(_ context.Context, prefix string) ([]CacheEntry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries := make([]CacheEntry, 0)
	for key, entry := range m.db {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, entry)
		}
	}
	sortByExpiry(entries)
	return entries, nil
}

func (m *MemCache) Close() error {
	return nil
}

func sortByExpiry(entries []CacheEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Expires.Before(entries[j].Expires)
	})
}

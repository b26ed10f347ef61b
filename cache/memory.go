package cache

import (
	"sort"
	"sync"
	"time"
)

// memoryTier is the bounded, no-I/O memory layer from SPEC_FULL.md §4.3.
// Single writer at a time; readers also take the lock, matching the
// "cache memory map" sharing policy in SPEC_FULL.md §5.
type memoryTier struct {
	mu      sync.Mutex
	entries map[string]*Entry
	used    int64
	maxSize int64
}

func newMemoryTier(maxSize int64) *memoryTier {
	return &memoryTier{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
	}
}

// get returns a copy of the entry, or (nil, false) on miss/expiry. An
// expired entry is reported as a miss without promotion/removal here (the
// periodic sweep owns removal); the memory lock is held only for the
// duration of the map lookup.
func (m *memoryTier) get(key string, now time.Time) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.Expired(now) {
		return nil, false
	}
	e.AccessCount++
	e.LastAccessedAt = now
	cp := *e
	return &cp, true
}

// set inserts or replaces an entry, evicting down to 80% of maxSize first
// if the insert would exceed maxSize. Returns the keys evicted so the
// caller can clean the tag index for them.
func (m *memoryTier) set(e *Entry) (evicted []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[e.Key]; ok {
		m.used -= existing.Size
	}

	if m.used+e.Size > m.maxSize {
		evicted = m.evictLocked(e.Key, e.Size)
	}

	m.entries[e.Key] = e
	m.used += e.Size
	return evicted
}

// evictLocked removes entries in ascending (priority ordinal,
// lastAccessedAt) order until used <= 80% of maxSize, never evicting
// insertingKey itself. Must be called with mu held.
func (m *memoryTier) evictLocked(insertingKey string, incomingSize int64) []string {
	target := int64(float64(m.maxSize) * 0.8)

	type candidate struct {
		key   string
		entry *Entry
	}
	candidates := make([]candidate, 0, len(m.entries))
	for k, e := range m.entries {
		if k == insertingKey {
			continue
		}
		candidates = append(candidates, candidate{k, e})
	}
	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := candidates[i].entry.Priority.Ordinal(), candidates[j].entry.Priority.Ordinal()
		if pi != pj {
			return pi > pj // higher ordinal (lower priority) evicted first
		}
		return candidates[i].entry.LastAccessedAt.Before(candidates[j].entry.LastAccessedAt)
	})

	var evicted []string
	for _, c := range candidates {
		if m.used+incomingSize <= target {
			break
		}
		m.used -= c.entry.Size
		delete(m.entries, c.key)
		evicted = append(evicted, c.key)
	}
	return evicted
}

func (m *memoryTier) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.used -= e.Size
		delete(m.entries, key)
	}
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	m.used = 0
}

func (m *memoryTier) usedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// sweepExpired removes all expired entries and returns their keys.
func (m *memoryTier) sweepExpired(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for k, e := range m.entries {
		if e.Expired(now) {
			expired = append(expired, k)
			m.used -= e.Size
			delete(m.entries, k)
		}
	}
	return expired
}

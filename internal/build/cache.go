// Package build drives initial and incremental site builds. It owns the
// persisted content-hash cache, the output mapping and the post-processing
// applied to composed pages.
package build

import (
	"sync"
	"sync/atomic"

	"github.com/conneroisu/unify/internal/interfaces"
)

// DigestMemo caches content digests by file metadata key with LRU eviction,
// so unchanged files are not re-read within a process.
type DigestMemo struct {
	entries  map[string]*memoEntry
	mutex    sync.Mutex
	capacity int
	// LRU implementation
	head *memoEntry
	tail *memoEntry
	// Statistics tracking (atomic for thread safety)
	hits      int64
	misses    int64
	evictions int64
}

var _ interfaces.CacheStats = (*DigestMemo)(nil)

type memoEntry struct {
	key    string
	digest string
	prev   *memoEntry
	next   *memoEntry
}

// NewDigestMemo creates a memo holding at most capacity digests.
func NewDigestMemo(capacity int) *DigestMemo {
	if capacity <= 0 {
		capacity = 4096
	}
	m := &DigestMemo{
		entries:  make(map[string]*memoEntry),
		capacity: capacity,
		head:     &memoEntry{},
		tail:     &memoEntry{},
	}
	m.head.next = m.tail
	m.tail.prev = m.head
	return m
}

// Get returns the digest stored for key.
func (m *DigestMemo) Get(key string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return "", false
	}
	m.moveToFront(entry)
	atomic.AddInt64(&m.hits, 1)
	return entry.digest, true
}

// Set stores digest for key, evicting the least recently used entry when full.
func (m *DigestMemo) Set(key, digest string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry, ok := m.entries[key]; ok {
		entry.digest = digest
		m.moveToFront(entry)
		return
	}

	for len(m.entries) >= m.capacity && m.tail.prev != m.head {
		lru := m.tail.prev
		m.removeFromList(lru)
		delete(m.entries, lru.key)
		atomic.AddInt64(&m.evictions, 1)
	}

	entry := &memoEntry{key: key, digest: digest}
	m.entries[key] = entry
	m.addToFront(entry)
}

// Clear drops every entry and resets statistics.
func (m *DigestMemo) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries = make(map[string]*memoEntry)
	m.head.next = m.tail
	m.tail.prev = m.head

	atomic.StoreInt64(&m.hits, 0)
	atomic.StoreInt64(&m.misses, 0)
	atomic.StoreInt64(&m.evictions, 0)
}

// LRU doubly-linked list operations
func (m *DigestMemo) addToFront(entry *memoEntry) {
	entry.prev = m.head
	entry.next = m.head.next
	m.head.next.prev = entry
	m.head.next = entry
}

func (m *DigestMemo) removeFromList(entry *memoEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (m *DigestMemo) moveToFront(entry *memoEntry) {
	m.removeFromList(entry)
	m.addToFront(entry)
}

// GetSize returns the number of memoized digests.
func (m *DigestMemo) GetSize() int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return int64(len(m.entries))
}

// GetHits returns the number of memo hits.
func (m *DigestMemo) GetHits() int64 {
	return atomic.LoadInt64(&m.hits)
}

// GetMisses returns the number of memo misses.
func (m *DigestMemo) GetMisses() int64 {
	return atomic.LoadInt64(&m.misses)
}

// GetHitRate returns the hit rate (0.0 to 1.0).
func (m *DigestMemo) GetHitRate() float64 {
	hits := atomic.LoadInt64(&m.hits)
	misses := atomic.LoadInt64(&m.misses)
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// GetEvictions returns the number of evictions.
func (m *DigestMemo) GetEvictions() int64 {
	return atomic.LoadInt64(&m.evictions)
}

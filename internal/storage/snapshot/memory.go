package snapshot

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the in-memory substrate.
const DefaultMaxEntries = 1000

// Memory is a bounded LRU substrate. Reads refresh recency; once full, the
// least recently used entry is evicted on Put.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	order      *list.List // front = most recently used
	items      map[string]*list.Element
	evictions  int64
}

// NewMemory creates an LRU substrate holding at most maxEntries entries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		maxEntries: maxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return Entry{}, false, nil
	}
	m.order.MoveToFront(el)
	return el.Value.(Entry), true, nil
}

func (m *Memory) Put(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[entry.Key]; ok {
		el.Value = entry
		m.order.MoveToFront(el)
		return nil
	}

	m.items[entry.Key] = m.order.PushFront(entry)
	for m.order.Len() > m.maxEntries {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(Entry).Key)
		m.evictions++
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.order.Remove(el)
		delete(m.items, key)
	}
	return nil
}

func (m *Memory) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for el := m.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(Entry); e.FetchedAt.Before(olderThan) {
			m.order.Remove(el)
			delete(m.items, e.Key)
			removed++
		}
		el = next
	}
	return removed, nil
}

// Len returns the number of entries held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Evictions returns how many entries were dropped for capacity.
func (m *Memory) Evictions() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}

func (m *Memory) Close() error {
	return nil
}

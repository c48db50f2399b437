package query

import (
	"container/list"
	"sync"
)

// DefaultMaxTracked bounds how many query identities keep a status.
const DefaultMaxTracked = 512

// statusTable records the last status per query identity, evicting the
// least recently updated settled identity once maxSize is exceeded.
// Identities still fetching are never evicted.
type statusTable struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
}

type statusItem struct {
	key    string
	status Status
}

func newStatusTable(maxSize int) *statusTable {
	if maxSize <= 0 {
		maxSize = DefaultMaxTracked
	}
	return &statusTable{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (t *statusTable) get(key string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.items[key]; ok {
		return elem.Value.(*statusItem).status
	}
	return StatusIdle
}

func (t *statusTable) set(key string, s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.items[key]; ok {
		elem.Value.(*statusItem).status = s
		t.lru.MoveToFront(elem)
	} else {
		t.items[key] = t.lru.PushFront(&statusItem{key: key, status: s})
	}

	for elem := t.lru.Back(); elem != nil && t.lru.Len() > t.maxSize; {
		prev := elem.Prev()
		if item := elem.Value.(*statusItem); item.status != StatusFetching {
			delete(t.items, item.key)
			t.lru.Remove(elem)
		}
		elem = prev
	}
}

func (t *statusTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

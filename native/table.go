package native

import (
	"sync"
	"sync/atomic"
)

// handle ids are unique across every table so that a pointer of one kind is never valid as
// another kind.
var nextHandle atomic.Uintptr

func init() { nextHandle.Store(0x1000) }

type table[T any] struct {
	kind    string
	mu      sync.RWMutex
	items   map[uintptr]*T
	retired map[uintptr]struct{}
}

func newTable[T any](kind string) *table[T] {
	return &table[T]{kind: kind, items: make(map[uintptr]*T), retired: make(map[uintptr]struct{})}
}

// retire marks a live id as torn down by the runtime rather than by its owner. Owners may
// still hold references to it, and releasing those is a no-op.
func (t *table[T]) retire(id uintptr) {
	t.mu.Lock()
	if _, ok := t.items[id]; ok {
		t.retired[id] = struct{}{}
	}
	t.mu.Unlock()
}

func (t *table[T]) isRetired(id uintptr) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.retired[id]
	return ok
}

func (t *table[T]) add(v *T) uintptr {
	id := nextHandle.Add(8)
	t.mu.Lock()
	t.items[id] = v
	t.mu.Unlock()
	return id
}

// get panics on an unknown id: using a freed handle is a caller bug.
func (t *table[T]) get(id uintptr, op string) *T {
	t.mu.RLock()
	v, ok := t.items[id]
	t.mu.RUnlock()
	if !ok {
		panic(invalidHandle(op))
	}
	return v
}

func (t *table[T]) remove(id uintptr, op string) *T {
	t.mu.Lock()
	v, ok := t.items[id]
	delete(t.items, id)
	t.mu.Unlock()
	if !ok {
		panic(invalidHandle(op))
	}
	return v
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func (t *table[T]) snapshot() []*T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*T, 0, len(t.items))
	for _, v := range t.items {
		out = append(out, v)
	}
	return out
}

// Package pool contains the bounded pools that back native payload arenas.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// BoundedPool wraps sync.Pool with bounded capacity, context-aware acquisition and
// double-Put detection.
type BoundedPool struct {
	name     string
	sem      chan struct{}
	pool     sync.Pool
	debug    *debugState
	acquired atomic.Int64
	returned atomic.Int64
}

// NewBoundedPool constructs a bounded pool with the provided capacity and
// constructor. Capacity must be positive and newFunc must return objects that
// satisfy the PooledObject interface.
func NewBoundedPool(name string, capacity int, newFunc func() any) *BoundedPool {
	if name == "" {
		panic("pool name must be non-empty")
	}
	if capacity <= 0 {
		panic(fmt.Sprintf("pool %s: capacity must be positive", name))
	}
	if newFunc == nil {
		panic(fmt.Sprintf("pool %s: newFunc must be provided", name))
	}

	bp := new(BoundedPool)
	bp.name = name
	bp.sem = make(chan struct{}, capacity)
	bp.debug = newDebugState(name)

	for i := 0; i < capacity; i++ {
		bp.sem <- struct{}{}
	}

	bp.pool.New = func() any {
		obj := newFunc()
		po, ok := obj.(PooledObject)
		if !ok {
			panic(fmt.Sprintf("pool %s: object does not implement PooledObject: %T", name, obj))
		}
		return po
	}

	return bp
}

// Get acquires an object from the pool, blocking until one is available or the
// provided context is done. When ctx is nil, a background context is used.
func (p *BoundedPool) Get(ctx context.Context) (PooledObject, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("pool %s: %w", p.name, ctx.Err())
	case <-p.sem:
	}

	po, ok := p.pool.Get().(PooledObject)
	if !ok {
		panic(fmt.Sprintf("pool %s: retrieved object does not implement PooledObject", p.name))
	}

	markAcquired(po)
	p.debug.recordAcquire(po)
	p.acquired.Add(1)
	return po, nil
}

// Put poisons and resets the object, then returns it. It panics if the object is nil
// or was already returned.
func (p *BoundedPool) Put(obj PooledObject) {
	if obj == nil {
		panic(fmt.Sprintf("pool %s: cannot put nil object", p.name))
	}

	ensureReturnable(obj, p.name)
	poison(obj)
	obj.Reset()
	markReturned(obj)
	p.debug.recordRelease(obj)
	p.returned.Add(1)
	p.pool.Put(obj)
	p.release()
}

// Outstanding returns how many objects are currently lent out.
func (p *BoundedPool) Outstanding() int64 {
	return p.acquired.Load() - p.returned.Load()
}

func (p *BoundedPool) release() {
	select {
	case p.sem <- struct{}{}:
	default:
		panic(fmt.Sprintf("pool %s: release called with full semaphore", p.name))
	}
}

func (p *BoundedPool) activeStacks() []string {
	if p == nil {
		return nil
	}
	return p.debug.activeStacks()
}

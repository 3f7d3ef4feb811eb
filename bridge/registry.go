// Package bridge matches native completions and push events back to Go callbacks and owns
// the lifetime of native handles and error values on the Go side.
//
// A callback crosses the boundary as a registry token. One-shot tokens are taken by
// Trampoline exactly once; push tokens stay registered until the native layer frees them
// through FreeUserdata.
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

// Stats counts boxes over the lifetime of a registry.
type Stats struct {
	Created int64
	Freed   int64
}

// Live returns the number of boxes not yet freed.
func (s Stats) Live() int64 { return s.Created - s.Freed }

// Registry maps userdata tokens to boxed Go values. Tokens are never reused.
type Registry struct {
	mu      sync.Mutex
	next    uint64
	boxes   map[ffi.Userdata]any
	created atomic.Int64
	freed   atomic.Int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{boxes: make(map[ffi.Userdata]any)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the trampolines.
func Default() *Registry { return defaultRegistry }

// Box stores v and returns its token. The null token is never issued.
func (r *Registry) Box(v any) ffi.Userdata {
	r.mu.Lock()
	r.next++
	ud := ffi.Userdata(r.next)
	r.boxes[ud] = v
	r.mu.Unlock()
	r.created.Add(1)
	return ud
}

// Take removes the box and returns its value.
func (r *Registry) Take(ud ffi.Userdata) (any, bool) {
	r.mu.Lock()
	v, ok := r.boxes[ud]
	if ok {
		delete(r.boxes, ud)
	}
	r.mu.Unlock()
	if ok {
		r.freed.Add(1)
	}
	return v, ok
}

// Load returns the box without removing it.
func (r *Registry) Load(ud ffi.Userdata) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.boxes[ud]
	return v, ok
}

// Free drops the box and reports whether it existed.
func (r *Registry) Free(ud ffi.Userdata) bool {
	_, ok := r.Take(ud)
	return ok
}

// Len returns the number of live boxes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boxes)
}

// Stats returns the box counters.
func (r *Registry) Stats() Stats {
	return Stats{Created: r.created.Load(), Freed: r.freed.Load()}
}

// BoxValue stores an arbitrary value in the default registry, for example context userdata.
func BoxValue(v any) ffi.Userdata { return defaultRegistry.Box(v) }

// Value returns the value behind a userdata token. The null token yields nil.
func Value(ud ffi.Userdata) any {
	if ud == 0 {
		return nil
	}
	v, ok := defaultRegistry.Load(ud)
	if !ok {
		panic(errs.Invariant("bridge.Value", "unknown userdata"))
	}
	return v
}

// FreeUserdata is the ffi.FreeUserdataFunc handed to the native layer for every token issued
// by this package. Freeing an unknown token is an invariant violation.
func FreeUserdata(ud ffi.Userdata) {
	if ud == 0 {
		return
	}
	if !defaultRegistry.Free(ud) {
		panic(errs.Invariant("bridge.FreeUserdata", "userdata freed twice or never issued"))
	}
}

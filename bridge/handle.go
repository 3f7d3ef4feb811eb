package bridge

import (
	"runtime"
	"sync"

	"github.com/coachpo/longport-go/errs"
)

// Ops are the native lifecycle calls of one reference-counted handle kind.
type Ops[P ~uintptr] struct {
	Kind     string
	Retain   func(P)
	Release  func(P)
	RefCount func(P) uintptr
}

// Handle owns one native reference. Clone retains, Take moves and Release drops the
// reference. The zero value and released handles are null and inert.
type Handle[P ~uintptr] struct {
	mu      sync.Mutex
	ops     *Ops[P]
	ptr     P
	cleanup runtime.Cleanup
	armed   bool
}

type handleRef[P ~uintptr] struct {
	ops *Ops[P]
	ptr P
}

func releaseRef[P ~uintptr](ref handleRef[P]) { ref.ops.Release(ref.ptr) }

// Adopt wraps a reference the caller already owns.
func Adopt[P ~uintptr](ops *Ops[P], ptr P) *Handle[P] {
	if ops == nil && ptr != 0 {
		panic(errs.Invariant("bridge.Adopt", "nil handle ops"))
	}
	h := &Handle[P]{ops: ops, ptr: ptr}
	h.arm()
	return h
}

// Retain takes a new reference on a borrowed pointer and wraps it.
func Retain[P ~uintptr](ops *Ops[P], ptr P) *Handle[P] {
	if ptr != 0 && ops != nil {
		ops.Retain(ptr)
	}
	return Adopt(ops, ptr)
}

// AdoptNew turns the transient reference delivered with a freshly constructed context into
// one owning handle: it retains for the caller and then releases the transient reference.
func AdoptNew[P ~uintptr](ops *Ops[P], ptr P) *Handle[P] {
	h := Retain(ops, ptr)
	if ptr != 0 {
		ops.Release(ptr)
	}
	return h
}

func (h *Handle[P]) arm() {
	if h.ptr == 0 {
		return
	}
	h.cleanup = runtime.AddCleanup(h, releaseRef[P], handleRef[P]{ops: h.ops, ptr: h.ptr})
	h.armed = true
}

func (h *Handle[P]) disarm() {
	if h.armed {
		h.cleanup.Stop()
		h.armed = false
	}
}

// Ptr returns the raw pointer. It must not outlive the handle.
func (h *Handle[P]) Ptr() P {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptr
}

// IsNull reports whether the handle owns nothing.
func (h *Handle[P]) IsNull() bool { return h.Ptr() == 0 }

// Clone retains the native object and returns a second owner.
func (h *Handle[P]) Clone() *Handle[P] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Retain(h.ops, h.ptr)
}

// Take moves the reference into a new handle without touching the count. h becomes null.
func (h *Handle[P]) Take() *Handle[P] {
	h.mu.Lock()
	defer h.mu.Unlock()
	ptr := h.ptr
	h.disarm()
	h.ptr = 0
	return Adopt(h.ops, ptr)
}

// Release drops the reference. Releasing a null handle does nothing.
func (h *Handle[P]) Release() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr == 0 {
		return
	}
	h.disarm()
	ptr := h.ptr
	h.ptr = 0
	h.ops.Release(ptr)
}

// RefCount returns the native count. It is racy and only fit for diagnostics.
func (h *Handle[P]) RefCount() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptr == 0 || h.ops == nil || h.ops.RefCount == nil {
		return 0
	}
	return h.ops.RefCount(h.ptr)
}

// Kind names the handle kind for logs.
func (h *Handle[P]) Kind() string {
	if h == nil || h.ops == nil {
		return ""
	}
	return h.ops.Kind
}

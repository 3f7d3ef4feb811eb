// Package decimal exposes the native arbitrary-precision decimal as a Go value.
//
// The native primitives mutate their first operand. Every operator here clones the receiver
// first and mutates the clone, so a Decimal behaves like an immutable value. The *Assign
// methods are the explicit exception: they mutate the receiver in place.
//
// A Decimal must not be mutated concurrently with other use.
package decimal

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

// Decimal owns one native decimal value.
type Decimal struct {
	mu      sync.Mutex
	lib     ffi.DecimalAPI
	ptr     ffi.DecimalPtr
	cleanup runtime.Cleanup
}

type nativeRef struct {
	lib ffi.DecimalAPI
	ptr ffi.DecimalPtr
}

func freeNative(ref nativeRef) { ref.lib.DecimalFree(ref.ptr) }

func wrap(lib ffi.DecimalAPI, ptr ffi.DecimalPtr) *Decimal {
	d := &Decimal{lib: lib, ptr: ptr}
	d.cleanup = runtime.AddCleanup(d, freeNative, nativeRef{lib: lib, ptr: ptr})
	return d
}

// New returns num * 10^-scale.
func New(num int64, scale uint32) *Decimal {
	lib := ffi.Lib()
	return wrap(lib, lib.DecimalNew(num, scale))
}

// NewFromInt returns an integral decimal.
func NewFromInt(v int64) *Decimal { return New(v, 0) }

// NewFromString parses a decimal such as "12.340" or "-1e3".
func NewFromString(s string) (*Decimal, error) {
	lib := ffi.Lib()
	ptr := lib.DecimalFromString(ffi.CStringOf(s))
	if ptr == 0 {
		return nil, errs.New("decimal.from_string", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("can't convert %q to decimal", s)))
	}
	return wrap(lib, ptr), nil
}

// RequireFromString is NewFromString for constants. It panics on malformed input.
func RequireFromString(s string) *Decimal {
	d, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewFromFloat converts v. NaN and infinities are rejected.
func NewFromFloat(v float64) (*Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errs.New("decimal.from_float", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("can't convert %v to decimal", v)))
	}
	lib := ffi.Lib()
	ptr := lib.DecimalFromDouble(v)
	if ptr == 0 {
		return nil, errs.New("decimal.from_float", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("can't convert %v to decimal", v)))
	}
	return wrap(lib, ptr), nil
}

// FromNative clones a borrowed native decimal, typically an envelope field. Null maps to nil.
func FromNative(lib ffi.DecimalAPI, ptr ffi.DecimalPtr) *Decimal {
	if ptr == 0 {
		return nil
	}
	return wrap(lib, lib.DecimalClone(ptr))
}

// Native returns the borrowed native pointer for request construction. nil maps to null.
// The caller keeps d alive until the native call returns.
func Native(d *Decimal) ffi.DecimalPtr {
	if d == nil {
		return 0
	}
	return d.native("decimal.native")
}

func (d *Decimal) native(op string) ffi.DecimalPtr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr == 0 {
		panic(errs.Invariant(op, "use of a freed decimal"))
	}
	return d.ptr
}

// Free releases the native value now instead of waiting for the garbage collector.
func (d *Decimal) Free() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr == 0 {
		return
	}
	d.cleanup.Stop()
	d.lib.DecimalFree(d.ptr)
	d.ptr = 0
}

// Clone returns an independent copy.
func (d *Decimal) Clone() *Decimal {
	ptr := d.native("decimal.clone")
	out := wrap(d.lib, d.lib.DecimalClone(ptr))
	runtime.KeepAlive(d)
	return out
}

// Float64 converts to the nearest float64.
func (d *Decimal) Float64() float64 {
	v := d.lib.DecimalToDouble(d.native("decimal.to_double"))
	runtime.KeepAlive(d)
	return v
}

// String formats the value keeping its scale, so "12.340" stays "12.340".
func (d *Decimal) String() string {
	if d == nil {
		return "<nil>"
	}
	// The native string lives until the next call on the value, so the copy happens under
	// the lock.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr == 0 {
		panic(errs.Invariant("decimal.to_string", "use of a freed decimal"))
	}
	return ffi.GoString(d.lib.DecimalToString(d.ptr))
}

// MarshalText implements encoding.TextMarshaler.
func (d *Decimal) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decimal) UnmarshalText(text []byte) error {
	parsed, err := NewFromString(string(text))
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr != 0 {
		d.cleanup.Stop()
		d.lib.DecimalFree(d.ptr)
	}
	parsed.mu.Lock()
	parsed.cleanup.Stop()
	d.lib, d.ptr = parsed.lib, parsed.ptr
	parsed.ptr = 0
	parsed.mu.Unlock()
	d.cleanup = runtime.AddCleanup(d, freeNative, nativeRef{lib: d.lib, ptr: d.ptr})
	return nil
}

func (d *Decimal) unary(op string, fn func(ffi.DecimalPtr)) *Decimal {
	out := d.Clone()
	fn(out.native(op))
	runtime.KeepAlive(out)
	return out
}

func (d *Decimal) binary(op string, o *Decimal, fn func(a, b ffi.DecimalPtr)) *Decimal {
	out := d.Clone()
	fn(out.native(op), o.native(op))
	runtime.KeepAlive(out)
	runtime.KeepAlive(o)
	return out
}

func (d *Decimal) assign(op string, o *Decimal, fn func(a, b ffi.DecimalPtr)) *Decimal {
	fn(d.native(op), o.native(op))
	runtime.KeepAlive(o)
	return d
}

func (d *Decimal) predicate(op string, fn func(ffi.DecimalPtr) bool) bool {
	v := fn(d.native(op))
	runtime.KeepAlive(d)
	return v
}

func (d *Decimal) compare(op string, o *Decimal, fn func(a, b ffi.DecimalPtr) bool) bool {
	v := fn(d.native(op), o.native(op))
	runtime.KeepAlive(d)
	runtime.KeepAlive(o)
	return v
}

package bridge

import (
	"unsafe"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

// Result is what a one-shot callback receives. Context is valid for the callback's
// duration only; Data is an owned copy of the payload and is the zero value on failure.
type Result[C any, T any] struct {
	Op      string
	Context C
	Status  *Status
	Data    T
}

// IsOK reports success.
func (r Result[C, T]) IsOK() bool { return r.Status.IsOK() }

// IsErr reports failure.
func (r Result[C, T]) IsErr() bool { return r.Status.IsErr() }

// Err returns the failure as an *errs.E, or nil.
func (r Result[C, T]) Err() error { return r.Status.Err(r.Op) }

// Adopter turns the envelope context into the value handed to the callback. The returned
// function runs after the callback returns.
type Adopter[C any] func(ctx uintptr) (C, func())

// Converter copies a borrowed payload into Go memory. It runs inside the trampoline and only
// on success.
type Converter[T any] func(data unsafe.Pointer, length uintptr) T

type delivery interface {
	deliver(res *ffi.AsyncResult)
}

type oneShot[C any, T any] struct {
	op      string
	lib     ffi.ErrorAPI
	adopt   Adopter[C]
	convert Converter[T]
	cb      func(Result[C, T])
}

// Call boxes cb for one native completion and returns the token to pass with Trampoline.
// adopt and convert may be nil when the call has no context or no payload.
func Call[C any, T any](op string, lib ffi.ErrorAPI, adopt Adopter[C], convert Converter[T], cb func(Result[C, T])) ffi.Userdata {
	if cb == nil {
		cb = func(Result[C, T]) {}
	}
	return defaultRegistry.Box(&oneShot[C, T]{op: op, lib: lib, adopt: adopt, convert: convert, cb: cb})
}

func (o *oneShot[C, T]) deliver(res *ffi.AsyncResult) {
	r := Result[C, T]{Op: o.op, Status: Borrowed(o.lib, res.Error)}
	if o.adopt != nil && res.Ctx != 0 {
		ctx, done := o.adopt(res.Ctx)
		if done != nil {
			defer done()
		}
		r.Context = ctx
	}
	if r.Status.IsOK() && o.convert != nil {
		r.Data = o.convert(res.Data, res.Length)
	}
	o.cb(r)
}

// Trampoline is the ffi.AsyncCallback for every one-shot call. It takes the box registered by
// Call, converts the envelope and invokes the callback. A token delivered twice panics.
func Trampoline(res *ffi.AsyncResult) {
	if res == nil {
		panic(errs.Invariant("bridge.Trampoline", "nil envelope"))
	}
	v, ok := defaultRegistry.Take(res.Userdata)
	if !ok {
		panic(errs.Invariant("bridge.Trampoline", "userdata delivered twice or never issued"))
	}
	d, ok := v.(delivery)
	if !ok {
		panic(errs.Invariant("bridge.Trampoline", "userdata is not a one-shot callback"))
	}
	d.deliver(res)
}

// Array converts length elements of a borrowed native array. A zero length yields an empty,
// non-nil slice and data is not read.
func Array[S any, T any](convert func(*S) T) Converter[[]T] {
	return func(data unsafe.Pointer, length uintptr) []T {
		src := ffi.SliceOf[S](data, length)
		out := make([]T, 0, len(src))
		for i := range src {
			out = append(out, convert(&src[i]))
		}
		return out
	}
}

// Single converts a payload holding exactly one native struct. A null payload is an
// invariant violation.
func Single[S any, T any](convert func(*S) T) Converter[T] {
	return func(data unsafe.Pointer, _ uintptr) T {
		if data == nil {
			panic(errs.Invariant("bridge.Single", "null payload on success"))
		}
		return convert((*S)(data))
	}
}

// Borrow wraps a borrowed context pointer for the duration of a callback. The adopted handle
// holds its own reference, released when the callback returns.
func Borrow[P ~uintptr, C any](ops *Ops[P], wrap func(*Handle[P]) C) Adopter[C] {
	return func(ctx uintptr) (C, func()) {
		h := Retain(ops, P(ctx))
		return wrap(h), h.Release
	}
}

package bridge

import (
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

type pushBox[P ~uintptr, E any] struct {
	fn func(ctx P, ev *E)
}

// Push boxes a streaming callback. The token is registered with the native layer together
// with FreeUserdata, which releases the box on replacement or context destruction.
func Push[P ~uintptr, E any](fn func(ctx P, ev *E)) ffi.Userdata {
	return defaultRegistry.Box(&pushBox[P, E]{fn: fn})
}

// Deliver is the push trampoline. Instantiated per event type, it matches the ffi push
// function types, for example Deliver[ffi.QuoteContextPtr, ffi.CPushQuote]. The box stays
// registered after the call.
func Deliver[P ~uintptr, E any](ctx P, ev *E, ud ffi.Userdata) {
	v, ok := defaultRegistry.Load(ud)
	if !ok {
		panic(errs.Invariant("bridge.Deliver", "push userdata not registered"))
	}
	box, ok := v.(*pushBox[P, E])
	if !ok {
		panic(errs.Invariant("bridge.Deliver", "push userdata has the wrong event type"))
	}
	if ev == nil {
		panic(errs.Invariant("bridge.Deliver", "nil push event"))
	}
	box.fn(ctx, ev)
}

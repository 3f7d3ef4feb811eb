package native

import (
	"context"
	"fmt"
	"net/http"
	"unsafe"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/observability"
	"github.com/coachpo/longport-go/internal/pool"
)

// payload is the successful outcome of a one-shot operation. Its memory belongs to the
// arena the operation ran with.
type payload struct {
	data   unsafe.Pointer
	length uintptr
	// ctx replaces the envelope context; construction calls use it to hand out the new one.
	ctx uintptr
}

func none() (payload, error) { return payload{}, nil }

// one wraps a single struct.
func one[T any](v *T) payload { return payload{data: unsafe.Pointer(v), length: 1} }

// many wraps an arena array. An empty array still carries a non-null data pointer.
func many[T any](items []T) payload {
	if len(items) == 0 {
		return payload{data: unsafe.Pointer(&emptyPayload), length: 0}
	}
	return payload{data: unsafe.Pointer(&items[0]), length: uintptr(len(items))}
}

var emptyPayload [8]byte

type operation func(ctx context.Context, a *pool.Arena) (payload, error)

// ref keeps the context of an in-flight call alive.
type ref interface {
	retain()
	release()
}

var errUnavailable = errs.FromNative("native", 503, "native runtime unavailable")

// executeAsync runs op on the worker pool and reports the outcome through cb exactly once.
// The context pointer is retained until cb has returned. When the pool refuses the work the
// failure still goes through cb, from a runtime goroutine.
func (l *Library) executeAsync(name string, ctx uintptr, r ref, cb ffi.AsyncCallback, ud ffi.Userdata, op operation) {
	if cb == nil {
		panic(errs.Invariant(name, "nil callback"))
	}
	if r != nil {
		r.retain()
	}
	done := func() {
		if r != nil {
			r.release()
		}
	}
	task := func(taskCtx context.Context) error {
		defer done()
		l.complete(taskCtx, name, ctx, cb, ud, op)
		return nil
	}
	if l.closed.Load() {
		l.wg.Go(func() {
			defer done()
			l.deliver(name, ctx, cb, ud, payload{}, errUnavailable)
		})
		return
	}
	if err := l.workers.Submit(l.ctx, task); err != nil {
		observability.Log().Debug("native call rejected", observability.F("op", name), observability.Err(err))
		l.wg.Go(func() {
			defer done()
			l.deliver(name, ctx, cb, ud, payload{}, errUnavailable)
		})
	}
}

func (l *Library) complete(ctx context.Context, name string, handle uintptr, cb ffi.AsyncCallback, ud ffi.Userdata, op operation) {
	arena, release, err := l.acquireArena(ctx)
	if err != nil {
		observability.Log().Warn("native arena unavailable", observability.F("op", name), observability.Err(err))
		l.deliver(name, handle, cb, ud, payload{}, errUnavailable)
		return
	}
	defer release()
	if err := l.takeFault(name); err != nil {
		l.deliver(name, handle, cb, ud, payload{}, err)
		return
	}
	out, err := l.run(ctx, name, arena, op)
	l.deliver(name, handle, cb, ud, out, err)
}

// run turns a panicking operation into a failed outcome, so the callback still runs once.
func (l *Library) run(ctx context.Context, name string, arena *pool.Arena, op operation) (out payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("native operation panicked",
				observability.F("op", name),
				observability.F("panic", fmt.Sprint(r)),
			)
			out = payload{}
			err = errs.New(name, errs.CodeSDK,
				errs.WithNativeCode(http.StatusInternalServerError),
				errs.WithMessage(fmt.Sprintf("internal error: %v", r)),
			)
		}
	}()
	return op(ctx, arena)
}

// FailNext makes the next call of op (for example "trade_context.submit_order") complete
// with the given native error instead of running.
func (l *Library) FailNext(op string, code int64, message string) {
	l.faultMu.Lock()
	defer l.faultMu.Unlock()
	if l.faults == nil {
		l.faults = make(map[string][]error)
	}
	l.faults[op] = append(l.faults[op], apiError(code, message))
}

func (l *Library) takeFault(op string) error {
	l.faultMu.Lock()
	defer l.faultMu.Unlock()
	queued := l.faults[op]
	if len(queued) == 0 {
		return nil
	}
	err := queued[0]
	if len(queued) == 1 {
		delete(l.faults, op)
	} else {
		l.faults[op] = queued[1:]
	}
	return err
}

func (l *Library) acquireArena(ctx context.Context) (*pool.Arena, func(), error) {
	arena, release, err := l.arenas.Acquire(ctx, l.opts.ArenaTimeout)
	if err != nil {
		return nil, nil, err
	}
	l.metrics.arena(1)
	return arena, func() {
		release()
		l.metrics.arena(-1)
	}, nil
}

// deliver builds the envelope and invokes cb. The error value is freed when cb returns.
func (l *Library) deliver(name string, handle uintptr, cb ffi.AsyncCallback, ud ffi.Userdata, out payload, err error) {
	res := ffi.AsyncResult{Ctx: handle, Userdata: ud}
	if out.ctx != 0 {
		res.Ctx = out.ctx
	}
	if err != nil {
		res.Error = l.newError(err)
		defer l.ErrorFree(res.Error)
	} else {
		res.Data = out.data
		res.Length = out.length
	}
	l.metrics.call(name, err != nil)
	cb(&res)
}

func pointerOf(p *byte) unsafe.Pointer { return unsafe.Pointer(p) }

package native

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/config"
	"github.com/coachpo/longport-go/internal/observability"
	"github.com/coachpo/longport-go/internal/pool"
)

const maxPendingPushes = 4096

// slot is one registered push callback together with the userdata the runtime now owns.
type slot struct {
	cb   any
	ud   ffi.Userdata
	free ffi.FreeUserdataFunc
}

func (s slot) release() {
	if s.free != nil && s.ud != 0 {
		s.free(s.ud)
	}
}

// callbacks holds the push slots of a context. A slot replaced while an event is being
// delivered is retired and freed once that delivery has returned.
type callbacks struct {
	mu         sync.Mutex
	active     map[string]slot
	delivering bool
	retired    []slot
	closed     bool
}

func (c *callbacks) set(event string, s slot) {
	c.mu.Lock()
	old, had := c.active[event]
	if c.closed {
		c.mu.Unlock()
		s.release()
		return
	}
	if c.active == nil {
		c.active = make(map[string]slot)
	}
	if s.cb == nil {
		delete(c.active, event)
	} else {
		c.active[event] = s
	}
	if had && c.delivering {
		c.retired = append(c.retired, old)
		had = false
	}
	c.mu.Unlock()
	if had {
		old.release()
	}
	if s.cb == nil {
		s.release()
	}
}

func (c *callbacks) begin(event string) (slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.active[event]
	if ok {
		c.delivering = true
	}
	return s, ok
}

func (c *callbacks) end() {
	c.mu.Lock()
	c.delivering = false
	retired := c.retired
	c.retired = nil
	c.mu.Unlock()
	for _, s := range retired {
		s.release()
	}
}

func (c *callbacks) clear() {
	c.mu.Lock()
	c.closed = true
	all := c.retired
	for _, s := range c.active {
		all = append(all, s)
	}
	c.active = nil
	c.retired = nil
	c.mu.Unlock()
	for _, s := range all {
		s.release()
	}
}

type pushEvent struct {
	name string
	emit func(a *pool.Arena, s slot)
}

// contextCore is the part shared by quote and trade contexts: the reference count, the
// userdata, the push slots and the delivery goroutine. Push events for one context are
// delivered in order on that goroutine, and the context is torn down there once the last
// reference is released.
type contextCore struct {
	l        *Library
	kind     string
	id       uintptr
	refs     atomic.Int64
	settings config.Settings
	limiter  *rate.Limiter

	mu           sync.Mutex
	userdata     ffi.Userdata
	freeUserdata ffi.FreeUserdataFunc

	slots callbacks

	qmu      sync.Mutex
	queue    []pushEvent
	wake     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	detach   func()
}

func newContextCore(l *Library, kind string, s config.Settings, limiter *rate.Limiter) *contextCore {
	c := &contextCore{
		l:        l,
		kind:     kind,
		settings: s,
		limiter:  limiter,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	c.refs.Store(1)
	return c
}

// start registers the context id and launches its delivery goroutine. detach removes the
// context from its table during teardown.
func (c *contextCore) start(id uintptr, detach func()) {
	c.id = id
	c.detach = detach
	c.l.metrics.handle(c.kind, 1)
	c.l.wg.Go(c.run)
}

func (c *contextCore) retain() {
	for {
		n := c.refs.Load()
		if n <= 0 {
			panic(invalidHandle(c.kind + "_retain"))
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// tryRetain takes a reference unless the last one is already gone. Push delivery uses it so
// that handlers always see a live context.
func (c *contextCore) tryRetain() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (c *contextCore) release() {
	n := c.refs.Add(-1)
	switch {
	case n < 0:
		panic(errs.Invariant(c.kind+"_release", "reference count below zero"))
	case n == 0:
		c.stop()
	}
}

func (c *contextCore) refCount() uintptr {
	n := c.refs.Load()
	if n < 0 {
		return 0
	}
	return uintptr(n)
}

// stop never blocks. Pending events are dropped and teardown runs on the delivery goroutine.
func (c *contextCore) stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

func (c *contextCore) setUserdata(ud ffi.Userdata) {
	c.mu.Lock()
	old, free := c.userdata, c.freeUserdata
	c.userdata = ud
	c.mu.Unlock()
	if old != 0 && old != ud && free != nil {
		free(old)
	}
}

func (c *contextCore) getUserdata() ffi.Userdata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userdata
}

func (c *contextCore) setFreeUserdata(f ffi.FreeUserdataFunc) {
	c.mu.Lock()
	c.freeUserdata = f
	c.mu.Unlock()
}

// enqueue schedules an event. The oldest pending event is dropped when the queue is full.
func (c *contextCore) enqueue(name string, emit func(a *pool.Arena, s slot)) {
	c.qmu.Lock()
	if len(c.queue) >= maxPendingPushes {
		observability.Log().Warn("push queue full, dropping event",
			observability.F("context", c.kind),
			observability.F("event", c.queue[0].name),
		)
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, pushEvent{name: name, emit: emit})
	c.qmu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *contextCore) pop() (pushEvent, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return pushEvent{}, false
	}
	ev := c.queue[0]
	c.queue[0] = pushEvent{}
	c.queue = c.queue[1:]
	return ev, true
}

func (c *contextCore) run() {
	defer c.teardown()
	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		}
		for {
			select {
			case <-c.quit:
				return
			default:
			}
			ev, ok := c.pop()
			if !ok {
				break
			}
			c.dispatch(ev)
		}
	}
}

func (c *contextCore) dispatch(ev pushEvent) {
	if !c.tryRetain() {
		return
	}
	defer c.release()
	s, ok := c.slots.begin(ev.name)
	if !ok {
		return
	}
	defer c.slots.end()
	arena, release, err := c.l.acquireArena(c.l.ctx)
	if err != nil {
		observability.Log().Warn("push dropped, no arena", observability.F("event", ev.name), observability.Err(err))
		return
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			observability.Log().Error("push callback panicked",
				observability.F("context", c.kind),
				observability.F("event", ev.name),
				observability.Err(fmt.Errorf("%v", r)),
			)
		}
	}()
	c.l.metrics.push(ev.name)
	ev.emit(arena, s)
}

func (c *contextCore) teardown() {
	c.qmu.Lock()
	c.queue = nil
	c.qmu.Unlock()
	c.slots.clear()
	c.mu.Lock()
	ud, free := c.userdata, c.freeUserdata
	c.userdata = 0
	c.mu.Unlock()
	if ud != 0 && free != nil {
		free(ud)
	}
	if c.detach != nil {
		c.detach()
	}
	c.l.metrics.handle(c.kind, -1)
	observability.Log().Debug("context destroyed", observability.F("context", c.kind))
}

// wait applies the per-context request rate.
func (c *contextCore) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.New(c.kind, errs.CodeRateLimited,
			errs.WithNativeCode(429),
			errs.WithMessage("request rate exceeded"),
			errs.WithCause(err),
		)
	}
	return nil
}

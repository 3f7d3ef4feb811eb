package quote

import (
	"runtime"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/ffi"
)

// Handler receives one push event together with the context it fired on. The context is
// borrowed for the duration of the call; Clone it to keep it.
type Handler[T any] func(ctx *Context, ev T)

// handler adapts fn to the native push signature. It captures the library and ops rather than
// the owning Context so that a registered handler never keeps its owner reachable.
func handler[E any, T any](lib ffi.Library, ops *bridge.Ops[ffi.QuoteContextPtr], convert func(*E) T, fn Handler[T]) func(ffi.QuoteContextPtr, *E) {
	borrow := bridge.Borrow(ops, func(h *bridge.Handle[ffi.QuoteContextPtr]) *Context {
		return newContext(lib, ops, h)
	})
	return func(ptr ffi.QuoteContextPtr, ev *E) {
		ctx, done := borrow(uintptr(ptr))
		defer done()
		fn(ctx, convert(ev))
	}
}

// Each On* call replaces the previous handler of that event. A nil handler stops the pushes.

func (c *Context) OnQuote(fn Handler[PushQuote]) {
	ptr := c.ptr("quote.set_on_quote")
	if fn == nil {
		c.lib.QuoteContextSetOnQuote(ptr, nil, 0, nil)
		return
	}
	ud := bridge.Push(handler(c.lib, c.ops, c.conv.pushQuote, fn))
	c.lib.QuoteContextSetOnQuote(ptr, bridge.Deliver[ffi.QuoteContextPtr, ffi.CPushQuote], ud, bridge.FreeUserdata)
	runtime.KeepAlive(c.h)
}

func (c *Context) OnDepth(fn Handler[PushDepth]) {
	ptr := c.ptr("quote.set_on_depth")
	if fn == nil {
		c.lib.QuoteContextSetOnDepth(ptr, nil, 0, nil)
		return
	}
	ud := bridge.Push(handler(c.lib, c.ops, c.conv.pushDepth, fn))
	c.lib.QuoteContextSetOnDepth(ptr, bridge.Deliver[ffi.QuoteContextPtr, ffi.CPushDepth], ud, bridge.FreeUserdata)
	runtime.KeepAlive(c.h)
}

func (c *Context) OnBrokers(fn Handler[PushBrokers]) {
	ptr := c.ptr("quote.set_on_brokers")
	if fn == nil {
		c.lib.QuoteContextSetOnBrokers(ptr, nil, 0, nil)
		return
	}
	ud := bridge.Push(handler(c.lib, c.ops, pushBrokers, fn))
	c.lib.QuoteContextSetOnBrokers(ptr, bridge.Deliver[ffi.QuoteContextPtr, ffi.CPushBrokers], ud, bridge.FreeUserdata)
	runtime.KeepAlive(c.h)
}

func (c *Context) OnTrades(fn Handler[PushTrades]) {
	ptr := c.ptr("quote.set_on_trades")
	if fn == nil {
		c.lib.QuoteContextSetOnTrades(ptr, nil, 0, nil)
		return
	}
	ud := bridge.Push(handler(c.lib, c.ops, c.conv.pushTrades, fn))
	c.lib.QuoteContextSetOnTrades(ptr, bridge.Deliver[ffi.QuoteContextPtr, ffi.CPushTrades], ud, bridge.FreeUserdata)
	runtime.KeepAlive(c.h)
}

// OnCandlestick receives bars of the periods subscribed with SubscribeCandlesticks.
func (c *Context) OnCandlestick(fn Handler[PushCandlestick]) {
	ptr := c.ptr("quote.set_on_candlestick")
	if fn == nil {
		c.lib.QuoteContextSetOnCandlestick(ptr, nil, 0, nil)
		return
	}
	ud := bridge.Push(handler(c.lib, c.ops, c.conv.pushCandlestick, fn))
	c.lib.QuoteContextSetOnCandlestick(ptr, bridge.Deliver[ffi.QuoteContextPtr, ffi.CPushCandlestick], ud, bridge.FreeUserdata)
	runtime.KeepAlive(c.h)
}

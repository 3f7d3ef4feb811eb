// Package quote is the Go binding of the native quote context.
//
// Every query is asynchronous: the callback runs once on a native goroutine with the context
// the call ran on, the outcome and an owned copy of the payload. The context inside a Result
// is only valid during the callback; Clone it to keep it. Push handlers run on the context's
// delivery goroutine, in arrival order.
package quote

import (
	"runtime"
	"time"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/config"
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

// Context owns one reference to a native quote context.
type Context struct {
	lib  ffi.Library
	ops  *bridge.Ops[ffi.QuoteContextPtr]
	conv converter
	h    *bridge.Handle[ffi.QuoteContextPtr]
}

// Callback receives the single completion of a call.
type Callback[T any] func(bridge.Result[*Context, T])

func opsFor(lib ffi.QuoteAPI) *bridge.Ops[ffi.QuoteContextPtr] {
	return &bridge.Ops[ffi.QuoteContextPtr]{
		Kind:     "quote_context",
		Retain:   lib.QuoteContextRetain,
		Release:  lib.QuoteContextRelease,
		RefCount: lib.QuoteContextRefCount,
	}
}

func newContext(lib ffi.Library, ops *bridge.Ops[ffi.QuoteContextPtr], h *bridge.Handle[ffi.QuoteContextPtr]) *Context {
	return &Context{lib: lib, ops: ops, conv: converter{lib: lib}, h: h}
}

// New connects a quote context. On success the callback's Context is owned by the caller,
// who releases it with Release.
func New(cfg *config.Config, cb Callback[struct{}]) {
	lib := ffi.Lib()
	ops := opsFor(lib)
	adopt := func(ctx uintptr) (*Context, func()) {
		return newContext(lib, ops, bridge.AdoptNew(ops, ffi.QuoteContextPtr(ctx))), nil
	}
	ptr := cfg.Ptr()
	ud := bridge.Call[*Context, struct{}]("quote.new", lib, adopt, nil, cb)
	lib.QuoteContextNew(ptr, bridge.Trampoline, ud)
	runtime.KeepAlive(cfg)
}

func (c *Context) ptr(op string) ffi.QuoteContextPtr {
	p := c.h.Ptr()
	if p == 0 {
		panic(errs.Invariant(op, "use of a released quote context"))
	}
	return p
}

func (c *Context) borrow(ctx uintptr) (*Context, func()) {
	return bridge.Borrow(c.ops, func(h *bridge.Handle[ffi.QuoteContextPtr]) *Context {
		return newContext(c.lib, c.ops, h)
	})(ctx)
}

func invoke[T any](c *Context, op string, convert bridge.Converter[T], cb Callback[T], start func(ptr ffi.QuoteContextPtr, ud ffi.Userdata)) {
	ptr := c.ptr(op)
	ud := bridge.Call[*Context, T](op, c.lib, c.borrow, convert, cb)
	start(ptr, ud)
	runtime.KeepAlive(c.h)
}

// Clone returns a second owner of the same native context.
func (c *Context) Clone() *Context { return newContext(c.lib, c.ops, c.h.Clone()) }

// Release drops this owner's reference. The native context is destroyed with its last
// reference, which also frees its push handlers and userdata.
func (c *Context) Release() { c.h.Release() }

// RefCount is the native reference count, for diagnostics.
func (c *Context) RefCount() uintptr { return c.h.RefCount() }

// SetUserdata attaches v to the native context. The previous value is dropped.
func (c *Context) SetUserdata(v any) {
	ptr := c.ptr("quote.set_userdata")
	c.lib.QuoteContextSetFreeUserdataFunc(ptr, bridge.FreeUserdata)
	var ud ffi.Userdata
	if v != nil {
		ud = bridge.BoxValue(v)
	}
	c.lib.QuoteContextSetUserdata(ptr, ud)
	runtime.KeepAlive(c.h)
}

// Userdata returns the value set by SetUserdata, or nil.
func (c *Context) Userdata() any {
	v := bridge.Value(c.lib.QuoteContextUserdata(c.ptr("quote.userdata")))
	runtime.KeepAlive(c.h)
	return v
}

// MemberID is the member id of the account the context is logged in as.
func (c *Context) MemberID() int64 {
	v := c.lib.QuoteContextMemberID(c.ptr("quote.member_id"))
	runtime.KeepAlive(c.h)
	return v
}

// QuoteLevel is the quote entitlement of the account, such as "LV1".
func (c *Context) QuoteLevel() string {
	v := ffi.GoString(c.lib.QuoteContextQuoteLevel(c.ptr("quote.quote_level")))
	runtime.KeepAlive(c.h)
	return v
}

// Subscribe starts pushes of the given kinds. With firstPush the current state of each
// symbol is pushed right away.
func (c *Context) Subscribe(symbols []string, flags types.SubFlags, firstPush bool, cb Callback[struct{}]) {
	sp, sn := ffi.CStrings(symbols)
	invoke(c, "quote.subscribe", nil, cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextSubscribe(ptr, sp, sn, flags, firstPush, bridge.Trampoline, ud)
	})
}

// Unsubscribe stops pushes of the given kinds.
func (c *Context) Unsubscribe(symbols []string, flags types.SubFlags, cb Callback[struct{}]) {
	sp, sn := ffi.CStrings(symbols)
	invoke(c, "quote.unsubscribe", nil, cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextUnsubscribe(ptr, sp, sn, flags, bridge.Trampoline, ud)
	})
}

// SubscribeCandlesticks starts candlestick pushes and completes with the bars held so far.
func (c *Context) SubscribeCandlesticks(symbol string, period types.Period, cb Callback[[]Candlestick]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.subscribe_candlesticks", bridge.Array(c.conv.candlestick), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextSubscribeCandlesticks(ptr, s, period, bridge.Trampoline, ud)
	})
}

// UnsubscribeCandlesticks stops candlestick pushes of one period.
func (c *Context) UnsubscribeCandlesticks(symbol string, period types.Period, cb Callback[struct{}]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.unsubscribe_candlesticks", nil, cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextUnsubscribeCandlesticks(ptr, s, period, bridge.Trampoline, ud)
	})
}

// Subscriptions lists the symbols, kinds and candlestick periods this context receives.
func (c *Context) Subscriptions(cb Callback[[]Subscription]) {
	invoke(c, "quote.subscriptions", bridge.Array(subscription), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextSubscriptions(ptr, bridge.Trampoline, ud)
	})
}

// StaticInfo skips unknown symbols.
func (c *Context) StaticInfo(symbols []string, cb Callback[[]SecurityStaticInfo]) {
	sp, sn := ffi.CStrings(symbols)
	invoke(c, "quote.static_info", bridge.Array(c.conv.staticInfo), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextStaticInfo(ptr, sp, sn, bridge.Trampoline, ud)
	})
}

// Quote skips unknown symbols.
func (c *Context) Quote(symbols []string, cb Callback[[]SecurityQuote]) {
	sp, sn := ffi.CStrings(symbols)
	invoke(c, "quote.quote", bridge.Array(c.conv.quote), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextQuote(ptr, sp, sn, bridge.Trampoline, ud)
	})
}

// Depth returns the order book of symbol.
func (c *Context) Depth(symbol string, cb Callback[SecurityDepth]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.depth", bridge.Single(c.conv.securityDepth), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextDepth(ptr, s, bridge.Trampoline, ud)
	})
}

// Brokers is empty outside the Hong Kong market.
func (c *Context) Brokers(symbol string, cb Callback[SecurityBrokers]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.brokers", bridge.Single(securityBrokers), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextBrokers(ptr, s, bridge.Trampoline, ud)
	})
}

// Trades returns the latest count prints, 1 to 1000.
func (c *Context) Trades(symbol string, count int, cb Callback[[]Trade]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.trades", bridge.Array(c.conv.trade), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextTrades(ptr, s, countArg(count), bridge.Trampoline, ud)
	})
}

func (c *Context) Intraday(symbol string, cb Callback[[]IntradayLine]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.intraday", bridge.Array(c.conv.intraday), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextIntraday(ptr, s, bridge.Trampoline, ud)
	})
}

// Candlesticks returns the latest count bars. A negative count is sent as 0 and rejected.
func (c *Context) Candlesticks(symbol string, period types.Period, count int, adjust types.AdjustType, cb Callback[[]Candlestick]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.candlesticks", bridge.Array(c.conv.candlestick), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextCandlesticks(ptr, s, period, countArg(count), adjust, bridge.Trampoline, ud)
	})
}

// TradingDays lists the trading days of market between begin and end, at most one month.
func (c *Context) TradingDays(market types.Market, begin, end types.Date, cb Callback[MarketTradingDays]) {
	invoke(c, "quote.trading_days", bridge.Single(tradingDays), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextTradingDays(ptr, market, &begin, &end, bridge.Trampoline, ud)
	})
}

// HistoryCandlesticksByOffset returns count bars, 1 to 1000, opened after at when forward
// is set and otherwise the bars up to the one open at at.
func (c *Context) HistoryCandlesticksByOffset(symbol string, period types.Period, adjust types.AdjustType, forward bool, at time.Time, count int, cb Callback[[]Candlestick]) {
	s := ffi.CStringOf(symbol)
	dt := dateTimeArg(at)
	invoke(c, "quote.history_candlesticks_by_offset", bridge.Array(c.conv.candlestick), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextHistoryCandlesticksByOffset(ptr, s, period, adjust, forward, dt, countArg(count), bridge.Trampoline, ud)
	})
}

// HistoryCandlesticksByDate returns the bars opened between start and end, inclusive. A nil
// bound leaves that side open.
func (c *Context) HistoryCandlesticksByDate(symbol string, period types.Period, adjust types.AdjustType, start, end *types.Date, cb Callback[[]Candlestick]) {
	s := ffi.CStringOf(symbol)
	from, to := bridge.Ref(start), bridge.Ref(end)
	invoke(c, "quote.history_candlesticks_by_date", bridge.Array(c.conv.candlestick), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextHistoryCandlesticksByDate(ptr, s, period, adjust, from, to, bridge.Trampoline, ud)
	})
}

// TradingSession lists the sessions of a trading day for every market.
func (c *Context) TradingSession(cb Callback[[]MarketTradingSession]) {
	invoke(c, "quote.trading_session", bridge.Array(tradingSession), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextTradingSession(ptr, bridge.Trampoline, ud)
	})
}

// RealtimeQuote reads the context's push cache; only subscribed symbols are present.
func (c *Context) RealtimeQuote(symbols []string, cb Callback[[]RealtimeQuote]) {
	sp, sn := ffi.CStrings(symbols)
	invoke(c, "quote.realtime_quote", bridge.Array(c.conv.realtimeQuote), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextRealtimeQuote(ptr, sp, sn, bridge.Trampoline, ud)
	})
}

func (c *Context) RealtimeDepth(symbol string, cb Callback[SecurityDepth]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.realtime_depth", bridge.Single(c.conv.securityDepth), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextRealtimeDepth(ptr, s, bridge.Trampoline, ud)
	})
}

func (c *Context) RealtimeBrokers(symbol string, cb Callback[SecurityBrokers]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.realtime_brokers", bridge.Single(securityBrokers), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextRealtimeBrokers(ptr, s, bridge.Trampoline, ud)
	})
}

func (c *Context) RealtimeTrades(symbol string, count int, cb Callback[[]Trade]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.realtime_trades", bridge.Array(c.conv.trade), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextRealtimeTrades(ptr, s, countArg(count), bridge.Trampoline, ud)
	})
}

func (c *Context) RealtimeCandlesticks(symbol string, period types.Period, count int, cb Callback[[]Candlestick]) {
	s := ffi.CStringOf(symbol)
	invoke(c, "quote.realtime_candlesticks", bridge.Array(c.conv.candlestick), cb, func(ptr ffi.QuoteContextPtr, ud ffi.Userdata) {
		c.lib.QuoteContextRealtimeCandlesticks(ptr, s, period, countArg(count), bridge.Trampoline, ud)
	})
}

// countArg maps a negative count to zero, which the native layer rejects.
func countArg(n int) uintptr {
	if n < 0 {
		return 0
	}
	return uintptr(n)
}

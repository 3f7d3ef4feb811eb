// Package trade is the Go binding of the native trade context.
//
// Calls follow the same protocol as package quote: one callback per call, on a native
// goroutine, with the context borrowed for the callback's duration.
package trade

import (
	"runtime"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/config"
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

// Context owns one reference to a native trade context.
type Context struct {
	lib  ffi.Library
	ops  *bridge.Ops[ffi.TradeContextPtr]
	conv converter
	h    *bridge.Handle[ffi.TradeContextPtr]
}

// Callback receives the single completion of a call.
type Callback[T any] func(bridge.Result[*Context, T])

func opsFor(lib ffi.TradeAPI) *bridge.Ops[ffi.TradeContextPtr] {
	return &bridge.Ops[ffi.TradeContextPtr]{
		Kind:     "trade_context",
		Retain:   lib.TradeContextRetain,
		Release:  lib.TradeContextRelease,
		RefCount: lib.TradeContextRefCount,
	}
}

func newContext(lib ffi.Library, ops *bridge.Ops[ffi.TradeContextPtr], h *bridge.Handle[ffi.TradeContextPtr]) *Context {
	return &Context{lib: lib, ops: ops, conv: converter{lib: lib}, h: h}
}

// New connects a trade context. On success the callback's Context is owned by the caller.
func New(cfg *config.Config, cb Callback[struct{}]) {
	lib := ffi.Lib()
	ops := opsFor(lib)
	adopt := func(ctx uintptr) (*Context, func()) {
		return newContext(lib, ops, bridge.AdoptNew(ops, ffi.TradeContextPtr(ctx))), nil
	}
	ptr := cfg.Ptr()
	ud := bridge.Call[*Context, struct{}]("trade.new", lib, adopt, nil, cb)
	lib.TradeContextNew(ptr, bridge.Trampoline, ud)
	runtime.KeepAlive(cfg)
}

func (c *Context) ptr(op string) ffi.TradeContextPtr {
	p := c.h.Ptr()
	if p == 0 {
		panic(errs.Invariant(op, "use of a released trade context"))
	}
	return p
}

func (c *Context) borrow(ctx uintptr) (*Context, func()) {
	return bridge.Borrow(c.ops, func(h *bridge.Handle[ffi.TradeContextPtr]) *Context {
		return newContext(c.lib, c.ops, h)
	})(ctx)
}

func invoke[T any](c *Context, op string, convert bridge.Converter[T], cb Callback[T], start func(ptr ffi.TradeContextPtr, ud ffi.Userdata)) {
	ptr := c.ptr(op)
	ud := bridge.Call[*Context, T](op, c.lib, c.borrow, convert, cb)
	start(ptr, ud)
	runtime.KeepAlive(c.h)
}

// Clone returns a second owner of the same native context.
func (c *Context) Clone() *Context { return newContext(c.lib, c.ops, c.h.Clone()) }

// Release drops this owner's reference.
func (c *Context) Release() { c.h.Release() }

// RefCount is the native reference count, for diagnostics.
func (c *Context) RefCount() uintptr { return c.h.RefCount() }

// SetUserdata attaches v to the native context. The previous value is dropped.
func (c *Context) SetUserdata(v any) {
	ptr := c.ptr("trade.set_userdata")
	c.lib.TradeContextSetFreeUserdataFunc(ptr, bridge.FreeUserdata)
	var ud ffi.Userdata
	if v != nil {
		ud = bridge.BoxValue(v)
	}
	c.lib.TradeContextSetUserdata(ptr, ud)
	runtime.KeepAlive(c.h)
}

// Userdata returns the value set by SetUserdata, or nil.
func (c *Context) Userdata() any {
	v := bridge.Value(c.lib.TradeContextUserdata(c.ptr("trade.userdata")))
	runtime.KeepAlive(c.h)
	return v
}

// Handler receives one push event together with the context it fired on. The context is
// borrowed for the duration of the call; Clone it to keep it.
type Handler[T any] func(ctx *Context, ev T)

// OnOrderChanged replaces the order update handler. Updates only flow after Subscribe with
// TopicPrivate. A nil handler stops them.
func (c *Context) OnOrderChanged(fn Handler[PushOrderChanged]) {
	ptr := c.ptr("trade.set_on_order_changed")
	if fn == nil {
		c.lib.TradeContextSetOnOrderChanged(ptr, nil, 0, nil)
		return
	}
	lib, ops, conv := c.lib, c.ops, c.conv
	borrow := bridge.Borrow(ops, func(h *bridge.Handle[ffi.TradeContextPtr]) *Context {
		return newContext(lib, ops, h)
	})
	ud := bridge.Push(func(ptr ffi.TradeContextPtr, ev *ffi.CPushOrderChanged) {
		ctx, done := borrow(uintptr(ptr))
		defer done()
		fn(ctx, conv.pushOrderChanged(ev))
	})
	c.lib.TradeContextSetOnOrderChanged(ptr, bridge.Deliver[ffi.TradeContextPtr, ffi.CPushOrderChanged], ud, bridge.FreeUserdata)
	runtime.KeepAlive(c.h)
}

// Subscribe starts pushes for topics.
func (c *Context) Subscribe(topics []types.TopicType, cb Callback[struct{}]) {
	tp, tn := ffi.Array(topics)
	invoke(c, "trade.subscribe", nil, cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextSubscribe(ptr, tp, tn, bridge.Trampoline, ud)
	})
}

// Unsubscribe stops pushes for topics.
func (c *Context) Unsubscribe(topics []types.TopicType, cb Callback[struct{}]) {
	tp, tn := ffi.Array(topics)
	invoke(c, "trade.unsubscribe", nil, cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextUnsubscribe(ptr, tp, tn, bridge.Trampoline, ud)
	})
}

// TodayOrders lists the orders of the current day. opts may be nil.
func (c *Context) TodayOrders(opts *GetTodayOrdersOptions, cb Callback[[]Order]) {
	req := opts.native()
	invoke(c, "trade.today_orders", bridge.Array(c.conv.order), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextTodayOrders(ptr, req, bridge.Trampoline, ud)
	})
}

// HistoryOrders lists orders before today. opts may be nil.
func (c *Context) HistoryOrders(opts *GetHistoryOrdersOptions, cb Callback[[]Order]) {
	req := opts.native()
	invoke(c, "trade.history_orders", bridge.Array(c.conv.order), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextHistoryOrders(ptr, req, bridge.Trampoline, ud)
	})
}

// TodayExecutions lists the fills of the current day. opts may be nil.
func (c *Context) TodayExecutions(opts *GetTodayExecutionsOptions, cb Callback[[]Execution]) {
	req := opts.native()
	invoke(c, "trade.today_executions", bridge.Array(c.conv.execution), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextTodayExecutions(ptr, req, bridge.Trampoline, ud)
	})
}

func (c *Context) HistoryExecutions(opts *GetHistoryExecutionsOptions, cb Callback[[]Execution]) {
	req := opts.native()
	invoke(c, "trade.history_executions", bridge.Array(c.conv.execution), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextHistoryExecutions(ptr, req, bridge.Trampoline, ud)
	})
}

// SubmitOrder completes with the id the broker assigned.
func (c *Context) SubmitOrder(opts SubmitOrderOptions, cb Callback[SubmitOrderResponse]) {
	req := opts.native()
	invoke(c, "trade.submit_order", bridge.Single(submitResponse), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextSubmitOrder(ptr, req, bridge.Trampoline, ud)
	})
	runtime.KeepAlive(opts)
}

// ReplaceOrder changes the quantity or prices of a working order.
func (c *Context) ReplaceOrder(opts ReplaceOrderOptions, cb Callback[struct{}]) {
	req := opts.native()
	invoke(c, "trade.replace_order", nil, cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextReplaceOrder(ptr, req, bridge.Trampoline, ud)
	})
	runtime.KeepAlive(opts)
}

// CancelOrder cancels a working order. Unknown ids complete with not_found.
func (c *Context) CancelOrder(orderID string, cb Callback[struct{}]) {
	id := ffi.CStringOf(orderID)
	invoke(c, "trade.cancel_order", nil, cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextCancelOrder(ptr, id, bridge.Trampoline, ud)
	})
}

// AccountBalance lists every currency when currency is nil.
func (c *Context) AccountBalance(currency *string, cb Callback[[]AccountBalance]) {
	cur := ffi.CStringOpt(currency)
	invoke(c, "trade.account_balance", bridge.Array(c.conv.accountBalance), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextAccountBalance(ptr, cur, bridge.Trampoline, ud)
	})
}

// StockPositions groups positions by account channel. opts may be nil.
func (c *Context) StockPositions(opts *GetStockPositionsOptions, cb Callback[StockPositionsResponse]) {
	req := opts.native()
	invoke(c, "trade.stock_positions", bridge.Single(c.conv.stockPositions), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextStockPositions(ptr, req, bridge.Trampoline, ud)
	})
}

// OrderDetail returns one order with its status history. Unknown ids complete with not_found.
func (c *Context) OrderDetail(orderID string, cb Callback[OrderDetail]) {
	id := ffi.CStringOf(orderID)
	invoke(c, "trade.order_detail", bridge.Single(c.conv.orderDetail), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextOrderDetail(ptr, id, bridge.Trampoline, ud)
	})
}

// CashFlow lists deposits and trade settlements, oldest first.
func (c *Context) CashFlow(opts GetCashFlowOptions, cb Callback[[]CashFlow]) {
	req := opts.native()
	invoke(c, "trade.cash_flow", bridge.Array(c.conv.cashFlow), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextCashFlow(ptr, req, bridge.Trampoline, ud)
	})
}

// EstimateMaxPurchaseQuantity sizes the largest order of opts the account can afford, in
// whole lots.
func (c *Context) EstimateMaxPurchaseQuantity(opts EstimateMaxPurchaseQuantityOptions, cb Callback[EstimateMaxPurchaseQuantityResponse]) {
	req := opts.native()
	invoke(c, "trade.estimate_max_purchase_quantity", bridge.Single(maxPurchase), cb, func(ptr ffi.TradeContextPtr, ud ffi.Userdata) {
		c.lib.TradeContextEstimateMaxPurchaseQuantity(ptr, req, bridge.Trampoline, ud)
	})
	runtime.KeepAlive(opts)
}

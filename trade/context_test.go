package trade

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/config"
	"github.com/coachpo/longport-go/decimal"
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/ffi/ffitest"
	"github.com/coachpo/longport-go/native"
	"github.com/coachpo/longport-go/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func await[T any](t *testing.T, start func(cb Callback[T])) bridge.Result[*Context, T] {
	t.Helper()
	done := make(chan bridge.Result[*Context, T], 2)
	start(func(r bridge.Result[*Context, T]) { done <- r })
	var r bridge.Result[*Context, T]
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
	}
	select {
	case <-done:
		t.Fatal("callback invoked twice")
	case <-time.After(20 * time.Millisecond):
	}
	return r
}

func connect(t *testing.T) *Context {
	t.Helper()
	cfg := config.New(config.Options{AppKey: "app-key", AppSecret: "app-secret", AccessToken: "access-token"})
	t.Cleanup(cfg.Free)
	r := await(t, func(cb Callback[struct{}]) { New(cfg, cb) })
	require.NoError(t, r.Err())
	return r.Context
}

func watch(t *testing.T, ctx *Context) <-chan PushOrderChanged {
	t.Helper()
	events := make(chan PushOrderChanged, 16)
	ctx.OnOrderChanged(func(_ *Context, ev PushOrderChanged) { events <- ev })
	r := await(t, func(cb Callback[struct{}]) { ctx.Subscribe([]types.TopicType{types.TopicPrivate}, cb) })
	require.NoError(t, r.Err())
	return events
}

func next(t *testing.T, events <-chan PushOrderChanged) PushOrderChanged {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no order update")
		return PushOrderChanged{}
	}
}

func submit(t *testing.T, ctx *Context, opts SubmitOrderOptions) bridge.Result[*Context, SubmitOrderResponse] {
	t.Helper()
	return await(t, func(cb Callback[SubmitOrderResponse]) { ctx.SubmitOrder(opts, cb) })
}

func marketBuy(symbol string, qty int64) SubmitOrderOptions {
	return SubmitOrderOptions{
		Symbol:            symbol,
		OrderType:         types.OrderTypeMO,
		Side:              types.OrderSideBuy,
		SubmittedQuantity: qty,
		TimeInForce:       types.TimeInForceDay,
	}
}

func TestSubmitOrderUnauthorized(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()
	ptr := uintptr(ctx.h.Ptr())
	before := bridge.Default().Stats()
	callbacks := lib.Counts().Callbacks

	lib.FailNext("trade_context.submit_order", 401, "unauthorized")
	r := submit(t, ctx, marketBuy("AAA.US", 10))

	require.True(t, r.IsErr())
	require.Equal(t, int64(401), r.Status.Code())
	require.Equal(t, "unauthorized", r.Status.Message())
	require.Equal(t, bridge.OwnershipBorrowed, r.Status.Ownership())
	require.Empty(t, r.Data.OrderID)
	var e *errs.E
	require.True(t, errors.As(r.Err(), &e))
	require.Equal(t, errs.CodeAuth, e.Code)
	require.Equal(t, int64(401), e.NativeCode)
	require.Equal(t, "unauthorized", e.Message)

	require.Equal(t, callbacks+1, lib.Counts().Callbacks)
	require.Equal(t, before.Live(), bridge.Default().Stats().Live())
	require.Eventually(t, func() bool { return lib.Balance(ptr) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return lib.Stats().Errors == 0 }, time.Second, 5*time.Millisecond)

	// The fault is consumed; the same order goes through afterwards.
	ok := submit(t, ctx, marketBuy("AAA.US", 10))
	require.NoError(t, ok.Err())
	require.NotEmpty(t, ok.Data.OrderID)
}

func TestMarketOrderFlow(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()
	events := watch(t, ctx)

	r := submit(t, ctx, marketBuy("AAA.US", 10))
	require.NoError(t, r.Err())
	id := r.Data.OrderID

	first := next(t, events)
	require.Equal(t, id, first.OrderID)
	require.Equal(t, types.OrderStatusNew, first.Status)
	require.Nil(t, first.ExecutedPrice)
	filled := next(t, events)
	require.Equal(t, types.OrderStatusFilled, filled.Status)
	require.Equal(t, "10.5", filled.ExecutedPrice.String())
	require.Equal(t, int64(10), filled.ExecutedQuantity)

	orders := await(t, func(cb Callback[[]Order]) { ctx.TodayOrders(&GetTodayOrdersOptions{OrderID: &id}, cb) })
	require.NoError(t, orders.Err())
	require.Len(t, orders.Data, 1)
	o := orders.Data[0]
	require.Equal(t, "AAA.US", o.Symbol)
	require.Equal(t, types.OrderStatusFilled, o.Status)
	require.Nil(t, o.Price)
	require.Nil(t, o.TriggerPrice)
	require.Nil(t, o.ExpireDate)

	execs := await(t, func(cb Callback[[]Execution]) { ctx.TodayExecutions(nil, cb) })
	require.NoError(t, execs.Err())
	require.Len(t, execs.Data, 1)
	require.Equal(t, id, execs.Data[0].OrderID)
	require.Equal(t, "10.5", execs.Data[0].Price.String())

	history := await(t, func(cb Callback[[]Execution]) {
		ctx.HistoryExecutions(&GetHistoryExecutionsOptions{Symbol: &o.Symbol}, cb)
	})
	require.NoError(t, history.Err())
	require.Len(t, history.Data, 1)

	positions := await(t, func(cb Callback[StockPositionsResponse]) { ctx.StockPositions(nil, cb) })
	require.NoError(t, positions.Err())
	require.Len(t, positions.Data.Channels, 1)
	require.Len(t, positions.Data.Channels[0].Positions, 1)
	require.Equal(t, int64(10), positions.Data.Channels[0].Positions[0].Quantity)
	require.Equal(t, types.MarketUS, positions.Data.Channels[0].Positions[0].Market)

	usd := "USD"
	balance := await(t, func(cb Callback[[]AccountBalance]) { ctx.AccountBalance(&usd, cb) })
	require.NoError(t, balance.Err())
	require.Len(t, balance.Data, 1)
	require.Equal(t, "999895.0", balance.Data[0].TotalCash.String())
	require.Len(t, balance.Data[0].CashInfos, 1)
	require.Equal(t, "USD", balance.Data[0].CashInfos[0].Currency)
}

func TestLimitOrderLifecycle(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()
	events := watch(t, ctx)

	remark := "ladder"
	expire := types.Date{Year: 2099, Month: 12, Day: 31}
	r := submit(t, ctx, SubmitOrderOptions{
		Symbol:            "AAA.US",
		OrderType:         types.OrderTypeLO,
		Side:              types.OrderSideBuy,
		SubmittedQuantity: 5,
		TimeInForce:       types.TimeInForceGoodTilDate,
		SubmittedPrice:    decimal.RequireFromString("1.00"),
		ExpireDate:        &expire,
		Remark:            &remark,
	})
	require.NoError(t, r.Err())
	require.Equal(t, types.OrderStatusNew, next(t, events).Status)

	orders := await(t, func(cb Callback[[]Order]) {
		ctx.TodayOrders(&GetTodayOrdersOptions{Status: []types.OrderStatus{types.OrderStatusNew}}, cb)
	})
	require.NoError(t, orders.Err())
	require.Len(t, orders.Data, 1)
	require.Equal(t, "1.00", orders.Data[0].Price.String())
	require.Equal(t, &expire, orders.Data[0].ExpireDate)
	require.Equal(t, "ladder", orders.Data[0].Remark)

	replaced := await(t, func(cb Callback[struct{}]) {
		ctx.ReplaceOrder(ReplaceOrderOptions{OrderID: r.Data.OrderID, Quantity: 5, Price: decimal.RequireFromString("2.00")}, cb)
	})
	require.NoError(t, replaced.Err())
	require.Equal(t, types.OrderStatusReplaced, next(t, events).Status)

	cancelled := await(t, func(cb Callback[struct{}]) { ctx.CancelOrder(r.Data.OrderID, cb) })
	require.NoError(t, cancelled.Err())
	require.Equal(t, types.OrderStatusCanceled, next(t, events).Status)

	missing := await(t, func(cb Callback[struct{}]) { ctx.CancelOrder("missing", cb) })
	var e *errs.E
	require.True(t, errors.As(missing.Err(), &e))
	require.Equal(t, errs.CodeNotFound, e.Code)
}

func TestSubmitValidation(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()

	limit := marketBuy("AAA.US", 1)
	limit.OrderType = types.OrderTypeLO
	gtd := marketBuy("AAA.US", 1)
	gtd.TimeInForce = types.TimeInForceGoodTilDate

	cases := []struct {
		name string
		code errs.Code
		opts SubmitOrderOptions
	}{
		{"unknown symbol", errs.CodeNotFound, marketBuy("NOPE.US", 1)},
		{"zero quantity", errs.CodeInvalid, marketBuy("AAA.US", 0)},
		{"limit without price", errs.CodeInvalid, limit},
		{"good til date without date", errs.CodeInvalid, gtd},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := submit(t, ctx, c.opts)
			var e *errs.E
			require.True(t, errors.As(r.Err(), &e))
			require.Equal(t, c.code, e.Code)
		})
	}
}

func TestHistoryOrdersRejectsInvertedRange(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	r := await(t, func(cb Callback[[]Order]) {
		ctx.HistoryOrders(&GetHistoryOrdersOptions{StartAt: &start, EndAt: &end}, cb)
	})
	require.Equal(t, int64(400), r.Status.Code())

	all := await(t, func(cb Callback[[]Order]) { ctx.HistoryOrders(nil, cb) })
	require.NoError(t, all.Err())
	require.NotNil(t, all.Data)
	require.Empty(t, all.Data)
}

func TestUnsubscribedContextGetsNoUpdates(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()
	events := watch(t, ctx)

	r := await(t, func(cb Callback[struct{}]) { ctx.Unsubscribe([]types.TopicType{types.TopicPrivate}, cb) })
	require.NoError(t, r.Err())
	require.NoError(t, submit(t, ctx, marketBuy("AAA.US", 1)).Err())

	select {
	case ev := <-events:
		t.Fatalf("unexpected update %v", ev.Status)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextOwnershipAndUserdata(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	ptr := uintptr(ctx.h.Ptr())
	before := bridge.Default().Stats()
	require.Equal(t, 1, lib.Balance(ptr))

	ctx.SetUserdata(map[string]int{"orders": 1})
	require.Equal(t, map[string]int{"orders": 1}, ctx.Userdata())
	ctx.OnOrderChanged(func(*Context, PushOrderChanged) {})

	clone := ctx.Clone()
	require.Equal(t, uintptr(2), clone.RefCount())
	ctx.Release()
	require.Equal(t, 1, lib.Balance(ptr))
	require.Equal(t, map[string]int{"orders": 1}, clone.Userdata())

	clone.Release()
	require.Zero(t, lib.Balance(ptr))
	require.Eventually(t, func() bool {
		return lib.Stats().TradeContexts == 0 && bridge.Default().Stats().Live() == before.Live()
	}, time.Second, 5*time.Millisecond)
	require.Panics(t, func() { clone.CancelOrder("x", func(bridge.Result[*Context, struct{}]) {}) })
}

func TestOrderPushCarriesContext(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()
	ptr := uintptr(ctx.h.Ptr())
	ctx.SetUserdata("desk-1")

	type seen struct {
		orderID  string
		userdata any
		refs     uintptr
	}
	events := make(chan seen, 8)
	ctx.OnOrderChanged(func(c *Context, ev PushOrderChanged) {
		events <- seen{orderID: ev.OrderID, userdata: c.Userdata(), refs: c.RefCount()}
	})
	sub := await(t, func(cb Callback[struct{}]) { ctx.Subscribe([]types.TopicType{types.TopicPrivate}, cb) })
	require.NoError(t, sub.Err())

	r := submit(t, ctx, marketBuy("AAA.US", 1))
	require.NoError(t, r.Err())
	select {
	case ev := <-events:
		require.Equal(t, r.Data.OrderID, ev.orderID)
		require.Equal(t, "desk-1", ev.userdata)
		require.GreaterOrEqual(t, ev.refs, uintptr(2))
	case <-time.After(2 * time.Second):
		t.Fatal("no order update")
	}

	ctx.OnOrderChanged(nil)
	require.Eventually(t, func() bool { return lib.Balance(ptr) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLeakedContextIsCollectedAfterClose(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ptr := func() uintptr { return uintptr(connect(t).h.Ptr()) }()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lib.Close(closeCtx))
	require.Eventually(t, func() bool { return lib.Stats().TradeContexts == 0 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		runtime.GC()
		return lib.Balance(ptr) == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, lib.TradeContextRefCount(ffi.TradeContextPtr(ptr)))
}

func TestOrderDetailCashFlowAndEstimate(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t)
	defer ctx.Release()

	order := submit(t, ctx, marketBuy("AAA.US", 10))
	require.NoError(t, order.Err())

	detail := await(t, func(cb Callback[OrderDetail]) { ctx.OrderDetail(order.Data.OrderID, cb) })
	require.NoError(t, detail.Err())
	require.Equal(t, order.Data.OrderID, detail.Data.OrderID)
	require.Equal(t, types.OrderStatusFilled, detail.Data.Status)
	require.Len(t, detail.Data.History, 2)
	require.Equal(t, types.OrderStatusNew, detail.Data.History[0].Status)
	require.Nil(t, detail.Data.History[0].Price)
	require.Equal(t, types.OrderStatusFilled, detail.Data.History[1].Status)
	require.Equal(t, "10.5", detail.Data.History[1].Price.String())
	require.Equal(t, int64(10), detail.Data.History[1].Quantity)

	missing := await(t, func(cb Callback[OrderDetail]) { ctx.OrderDetail("missing", cb) })
	var e *errs.E
	require.True(t, errors.As(missing.Err(), &e))
	require.Equal(t, errs.CodeNotFound, e.Code)

	now := time.Now()
	stock := types.BalanceTypeStock
	flows := await(t, func(cb Callback[[]CashFlow]) {
		ctx.CashFlow(GetCashFlowOptions{StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour), BusinessType: &stock}, cb)
	})
	require.NoError(t, flows.Err())
	require.Len(t, flows.Data, 1)
	require.Equal(t, types.CashFlowDirectionOut, flows.Data[0].Direction)
	require.Equal(t, "AAA.US", flows.Data[0].Symbol)
	require.Equal(t, "105.0", flows.Data[0].Balance.String())

	size := 0
	bad := await(t, func(cb Callback[[]CashFlow]) {
		ctx.CashFlow(GetCashFlowOptions{StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour), Size: &size}, cb)
	})
	require.True(t, errors.As(bad.Err(), &e))
	require.Equal(t, errs.CodeInvalid, e.Code)

	buy := await(t, func(cb Callback[EstimateMaxPurchaseQuantityResponse]) {
		ctx.EstimateMaxPurchaseQuantity(EstimateMaxPurchaseQuantityOptions{Symbol: "AAA.US", OrderType: types.OrderTypeMO, Side: types.OrderSideBuy}, cb)
	})
	require.NoError(t, buy.Err())
	require.Equal(t, int64(95228), buy.Data.CashMaxQty)

	sell := await(t, func(cb Callback[EstimateMaxPurchaseQuantityResponse]) {
		ctx.EstimateMaxPurchaseQuantity(EstimateMaxPurchaseQuantityOptions{Symbol: "AAA.US", OrderType: types.OrderTypeMO, Side: types.OrderSideSell}, cb)
	})
	require.NoError(t, sell.Err())
	require.Equal(t, int64(10), sell.Data.CashMaxQty)
}

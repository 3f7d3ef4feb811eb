package native

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/config"
	"github.com/coachpo/longport-go/internal/pool"
	"github.com/coachpo/longport-go/types"
)

const eventOrderChanged = "order_changed"

type tradeContext struct {
	*contextCore
	accountNo string

	tmu    sync.Mutex
	topics map[types.TopicType]struct{}
}

func (l *Library) newTradeContext(s config.Settings) *tradeContext {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.AppKey))
	t := &tradeContext{
		contextCore: newContextCore(l, "trade_context", s, rate.NewLimiter(rate.Limit(l.opts.TradeRate), int(l.opts.TradeRate))),
		accountNo:   fmt.Sprintf("LB%08d", h.Sum32()%100_000_000),
		topics:      make(map[types.TopicType]struct{}),
	}
	id := l.trades.add(t)
	t.start(id, func() { l.trades.remove(id, "trade_context_destroy") })
	return t
}

func (l *Library) trade(ctx ffi.TradeContextPtr, op string) *tradeContext {
	return l.trades.get(uintptr(ctx), op)
}

func (l *Library) tradeCall(ctx ffi.TradeContextPtr, name string, cb ffi.AsyncCallback, ud ffi.Userdata, op func(ctx context.Context, t *tradeContext, a *pool.Arena) (payload, error)) {
	t := l.trade(ctx, name)
	l.executeAsync(name, uintptr(ctx), t, cb, ud, func(c context.Context, a *pool.Arena) (payload, error) {
		if err := t.wait(c); err != nil {
			return payload{}, err
		}
		return op(c, t, a)
	})
}

// TradeContextNew authorizes the config and completes with the new context. The context
// carries one reference that the callback takes over.
func (l *Library) TradeContextNew(cfg ffi.ConfigPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	settings := l.config(cfg, "trade_context_new").get()
	l.executeAsync("trade_context.new", 0, nil, cb, ud, func(context.Context, *pool.Arena) (payload, error) {
		if err := l.opts.Authorize(settings); err != nil {
			return payload{}, err
		}
		t := l.newTradeContext(settings)
		return payload{ctx: t.id}, nil
	})
}

func (l *Library) TradeContextRetain(ctx ffi.TradeContextPtr) {
	l.trade(ctx, "trade_context_retain").retain()
}

// TradeContextRelease drops one reference. Releasing a context torn down by Close is a no-op.
func (l *Library) TradeContextRelease(ctx ffi.TradeContextPtr) {
	if l.trades.isRetired(uintptr(ctx)) {
		return
	}
	l.trade(ctx, "trade_context_release").release()
}

func (l *Library) TradeContextRefCount(ctx ffi.TradeContextPtr) uintptr {
	if l.trades.isRetired(uintptr(ctx)) {
		return 0
	}
	return l.trade(ctx, "trade_context_ref_count").refCount()
}

func (l *Library) TradeContextSetUserdata(ctx ffi.TradeContextPtr, ud ffi.Userdata) {
	l.trade(ctx, "trade_context_set_userdata").setUserdata(ud)
}

func (l *Library) TradeContextUserdata(ctx ffi.TradeContextPtr) ffi.Userdata {
	return l.trade(ctx, "trade_context_userdata").getUserdata()
}

func (l *Library) TradeContextSetFreeUserdataFunc(ctx ffi.TradeContextPtr, f ffi.FreeUserdataFunc) {
	l.trade(ctx, "trade_context_set_free_userdata_func").setFreeUserdata(f)
}

func (l *Library) TradeContextSetOnOrderChanged(ctx ffi.TradeContextPtr, cb ffi.OrderChangedPushFunc, ud ffi.Userdata, free ffi.FreeUserdataFunc) {
	s := slot{ud: ud, free: free}
	if cb != nil {
		s.cb = cb
	}
	l.trade(ctx, "trade_context_set_on_order_changed").slots.set(eventOrderChanged, s)
}

func readTopics(p *types.TopicType, n uintptr) ([]types.TopicType, error) {
	topics := append([]types.TopicType(nil), ffi.Slice(p, n)...)
	for _, topic := range topics {
		if topic != types.TopicPrivate {
			return nil, invalidArgument("trade_subscribe", fmt.Sprintf("unknown topic %d", topic))
		}
	}
	return topics, nil
}

func (l *Library) TradeContextSubscribe(ctx ffi.TradeContextPtr, topics *types.TopicType, numTopics uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	list, err := readTopics(topics, numTopics)
	l.tradeCall(ctx, "trade_context.subscribe", cb, ud, func(_ context.Context, t *tradeContext, _ *pool.Arena) (payload, error) {
		if err != nil {
			return payload{}, err
		}
		t.tmu.Lock()
		defer t.tmu.Unlock()
		for _, topic := range list {
			t.topics[topic] = struct{}{}
		}
		return none()
	})
}

func (l *Library) TradeContextUnsubscribe(ctx ffi.TradeContextPtr, topics *types.TopicType, numTopics uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	list, err := readTopics(topics, numTopics)
	l.tradeCall(ctx, "trade_context.unsubscribe", cb, ud, func(_ context.Context, t *tradeContext, _ *pool.Arena) (payload, error) {
		if err != nil {
			return payload{}, err
		}
		t.tmu.Lock()
		defer t.tmu.Unlock()
		for _, topic := range list {
			delete(t.topics, topic)
		}
		return none()
	})
}

func (t *tradeContext) subscribed(topic types.TopicType) bool {
	t.tmu.Lock()
	defer t.tmu.Unlock()
	_, ok := t.topics[topic]
	return ok
}

// orderChanged pushes an order update to every context subscribed to the private topic.
func (l *Library) orderChanged(o order) {
	for _, t := range l.trades.snapshot() {
		if !t.subscribed(types.TopicPrivate) {
			continue
		}
		t.enqueue(eventOrderChanged, func(a *pool.Arena, s slot) {
			ev := l.cOrderChanged(a, o, t.accountNo)
			s.cb.(ffi.OrderChangedPushFunc)(ffi.TradeContextPtr(t.id), ev, s.ud)
		})
	}
}

func (l *Library) cOrderChanged(a *pool.Arena, o order, accountNo string) *ffi.CPushOrderChanged {
	ev := pool.New[ffi.CPushOrderChanged](a)
	*ev = ffi.CPushOrderChanged{
		Side:              o.side,
		StockName:         a.String(o.stockName),
		SubmittedQuantity: o.quantity,
		Symbol:            a.String(o.symbol),
		OrderType:         o.orderType,
		SubmittedPrice:    l.arenaOptDecimal(a, o.price),
		ExecutedQuantity:  o.executedQuantity,
		ExecutedPrice:     l.arenaOptDecimal(a, o.executedPrice),
		OrderID:           a.String(o.id),
		Currency:          a.String(o.currency),
		Status:            o.status,
		SubmittedAt:       o.submittedAt.Unix(),
		UpdatedAt:         o.updatedAt.Unix(),
		TriggerPrice:      l.arenaOptDecimal(a, o.triggerPrice),
		Msg:               a.String(o.msg),
		Tag:               o.tag,
		TrailingAmount:    l.arenaOptDecimal(a, o.trailingAmount),
		TrailingPercent:   l.arenaOptDecimal(a, o.trailingPercent),
		LimitOffset:       l.arenaOptDecimal(a, o.limitOffset),
		AccountNo:         a.String(accountNo),
	}
	if o.triggerStatus != nil {
		ev.TriggerStatus = pool.Value(a, *o.triggerStatus)
	}
	if o.triggerAt != nil {
		ev.TriggerAt = pool.Value(a, o.triggerAt.Unix())
	}
	return ev
}

func (l *Library) cOrders(a *pool.Arena, orders []order) []ffi.COrder {
	out := pool.Alloc[ffi.COrder](a, len(orders))
	for i := range orders {
		l.fillOrder(a, &out[i], &orders[i])
	}
	return out
}

func (l *Library) fillOrder(a *pool.Arena, c *ffi.COrder, o *order) {
	*c = ffi.COrder{
		OrderID:          a.String(o.id),
		Status:           o.status,
		StockName:        a.String(o.stockName),
		Quantity:         o.quantity,
		ExecutedQuantity: o.executedQuantity,
		Price:            l.arenaOptDecimal(a, o.price),
		ExecutedPrice:    l.arenaOptDecimal(a, o.executedPrice),
		SubmittedAt:      o.submittedAt.Unix(),
		Side:             o.side,
		Symbol:           a.String(o.symbol),
		OrderType:        o.orderType,
		LastDone:         l.arenaOptDecimal(a, o.lastDone),
		TriggerPrice:     l.arenaOptDecimal(a, o.triggerPrice),
		Msg:              a.String(o.msg),
		Tag:              o.tag,
		TimeInForce:      o.timeInForce,
		TrailingAmount:   l.arenaOptDecimal(a, o.trailingAmount),
		TrailingPercent:  l.arenaOptDecimal(a, o.trailingPercent),
		LimitOffset:      l.arenaOptDecimal(a, o.limitOffset),
		Currency:         a.String(o.currency),
		Remark:           a.String(o.remark),
	}
	if o.expireDate != nil {
		c.ExpireDate = pool.Value(a, *o.expireDate)
	}
	if !o.updatedAt.Equal(o.submittedAt) {
		c.UpdatedAt = pool.Value(a, o.updatedAt.Unix())
	}
	if o.triggerAt != nil {
		c.TriggerAt = pool.Value(a, o.triggerAt.Unix())
	}
	if o.triggerStatus != nil {
		c.TriggerStatus = pool.Value(a, *o.triggerStatus)
	}
	if o.outsideRTH != nil {
		c.OutsideRTH = pool.Value(a, *o.outsideRTH)
	}
}

func (l *Library) cOrderDetail(a *pool.Arena, o order) *ffi.COrderDetail {
	out := pool.New[ffi.COrderDetail](a)
	l.fillOrder(a, &out.COrder, &o)
	history := pool.Alloc[ffi.COrderHistoryDetail](a, len(o.history))
	for i, ev := range o.history {
		history[i] = ffi.COrderHistoryDetail{
			Price:    l.arenaOptDecimal(a, ev.price),
			Quantity: ev.quantity,
			Status:   ev.status,
			Msg:      a.String(ev.msg),
			Time:     ev.at.Unix(),
		}
	}
	out.History, out.NumHistory = ffi.Array(history)
	return out
}

func (l *Library) cCashFlows(a *pool.Arena, flows []cashFlow) []ffi.CCashFlow {
	out := pool.Alloc[ffi.CCashFlow](a, len(flows))
	for i, f := range flows {
		out[i] = ffi.CCashFlow{
			TransactionFlowName: a.String(f.name),
			Direction:           f.direction,
			BusinessType:        f.businessType,
			Balance:             l.arenaDecimal(a, f.amount),
			Currency:            a.String(f.currency),
			BusinessTime:        f.at.Unix(),
			Description:         a.String(f.description),
		}
		if f.symbol != "" {
			out[i].Symbol = a.String(f.symbol)
		}
	}
	return out
}

func (l *Library) cExecutions(a *pool.Arena, executions []execution) []ffi.CExecution {
	out := pool.Alloc[ffi.CExecution](a, len(executions))
	for i, e := range executions {
		out[i] = ffi.CExecution{
			OrderID:     a.String(e.orderID),
			TradeID:     a.String(e.tradeID),
			Symbol:      a.String(e.symbol),
			TradeDoneAt: e.at.Unix(),
			Quantity:    e.qty,
			Price:       l.arenaDecimal(a, e.price),
		}
	}
	return out
}

func unixOpt(p *int64) time.Time {
	if p == nil {
		return time.Time{}
	}
	return time.Unix(*p, 0)
}

func (l *Library) TradeContextTodayOrders(ctx ffi.TradeContextPtr, opts *ffi.CGetTodayOrdersOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	var f orderFilter
	if opts != nil {
		f.symbol = ffi.GoString(opts.Symbol)
		f.orderID = ffi.GoString(opts.OrderID)
		f.statuses = append(f.statuses, ffi.Slice(opts.Status, opts.NumStatus)...)
		f.side = copyOpt(opts.Side)
		f.market = copyOpt(opts.Market)
	}
	l.tradeCall(ctx, "trade_context.today_orders", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		f.from, f.to = dayBounds(l.opts.Clock())
		return many(l.cOrders(a, l.broker.findOrders(f))), nil
	})
}

// TradeContextHistoryOrders defaults to the last 90 days.
func (l *Library) TradeContextHistoryOrders(ctx ffi.TradeContextPtr, opts *ffi.CGetHistoryOrdersOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	var f orderFilter
	if opts != nil {
		f.symbol = ffi.GoString(opts.Symbol)
		f.statuses = append(f.statuses, ffi.Slice(opts.Status, opts.NumStatus)...)
		f.side = copyOpt(opts.Side)
		f.market = copyOpt(opts.Market)
		f.from = unixOpt(opts.StartAt)
		f.to = unixOpt(opts.EndAt)
	}
	l.tradeCall(ctx, "trade_context.history_orders", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		now := l.opts.Clock()
		if f.to.IsZero() {
			f.to = now
		}
		if f.from.IsZero() {
			f.from = f.to.Add(-historyWindow)
		}
		if f.from.After(f.to) {
			return payload{}, invalidArgument("history_orders", "start is after end")
		}
		return many(l.cOrders(a, l.broker.findOrders(f))), nil
	})
}

func (l *Library) TradeContextTodayExecutions(ctx ffi.TradeContextPtr, opts *ffi.CGetTodayExecutionsOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	var symbol, orderID string
	if opts != nil {
		symbol = ffi.GoString(opts.Symbol)
		orderID = ffi.GoString(opts.OrderID)
	}
	l.tradeCall(ctx, "trade_context.today_executions", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		from, to := dayBounds(l.opts.Clock())
		return many(l.cExecutions(a, l.broker.findExecutions(symbol, orderID, from, to))), nil
	})
}

func (l *Library) TradeContextHistoryExecutions(ctx ffi.TradeContextPtr, opts *ffi.CGetHistoryExecutionsOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	var (
		symbol   string
		from, to time.Time
	)
	if opts != nil {
		symbol = ffi.GoString(opts.Symbol)
		from = unixOpt(opts.StartAt)
		to = unixOpt(opts.EndAt)
	}
	l.tradeCall(ctx, "trade_context.history_executions", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		if to.IsZero() {
			to = l.opts.Clock()
		}
		if from.IsZero() {
			from = to.Add(-historyWindow)
		}
		if from.After(to) {
			return payload{}, invalidArgument("history_executions", "start is after end")
		}
		return many(l.cExecutions(a, l.broker.findExecutions(symbol, "", from, to))), nil
	})
}

// TradeContextSubmitOrder completes with a CSubmitOrderResponse.
func (l *Library) TradeContextSubmitOrder(ctx ffi.TradeContextPtr, opts *ffi.CSubmitOrderOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	const op = "trade_context_submit_order"
	var req *submitRequest
	if opts != nil {
		req = &submitRequest{
			symbol:          ffi.GoString(opts.Symbol),
			orderType:       opts.OrderType,
			side:            opts.Side,
			quantity:        opts.SubmittedQuantity,
			timeInForce:     opts.TimeInForce,
			price:           l.readDecimal(opts.SubmittedPrice, op),
			triggerPrice:    l.readDecimal(opts.TriggerPrice, op),
			limitOffset:     l.readDecimal(opts.LimitOffset, op),
			trailingAmount:  l.readDecimal(opts.TrailingAmount, op),
			trailingPercent: l.readDecimal(opts.TrailingPercent, op),
			expireDate:      copyOpt(opts.ExpireDate),
			outsideRTH:      copyOpt(opts.OutsideRTH),
			remark:          ffi.GoString(opts.Remark),
		}
	}
	l.tradeCall(ctx, "trade_context.submit_order", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		if req == nil {
			return payload{}, invalidArgument("submit_order", "missing options")
		}
		id, err := l.broker.submit(*req)
		if err != nil {
			return payload{}, err
		}
		return one(pool.Value(a, ffi.CSubmitOrderResponse{OrderID: a.String(id)})), nil
	})
}

func (l *Library) TradeContextReplaceOrder(ctx ffi.TradeContextPtr, opts *ffi.CReplaceOrderOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	const op = "trade_context_replace_order"
	var req *replaceRequest
	if opts != nil {
		req = &replaceRequest{
			orderID:         ffi.GoString(opts.OrderID),
			quantity:        opts.Quantity,
			price:           l.readDecimal(opts.Price, op),
			triggerPrice:    l.readDecimal(opts.TriggerPrice, op),
			limitOffset:     l.readDecimal(opts.LimitOffset, op),
			trailingAmount:  l.readDecimal(opts.TrailingAmount, op),
			trailingPercent: l.readDecimal(opts.TrailingPercent, op),
			remark:          ffi.GoStringOpt(opts.Remark),
		}
	}
	l.tradeCall(ctx, "trade_context.replace_order", cb, ud, func(_ context.Context, _ *tradeContext, _ *pool.Arena) (payload, error) {
		if req == nil {
			return payload{}, invalidArgument("replace_order", "missing options")
		}
		if err := l.broker.replace(*req); err != nil {
			return payload{}, err
		}
		return none()
	})
}

func (l *Library) TradeContextCancelOrder(ctx ffi.TradeContextPtr, orderID ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	id := ffi.GoString(orderID)
	l.tradeCall(ctx, "trade_context.cancel_order", cb, ud, func(_ context.Context, _ *tradeContext, _ *pool.Arena) (payload, error) {
		if err := l.broker.cancel(id); err != nil {
			return payload{}, err
		}
		return none()
	})
}

// TradeContextAccountBalance lists every currency when currency is null.
func (l *Library) TradeContextAccountBalance(ctx ffi.TradeContextPtr, currency ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	filter := ffi.GoString(currency)
	l.tradeCall(ctx, "trade_context.account_balance", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		infos := l.broker.balances(filter)
		out := pool.Alloc[ffi.CAccountBalance](a, len(infos))
		for i, info := range infos {
			cash := pool.Alloc[ffi.CCashInfo](a, 1)
			cash[0] = ffi.CCashInfo{
				WithdrawCash:  l.arenaDecimal(a, info.available),
				AvailableCash: l.arenaDecimal(a, info.available),
				FrozenCash:    l.arenaDecimal(a, info.frozen),
				SettlingCash:  l.arenaDecimal(a, decimal.Zero),
				Currency:      a.String(info.currency),
			}
			out[i] = ffi.CAccountBalance{
				TotalCash:              l.arenaDecimal(a, info.total),
				MaxFinanceAmount:       l.arenaDecimal(a, decimal.Zero),
				RemainingFinanceAmount: l.arenaDecimal(a, decimal.Zero),
				RiskLevel:              1,
				MarginCall:             l.arenaDecimal(a, decimal.Zero),
				Currency:               a.String(info.currency),
				NetAssets:              l.arenaDecimal(a, info.netAssets),
				InitMargin:             l.arenaDecimal(a, decimal.Zero),
				MaintenanceMargin:      l.arenaDecimal(a, decimal.Zero),
			}
			out[i].CashInfos, out[i].NumCashInfos = ffi.Array(cash)
		}
		return many(out), nil
	})
}

// TradeContextStockPositions reports a single account channel.
func (l *Library) TradeContextStockPositions(ctx ffi.TradeContextPtr, opts *ffi.CGetStockPositionsOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	var symbols []string
	if opts != nil {
		symbols = readSymbols(opts.Symbols, opts.NumSymbols)
	}
	l.tradeCall(ctx, "trade_context.stock_positions", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		held := l.broker.holdings(symbols)
		positions := pool.Alloc[ffi.CStockPosition](a, len(held))
		for i, p := range held {
			positions[i] = ffi.CStockPosition{
				Symbol:            a.String(p.symbol),
				SymbolName:        a.String(p.name),
				Quantity:          p.quantity,
				AvailableQuantity: p.available,
				Currency:          a.String(p.currency),
				CostPrice:         l.arenaDecimal(a, p.cost),
				Market:            p.market,
			}
		}
		channels := pool.Alloc[ffi.CStockPositionChannel](a, 1)
		channels[0].AccountChannel = a.String(accountChannel)
		channels[0].Positions, channels[0].NumPositions = ffi.Array(positions)
		out := pool.New[ffi.CStockPositionsResponse](a)
		out.Channels, out.NumChannels = ffi.Array(channels)
		return one(out), nil
	})
}

// TradeContextOrderDetail completes with a COrderDetail.
func (l *Library) TradeContextOrderDetail(ctx ffi.TradeContextPtr, orderID ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	id := ffi.GoString(orderID)
	l.tradeCall(ctx, "trade_context.order_detail", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		if id == "" {
			return payload{}, invalidArgument("order_detail", "order id is required")
		}
		o, err := l.broker.detail(id)
		if err != nil {
			return payload{}, err
		}
		return one(l.cOrderDetail(a, o)), nil
	})
}

// TradeContextCashFlow pages default to page 1 of 50 entries.
func (l *Library) TradeContextCashFlow(ctx ffi.TradeContextPtr, opts *ffi.CGetCashFlowOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	const op = "cash_flow"
	var f *cashFlowFilter
	if opts != nil {
		f = &cashFlowFilter{
			from:         time.Unix(opts.StartAt, 0),
			to:           time.Unix(opts.EndAt, 0),
			businessType: copyOpt(opts.BusinessType),
			symbol:       ffi.GoString(opts.Symbol),
			page:         1,
			size:         defaultCashFlowPage,
		}
		if opts.Page != nil {
			f.page = int(*opts.Page)
		}
		if opts.Size != nil {
			f.size = int(*opts.Size)
		}
	}
	l.tradeCall(ctx, "trade_context.cash_flow", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		switch {
		case f == nil:
			return payload{}, invalidArgument(op, "missing options")
		case f.from.After(f.to):
			return payload{}, invalidArgument(op, "start is after end")
		case f.page < 1:
			return payload{}, invalidArgument(op, "page starts at 1")
		case f.size < 1 || f.size > maxRequestCount:
			return payload{}, invalidArgument(op, "size must be between 1 and 1000")
		}
		return many(l.cCashFlows(a, l.broker.cashFlows(*f))), nil
	})
}

// TradeContextEstimateMaxPurchaseQuantity completes with a CEstimateMaxPurchaseQuantityResponse.
// The simulated account has no margin, so both quantities are equal.
func (l *Library) TradeContextEstimateMaxPurchaseQuantity(ctx ffi.TradeContextPtr, opts *ffi.CEstimateMaxPurchaseQuantityOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	const op = "trade_context_estimate_max_purchase_quantity"
	var req *purchaseEstimate
	if opts != nil {
		req = &purchaseEstimate{
			symbol:    ffi.GoString(opts.Symbol),
			orderType: opts.OrderType,
			side:      opts.Side,
			price:     l.readDecimal(opts.Price, op),
			currency:  ffi.GoString(opts.Currency),
			orderID:   ffi.GoString(opts.OrderID),
		}
	}
	l.tradeCall(ctx, "trade_context.estimate_max_purchase_quantity", cb, ud, func(_ context.Context, _ *tradeContext, a *pool.Arena) (payload, error) {
		if req == nil {
			return payload{}, invalidArgument("estimate_max_purchase_quantity", "missing options")
		}
		qty, err := l.broker.maxQuantity(*req)
		if err != nil {
			return payload{}, err
		}
		return one(pool.Value(a, ffi.CEstimateMaxPurchaseQuantityResponse{CashMaxQty: qty, MarginMaxQty: qty})), nil
	})
}

func copyOpt[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

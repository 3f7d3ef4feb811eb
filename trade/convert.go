package trade

import (
	"time"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/decimal"
	"github.com/coachpo/longport-go/ffi"
)

type converter struct {
	lib ffi.DecimalAPI
}

func (c converter) dec(p ffi.DecimalPtr) *decimal.Decimal { return decimal.FromNative(c.lib, p) }

func unix(ts int64) time.Time { return time.Unix(ts, 0).UTC() }

func unixOpt(ts *int64) *time.Time {
	if ts == nil {
		return nil
	}
	t := unix(*ts)
	return &t
}

func unixArg(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func (c converter) order(o *ffi.COrder) Order {
	return Order{
		OrderID:          bridge.String(o.OrderID),
		Status:           o.Status,
		StockName:        bridge.String(o.StockName),
		Quantity:         o.Quantity,
		ExecutedQuantity: o.ExecutedQuantity,
		Price:            c.dec(o.Price),
		ExecutedPrice:    c.dec(o.ExecutedPrice),
		SubmittedAt:      unix(o.SubmittedAt),
		Side:             o.Side,
		Symbol:           bridge.String(o.Symbol),
		OrderType:        o.OrderType,
		LastDone:         c.dec(o.LastDone),
		TriggerPrice:     c.dec(o.TriggerPrice),
		Msg:              bridge.String(o.Msg),
		Tag:              o.Tag,
		TimeInForce:      o.TimeInForce,
		ExpireDate:       bridge.Date(o.ExpireDate),
		UpdatedAt:        unixOpt(o.UpdatedAt),
		TriggerAt:        unixOpt(o.TriggerAt),
		TrailingAmount:   c.dec(o.TrailingAmount),
		TrailingPercent:  c.dec(o.TrailingPercent),
		LimitOffset:      c.dec(o.LimitOffset),
		TriggerStatus:    bridge.Opt(o.TriggerStatus),
		Currency:         bridge.String(o.Currency),
		OutsideRTH:       bridge.Opt(o.OutsideRTH),
		Remark:           bridge.String(o.Remark),
	}
}

func (c converter) orderDetail(o *ffi.COrderDetail) OrderDetail {
	events := ffi.Slice(o.History, o.NumHistory)
	out := OrderDetail{Order: c.order(&o.COrder), History: make([]OrderHistoryDetail, len(events))}
	for i := range events {
		ev := &events[i]
		out.History[i] = OrderHistoryDetail{
			Price:    c.dec(ev.Price),
			Quantity: ev.Quantity,
			Status:   ev.Status,
			Msg:      bridge.String(ev.Msg),
			Time:     unix(ev.Time),
		}
	}
	return out
}

func (c converter) pushOrderChanged(ev *ffi.CPushOrderChanged) PushOrderChanged {
	return PushOrderChanged{
		Side:              ev.Side,
		StockName:         bridge.String(ev.StockName),
		SubmittedQuantity: ev.SubmittedQuantity,
		Symbol:            bridge.String(ev.Symbol),
		OrderType:         ev.OrderType,
		SubmittedPrice:    c.dec(ev.SubmittedPrice),
		ExecutedQuantity:  ev.ExecutedQuantity,
		ExecutedPrice:     c.dec(ev.ExecutedPrice),
		OrderID:           bridge.String(ev.OrderID),
		Currency:          bridge.String(ev.Currency),
		Status:            ev.Status,
		SubmittedAt:       unix(ev.SubmittedAt),
		UpdatedAt:         unix(ev.UpdatedAt),
		TriggerPrice:      c.dec(ev.TriggerPrice),
		Msg:               bridge.String(ev.Msg),
		Tag:               ev.Tag,
		TriggerStatus:     bridge.Opt(ev.TriggerStatus),
		TriggerAt:         unixOpt(ev.TriggerAt),
		TrailingAmount:    c.dec(ev.TrailingAmount),
		TrailingPercent:   c.dec(ev.TrailingPercent),
		LimitOffset:       c.dec(ev.LimitOffset),
		AccountNo:         bridge.String(ev.AccountNo),
	}
}

func (c converter) execution(e *ffi.CExecution) Execution {
	return Execution{
		OrderID:     bridge.String(e.OrderID),
		TradeID:     bridge.String(e.TradeID),
		Symbol:      bridge.String(e.Symbol),
		TradeDoneAt: unix(e.TradeDoneAt),
		Quantity:    e.Quantity,
		Price:       c.dec(e.Price),
	}
}

func (c converter) cashInfo(ci *ffi.CCashInfo) CashInfo {
	return CashInfo{
		WithdrawCash:  c.dec(ci.WithdrawCash),
		AvailableCash: c.dec(ci.AvailableCash),
		FrozenCash:    c.dec(ci.FrozenCash),
		SettlingCash:  c.dec(ci.SettlingCash),
		Currency:      bridge.String(ci.Currency),
	}
}

func (c converter) accountBalance(b *ffi.CAccountBalance) AccountBalance {
	infos := ffi.Slice(b.CashInfos, b.NumCashInfos)
	cash := make([]CashInfo, len(infos))
	for i := range infos {
		cash[i] = c.cashInfo(&infos[i])
	}
	return AccountBalance{
		TotalCash:              c.dec(b.TotalCash),
		MaxFinanceAmount:       c.dec(b.MaxFinanceAmount),
		RemainingFinanceAmount: c.dec(b.RemainingFinanceAmount),
		RiskLevel:              b.RiskLevel,
		MarginCall:             c.dec(b.MarginCall),
		Currency:               bridge.String(b.Currency),
		CashInfos:              cash,
		NetAssets:              c.dec(b.NetAssets),
		InitMargin:             c.dec(b.InitMargin),
		MaintenanceMargin:      c.dec(b.MaintenanceMargin),
	}
}

func (c converter) stockPositions(r *ffi.CStockPositionsResponse) StockPositionsResponse {
	channels := ffi.Slice(r.Channels, r.NumChannels)
	out := StockPositionsResponse{Channels: make([]StockPositionChannel, len(channels))}
	for i := range channels {
		ch := &channels[i]
		held := ffi.Slice(ch.Positions, ch.NumPositions)
		positions := make([]StockPosition, len(held))
		for j := range held {
			p := &held[j]
			positions[j] = StockPosition{
				Symbol:            bridge.String(p.Symbol),
				SymbolName:        bridge.String(p.SymbolName),
				Quantity:          p.Quantity,
				AvailableQuantity: p.AvailableQuantity,
				Currency:          bridge.String(p.Currency),
				CostPrice:         c.dec(p.CostPrice),
				Market:            p.Market,
			}
		}
		out.Channels[i] = StockPositionChannel{
			AccountChannel: bridge.String(ch.AccountChannel),
			Positions:      positions,
		}
	}
	return out
}

func (c converter) cashFlow(f *ffi.CCashFlow) CashFlow {
	return CashFlow{
		TransactionFlowName: bridge.String(f.TransactionFlowName),
		Direction:           f.Direction,
		BusinessType:        f.BusinessType,
		Balance:             c.dec(f.Balance),
		Currency:            bridge.String(f.Currency),
		BusinessTime:        unix(f.BusinessTime),
		Symbol:              bridge.String(f.Symbol),
		Description:         bridge.String(f.Description),
	}
}

func maxPurchase(r *ffi.CEstimateMaxPurchaseQuantityResponse) EstimateMaxPurchaseQuantityResponse {
	return EstimateMaxPurchaseQuantityResponse{CashMaxQty: r.CashMaxQty, MarginMaxQty: r.MarginMaxQty}
}

func submitResponse(r *ffi.CSubmitOrderResponse) SubmitOrderResponse {
	return SubmitOrderResponse{OrderID: bridge.String(r.OrderID)}
}

// The request builders below borrow decimals from the options; callers keep the options
// alive until the native call has returned.

func (o *GetTodayOrdersOptions) native() *ffi.CGetTodayOrdersOptions {
	if o == nil {
		return nil
	}
	out := &ffi.CGetTodayOrdersOptions{
		Symbol:  ffi.CStringOpt(o.Symbol),
		Side:    bridge.Ref(o.Side),
		Market:  bridge.Ref(o.Market),
		OrderID: ffi.CStringOpt(o.OrderID),
	}
	out.Status, out.NumStatus = ffi.Array(o.Status)
	return out
}

func (o *GetHistoryOrdersOptions) native() *ffi.CGetHistoryOrdersOptions {
	if o == nil {
		return nil
	}
	out := &ffi.CGetHistoryOrdersOptions{
		Symbol:  ffi.CStringOpt(o.Symbol),
		Side:    bridge.Ref(o.Side),
		Market:  bridge.Ref(o.Market),
		StartAt: unixArg(o.StartAt),
		EndAt:   unixArg(o.EndAt),
	}
	out.Status, out.NumStatus = ffi.Array(o.Status)
	return out
}

func (o *GetTodayExecutionsOptions) native() *ffi.CGetTodayExecutionsOptions {
	if o == nil {
		return nil
	}
	return &ffi.CGetTodayExecutionsOptions{
		Symbol:  ffi.CStringOpt(o.Symbol),
		OrderID: ffi.CStringOpt(o.OrderID),
	}
}

func (o *GetHistoryExecutionsOptions) native() *ffi.CGetHistoryExecutionsOptions {
	if o == nil {
		return nil
	}
	return &ffi.CGetHistoryExecutionsOptions{
		StartAt: unixArg(o.StartAt),
		EndAt:   unixArg(o.EndAt),
		Symbol:  ffi.CStringOpt(o.Symbol),
	}
}

func (o *SubmitOrderOptions) native() *ffi.CSubmitOrderOptions {
	return &ffi.CSubmitOrderOptions{
		Symbol:            ffi.CStringOf(o.Symbol),
		OrderType:         o.OrderType,
		Side:              o.Side,
		SubmittedQuantity: o.SubmittedQuantity,
		TimeInForce:       o.TimeInForce,
		SubmittedPrice:    decimal.Native(o.SubmittedPrice),
		TriggerPrice:      decimal.Native(o.TriggerPrice),
		LimitOffset:       decimal.Native(o.LimitOffset),
		TrailingAmount:    decimal.Native(o.TrailingAmount),
		TrailingPercent:   decimal.Native(o.TrailingPercent),
		ExpireDate:        bridge.Ref(o.ExpireDate),
		OutsideRTH:        bridge.Ref(o.OutsideRTH),
		Remark:            ffi.CStringOpt(o.Remark),
	}
}

func (o *ReplaceOrderOptions) native() *ffi.CReplaceOrderOptions {
	return &ffi.CReplaceOrderOptions{
		OrderID:         ffi.CStringOf(o.OrderID),
		Quantity:        o.Quantity,
		Price:           decimal.Native(o.Price),
		TriggerPrice:    decimal.Native(o.TriggerPrice),
		LimitOffset:     decimal.Native(o.LimitOffset),
		TrailingAmount:  decimal.Native(o.TrailingAmount),
		TrailingPercent: decimal.Native(o.TrailingPercent),
		Remark:          ffi.CStringOpt(o.Remark),
	}
}

func (o *GetStockPositionsOptions) native() *ffi.CGetStockPositionsOptions {
	if o == nil {
		return nil
	}
	out := &ffi.CGetStockPositionsOptions{}
	out.Symbols, out.NumSymbols = ffi.CStrings(o.Symbols)
	return out
}

func sizeArg(n *int) *uintptr {
	if n == nil {
		return nil
	}
	v := uintptr(0)
	if *n > 0 {
		v = uintptr(*n)
	}
	return &v
}

func (o *GetCashFlowOptions) native() *ffi.CGetCashFlowOptions {
	return &ffi.CGetCashFlowOptions{
		StartAt:      o.StartAt.Unix(),
		EndAt:        o.EndAt.Unix(),
		BusinessType: bridge.Ref(o.BusinessType),
		Symbol:       ffi.CStringOpt(o.Symbol),
		Page:         sizeArg(o.Page),
		Size:         sizeArg(o.Size),
	}
}

func (o *EstimateMaxPurchaseQuantityOptions) native() *ffi.CEstimateMaxPurchaseQuantityOptions {
	return &ffi.CEstimateMaxPurchaseQuantityOptions{
		Symbol:    ffi.CStringOf(o.Symbol),
		OrderType: o.OrderType,
		Price:     decimal.Native(o.Price),
		Side:      o.Side,
		Currency:  ffi.CStringOpt(o.Currency),
		OrderID:   ffi.CStringOpt(o.OrderID),
	}
}

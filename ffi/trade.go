package ffi

import "github.com/coachpo/longport-go/types"

// COrder is an order record.
type COrder struct {
	OrderID          CString
	Status           types.OrderStatus
	StockName        CString
	Quantity         int64
	ExecutedQuantity int64
	Price            DecimalPtr
	ExecutedPrice    DecimalPtr
	SubmittedAt      int64
	Side             types.OrderSide
	Symbol           CString
	OrderType        types.OrderType
	LastDone         DecimalPtr
	TriggerPrice     DecimalPtr
	Msg              CString
	Tag              types.OrderTag
	TimeInForce      types.TimeInForce
	ExpireDate       *CDate
	UpdatedAt        *int64
	TriggerAt        *int64
	TrailingAmount   DecimalPtr
	TrailingPercent  DecimalPtr
	LimitOffset      DecimalPtr
	TriggerStatus    *types.TriggerStatus
	Currency         CString
	OutsideRTH       *types.OutsideRTH
	Remark           CString
}

// COrderHistoryDetail is one state an order went through.
type COrderHistoryDetail struct {
	Price    DecimalPtr
	Quantity int64
	Status   types.OrderStatus
	Msg      CString
	Time     int64
}

// COrderDetail is an order record with its history.
type COrderDetail struct {
	COrder
	History    *COrderHistoryDetail
	NumHistory uintptr
}

// CPushOrderChanged is a streamed order update.
type CPushOrderChanged struct {
	Side              types.OrderSide
	StockName         CString
	SubmittedQuantity int64
	Symbol            CString
	OrderType         types.OrderType
	SubmittedPrice    DecimalPtr
	ExecutedQuantity  int64
	ExecutedPrice     DecimalPtr
	OrderID           CString
	Currency          CString
	Status            types.OrderStatus
	SubmittedAt       int64
	UpdatedAt         int64
	TriggerPrice      DecimalPtr
	Msg               CString
	Tag               types.OrderTag
	TriggerStatus     *types.TriggerStatus
	TriggerAt         *int64
	TrailingAmount    DecimalPtr
	TrailingPercent   DecimalPtr
	LimitOffset       DecimalPtr
	AccountNo         CString
}

// CExecution is a fill.
type CExecution struct {
	OrderID     CString
	TradeID     CString
	Symbol      CString
	TradeDoneAt int64
	Quantity    int64
	Price       DecimalPtr
}

// CGetTodayOrdersOptions filters today's orders. Every field is optional.
type CGetTodayOrdersOptions struct {
	Symbol    CString
	Status    *types.OrderStatus
	NumStatus uintptr
	Side      *types.OrderSide
	Market    *types.Market
	OrderID   CString
}

// CGetHistoryOrdersOptions filters historical orders. Every field is optional.
type CGetHistoryOrdersOptions struct {
	Symbol    CString
	Status    *types.OrderStatus
	NumStatus uintptr
	Side      *types.OrderSide
	Market    *types.Market
	StartAt   *int64
	EndAt     *int64
}

// CGetTodayExecutionsOptions filters today's executions.
type CGetTodayExecutionsOptions struct {
	Symbol  CString
	OrderID CString
}

// CGetHistoryExecutionsOptions filters historical executions.
type CGetHistoryExecutionsOptions struct {
	StartAt *int64
	EndAt   *int64
	Symbol  CString
}

// CSubmitOrderOptions is a new order request.
type CSubmitOrderOptions struct {
	Symbol            CString
	OrderType         types.OrderType
	Side              types.OrderSide
	SubmittedQuantity int64
	TimeInForce       types.TimeInForce
	SubmittedPrice    DecimalPtr
	TriggerPrice      DecimalPtr
	LimitOffset       DecimalPtr
	TrailingAmount    DecimalPtr
	TrailingPercent   DecimalPtr
	ExpireDate        *CDate
	OutsideRTH        *types.OutsideRTH
	Remark            CString
}

// CSubmitOrderResponse carries the assigned order id.
type CSubmitOrderResponse struct {
	OrderID CString
}

// CReplaceOrderOptions amends a working order.
type CReplaceOrderOptions struct {
	OrderID         CString
	Quantity        int64
	Price           DecimalPtr
	TriggerPrice    DecimalPtr
	LimitOffset     DecimalPtr
	TrailingAmount  DecimalPtr
	TrailingPercent DecimalPtr
	Remark          CString
}

// CCashInfo is the cash breakdown for one currency.
type CCashInfo struct {
	WithdrawCash  DecimalPtr
	AvailableCash DecimalPtr
	FrozenCash    DecimalPtr
	SettlingCash  DecimalPtr
	Currency      CString
}

// CAccountBalance is the balance of one account currency.
type CAccountBalance struct {
	TotalCash              DecimalPtr
	MaxFinanceAmount       DecimalPtr
	RemainingFinanceAmount DecimalPtr
	RiskLevel              int32
	MarginCall             DecimalPtr
	Currency               CString
	CashInfos              *CCashInfo
	NumCashInfos           uintptr
	NetAssets              DecimalPtr
	InitMargin             DecimalPtr
	MaintenanceMargin      DecimalPtr
}

// CStockPosition is a holding.
type CStockPosition struct {
	Symbol            CString
	SymbolName        CString
	Quantity          int64
	AvailableQuantity int64
	Currency          CString
	CostPrice         DecimalPtr
	Market            types.Market
}

// CStockPositionChannel groups holdings by account channel.
type CStockPositionChannel struct {
	AccountChannel CString
	Positions      *CStockPosition
	NumPositions   uintptr
}

// CStockPositionsResponse lists holdings per channel.
type CStockPositionsResponse struct {
	Channels    *CStockPositionChannel
	NumChannels uintptr
}

// CGetStockPositionsOptions restricts the positions query to some symbols.
type CGetStockPositionsOptions struct {
	Symbols    *CString
	NumSymbols uintptr
}

// CGetCashFlowOptions selects cash flows between StartAt and EndAt.
type CGetCashFlowOptions struct {
	StartAt      int64
	EndAt        int64
	BusinessType *types.BalanceType
	Symbol       CString
	Page         *uintptr
	Size         *uintptr
}

// CCashFlow is one movement of money.
type CCashFlow struct {
	TransactionFlowName CString
	Direction           types.CashFlowDirection
	BusinessType        types.BalanceType
	Balance             DecimalPtr
	Currency            CString
	BusinessTime        int64
	Symbol              CString
	Description         CString
}

// CEstimateMaxPurchaseQuantityOptions describes the order to size. Price is optional for
// market orders; OrderID names the order being replaced, if any.
type CEstimateMaxPurchaseQuantityOptions struct {
	Symbol    CString
	OrderType types.OrderType
	Price     DecimalPtr
	Side      types.OrderSide
	Currency  CString
	OrderID   CString
}

// CEstimateMaxPurchaseQuantityResponse is the largest order size the account can afford.
type CEstimateMaxPurchaseQuantityResponse struct {
	CashMaxQty   int64
	MarginMaxQty int64
}

// OrderChangedPushFunc receives order updates. The event is borrowed.
type OrderChangedPushFunc func(ctx TradeContextPtr, ev *CPushOrderChanged, ud Userdata)

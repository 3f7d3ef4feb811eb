package trade

import (
	"time"

	"github.com/coachpo/longport-go/decimal"
	"github.com/coachpo/longport-go/types"
)

// Order is an order record. Optional fields are nil when the order type does not use them.
type Order struct {
	OrderID          string
	Status           types.OrderStatus
	StockName        string
	Quantity         int64
	ExecutedQuantity int64
	Price            *decimal.Decimal
	ExecutedPrice    *decimal.Decimal
	SubmittedAt      time.Time
	Side             types.OrderSide
	Symbol           string
	OrderType        types.OrderType
	LastDone         *decimal.Decimal
	TriggerPrice     *decimal.Decimal
	Msg              string
	Tag              types.OrderTag
	TimeInForce      types.TimeInForce
	ExpireDate       *types.Date
	UpdatedAt        *time.Time
	TriggerAt        *time.Time
	TrailingAmount   *decimal.Decimal
	TrailingPercent  *decimal.Decimal
	LimitOffset      *decimal.Decimal
	TriggerStatus    *types.TriggerStatus
	Currency         string
	OutsideRTH       *types.OutsideRTH
	Remark           string
}

// OrderHistoryDetail is one status an order went through.
type OrderHistoryDetail struct {
	Price    *decimal.Decimal
	Quantity int64
	Status   types.OrderStatus
	Msg      string
	Time     time.Time
}

// OrderDetail is an order with the statuses it went through, oldest first.
type OrderDetail struct {
	Order
	History []OrderHistoryDetail
}

// PushOrderChanged is a streamed order update.
type PushOrderChanged struct {
	Side              types.OrderSide
	StockName         string
	SubmittedQuantity int64
	Symbol            string
	OrderType         types.OrderType
	SubmittedPrice    *decimal.Decimal
	ExecutedQuantity  int64
	ExecutedPrice     *decimal.Decimal
	OrderID           string
	Currency          string
	Status            types.OrderStatus
	SubmittedAt       time.Time
	UpdatedAt         time.Time
	TriggerPrice      *decimal.Decimal
	Msg               string
	Tag               types.OrderTag
	TriggerStatus     *types.TriggerStatus
	TriggerAt         *time.Time
	TrailingAmount    *decimal.Decimal
	TrailingPercent   *decimal.Decimal
	LimitOffset       *decimal.Decimal
	AccountNo         string
}

// Execution is a fill.
type Execution struct {
	OrderID     string
	TradeID     string
	Symbol      string
	TradeDoneAt time.Time
	Quantity    int64
	Price       *decimal.Decimal
}

// CashInfo is the cash breakdown for one currency.
type CashInfo struct {
	WithdrawCash  *decimal.Decimal
	AvailableCash *decimal.Decimal
	FrozenCash    *decimal.Decimal
	SettlingCash  *decimal.Decimal
	Currency      string
}

type AccountBalance struct {
	TotalCash              *decimal.Decimal
	MaxFinanceAmount       *decimal.Decimal
	RemainingFinanceAmount *decimal.Decimal
	RiskLevel              int32
	MarginCall             *decimal.Decimal
	Currency               string
	CashInfos              []CashInfo
	NetAssets              *decimal.Decimal
	InitMargin             *decimal.Decimal
	MaintenanceMargin      *decimal.Decimal
}

type StockPosition struct {
	Symbol            string
	SymbolName        string
	Quantity          int64
	AvailableQuantity int64
	Currency          string
	CostPrice         *decimal.Decimal
	Market            types.Market
}

// StockPositionChannel groups holdings by account channel.
type StockPositionChannel struct {
	AccountChannel string
	Positions      []StockPosition
}

type StockPositionsResponse struct {
	Channels []StockPositionChannel
}

type SubmitOrderResponse struct {
	OrderID string
}

// GetTodayOrdersOptions filters today's orders. Zero fields do not filter.
type GetTodayOrdersOptions struct {
	Symbol  *string
	Status  []types.OrderStatus
	Side    *types.OrderSide
	Market  *types.Market
	OrderID *string
}

// GetHistoryOrdersOptions filters historical orders. The window defaults to the last 90 days.
type GetHistoryOrdersOptions struct {
	Symbol  *string
	Status  []types.OrderStatus
	Side    *types.OrderSide
	Market  *types.Market
	StartAt *time.Time
	EndAt   *time.Time
}

type GetTodayExecutionsOptions struct {
	Symbol  *string
	OrderID *string
}

type GetHistoryExecutionsOptions struct {
	StartAt *time.Time
	EndAt   *time.Time
	Symbol  *string
}

// SubmitOrderOptions is a new order. Which of the optional prices are required depends on
// OrderType: limit orders need SubmittedPrice, trigger orders TriggerPrice, trailing orders
// TrailingAmount or TrailingPercent. ExpireDate is required with TimeInForceGoodTilDate.
type SubmitOrderOptions struct {
	Symbol            string
	OrderType         types.OrderType
	Side              types.OrderSide
	SubmittedQuantity int64
	TimeInForce       types.TimeInForce
	SubmittedPrice    *decimal.Decimal
	TriggerPrice      *decimal.Decimal
	LimitOffset       *decimal.Decimal
	TrailingAmount    *decimal.Decimal
	TrailingPercent   *decimal.Decimal
	ExpireDate        *types.Date
	OutsideRTH        *types.OutsideRTH
	Remark            *string
}

// ReplaceOrderOptions amends a working order.
type ReplaceOrderOptions struct {
	OrderID         string
	Quantity        int64
	Price           *decimal.Decimal
	TriggerPrice    *decimal.Decimal
	LimitOffset     *decimal.Decimal
	TrailingAmount  *decimal.Decimal
	TrailingPercent *decimal.Decimal
	Remark          *string
}

// GetStockPositionsOptions restricts the positions query. An empty list means every holding.
type GetStockPositionsOptions struct {
	Symbols []string
}

// GetCashFlowOptions selects the cash flows between StartAt and EndAt. Page counts from 1;
// Page and Size default to 1 and 50.
type GetCashFlowOptions struct {
	StartAt      time.Time
	EndAt        time.Time
	BusinessType *types.BalanceType
	Symbol       *string
	Page         *int
	Size         *int
}

// CashFlow is one movement of money. Symbol is empty for deposits and withdrawals.
type CashFlow struct {
	TransactionFlowName string
	Direction           types.CashFlowDirection
	BusinessType        types.BalanceType
	Balance             *decimal.Decimal
	Currency            string
	BusinessTime        time.Time
	Symbol              string
	Description         string
}

// EstimateMaxPurchaseQuantityOptions describes the order to size. Price may be nil for
// market orders. OrderID names an order being replaced, whose reservation is released first.
type EstimateMaxPurchaseQuantityOptions struct {
	Symbol    string
	OrderType types.OrderType
	Price     *decimal.Decimal
	Side      types.OrderSide
	Currency  *string
	OrderID   *string
}

type EstimateMaxPurchaseQuantityResponse struct {
	CashMaxQty   int64
	MarginMaxQty int64
}

// Package types holds the enums and calendar values shared by the quote and trade APIs.
// The numeric values are part of the native ABI and must not be reordered.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies an exchange region.
type Market int32

const (
	MarketUnknown Market = iota
	MarketUS
	MarketHK
	MarketCN
	MarketSG
)

var marketNames = [...]string{"Unknown", "US", "HK", "CN", "SG"}

func (m Market) String() string {
	if m < 0 || int(m) >= len(marketNames) {
		return marketNames[0]
	}
	return marketNames[m]
}

// MarketOfSymbol derives the market from a `CODE.MARKET` symbol.
func MarketOfSymbol(symbol string) Market {
	idx := strings.LastIndexByte(symbol, '.')
	if idx < 0 {
		return MarketUnknown
	}
	suffix := strings.ToUpper(symbol[idx+1:])
	switch suffix {
	case "SH", "SZ":
		return MarketCN
	}
	for i, name := range marketNames {
		if i > 0 && name == suffix {
			return Market(i)
		}
	}
	return MarketUnknown
}

// Language selects the locale of text fields returned by the SDK.
type Language int32

const (
	LanguageZhCN Language = iota
	LanguageZhHK
	LanguageEN
)

// ParseLanguage accepts `zh-CN`, `zh-HK` and `en` (case-insensitive).
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zh-cn":
		return LanguageZhCN, nil
	case "zh-hk":
		return LanguageZhHK, nil
	case "en", "":
		return LanguageEN, nil
	}
	return LanguageEN, fmt.Errorf("unknown language %q", s)
}

func (l Language) String() string {
	switch l {
	case LanguageZhCN:
		return "zh-CN"
	case LanguageZhHK:
		return "zh-HK"
	default:
		return "en"
	}
}

// PushCandlestickMode controls when candlestick pushes are emitted.
type PushCandlestickMode int32

const (
	PushCandlestickRealtime PushCandlestickMode = iota
	PushCandlestickConfirmed
)

// TradeStatus is the trading state of a security.
type TradeStatus int32

const (
	TradeStatusNormal TradeStatus = iota
	TradeStatusHalted
	TradeStatusDelisted
	TradeStatusFuse
	TradeStatusPrepareList
	TradeStatusCodeMoved
	TradeStatusToBeOpened
	TradeStatusSplitStockHalts
	TradeStatusExpired
	TradeStatusWarrantPrepareList
	TradeStatusSuspendTrade
)

// TradeSession distinguishes regular and extended hours.
type TradeSession int32

const (
	TradeSessionNormal TradeSession = iota
	TradeSessionPre
	TradeSessionPost
)

// TradeDirection is the aggressor side of a print.
type TradeDirection int32

const (
	TradeDirectionNeutral TradeDirection = iota
	TradeDirectionDown
	TradeDirectionUp
)

// AdjustType selects price adjustment for candlesticks.
type AdjustType int32

const (
	AdjustTypeNoAdjust AdjustType = iota
	AdjustTypeForward
)

// Period is a candlestick interval.
type Period int32

const (
	PeriodUnknown Period = iota
	PeriodMin1
	PeriodMin5
	PeriodMin15
	PeriodMin30
	PeriodMin60
	PeriodDay
	PeriodWeek
	PeriodMonth
	PeriodYear
)

// Start returns the beginning of the period bucket containing t (UTC).
func (p Period) Start(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodMin1:
		return t.Truncate(time.Minute)
	case PeriodMin5:
		return t.Truncate(5 * time.Minute)
	case PeriodMin15:
		return t.Truncate(15 * time.Minute)
	case PeriodMin30:
		return t.Truncate(30 * time.Minute)
	case PeriodMin60:
		return t.Truncate(time.Hour)
	case PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// SubFlags selects the push channels of a quote subscription.
type SubFlags uint8

const (
	SubFlagQuote   SubFlags = 0x1
	SubFlagDepth   SubFlags = 0x2
	SubFlagBrokers SubFlags = 0x4
	SubFlagTrade   SubFlags = 0x8
)

// Has reports whether every bit of o is set in f.
func (f SubFlags) Has(o SubFlags) bool { return f&o == o && o != 0 }

// TopicType is a trade push topic.
type TopicType int32

const (
	TopicPrivate TopicType = iota
)

// OrderSide is the side of an order.
type OrderSide int32

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderType is the order kind.
type OrderType int32

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLO
	OrderTypeELO
	OrderTypeMO
	OrderTypeAO
	OrderTypeALO
	OrderTypeODD
	OrderTypeLIT
	OrderTypeMIT
	OrderTypeTSLPAMT
	OrderTypeTSLPPCT
	OrderTypeTSMAMT
	OrderTypeTSMPCT
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus int32

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusNotReported
	OrderStatusReplacedNotReported
	OrderStatusProtectedNotReported
	OrderStatusVarietiesNotReported
	OrderStatusFilled
	OrderStatusWaitToNew
	OrderStatusNew
	OrderStatusWaitToReplace
	OrderStatusPendingReplace
	OrderStatusReplaced
	OrderStatusPartialFilled
	OrderStatusWaitToCancel
	OrderStatusPendingCancel
	OrderStatusRejected
	OrderStatusCanceled
	OrderStatusExpired
	OrderStatusPartialWithdrawal
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCanceled, OrderStatusExpired, OrderStatusPartialWithdrawal:
		return true
	}
	return false
}

// OrderTag classifies an order.
type OrderTag int32

const (
	OrderTagUnknown OrderTag = iota
	OrderTagNormal
	OrderTagLongTerm
	OrderTagGrey
)

// TriggerStatus is the state of a conditional order trigger.
type TriggerStatus int32

const (
	TriggerStatusUnknown TriggerStatus = iota
	TriggerStatusDeactive
	TriggerStatusActive
	TriggerStatusReleased
)

// OutsideRTH controls extended-hours participation.
type OutsideRTH int32

const (
	OutsideRTHUnknown OutsideRTH = iota
	OutsideRTHOnly
	OutsideRTHAnyTime
)

// TimeInForce is the order validity.
type TimeInForce int32

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceDay
	TimeInForceGoodTilCanceled
	TimeInForceGoodTilDate
)

// CashFlowDirection tells whether money left or entered the account.
type CashFlowDirection int32

const (
	CashFlowDirectionUnknown CashFlowDirection = iota
	CashFlowDirectionOut
	CashFlowDirectionIn
)

// BalanceType is the business category of a cash flow.
type BalanceType int32

const (
	BalanceTypeUnknown BalanceType = iota
	BalanceTypeCash
	BalanceTypeStock
	BalanceTypeFund
)

// Date is a calendar day without a zone.
type Date struct {
	Year  int32
	Month uint8
	Day   uint8
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return Date{Year: int32(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day())}
}

// Time converts the date to midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

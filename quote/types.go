package quote

import (
	"fmt"
	"time"

	"github.com/coachpo/longport-go/decimal"
	"github.com/coachpo/longport-go/types"
)

// SecurityStaticInfo is static reference data of a security.
type SecurityStaticInfo struct {
	Symbol            string
	NameCN            string
	NameEN            string
	NameHK            string
	Exchange          string
	Currency          string
	LotSize           int32
	TotalShares       int64
	CirculatingShares int64
	HKShares          int64
	EPS               *decimal.Decimal
	EPSTTM            *decimal.Decimal
	BPS               *decimal.Decimal
	DividendYield     *decimal.Decimal
	StockDerivatives  uint8
}

// PrePostQuote is an extended-hours quote.
type PrePostQuote struct {
	LastDone  *decimal.Decimal
	Timestamp time.Time
	Volume    int64
	Turnover  *decimal.Decimal
	High      *decimal.Decimal
	Low       *decimal.Decimal
	PrevClose *decimal.Decimal
}

// SecurityQuote is a snapshot quote. The extended-hours quotes are nil outside those
// sessions.
type SecurityQuote struct {
	Symbol          string
	LastDone        *decimal.Decimal
	PrevClose       *decimal.Decimal
	Open            *decimal.Decimal
	High            *decimal.Decimal
	Low             *decimal.Decimal
	Timestamp       time.Time
	Volume          int64
	Turnover        *decimal.Decimal
	TradeStatus     types.TradeStatus
	PreMarketQuote  *PrePostQuote
	PostMarketQuote *PrePostQuote
}

// RealtimeQuote is a quote from the context's push cache.
type RealtimeQuote struct {
	Symbol      string
	LastDone    *decimal.Decimal
	Open        *decimal.Decimal
	High        *decimal.Decimal
	Low         *decimal.Decimal
	Timestamp   time.Time
	Volume      int64
	Turnover    *decimal.Decimal
	TradeStatus types.TradeStatus
}

type Depth struct {
	Position int32
	Price    *decimal.Decimal
	Volume   int64
	OrderNum int64
}

type SecurityDepth struct {
	Asks []Depth
	Bids []Depth
}

type Brokers struct {
	Position  int32
	BrokerIDs []int32
}

type SecurityBrokers struct {
	AskBrokers []Brokers
	BidBrokers []Brokers
}

// Trade is one print.
type Trade struct {
	Price        *decimal.Decimal
	Volume       int64
	Timestamp    time.Time
	TradeType    string
	Direction    types.TradeDirection
	TradeSession types.TradeSession
}

type IntradayLine struct {
	Price     *decimal.Decimal
	Timestamp time.Time
	Volume    int64
	Turnover  *decimal.Decimal
	AvgPrice  *decimal.Decimal
}

type Candlestick struct {
	Close     *decimal.Decimal
	Open      *decimal.Decimal
	Low       *decimal.Decimal
	High      *decimal.Decimal
	Volume    int64
	Turnover  *decimal.Decimal
	Timestamp time.Time
}

type MarketTradingDays struct {
	TradingDays     []types.Date
	HalfTradingDays []types.Date
}

// TimeOfDay is a wall-clock time in the market's local zone.
type TimeOfDay struct {
	Hour   uint8
	Minute uint8
	Second uint8
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// TradingSessionInfo is one session of a trading day.
type TradingSessionInfo struct {
	BeginTime    TimeOfDay
	EndTime      TimeOfDay
	TradeSession types.TradeSession
}

// MarketTradingSession lists the sessions of one market in order.
type MarketTradingSession struct {
	Market        types.Market
	TradeSessions []TradingSessionInfo
}

// Subscription is one active subscription of a context.
type Subscription struct {
	Symbol       string
	SubTypes     types.SubFlags
	Candlesticks []types.Period
}

type PushQuote struct {
	Symbol       string
	LastDone     *decimal.Decimal
	Open         *decimal.Decimal
	High         *decimal.Decimal
	Low          *decimal.Decimal
	Timestamp    time.Time
	Volume       int64
	Turnover     *decimal.Decimal
	TradeStatus  types.TradeStatus
	TradeSession types.TradeSession
}

type PushDepth struct {
	Symbol string
	Asks   []Depth
	Bids   []Depth
}

type PushBrokers struct {
	Symbol     string
	AskBrokers []Brokers
	BidBrokers []Brokers
}

type PushTrades struct {
	Symbol string
	Trades []Trade
}

type PushCandlestick struct {
	Symbol      string
	Period      types.Period
	Candlestick Candlestick
}

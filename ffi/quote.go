package ffi

import "github.com/coachpo/longport-go/types"

// CDate is the ABI form of a calendar day.
type CDate = types.Date

// CTime is a wall-clock time of day.
type CTime struct {
	Hour   uint8
	Minute uint8
	Second uint8
}

// CDateTime is a calendar day and a time of day, both in UTC.
type CDateTime struct {
	Date CDate
	Time CTime
}

// CSecurityStaticInfo is static reference data of a security.
type CSecurityStaticInfo struct {
	Symbol            CString
	NameCN            CString
	NameEN            CString
	NameHK            CString
	Exchange          CString
	Currency          CString
	LotSize           int32
	TotalShares       int64
	CirculatingShares int64
	HKShares          int64
	EPS               DecimalPtr
	EPSTTM            DecimalPtr
	BPS               DecimalPtr
	DividendYield     DecimalPtr
	StockDerivatives  uint8
}

// CPrePostQuote is an extended-hours quote.
type CPrePostQuote struct {
	LastDone  DecimalPtr
	Timestamp int64
	Volume    int64
	Turnover  DecimalPtr
	High      DecimalPtr
	Low       DecimalPtr
	PrevClose DecimalPtr
}

// CSecurityQuote is a snapshot quote.
type CSecurityQuote struct {
	Symbol          CString
	LastDone        DecimalPtr
	PrevClose       DecimalPtr
	Open            DecimalPtr
	High            DecimalPtr
	Low             DecimalPtr
	Timestamp       int64
	Volume          int64
	Turnover        DecimalPtr
	TradeStatus     types.TradeStatus
	PreMarketQuote  *CPrePostQuote
	PostMarketQuote *CPrePostQuote
}

// CRealtimeQuote is a quote served from the local push cache.
type CRealtimeQuote struct {
	Symbol      CString
	LastDone    DecimalPtr
	Open        DecimalPtr
	High        DecimalPtr
	Low         DecimalPtr
	Timestamp   int64
	Volume      int64
	Turnover    DecimalPtr
	TradeStatus types.TradeStatus
}

// CDepth is one order book level.
type CDepth struct {
	Position int32
	Price    DecimalPtr
	Volume   int64
	OrderNum int64
}

// CSecurityDepth is an order book snapshot.
type CSecurityDepth struct {
	Asks    *CDepth
	NumAsks uintptr
	Bids    *CDepth
	NumBids uintptr
}

// CBrokers is the broker queue at one position.
type CBrokers struct {
	Position     int32
	BrokerIDs    *int32
	NumBrokerIDs uintptr
}

// CSecurityBrokers is a broker queue snapshot.
type CSecurityBrokers struct {
	AskBrokers    *CBrokers
	NumAskBrokers uintptr
	BidBrokers    *CBrokers
	NumBidBrokers uintptr
}

// CTrade is a single print.
type CTrade struct {
	Price        DecimalPtr
	Volume       int64
	Timestamp    int64
	TradeType    CString
	Direction    types.TradeDirection
	TradeSession types.TradeSession
}

// CIntradayLine is one minute of the intraday line.
type CIntradayLine struct {
	Price     DecimalPtr
	Timestamp int64
	Volume    int64
	Turnover  DecimalPtr
	AvgPrice  DecimalPtr
}

// CCandlestick is an OHLC bar.
type CCandlestick struct {
	Close     DecimalPtr
	Open      DecimalPtr
	Low       DecimalPtr
	High      DecimalPtr
	Volume    int64
	Turnover  DecimalPtr
	Timestamp int64
}

// CMarketTradingDays lists trading and half trading days.
type CMarketTradingDays struct {
	TradingDays        *CDate
	NumTradingDays     uintptr
	HalfTradingDays    *CDate
	NumHalfTradingDays uintptr
}

// CTradingSessionInfo is one session of a trading day.
type CTradingSessionInfo struct {
	BeginTime    CTime
	EndTime      CTime
	TradeSession types.TradeSession
}

// CMarketTradingSession lists the sessions of one market.
type CMarketTradingSession struct {
	Market           types.Market
	TradeSessions    *CTradingSessionInfo
	NumTradeSessions uintptr
}

// CSubscription is one active subscription of a quote context.
type CSubscription struct {
	Symbol          CString
	SubTypes        types.SubFlags
	Candlesticks    *types.Period
	NumCandlesticks uintptr
}

// CPushQuote is a streamed quote update.
type CPushQuote struct {
	Symbol       CString
	LastDone     DecimalPtr
	Open         DecimalPtr
	High         DecimalPtr
	Low          DecimalPtr
	Timestamp    int64
	Volume       int64
	Turnover     DecimalPtr
	TradeStatus  types.TradeStatus
	TradeSession types.TradeSession
}

// CPushDepth is a streamed order book.
type CPushDepth struct {
	Symbol  CString
	Asks    *CDepth
	NumAsks uintptr
	Bids    *CDepth
	NumBids uintptr
}

// CPushBrokers is a streamed broker queue.
type CPushBrokers struct {
	Symbol        CString
	AskBrokers    *CBrokers
	NumAskBrokers uintptr
	BidBrokers    *CBrokers
	NumBidBrokers uintptr
}

// CPushTrades is a batch of streamed prints.
type CPushTrades struct {
	Symbol    CString
	Trades    *CTrade
	NumTrades uintptr
}

// CPushCandlestick is a streamed bar update.
type CPushCandlestick struct {
	Symbol      CString
	Period      types.Period
	Candlestick CCandlestick
}

// Push callbacks. The event pointer is borrowed for the duration of the call.
type (
	QuotePushFunc       func(ctx QuoteContextPtr, ev *CPushQuote, ud Userdata)
	DepthPushFunc       func(ctx QuoteContextPtr, ev *CPushDepth, ud Userdata)
	BrokersPushFunc     func(ctx QuoteContextPtr, ev *CPushBrokers, ud Userdata)
	TradesPushFunc      func(ctx QuoteContextPtr, ev *CPushTrades, ud Userdata)
	CandlestickPushFunc func(ctx QuoteContextPtr, ev *CPushCandlestick, ud Userdata)
)

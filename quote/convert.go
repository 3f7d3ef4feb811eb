package quote

import (
	"time"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/decimal"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

// converter copies borrowed native payloads into Go values. Decimals are cloned.
type converter struct {
	lib ffi.DecimalAPI
}

func (c converter) dec(p ffi.DecimalPtr) *decimal.Decimal { return decimal.FromNative(c.lib, p) }

func unix(ts int64) time.Time { return time.Unix(ts, 0).UTC() }

func (c converter) staticInfo(s *ffi.CSecurityStaticInfo) SecurityStaticInfo {
	return SecurityStaticInfo{
		Symbol:            bridge.String(s.Symbol),
		NameCN:            bridge.String(s.NameCN),
		NameEN:            bridge.String(s.NameEN),
		NameHK:            bridge.String(s.NameHK),
		Exchange:          bridge.String(s.Exchange),
		Currency:          bridge.String(s.Currency),
		LotSize:           s.LotSize,
		TotalShares:       s.TotalShares,
		CirculatingShares: s.CirculatingShares,
		HKShares:          s.HKShares,
		EPS:               c.dec(s.EPS),
		EPSTTM:            c.dec(s.EPSTTM),
		BPS:               c.dec(s.BPS),
		DividendYield:     c.dec(s.DividendYield),
		StockDerivatives:  s.StockDerivatives,
	}
}

func (c converter) prePost(q *ffi.CPrePostQuote) *PrePostQuote {
	if q == nil {
		return nil
	}
	return &PrePostQuote{
		LastDone:  c.dec(q.LastDone),
		Timestamp: unix(q.Timestamp),
		Volume:    q.Volume,
		Turnover:  c.dec(q.Turnover),
		High:      c.dec(q.High),
		Low:       c.dec(q.Low),
		PrevClose: c.dec(q.PrevClose),
	}
}

func (c converter) quote(q *ffi.CSecurityQuote) SecurityQuote {
	return SecurityQuote{
		Symbol:          bridge.String(q.Symbol),
		LastDone:        c.dec(q.LastDone),
		PrevClose:       c.dec(q.PrevClose),
		Open:            c.dec(q.Open),
		High:            c.dec(q.High),
		Low:             c.dec(q.Low),
		Timestamp:       unix(q.Timestamp),
		Volume:          q.Volume,
		Turnover:        c.dec(q.Turnover),
		TradeStatus:     q.TradeStatus,
		PreMarketQuote:  c.prePost(q.PreMarketQuote),
		PostMarketQuote: c.prePost(q.PostMarketQuote),
	}
}

func (c converter) realtimeQuote(q *ffi.CRealtimeQuote) RealtimeQuote {
	return RealtimeQuote{
		Symbol:      bridge.String(q.Symbol),
		LastDone:    c.dec(q.LastDone),
		Open:        c.dec(q.Open),
		High:        c.dec(q.High),
		Low:         c.dec(q.Low),
		Timestamp:   unix(q.Timestamp),
		Volume:      q.Volume,
		Turnover:    c.dec(q.Turnover),
		TradeStatus: q.TradeStatus,
	}
}

func (c converter) depths(p *ffi.CDepth, n uintptr) []Depth {
	src := ffi.Slice(p, n)
	out := make([]Depth, len(src))
	for i := range src {
		out[i] = Depth{Position: src[i].Position, Price: c.dec(src[i].Price), Volume: src[i].Volume, OrderNum: src[i].OrderNum}
	}
	return out
}

func (c converter) securityDepth(d *ffi.CSecurityDepth) SecurityDepth {
	return SecurityDepth{Asks: c.depths(d.Asks, d.NumAsks), Bids: c.depths(d.Bids, d.NumBids)}
}

func brokers(p *ffi.CBrokers, n uintptr) []Brokers {
	src := ffi.Slice(p, n)
	out := make([]Brokers, len(src))
	for i := range src {
		out[i] = Brokers{Position: src[i].Position, BrokerIDs: bridge.Values(src[i].BrokerIDs, src[i].NumBrokerIDs)}
	}
	return out
}

func securityBrokers(b *ffi.CSecurityBrokers) SecurityBrokers {
	return SecurityBrokers{
		AskBrokers: brokers(b.AskBrokers, b.NumAskBrokers),
		BidBrokers: brokers(b.BidBrokers, b.NumBidBrokers),
	}
}

func (c converter) trade(t *ffi.CTrade) Trade {
	return Trade{
		Price:        c.dec(t.Price),
		Volume:       t.Volume,
		Timestamp:    unix(t.Timestamp),
		TradeType:    bridge.String(t.TradeType),
		Direction:    t.Direction,
		TradeSession: t.TradeSession,
	}
}

func (c converter) intraday(l *ffi.CIntradayLine) IntradayLine {
	return IntradayLine{
		Price:     c.dec(l.Price),
		Timestamp: unix(l.Timestamp),
		Volume:    l.Volume,
		Turnover:  c.dec(l.Turnover),
		AvgPrice:  c.dec(l.AvgPrice),
	}
}

func (c converter) candlestick(b *ffi.CCandlestick) Candlestick {
	return Candlestick{
		Close:     c.dec(b.Close),
		Open:      c.dec(b.Open),
		Low:       c.dec(b.Low),
		High:      c.dec(b.High),
		Volume:    b.Volume,
		Turnover:  c.dec(b.Turnover),
		Timestamp: unix(b.Timestamp),
	}
}

func tradingDays(d *ffi.CMarketTradingDays) MarketTradingDays {
	return MarketTradingDays{
		TradingDays:     bridge.Values(d.TradingDays, d.NumTradingDays),
		HalfTradingDays: bridge.Values(d.HalfTradingDays, d.NumHalfTradingDays),
	}
}

func timeOfDay(t ffi.CTime) TimeOfDay {
	return TimeOfDay{Hour: t.Hour, Minute: t.Minute, Second: t.Second}
}

func tradingSession(m *ffi.CMarketTradingSession) MarketTradingSession {
	spans := ffi.Slice(m.TradeSessions, m.NumTradeSessions)
	out := MarketTradingSession{Market: m.Market, TradeSessions: make([]TradingSessionInfo, len(spans))}
	for i := range spans {
		out.TradeSessions[i] = TradingSessionInfo{
			BeginTime:    timeOfDay(spans[i].BeginTime),
			EndTime:      timeOfDay(spans[i].EndTime),
			TradeSession: spans[i].TradeSession,
		}
	}
	return out
}

// dateTimeArg splits t, taken in UTC, into the native date and time of day.
func dateTimeArg(t time.Time) ffi.CDateTime {
	t = t.UTC()
	return ffi.CDateTime{
		Date: types.DateOf(t),
		Time: ffi.CTime{Hour: uint8(t.Hour()), Minute: uint8(t.Minute()), Second: uint8(t.Second())},
	}
}

func subscription(s *ffi.CSubscription) Subscription {
	return Subscription{
		Symbol:       bridge.String(s.Symbol),
		SubTypes:     s.SubTypes,
		Candlesticks: bridge.Values(s.Candlesticks, s.NumCandlesticks),
	}
}

func (c converter) pushQuote(ev *ffi.CPushQuote) PushQuote {
	return PushQuote{
		Symbol:       bridge.String(ev.Symbol),
		LastDone:     c.dec(ev.LastDone),
		Open:         c.dec(ev.Open),
		High:         c.dec(ev.High),
		Low:          c.dec(ev.Low),
		Timestamp:    unix(ev.Timestamp),
		Volume:       ev.Volume,
		Turnover:     c.dec(ev.Turnover),
		TradeStatus:  ev.TradeStatus,
		TradeSession: ev.TradeSession,
	}
}

func (c converter) pushDepth(ev *ffi.CPushDepth) PushDepth {
	return PushDepth{Symbol: bridge.String(ev.Symbol), Asks: c.depths(ev.Asks, ev.NumAsks), Bids: c.depths(ev.Bids, ev.NumBids)}
}

func pushBrokers(ev *ffi.CPushBrokers) PushBrokers {
	return PushBrokers{
		Symbol:     bridge.String(ev.Symbol),
		AskBrokers: brokers(ev.AskBrokers, ev.NumAskBrokers),
		BidBrokers: brokers(ev.BidBrokers, ev.NumBidBrokers),
	}
}

func (c converter) pushTrades(ev *ffi.CPushTrades) PushTrades {
	src := ffi.Slice(ev.Trades, ev.NumTrades)
	out := PushTrades{Symbol: bridge.String(ev.Symbol), Trades: make([]Trade, len(src))}
	for i := range src {
		out.Trades[i] = c.trade(&src[i])
	}
	return out
}

func (c converter) pushCandlestick(ev *ffi.CPushCandlestick) PushCandlestick {
	return PushCandlestick{Symbol: bridge.String(ev.Symbol), Period: ev.Period, Candlestick: c.candlestick(&ev.Candlestick)}
}

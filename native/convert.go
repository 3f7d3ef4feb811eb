package native

import (
	"time"

	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/pool"
	"github.com/coachpo/longport-go/types"
)

// Builders of ABI values. Everything they allocate belongs to the arena.

func (l *Library) cStaticInfo(a *pool.Arena, s security) ffi.CSecurityStaticInfo {
	return ffi.CSecurityStaticInfo{
		Symbol:            a.String(s.symbol),
		NameCN:            a.String(s.nameCN),
		NameEN:            a.String(s.nameEN),
		NameHK:            a.String(s.nameHK),
		Exchange:          a.String(s.exchange),
		Currency:          a.String(s.currency),
		LotSize:           s.lotSize,
		TotalShares:       s.totalShares,
		CirculatingShares: s.circulatingShares,
		HKShares:          s.hkShares,
		EPS:               l.arenaDecimal(a, s.eps),
		EPSTTM:            l.arenaDecimal(a, s.epsTTM),
		BPS:               l.arenaDecimal(a, s.bps),
		DividendYield:     l.arenaDecimal(a, s.dividendYield),
		StockDerivatives:  s.derivatives,
	}
}

func (l *Library) cQuote(a *pool.Arena, q quoteSnap) ffi.CSecurityQuote {
	return ffi.CSecurityQuote{
		Symbol:      a.String(q.symbol),
		LastDone:    l.arenaDecimal(a, q.last),
		PrevClose:   l.arenaDecimal(a, q.prevClose),
		Open:        l.arenaDecimal(a, q.open),
		High:        l.arenaDecimal(a, q.high),
		Low:         l.arenaDecimal(a, q.low),
		Timestamp:   q.timestamp,
		Volume:      q.volume,
		Turnover:    l.arenaDecimal(a, q.turnover),
		TradeStatus: q.status,
	}
}

func (l *Library) cRealtimeQuote(a *pool.Arena, q quoteSnap) ffi.CRealtimeQuote {
	return ffi.CRealtimeQuote{
		Symbol:      a.String(q.symbol),
		LastDone:    l.arenaDecimal(a, q.last),
		Open:        l.arenaDecimal(a, q.open),
		High:        l.arenaDecimal(a, q.high),
		Low:         l.arenaDecimal(a, q.low),
		Timestamp:   q.timestamp,
		Volume:      q.volume,
		Turnover:    l.arenaDecimal(a, q.turnover),
		TradeStatus: q.status,
	}
}

func (l *Library) cPushQuote(a *pool.Arena, q quoteSnap) *ffi.CPushQuote {
	ev := pool.New[ffi.CPushQuote](a)
	*ev = ffi.CPushQuote{
		Symbol:       a.String(q.symbol),
		LastDone:     l.arenaDecimal(a, q.last),
		Open:         l.arenaDecimal(a, q.open),
		High:         l.arenaDecimal(a, q.high),
		Low:          l.arenaDecimal(a, q.low),
		Timestamp:    q.timestamp,
		Volume:       q.volume,
		Turnover:     l.arenaDecimal(a, q.turnover),
		TradeStatus:  q.status,
		TradeSession: q.session,
	}
	return ev
}

func (l *Library) cDepth(a *pool.Arena, levels []level) (*ffi.CDepth, uintptr) {
	out := pool.Alloc[ffi.CDepth](a, len(levels))
	for i, lv := range levels {
		out[i] = ffi.CDepth{Position: lv.position, Price: l.arenaDecimal(a, lv.price), Volume: lv.volume, OrderNum: lv.orders}
	}
	return ffi.Array(out)
}

func (l *Library) cSecurityDepth(a *pool.Arena, d depthSnap) *ffi.CSecurityDepth {
	out := pool.New[ffi.CSecurityDepth](a)
	out.Asks, out.NumAsks = l.cDepth(a, d.asks)
	out.Bids, out.NumBids = l.cDepth(a, d.bids)
	return out
}

func cBrokers(a *pool.Arena, levels []brokerLevel) (*ffi.CBrokers, uintptr) {
	out := pool.Alloc[ffi.CBrokers](a, len(levels))
	for i, lv := range levels {
		ids := pool.Alloc[int32](a, len(lv.ids))
		copy(ids, lv.ids)
		out[i].Position = lv.position
		out[i].BrokerIDs, out[i].NumBrokerIDs = ffi.Array(ids)
	}
	return ffi.Array(out)
}

func cSecurityBrokers(a *pool.Arena, b brokersSnap) *ffi.CSecurityBrokers {
	out := pool.New[ffi.CSecurityBrokers](a)
	out.AskBrokers, out.NumAskBrokers = cBrokers(a, b.asks)
	out.BidBrokers, out.NumBidBrokers = cBrokers(a, b.bids)
	return out
}

func (l *Library) cTrades(a *pool.Arena, trades []tradeRecord) []ffi.CTrade {
	out := pool.Alloc[ffi.CTrade](a, len(trades))
	for i, t := range trades {
		out[i] = ffi.CTrade{
			Price:        l.arenaDecimal(a, t.price),
			Volume:       t.volume,
			Timestamp:    t.timestamp,
			TradeType:    a.String(t.tradeType),
			Direction:    t.direction,
			TradeSession: t.session,
		}
	}
	return out
}

func (l *Library) cCandlestick(a *pool.Arena, b bar) ffi.CCandlestick {
	return ffi.CCandlestick{
		Close:     l.arenaDecimal(a, b.close),
		Open:      l.arenaDecimal(a, b.open),
		Low:       l.arenaDecimal(a, b.low),
		High:      l.arenaDecimal(a, b.high),
		Volume:    b.volume,
		Turnover:  l.arenaDecimal(a, b.turnover),
		Timestamp: b.timestamp,
	}
}

func (l *Library) cCandlesticks(a *pool.Arena, bars []bar) []ffi.CCandlestick {
	out := pool.Alloc[ffi.CCandlestick](a, len(bars))
	for i, b := range bars {
		out[i] = l.cCandlestick(a, b)
	}
	return out
}

func (l *Library) cIntraday(a *pool.Arena, lines []minuteLine) []ffi.CIntradayLine {
	out := pool.Alloc[ffi.CIntradayLine](a, len(lines))
	for i, line := range lines {
		out[i] = ffi.CIntradayLine{
			Price:     l.arenaDecimal(a, line.price),
			Timestamp: line.timestamp,
			Volume:    line.volume,
			Turnover:  l.arenaDecimal(a, line.turnover),
			AvgPrice:  l.arenaDecimal(a, line.avgPrice),
		}
	}
	return out
}

func cDates(a *pool.Arena, days []types.Date) (*ffi.CDate, uintptr) {
	out := pool.Alloc[ffi.CDate](a, len(days))
	copy(out, days)
	return ffi.Array(out)
}

func cTime(d time.Duration) ffi.CTime {
	return ffi.CTime{Hour: uint8(d / time.Hour), Minute: uint8(d % time.Hour / time.Minute), Second: uint8(d % time.Minute / time.Second)}
}

func cTradingSessions(a *pool.Arena, markets []marketSessions) []ffi.CMarketTradingSession {
	out := pool.Alloc[ffi.CMarketTradingSession](a, len(markets))
	for i, ms := range markets {
		spans := pool.Alloc[ffi.CTradingSessionInfo](a, len(ms.spans))
		for j, span := range ms.spans {
			spans[j] = ffi.CTradingSessionInfo{BeginTime: cTime(span.begin), EndTime: cTime(span.end), TradeSession: span.session}
		}
		out[i].Market = ms.market
		out[i].TradeSessions, out[i].NumTradeSessions = ffi.Array(spans)
	}
	return out
}

// readSymbols copies a request-side symbol array.
func readSymbols(p *ffi.CString, n uintptr) []string {
	src := ffi.Slice(p, n)
	out := make([]string, len(src))
	for i, s := range src {
		out[i] = ffi.GoString(s)
	}
	return out
}

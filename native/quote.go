package native

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/config"
	"github.com/coachpo/longport-go/internal/pool"
	"github.com/coachpo/longport-go/types"
)

const (
	eventQuote        = "quote"
	eventDepth        = "depth"
	eventBrokers      = "brokers"
	eventTrades       = "trades"
	eventCandlestick  = "candlestick"
	maxRequestCount   = 1000
	defaultQuoteLevel = "LV1"
)

type subscription struct {
	flags   types.SubFlags
	periods map[types.Period]struct{}
}

func (s *subscription) empty() bool { return s.flags == 0 && len(s.periods) == 0 }

// realtimeStore caches what the pushes of subscribed symbols carried.
type realtimeStore struct {
	quotes  map[string]quoteSnap
	depths  map[string]depthSnap
	brokers map[string]brokersSnap
	trades  map[string][]tradeRecord
	bars    map[string]map[types.Period][]bar
}

func newRealtimeStore() realtimeStore {
	return realtimeStore{
		quotes:  make(map[string]quoteSnap),
		depths:  make(map[string]depthSnap),
		brokers: make(map[string]brokersSnap),
		trades:  make(map[string][]tradeRecord),
		bars:    make(map[string]map[types.Period][]bar),
	}
}

func (s *realtimeStore) record(t tick, sub *subscription) {
	if sub.flags.Has(types.SubFlagQuote) {
		s.quotes[t.symbol] = t.quote
	}
	if sub.flags.Has(types.SubFlagDepth) {
		s.depths[t.symbol] = cloneDepth(t.depth)
	}
	if sub.flags.Has(types.SubFlagBrokers) && t.brokers != nil {
		s.brokers[t.symbol] = cloneBrokers(*t.brokers)
	}
	if sub.flags.Has(types.SubFlagTrade) {
		for _, tr := range t.trades {
			s.trades[t.symbol] = appendCapped(s.trades[t.symbol], tr, maxTrades)
		}
	}
	for _, u := range t.bars {
		if _, ok := sub.periods[u.period]; ok {
			s.recordBar(t.symbol, u.period, u.bar)
		}
	}
}

func (s *realtimeStore) recordBar(symbol string, period types.Period, b bar) {
	byPeriod := s.bars[symbol]
	if byPeriod == nil {
		byPeriod = make(map[types.Period][]bar)
		s.bars[symbol] = byPeriod
	}
	bars := byPeriod[period]
	switch n := len(bars); {
	case n > 0 && bars[n-1].timestamp == b.timestamp:
		bars[n-1] = b
	case n > 0 && bars[n-1].timestamp > b.timestamp:
		return
	default:
		bars = appendCapped(bars, b, maxBars)
	}
	byPeriod[period] = bars
}

func (s *realtimeStore) drop(symbol string, flags types.SubFlags) {
	if flags.Has(types.SubFlagQuote) {
		delete(s.quotes, symbol)
	}
	if flags.Has(types.SubFlagDepth) {
		delete(s.depths, symbol)
	}
	if flags.Has(types.SubFlagBrokers) {
		delete(s.brokers, symbol)
	}
	if flags.Has(types.SubFlagTrade) {
		delete(s.trades, symbol)
	}
}

type quoteContext struct {
	*contextCore
	memberID   int64
	quoteLevel []byte

	smu   sync.Mutex
	subs  map[string]*subscription
	store realtimeStore
}

func (l *Library) newQuoteContext(s config.Settings) *quoteContext {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.AppKey))
	q := &quoteContext{
		contextCore: newContextCore(l, "quote_context", s, rate.NewLimiter(rate.Limit(l.opts.QuoteRate), l.opts.QuoteBurst)),
		memberID:    int64(h.Sum32() % 1_000_000),
		quoteLevel:  append([]byte(defaultQuoteLevel), 0),
		subs:        make(map[string]*subscription),
		store:       newRealtimeStore(),
	}
	id := l.quotes.add(q)
	q.start(id, func() { l.quotes.remove(id, "quote_context_destroy") })
	return q
}

func (l *Library) quote(ctx ffi.QuoteContextPtr, op string) *quoteContext {
	return l.quotes.get(uintptr(ctx), op)
}

// quoteCall runs op on the worker pool with the context retained and rate limited.
func (l *Library) quoteCall(ctx ffi.QuoteContextPtr, name string, cb ffi.AsyncCallback, ud ffi.Userdata, op func(ctx context.Context, q *quoteContext, a *pool.Arena) (payload, error)) {
	q := l.quote(ctx, name)
	l.executeAsync(name, uintptr(ctx), q, cb, ud, func(c context.Context, a *pool.Arena) (payload, error) {
		if err := q.wait(c); err != nil {
			return payload{}, err
		}
		return op(c, q, a)
	})
}

// QuoteContextNew authorizes the config and completes with the new context. The context
// carries one reference that the callback takes over.
func (l *Library) QuoteContextNew(cfg ffi.ConfigPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	settings := l.config(cfg, "quote_context_new").get()
	l.executeAsync("quote_context.new", 0, nil, cb, ud, func(context.Context, *pool.Arena) (payload, error) {
		if err := l.opts.Authorize(settings); err != nil {
			return payload{}, err
		}
		q := l.newQuoteContext(settings)
		return payload{ctx: q.id}, nil
	})
}

func (l *Library) QuoteContextRetain(ctx ffi.QuoteContextPtr) {
	l.quote(ctx, "quote_context_retain").retain()
}

// QuoteContextRelease drops one reference. Releasing a context torn down by Close is a no-op.
func (l *Library) QuoteContextRelease(ctx ffi.QuoteContextPtr) {
	if l.quotes.isRetired(uintptr(ctx)) {
		return
	}
	l.quote(ctx, "quote_context_release").release()
}

func (l *Library) QuoteContextRefCount(ctx ffi.QuoteContextPtr) uintptr {
	if l.quotes.isRetired(uintptr(ctx)) {
		return 0
	}
	return l.quote(ctx, "quote_context_ref_count").refCount()
}

// QuoteContextSetUserdata frees the previous userdata with the registered free function.
func (l *Library) QuoteContextSetUserdata(ctx ffi.QuoteContextPtr, ud ffi.Userdata) {
	l.quote(ctx, "quote_context_set_userdata").setUserdata(ud)
}

func (l *Library) QuoteContextUserdata(ctx ffi.QuoteContextPtr) ffi.Userdata {
	return l.quote(ctx, "quote_context_userdata").getUserdata()
}

func (l *Library) QuoteContextSetFreeUserdataFunc(ctx ffi.QuoteContextPtr, f ffi.FreeUserdataFunc) {
	l.quote(ctx, "quote_context_set_free_userdata_func").setFreeUserdata(f)
}

func (l *Library) QuoteContextMemberID(ctx ffi.QuoteContextPtr) int64 {
	return l.quote(ctx, "quote_context_member_id").memberID
}

func (l *Library) QuoteContextQuoteLevel(ctx ffi.QuoteContextPtr) ffi.CString {
	return &l.quote(ctx, "quote_context_quote_level").quoteLevel[0]
}

func (l *Library) QuoteContextSetOnQuote(ctx ffi.QuoteContextPtr, cb ffi.QuotePushFunc, ud ffi.Userdata, free ffi.FreeUserdataFunc) {
	s := slot{ud: ud, free: free}
	if cb != nil {
		s.cb = cb
	}
	l.quote(ctx, "quote_context_set_on_quote").slots.set(eventQuote, s)
}

func (l *Library) QuoteContextSetOnDepth(ctx ffi.QuoteContextPtr, cb ffi.DepthPushFunc, ud ffi.Userdata, free ffi.FreeUserdataFunc) {
	s := slot{ud: ud, free: free}
	if cb != nil {
		s.cb = cb
	}
	l.quote(ctx, "quote_context_set_on_depth").slots.set(eventDepth, s)
}

func (l *Library) QuoteContextSetOnBrokers(ctx ffi.QuoteContextPtr, cb ffi.BrokersPushFunc, ud ffi.Userdata, free ffi.FreeUserdataFunc) {
	s := slot{ud: ud, free: free}
	if cb != nil {
		s.cb = cb
	}
	l.quote(ctx, "quote_context_set_on_brokers").slots.set(eventBrokers, s)
}

func (l *Library) QuoteContextSetOnTrades(ctx ffi.QuoteContextPtr, cb ffi.TradesPushFunc, ud ffi.Userdata, free ffi.FreeUserdataFunc) {
	s := slot{ud: ud, free: free}
	if cb != nil {
		s.cb = cb
	}
	l.quote(ctx, "quote_context_set_on_trades").slots.set(eventTrades, s)
}

func (l *Library) QuoteContextSetOnCandlestick(ctx ffi.QuoteContextPtr, cb ffi.CandlestickPushFunc, ud ffi.Userdata, free ffi.FreeUserdataFunc) {
	s := slot{ud: ud, free: free}
	if cb != nil {
		s.cb = cb
	}
	l.quote(ctx, "quote_context_set_on_candlestick").slots.set(eventCandlestick, s)
}

func (q *quoteContext) ptr() ffi.QuoteContextPtr { return ffi.QuoteContextPtr(q.id) }

// emit queues the push events of t selected by flags and wanted periods. In confirmed mode
// only closed bars are pushed.
func (q *quoteContext) emit(t tick, flags types.SubFlags, wanted map[types.Period]struct{}) {
	l := q.l
	if flags.Has(types.SubFlagQuote) {
		snap := t.quote
		q.enqueue(eventQuote, func(a *pool.Arena, s slot) {
			s.cb.(ffi.QuotePushFunc)(q.ptr(), l.cPushQuote(a, snap), s.ud)
		})
	}
	if flags.Has(types.SubFlagDepth) {
		depth := t.depth
		q.enqueue(eventDepth, func(a *pool.Arena, s slot) {
			ev := pool.New[ffi.CPushDepth](a)
			ev.Symbol = a.String(t.symbol)
			ev.Asks, ev.NumAsks = l.cDepth(a, depth.asks)
			ev.Bids, ev.NumBids = l.cDepth(a, depth.bids)
			s.cb.(ffi.DepthPushFunc)(q.ptr(), ev, s.ud)
		})
	}
	if flags.Has(types.SubFlagBrokers) && t.brokers != nil {
		brokers := *t.brokers
		q.enqueue(eventBrokers, func(a *pool.Arena, s slot) {
			ev := pool.New[ffi.CPushBrokers](a)
			ev.Symbol = a.String(t.symbol)
			ev.AskBrokers, ev.NumAskBrokers = cBrokers(a, brokers.asks)
			ev.BidBrokers, ev.NumBidBrokers = cBrokers(a, brokers.bids)
			s.cb.(ffi.BrokersPushFunc)(q.ptr(), ev, s.ud)
		})
	}
	if flags.Has(types.SubFlagTrade) && len(t.trades) > 0 {
		trades := t.trades
		q.enqueue(eventTrades, func(a *pool.Arena, s slot) {
			ev := pool.New[ffi.CPushTrades](a)
			ev.Symbol = a.String(t.symbol)
			ev.Trades, ev.NumTrades = ffi.Array(l.cTrades(a, trades))
			s.cb.(ffi.TradesPushFunc)(q.ptr(), ev, s.ud)
		})
	}
	confirmedOnly := q.settings.PushCandlestickMode == types.PushCandlestickConfirmed
	for _, u := range t.bars {
		if _, ok := wanted[u.period]; !ok || u.confirmed != confirmedOnly {
			continue
		}
		update := u
		q.enqueue(eventCandlestick, func(a *pool.Arena, s slot) {
			ev := pool.New[ffi.CPushCandlestick](a)
			ev.Symbol = a.String(t.symbol)
			ev.Period = update.period
			ev.Candlestick = l.cCandlestick(a, update.bar)
			s.cb.(ffi.CandlestickPushFunc)(q.ptr(), ev, s.ud)
		})
	}
}

func (q *quoteContext) publish(t tick) {
	q.smu.Lock()
	sub, ok := q.subs[t.symbol]
	if !ok {
		q.smu.Unlock()
		return
	}
	q.store.record(t, sub)
	flags := sub.flags
	periods := make(map[types.Period]struct{}, len(sub.periods))
	for p := range sub.periods {
		periods[p] = struct{}{}
	}
	q.smu.Unlock()
	q.emit(t, flags, periods)
}

// publish fans a tick out to every subscribed quote context and lets the broker fill
// orders the new price crossed.
func (l *Library) publish(t tick) {
	for _, q := range l.quotes.snapshot() {
		q.publish(t)
	}
	l.broker.onTick(t.symbol, t.quote.last)
}

// subscribedSymbols lists every symbol some quote context is subscribed to.
func (l *Library) subscribedSymbols() []string {
	set := make(map[string]struct{})
	for _, q := range l.quotes.snapshot() {
		q.smu.Lock()
		for symbol := range q.subs {
			set[symbol] = struct{}{}
		}
		q.smu.Unlock()
	}
	for _, symbol := range l.broker.workingSymbols() {
		set[symbol] = struct{}{}
	}
	return sortedKeys(set)
}

func invalidArgument(op, msg string) *errs.E {
	return errs.New(op, errs.CodeInvalid, errs.WithMessage(msg), errs.WithNativeCode(http.StatusBadRequest))
}

func (l *Library) knownSymbols(op string, symbols []string) error {
	for _, s := range symbols {
		if !l.market.known(s) {
			return errs.New(op, errs.CodeNotFound, errs.WithMessage("security not found: "+s), errs.WithNativeCode(http.StatusNotFound))
		}
	}
	return nil
}

// QuoteContextSubscribe adds sub types to every symbol. With isFirstPush the current state is
// pushed right away.
func (l *Library) QuoteContextSubscribe(ctx ffi.QuoteContextPtr, symbols *ffi.CString, numSymbols uintptr, subTypes types.SubFlags, isFirstPush bool, cb ffi.AsyncCallback, ud ffi.Userdata) {
	names := readSymbols(symbols, numSymbols)
	l.quoteCall(ctx, "quote_context.subscribe", cb, ud, func(_ context.Context, q *quoteContext, _ *pool.Arena) (payload, error) {
		if subTypes == 0 {
			return payload{}, invalidArgument("subscribe", "no sub types")
		}
		if err := l.knownSymbols("subscribe", names); err != nil {
			return payload{}, err
		}
		snaps := make([]tick, 0, len(names))
		for _, symbol := range names {
			t, err := l.market.snapshot(symbol)
			if err != nil {
				return payload{}, err
			}
			snaps = append(snaps, t)
		}
		q.smu.Lock()
		for _, t := range snaps {
			sub := q.subs[t.symbol]
			if sub == nil {
				sub = &subscription{periods: make(map[types.Period]struct{})}
				q.subs[t.symbol] = sub
			}
			sub.flags |= subTypes
			q.store.record(tick{symbol: t.symbol, quote: t.quote, depth: t.depth, brokers: t.brokers}, sub)
		}
		q.smu.Unlock()
		if isFirstPush {
			for _, t := range snaps {
				q.emit(t, subTypes, nil)
			}
		}
		return none()
	})
}

func (l *Library) QuoteContextUnsubscribe(ctx ffi.QuoteContextPtr, symbols *ffi.CString, numSymbols uintptr, subTypes types.SubFlags, cb ffi.AsyncCallback, ud ffi.Userdata) {
	names := readSymbols(symbols, numSymbols)
	l.quoteCall(ctx, "quote_context.unsubscribe", cb, ud, func(_ context.Context, q *quoteContext, _ *pool.Arena) (payload, error) {
		q.smu.Lock()
		defer q.smu.Unlock()
		for _, symbol := range names {
			sub, ok := q.subs[symbol]
			if !ok {
				continue
			}
			sub.flags &^= subTypes
			q.store.drop(symbol, subTypes)
			if sub.empty() {
				delete(q.subs, symbol)
			}
		}
		return none()
	})
}

func validPeriod(p types.Period) bool {
	return p > types.PeriodUnknown && p <= types.PeriodYear
}

// QuoteContextSubscribeCandlesticks completes with the candlesticks held for the period.
func (l *Library) QuoteContextSubscribeCandlesticks(ctx ffi.QuoteContextPtr, symbol ffi.CString, period types.Period, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.subscribe_candlesticks", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		if !validPeriod(period) {
			return payload{}, invalidArgument("subscribe_candlesticks", "invalid period")
		}
		bars, err := l.market.candlesticks(name, period, maxRequestCount)
		if err != nil {
			return payload{}, err
		}
		q.smu.Lock()
		sub := q.subs[name]
		if sub == nil {
			sub = &subscription{periods: make(map[types.Period]struct{})}
			q.subs[name] = sub
		}
		sub.periods[period] = struct{}{}
		for _, b := range bars {
			q.store.recordBar(name, period, b)
		}
		q.smu.Unlock()
		return many(l.cCandlesticks(a, bars)), nil
	})
}

func (l *Library) QuoteContextUnsubscribeCandlesticks(ctx ffi.QuoteContextPtr, symbol ffi.CString, period types.Period, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.unsubscribe_candlesticks", cb, ud, func(_ context.Context, q *quoteContext, _ *pool.Arena) (payload, error) {
		q.smu.Lock()
		defer q.smu.Unlock()
		sub, ok := q.subs[name]
		if !ok {
			return none()
		}
		delete(sub.periods, period)
		if byPeriod := q.store.bars[name]; byPeriod != nil {
			delete(byPeriod, period)
		}
		if sub.empty() {
			delete(q.subs, name)
		}
		return none()
	})
}

// QuoteContextSubscriptions lists subscriptions ordered by symbol.
func (l *Library) QuoteContextSubscriptions(ctx ffi.QuoteContextPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	l.quoteCall(ctx, "quote_context.subscriptions", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		q.smu.Lock()
		defer q.smu.Unlock()
		symbols := sortedKeys(q.subs)
		out := pool.Alloc[ffi.CSubscription](a, len(symbols))
		for i, symbol := range symbols {
			sub := q.subs[symbol]
			ps := pool.Alloc[types.Period](a, len(sub.periods))
			j := 0
			for _, p := range periods {
				if _, ok := sub.periods[p]; ok {
					ps[j] = p
					j++
				}
			}
			out[i].Symbol = a.String(symbol)
			out[i].SubTypes = sub.flags
			out[i].Candlesticks, out[i].NumCandlesticks = ffi.Array(ps)
		}
		return many(out), nil
	})
}

func (l *Library) QuoteContextStaticInfo(ctx ffi.QuoteContextPtr, symbols *ffi.CString, numSymbols uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	names := readSymbols(symbols, numSymbols)
	l.quoteCall(ctx, "quote_context.static_info", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		infos := l.market.staticInfo(names)
		out := pool.Alloc[ffi.CSecurityStaticInfo](a, len(infos))
		for i, info := range infos {
			out[i] = l.cStaticInfo(a, info)
		}
		return many(out), nil
	})
}

func (l *Library) QuoteContextQuote(ctx ffi.QuoteContextPtr, symbols *ffi.CString, numSymbols uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	names := readSymbols(symbols, numSymbols)
	l.quoteCall(ctx, "quote_context.quote", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		quotes := l.market.quotes(names)
		out := pool.Alloc[ffi.CSecurityQuote](a, len(quotes))
		for i, snap := range quotes {
			out[i] = l.cQuote(a, snap)
			if q.settings.EnableOvernight || snap.session != types.TradeSessionNormal {
				out[i].PostMarketQuote = l.cPrePost(a, snap)
			}
		}
		return many(out), nil
	})
}

func (l *Library) cPrePost(a *pool.Arena, q quoteSnap) *ffi.CPrePostQuote {
	return pool.Value(a, ffi.CPrePostQuote{
		LastDone:  l.arenaDecimal(a, q.last),
		Timestamp: q.timestamp,
		Volume:    q.volume,
		Turnover:  l.arenaDecimal(a, q.turnover),
		High:      l.arenaDecimal(a, q.high),
		Low:       l.arenaDecimal(a, q.low),
		PrevClose: l.arenaDecimal(a, q.prevClose),
	})
}

func (l *Library) QuoteContextDepth(ctx ffi.QuoteContextPtr, symbol ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.depth", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		d, err := l.market.depthOf(name)
		if err != nil {
			return payload{}, err
		}
		return one(l.cSecurityDepth(a, d)), nil
	})
}

func (l *Library) QuoteContextBrokers(ctx ffi.QuoteContextPtr, symbol ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.brokers", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		b, err := l.market.brokersOf(name)
		if err != nil {
			return payload{}, err
		}
		return one(cSecurityBrokers(a, b)), nil
	})
}

func validCount(op string, count uintptr) error {
	if count == 0 || count > maxRequestCount {
		return invalidArgument(op, "count must be between 1 and 1000")
	}
	return nil
}

func (l *Library) QuoteContextTrades(ctx ffi.QuoteContextPtr, symbol ffi.CString, count uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.trades", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		if err := validCount("trades", count); err != nil {
			return payload{}, err
		}
		trades, err := l.market.tradesOf(name, int(count))
		if err != nil {
			return payload{}, err
		}
		return many(l.cTrades(a, trades)), nil
	})
}

func (l *Library) QuoteContextIntraday(ctx ffi.QuoteContextPtr, symbol ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.intraday", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		lines, err := l.market.intradayOf(name)
		if err != nil {
			return payload{}, err
		}
		return many(l.cIntraday(a, lines)), nil
	})
}

// QuoteContextCandlesticks ignores adjust: the simulated market has no corporate actions.
func (l *Library) QuoteContextCandlesticks(ctx ffi.QuoteContextPtr, symbol ffi.CString, period types.Period, count uintptr, adjust types.AdjustType, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.candlesticks", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		if !validPeriod(period) {
			return payload{}, invalidArgument("candlesticks", "invalid period")
		}
		if !validAdjust(adjust) {
			return payload{}, invalidArgument("candlesticks", "invalid adjust type")
		}
		if err := validCount("candlesticks", count); err != nil {
			return payload{}, err
		}
		bars, err := l.market.candlesticks(name, period, int(count))
		if err != nil {
			return payload{}, err
		}
		return many(l.cCandlesticks(a, bars)), nil
	})
}

func validAdjust(adjust types.AdjustType) bool {
	return adjust == types.AdjustTypeNoAdjust || adjust == types.AdjustTypeForward
}

// QuoteContextHistoryCandlesticksByOffset ignores adjust like QuoteContextCandlesticks.
func (l *Library) QuoteContextHistoryCandlesticksByOffset(ctx ffi.QuoteContextPtr, symbol ffi.CString, period types.Period, adjust types.AdjustType, forward bool, at ffi.CDateTime, count uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	const op = "history_candlesticks_by_offset"
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context."+op, cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		if !validPeriod(period) {
			return payload{}, invalidArgument(op, "invalid period")
		}
		if !validAdjust(adjust) {
			return payload{}, invalidArgument(op, "invalid adjust type")
		}
		if err := validCount(op, count); err != nil {
			return payload{}, err
		}
		if at.Date.IsZero() || at.Time.Hour > 23 || at.Time.Minute > 59 || at.Time.Second > 59 {
			return payload{}, invalidArgument(op, "invalid time")
		}
		ts := at.Date.Time().Add(time.Duration(at.Time.Hour)*time.Hour + time.Duration(at.Time.Minute)*time.Minute + time.Duration(at.Time.Second)*time.Second)
		bars, err := l.market.historyByOffset(name, period, forward, ts, int(count))
		if err != nil {
			return payload{}, err
		}
		return many(l.cCandlesticks(a, bars)), nil
	})
}

func (l *Library) QuoteContextHistoryCandlesticksByDate(ctx ffi.QuoteContextPtr, symbol ffi.CString, period types.Period, adjust types.AdjustType, start, end *ffi.CDate, cb ffi.AsyncCallback, ud ffi.Userdata) {
	const op = "history_candlesticks_by_date"
	name := ffi.GoString(symbol)
	from, to := copyOpt(start), copyOpt(end)
	l.quoteCall(ctx, "quote_context."+op, cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		if !validPeriod(period) {
			return payload{}, invalidArgument(op, "invalid period")
		}
		if !validAdjust(adjust) {
			return payload{}, invalidArgument(op, "invalid adjust type")
		}
		bars, err := l.market.historyByDate(name, period, from, to)
		if err != nil {
			return payload{}, err
		}
		return many(l.cCandlesticks(a, bars)), nil
	})
}

// QuoteContextTradingSession lists the exchange-local sessions of every market.
func (l *Library) QuoteContextTradingSession(ctx ffi.QuoteContextPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	l.quoteCall(ctx, "quote_context.trading_session", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		return many(cTradingSessions(a, tradingSessions)), nil
	})
}

func (l *Library) QuoteContextTradingDays(ctx ffi.QuoteContextPtr, mk types.Market, begin, end *ffi.CDate, cb ffi.AsyncCallback, ud ffi.Userdata) {
	var from, to *types.Date
	if begin != nil {
		v := *begin
		from = &v
	}
	if end != nil {
		v := *end
		to = &v
	}
	l.quoteCall(ctx, "quote_context.trading_days", cb, ud, func(_ context.Context, _ *quoteContext, a *pool.Arena) (payload, error) {
		if from == nil || to == nil {
			return payload{}, invalidArgument("trading_days", "begin and end are required")
		}
		days, half, err := tradingDays(mk, *from, *to)
		if err != nil {
			return payload{}, err
		}
		out := pool.New[ffi.CMarketTradingDays](a)
		out.TradingDays, out.NumTradingDays = cDates(a, days)
		out.HalfTradingDays, out.NumHalfTradingDays = cDates(a, half)
		return one(out), nil
	})
}

// QuoteContextRealtimeQuote answers from the push cache; symbols without a quote subscription
// are skipped.
func (l *Library) QuoteContextRealtimeQuote(ctx ffi.QuoteContextPtr, symbols *ffi.CString, numSymbols uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	names := readSymbols(symbols, numSymbols)
	l.quoteCall(ctx, "quote_context.realtime_quote", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		q.smu.Lock()
		defer q.smu.Unlock()
		out := make([]ffi.CRealtimeQuote, 0, len(names))
		for _, symbol := range names {
			if snap, ok := q.store.quotes[symbol]; ok {
				out = append(out, l.cRealtimeQuote(a, snap))
			}
		}
		arr := pool.Alloc[ffi.CRealtimeQuote](a, len(out))
		copy(arr, out)
		return many(arr), nil
	})
}

func (l *Library) QuoteContextRealtimeDepth(ctx ffi.QuoteContextPtr, symbol ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.realtime_depth", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		q.smu.Lock()
		d := cloneDepth(q.store.depths[name])
		q.smu.Unlock()
		return one(l.cSecurityDepth(a, d)), nil
	})
}

func (l *Library) QuoteContextRealtimeBrokers(ctx ffi.QuoteContextPtr, symbol ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.realtime_brokers", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		q.smu.Lock()
		b := cloneBrokers(q.store.brokers[name])
		q.smu.Unlock()
		return one(cSecurityBrokers(a, b)), nil
	})
}

func (l *Library) QuoteContextRealtimeTrades(ctx ffi.QuoteContextPtr, symbol ffi.CString, count uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.realtime_trades", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		q.smu.Lock()
		trades := append([]tradeRecord(nil), tail(q.store.trades[name], int(count))...)
		q.smu.Unlock()
		return many(l.cTrades(a, trades)), nil
	})
}

func (l *Library) QuoteContextRealtimeCandlesticks(ctx ffi.QuoteContextPtr, symbol ffi.CString, period types.Period, count uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	name := ffi.GoString(symbol)
	l.quoteCall(ctx, "quote_context.realtime_candlesticks", cb, ud, func(_ context.Context, q *quoteContext, a *pool.Arena) (payload, error) {
		q.smu.Lock()
		bars := append([]bar(nil), tail(q.store.bars[name][period], int(count))...)
		q.smu.Unlock()
		return many(l.cCandlesticks(a, bars)), nil
	})
}

package native

import (
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/types"
)

const (
	depthLevels   = 5
	maxTrades     = 1000
	maxBars       = 1000
	seededDayBars = 30
)

var periods = []types.Period{
	types.PeriodMin1, types.PeriodMin5, types.PeriodMin15, types.PeriodMin30, types.PeriodMin60,
	types.PeriodDay, types.PeriodWeek, types.PeriodMonth, types.PeriodYear,
}

type security struct {
	symbol            string
	nameCN            string
	nameEN            string
	nameHK            string
	exchange          string
	currency          string
	lotSize           int32
	totalShares       int64
	circulatingShares int64
	hkShares          int64
	eps               decimal.Decimal
	epsTTM            decimal.Decimal
	bps               decimal.Decimal
	dividendYield     decimal.Decimal
	derivatives       uint8
	start             decimal.Decimal
	tickSize          decimal.Decimal
}

var catalog = []security{
	{
		symbol: "AAA.US", nameCN: "AAA 测试", nameEN: "AAA Test Corp", nameHK: "AAA 測試",
		exchange: "NASD", currency: "USD", lotSize: 1,
		totalShares: 1_000_000_000, circulatingShares: 900_000_000,
		eps: decimal.RequireFromString("0.52"), epsTTM: decimal.RequireFromString("0.55"),
		bps: decimal.RequireFromString("4.10"), dividendYield: decimal.RequireFromString("0.01"),
		start: decimal.RequireFromString("10.5"), tickSize: decimal.RequireFromString("0.01"),
	},
	{
		symbol: "700.HK", nameCN: "腾讯控股", nameEN: "TENCENT", nameHK: "騰訊控股",
		exchange: "SEHK", currency: "HKD", lotSize: 100,
		totalShares: 9_400_000_000, circulatingShares: 9_400_000_000, hkShares: 9_400_000_000,
		eps: decimal.RequireFromString("12.14"), epsTTM: decimal.RequireFromString("13.45"),
		bps: decimal.RequireFromString("101.88"), dividendYield: decimal.RequireFromString("2.4"),
		derivatives: 1, start: decimal.RequireFromString("320.2"), tickSize: decimal.RequireFromString("0.2"),
	},
	{
		symbol: "AAPL.US", nameCN: "苹果", nameEN: "Apple Inc.", nameHK: "蘋果",
		exchange: "NASD", currency: "USD", lotSize: 1,
		totalShares: 15_400_000_000, circulatingShares: 15_300_000_000,
		eps: decimal.RequireFromString("6.13"), epsTTM: decimal.RequireFromString("6.42"),
		bps: decimal.RequireFromString("4.38"), dividendYield: decimal.RequireFromString("0.96"),
		derivatives: 1, start: decimal.RequireFromString("190.15"), tickSize: decimal.RequireFromString("0.01"),
	},
	{
		symbol: "TSLA.US", nameCN: "特斯拉", nameEN: "Tesla, Inc.", nameHK: "特斯拉",
		exchange: "NASD", currency: "USD", lotSize: 1,
		totalShares: 3_190_000_000, circulatingShares: 2_760_000_000,
		eps: decimal.RequireFromString("4.30"), epsTTM: decimal.RequireFromString("3.12"),
		bps: decimal.RequireFromString("19.70"),
		derivatives: 1, start: decimal.RequireFromString("250.4"), tickSize: decimal.RequireFromString("0.01"),
	},
}

type quoteSnap struct {
	symbol    string
	last      decimal.Decimal
	prevClose decimal.Decimal
	open      decimal.Decimal
	high      decimal.Decimal
	low       decimal.Decimal
	turnover  decimal.Decimal
	volume    int64
	timestamp int64
	status    types.TradeStatus
	session   types.TradeSession
}

type level struct {
	position int32
	price    decimal.Decimal
	volume   int64
	orders   int64
}

type depthSnap struct {
	asks []level
	bids []level
}

type brokerLevel struct {
	position int32
	ids      []int32
}

type brokersSnap struct {
	asks []brokerLevel
	bids []brokerLevel
}

type tradeRecord struct {
	price     decimal.Decimal
	volume    int64
	timestamp int64
	tradeType string
	direction types.TradeDirection
	session   types.TradeSession
}

type bar struct {
	open      decimal.Decimal
	high      decimal.Decimal
	low       decimal.Decimal
	close     decimal.Decimal
	turnover  decimal.Decimal
	volume    int64
	timestamp int64
}

type minuteLine struct {
	price     decimal.Decimal
	turnover  decimal.Decimal
	avgPrice  decimal.Decimal
	volume    int64
	timestamp int64
}

type barUpdate struct {
	period    types.Period
	bar       bar
	confirmed bool
}

// tick is everything one trade changed on an instrument. It owns copies of the state so it
// can be turned into push events after the market has moved on.
type tick struct {
	symbol  string
	quote   quoteSnap
	depth   depthSnap
	brokers *brokersSnap
	trades  []tradeRecord
	bars    []barUpdate
}

type instrument struct {
	info     security
	market   types.Market
	quote    quoteSnap
	depth    depthSnap
	brokers  *brokersSnap
	trades   []tradeRecord
	bars     map[types.Period][]bar
	intraday []minuteLine
}

// market is a random-walk simulation of the instruments in the catalog.
type market struct {
	mu          sync.Mutex
	rng         *rand.Rand
	clock       func() time.Time
	instruments map[string]*instrument
}

func newMarket(clock func() time.Time, rng *rand.Rand) *market {
	m := &market{rng: rng, clock: clock, instruments: make(map[string]*instrument, len(catalog))}
	now := clock().UTC()
	for _, sec := range catalog {
		m.instruments[sec.symbol] = m.seed(sec, now)
	}
	return m
}

func (m *market) seed(sec security, now time.Time) *instrument {
	inst := &instrument{
		info:   sec,
		market: types.MarketOfSymbol(sec.symbol),
		bars:   make(map[types.Period][]bar, len(periods)),
		quote: quoteSnap{
			symbol:    sec.symbol,
			last:      sec.start,
			prevClose: sec.start,
			open:      sec.start,
			high:      sec.start,
			low:       sec.start,
			turnover:  decimal.Zero,
			timestamp: now.Unix(),
			status:    types.TradeStatusNormal,
			session:   types.TradeSessionNormal,
		},
	}
	inst.depth = m.book(sec, sec.start)
	if inst.market == types.MarketHK {
		inst.brokers = m.queue()
	}

	day := types.PeriodDay.Start(now)
	price := sec.start
	history := make([]bar, 0, seededDayBars+1)
	for i := seededDayBars; i > 0; i-- {
		open := price
		price = m.walk(sec, price)
		high, low := decimal.Max(open, price), decimal.Min(open, price)
		volume := 10_000 + m.rng.Int64N(90_000)
		history = append(history, bar{
			open: open, high: high, low: low, close: price,
			volume:    volume,
			turnover:  price.Mul(decimal.NewFromInt(volume)),
			timestamp: day.AddDate(0, 0, -i).Unix(),
		})
	}
	// the walk ends where the live quote starts so the history joins up
	shift := sec.start.Sub(price)
	for i := range history {
		history[i].open = history[i].open.Add(shift)
		history[i].high = history[i].high.Add(shift)
		history[i].low = history[i].low.Add(shift)
		history[i].close = history[i].close.Add(shift)
	}
	for _, p := range periods {
		current := bar{open: sec.start, high: sec.start, low: sec.start, close: sec.start, turnover: decimal.Zero, timestamp: p.Start(now).Unix()}
		if p == types.PeriodDay {
			inst.bars[p] = append(slices.Clone(history), current)
			continue
		}
		inst.bars[p] = []bar{current}
	}
	return inst
}

func (m *market) walk(sec security, price decimal.Decimal) decimal.Decimal {
	steps := decimal.NewFromInt(m.rng.Int64N(5) - 2)
	next := price.Add(sec.tickSize.Mul(steps))
	if next.LessThan(sec.tickSize) {
		return sec.tickSize
	}
	return next
}

func (m *market) book(sec security, price decimal.Decimal) depthSnap {
	d := depthSnap{asks: make([]level, depthLevels), bids: make([]level, depthLevels)}
	for i := 0; i < depthLevels; i++ {
		offset := sec.tickSize.Mul(decimal.NewFromInt(int64(i + 1)))
		d.asks[i] = level{position: int32(i + 1), price: price.Add(offset), volume: 100 + m.rng.Int64N(900), orders: 1 + m.rng.Int64N(9)}
		bid := price.Sub(offset)
		if !bid.IsPositive() {
			d.bids = d.bids[:i]
			break
		}
		d.bids[i] = level{position: int32(i + 1), price: bid, volume: 100 + m.rng.Int64N(900), orders: 1 + m.rng.Int64N(9)}
	}
	return d
}

func (m *market) queue() *brokersSnap {
	side := func() []brokerLevel {
		out := make([]brokerLevel, depthLevels)
		for i := range out {
			ids := make([]int32, 1+m.rng.IntN(3))
			for j := range ids {
				ids[j] = 1000 + m.rng.Int32N(9000)
			}
			out[i] = brokerLevel{position: int32(i + 1), ids: ids}
		}
		return out
	}
	return &brokersSnap{asks: side(), bids: side()}
}

// step moves every listed symbol by one random trade.
func (m *market) step(symbols []string) []tick {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().UTC()
	out := make([]tick, 0, len(symbols))
	for _, symbol := range symbols {
		inst, ok := m.instruments[symbol]
		if !ok {
			continue
		}
		price := m.walk(inst.info, inst.quote.last)
		volume := int64(inst.info.lotSize) * (1 + m.rng.Int64N(10))
		out = append(out, m.trade(inst, price, volume, now))
	}
	return out
}

// apply records an externally sourced trade.
func (m *market) apply(symbol string, price decimal.Decimal, volume int64, at time.Time) (tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instruments[symbol]
	if !ok {
		return tick{}, errs.FromNative("market", 404, "security not found: "+symbol)
	}
	if !price.IsPositive() || volume <= 0 {
		return tick{}, errs.FromNative("market", 400, "invalid trade for "+symbol)
	}
	return m.trade(inst, price, volume, at.UTC()), nil
}

func (m *market) trade(inst *instrument, price decimal.Decimal, volume int64, now time.Time) tick {
	q := &inst.quote
	direction := types.TradeDirectionNeutral
	switch price.Cmp(q.last) {
	case 1:
		direction = types.TradeDirectionUp
	case -1:
		direction = types.TradeDirectionDown
	}
	notional := price.Mul(decimal.NewFromInt(volume))
	q.last = price
	q.high = decimal.Max(q.high, price)
	q.low = decimal.Min(q.low, price)
	q.volume += volume
	q.turnover = q.turnover.Add(notional)
	q.timestamp = now.Unix()

	p := tradeRecord{price: price, volume: volume, timestamp: now.Unix(), direction: direction, session: q.session}
	inst.trades = appendCapped(inst.trades, p, maxTrades)
	inst.depth = m.book(inst.info, price)
	if inst.brokers != nil {
		inst.brokers = m.queue()
	}

	t := tick{symbol: inst.info.symbol, quote: *q, depth: cloneDepth(inst.depth), trades: []tradeRecord{p}}
	if inst.brokers != nil {
		b := cloneBrokers(*inst.brokers)
		t.brokers = &b
	}
	for _, period := range periods {
		t.bars = append(t.bars, inst.updateBar(period, price, volume, notional, now)...)
	}
	inst.updateIntraday(price, volume, notional, now)
	return t
}

// updateBar folds a trade into the bar of its bucket. Crossing into a new bucket confirms
// the previous bar.
func (inst *instrument) updateBar(period types.Period, price decimal.Decimal, volume int64, notional decimal.Decimal, now time.Time) []barUpdate {
	start := period.Start(now).Unix()
	bars := inst.bars[period]
	var out []barUpdate
	if n := len(bars); n > 0 && bars[n-1].timestamp == start {
		b := &bars[n-1]
		b.high = decimal.Max(b.high, price)
		b.low = decimal.Min(b.low, price)
		b.close = price
		b.volume += volume
		b.turnover = b.turnover.Add(notional)
	} else {
		if n > 0 {
			out = append(out, barUpdate{period: period, bar: bars[n-1], confirmed: true})
		}
		bars = appendCapped(bars, bar{open: price, high: price, low: price, close: price, volume: volume, turnover: notional, timestamp: start}, maxBars)
	}
	inst.bars[period] = bars
	return append(out, barUpdate{period: period, bar: bars[len(bars)-1]})
}

func (inst *instrument) updateIntraday(price decimal.Decimal, volume int64, notional decimal.Decimal, now time.Time) {
	minute := now.Truncate(time.Minute).Unix()
	avg := price
	if inst.quote.volume > 0 {
		avg = inst.quote.turnover.DivRound(decimal.NewFromInt(inst.quote.volume), 4)
	}
	if n := len(inst.intraday); n > 0 && inst.intraday[n-1].timestamp == minute {
		line := &inst.intraday[n-1]
		line.price = price
		line.volume += volume
		line.turnover = line.turnover.Add(notional)
		line.avgPrice = avg
		return
	}
	inst.intraday = appendCapped(inst.intraday, minuteLine{price: price, volume: volume, turnover: notional, avgPrice: avg, timestamp: minute}, 24*60)
}

func (m *market) lookup(symbol string) (*instrument, error) {
	inst, ok := m.instruments[symbol]
	if !ok {
		return nil, errs.FromNative("market", 404, "security not found: "+symbol)
	}
	return inst, nil
}

func (m *market) known(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.instruments[symbol]
	return ok
}

// staticInfo skips unknown symbols.
func (m *market) staticInfo(symbols []string) []security {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]security, 0, len(symbols))
	for _, s := range symbols {
		if inst, ok := m.instruments[s]; ok {
			out = append(out, inst.info)
		}
	}
	return out
}

// quotes skips unknown symbols.
func (m *market) quotes(symbols []string) []quoteSnap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quoteSnap, 0, len(symbols))
	for _, s := range symbols {
		if inst, ok := m.instruments[s]; ok {
			out = append(out, inst.quote)
		}
	}
	return out
}

func (m *market) snapshot(symbol string) (tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, err := m.lookup(symbol)
	if err != nil {
		return tick{}, err
	}
	t := tick{symbol: symbol, quote: inst.quote, depth: cloneDepth(inst.depth)}
	if inst.brokers != nil {
		b := cloneBrokers(*inst.brokers)
		t.brokers = &b
	}
	if n := len(inst.trades); n > 0 {
		t.trades = []tradeRecord{inst.trades[n-1]}
	}
	for _, p := range periods {
		if bars := inst.bars[p]; len(bars) > 0 {
			t.bars = append(t.bars, barUpdate{period: p, bar: bars[len(bars)-1]})
		}
	}
	return t, nil
}

func (m *market) depthOf(symbol string) (depthSnap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, err := m.lookup(symbol)
	if err != nil {
		return depthSnap{}, err
	}
	return cloneDepth(inst.depth), nil
}

// brokersOf returns empty queues outside Hong Kong.
func (m *market) brokersOf(symbol string) (brokersSnap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, err := m.lookup(symbol)
	if err != nil {
		return brokersSnap{}, err
	}
	if inst.brokers == nil {
		return brokersSnap{}, nil
	}
	return cloneBrokers(*inst.brokers), nil
}

func (m *market) tradesOf(symbol string, count int) ([]tradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, err := m.lookup(symbol)
	if err != nil {
		return nil, err
	}
	return slices.Clone(tail(inst.trades, count)), nil
}

func (m *market) intradayOf(symbol string) ([]minuteLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, err := m.lookup(symbol)
	if err != nil {
		return nil, err
	}
	return slices.Clone(inst.intraday), nil
}

func (m *market) candlesticks(symbol string, period types.Period, count int) ([]bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars, err := m.periodBars(symbol, period)
	if err != nil {
		return nil, err
	}
	return slices.Clone(tail(bars, count)), nil
}

func (m *market) periodBars(symbol string, period types.Period) ([]bar, error) {
	inst, err := m.lookup(symbol)
	if err != nil {
		return nil, err
	}
	bars, ok := inst.bars[period]
	if !ok {
		return nil, errs.FromNative("market", 400, "invalid period")
	}
	return bars, nil
}

// historyByOffset returns up to count bars opened after at when forward is set, otherwise
// the count bars up to and including the one open at at.
func (m *market) historyByOffset(symbol string, period types.Period, forward bool, at time.Time, count int) ([]bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars, err := m.periodBars(symbol, period)
	if err != nil {
		return nil, err
	}
	ts := at.Unix()
	i := sort.Search(len(bars), func(i int) bool { return bars[i].timestamp > ts })
	if forward {
		return slices.Clone(bars[i:min(i+count, len(bars))]), nil
	}
	return slices.Clone(bars[max(i-count, 0):i]), nil
}

// historyByDate returns the bars opened on the days [start, end]. A nil bound is open.
func (m *market) historyByDate(symbol string, period types.Period, start, end *types.Date) ([]bar, error) {
	if start != nil && end != nil && end.Time().Before(start.Time()) {
		return nil, errs.FromNative("market", 400, "start is after end")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bars, err := m.periodBars(symbol, period)
	if err != nil {
		return nil, err
	}
	out := make([]bar, 0)
	for _, b := range bars {
		if start != nil && b.timestamp < start.Time().Unix() {
			continue
		}
		if end != nil && b.timestamp >= end.Time().AddDate(0, 0, 1).Unix() {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *market) lastPrice(symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instruments[symbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	return inst.quote.last, true
}

func (m *market) info(symbol string) (security, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instruments[symbol]
	if !ok {
		return security{}, false
	}
	return inst.info, true
}

// tradingDays lists the weekdays of [begin, end]. The range may span at most one month.
func tradingDays(mk types.Market, begin, end types.Date) ([]types.Date, []types.Date, error) {
	if mk == types.MarketUnknown {
		return nil, nil, errs.FromNative("trading_days", 400, "unknown market")
	}
	from, to := begin.Time(), end.Time()
	if to.Before(from) {
		return nil, nil, errs.FromNative("trading_days", 400, "begin is after end")
	}
	if to.After(from.AddDate(0, 1, 0)) {
		return nil, nil, errs.FromNative("trading_days", 400, "the interval must not exceed one month")
	}
	days := make([]types.Date, 0, 23)
	half := make([]types.Date, 0)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		if mk == types.MarketHK && d.Month() == time.December && d.Day() == 24 {
			half = append(half, types.DateOf(d))
			continue
		}
		days = append(days, types.DateOf(d))
	}
	return days, half, nil
}

// sessionSpan is one session of a trading day, as offsets from local midnight.
type sessionSpan struct {
	begin   time.Duration
	end     time.Duration
	session types.TradeSession
}

type marketSessions struct {
	market types.Market
	spans  []sessionSpan
}

func hm(h, m int) time.Duration { return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute }

// tradingSessions is the exchange-local schedule of every market the simulator lists.
var tradingSessions = []marketSessions{
	{market: types.MarketUS, spans: []sessionSpan{
		{begin: hm(4, 0), end: hm(9, 30), session: types.TradeSessionPre},
		{begin: hm(9, 30), end: hm(16, 0), session: types.TradeSessionNormal},
		{begin: hm(16, 0), end: hm(20, 0), session: types.TradeSessionPost},
	}},
	{market: types.MarketHK, spans: []sessionSpan{
		{begin: hm(9, 30), end: hm(12, 0), session: types.TradeSessionNormal},
		{begin: hm(13, 0), end: hm(16, 0), session: types.TradeSessionNormal},
	}},
	{market: types.MarketCN, spans: []sessionSpan{
		{begin: hm(9, 30), end: hm(11, 30), session: types.TradeSessionNormal},
		{begin: hm(13, 0), end: hm(15, 0), session: types.TradeSessionNormal},
	}},
	{market: types.MarketSG, spans: []sessionSpan{
		{begin: hm(9, 0), end: hm(12, 0), session: types.TradeSessionNormal},
		{begin: hm(13, 0), end: hm(17, 0), session: types.TradeSessionNormal},
	}},
}

func cloneDepth(d depthSnap) depthSnap {
	return depthSnap{asks: slices.Clone(d.asks), bids: slices.Clone(d.bids)}
}

func cloneBrokers(b brokersSnap) brokersSnap {
	side := func(levels []brokerLevel) []brokerLevel {
		out := make([]brokerLevel, len(levels))
		for i, lv := range levels {
			out[i] = brokerLevel{position: lv.position, ids: slices.Clone(lv.ids)}
		}
		return out
	}
	return brokersSnap{asks: side(b.asks), bids: side(b.bids)}
}

func appendCapped[T any](items []T, v T, limit int) []T {
	items = append(items, v)
	if len(items) > limit {
		items = slices.Delete(items, 0, len(items)-limit)
	}
	return items
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

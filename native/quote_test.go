package native

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

func TestQuoteSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	symbols, n := ffi.CStrings([]string{"AAA.US", "NOPE.US", "700.HK"})
	r := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextQuote(q, symbols, n, cb, 0) }, func(res *ffi.AsyncResult) [][2]string {
		var out [][2]string
		for _, item := range ffi.SliceOf[ffi.CSecurityQuote](res.Data, res.Length) {
			out = append(out, [2]string{ffi.GoString(item.Symbol), decString(l, item.LastDone)})
		}
		return out
	})
	require.Zero(t, r.code)
	require.Equal(t, [][2]string{{"AAA.US", "10.5"}, {"700.HK", "320.2"}}, r.value)
}

func TestStaticInfo(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	symbols, n := ffi.CStrings([]string{"700.HK"})
	r := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextStaticInfo(q, symbols, n, cb, 0) }, func(res *ffi.AsyncResult) ffi.CSecurityStaticInfo {
		return ffi.SliceOf[ffi.CSecurityStaticInfo](res.Data, res.Length)[0]
	})
	require.Zero(t, r.code)
	require.Equal(t, int32(100), r.value.LotSize)
}

func TestEmptyResultIsNonNull(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	r := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextSubscriptions(q, cb, 0) }, func(res *ffi.AsyncResult) bool {
		return res.Data != nil && res.Length == 0
	})
	require.True(t, r.value)
}

func TestQueryValidation(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)
	aaa := ffi.CStringOf("AAA.US")

	cases := []struct {
		name string
		code int64
		call func(cb ffi.AsyncCallback)
	}{
		{"trades count zero", 400, func(cb ffi.AsyncCallback) { l.QuoteContextTrades(q, aaa, 0, cb, 0) }},
		{"trades count too large", 400, func(cb ffi.AsyncCallback) { l.QuoteContextTrades(q, aaa, 1001, cb, 0) }},
		{"unknown period", 400, func(cb ffi.AsyncCallback) {
			l.QuoteContextCandlesticks(q, aaa, types.PeriodUnknown, 10, types.AdjustTypeNoAdjust, cb, 0)
		}},
		{"unknown symbol", 404, func(cb ffi.AsyncCallback) { l.QuoteContextBrokers(q, ffi.CStringOf("X.US"), cb, 0) }},
		{"missing dates", 400, func(cb ffi.AsyncCallback) { l.QuoteContextTradingDays(q, types.MarketUS, nil, nil, cb, 0) }},
		{"range over a month", 400, func(cb ffi.AsyncCallback) {
			l.QuoteContextTradingDays(q, types.MarketUS, &ffi.CDate{Year: 2024, Month: 1, Day: 1}, &ffi.CDate{Year: 2024, Month: 3, Day: 1}, cb, 0)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := await[struct{}](t, l, tc.call, nil)
			require.Equal(t, tc.code, r.code, r.message)
		})
	}
}

func TestTradingDaysSkipWeekends(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	begin := &ffi.CDate{Year: 2024, Month: 3, Day: 1}
	end := &ffi.CDate{Year: 2024, Month: 3, Day: 10}
	r := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextTradingDays(q, types.MarketUS, begin, end, cb, 0) }, func(res *ffi.AsyncResult) []types.Date {
		days := (*ffi.CMarketTradingDays)(res.Data)
		return slices.Clone(ffi.Slice(days.TradingDays, days.NumTradingDays))
	})
	require.Zero(t, r.code)
	require.Len(t, r.value, 6)
	require.Equal(t, "2024-03-01", r.value[0].String())
	require.Equal(t, "2024-03-08", r.value[5].String())
}

func TestCandlesticksHistory(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	r := await(t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextCandlesticks(q, ffi.CStringOf("AAA.US"), types.PeriodDay, 5, types.AdjustTypeNoAdjust, cb, 0)
	}, func(res *ffi.AsyncResult) []string {
		var out []string
		for _, c := range ffi.SliceOf[ffi.CCandlestick](res.Data, res.Length) {
			out = append(out, decString(l, c.Close))
		}
		return out
	})
	require.Zero(t, r.code)
	require.Len(t, r.value, 5)
	require.Equal(t, "10.5", r.value[4])
}

func TestPushesArriveInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	var mu sync.Mutex
	var got []string
	l.QuoteContextSetOnQuote(q, func(_ ffi.QuoteContextPtr, ev *ffi.CPushQuote, _ ffi.Userdata) {
		mu.Lock()
		got = append(got, decString(l, ev.LastDone))
		mu.Unlock()
	}, 0, nil)
	require.Zero(t, subscribe(t, l, q, []string{"AAA.US"}, types.SubFlagQuote, false).code)

	var want []string
	for i := 0; i < 3; i++ {
		l.Step()
		want = append(want, formatDecimal(l.market.quotes([]string{"AAA.US"})[0].last))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, got)
}

func TestFirstPushDeliversCurrentState(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	depth := make(chan int, 1)
	l.QuoteContextSetOnDepth(q, func(_ ffi.QuoteContextPtr, ev *ffi.CPushDepth, _ ffi.Userdata) {
		depth <- int(ev.NumAsks)
	}, 0, nil)
	require.Zero(t, subscribe(t, l, q, []string{"AAA.US"}, types.SubFlagDepth, true).code)
	select {
	case n := <-depth:
		require.Equal(t, depthLevels, n)
	case <-time.After(time.Second):
		t.Fatal("no first push")
	}
}

func TestSubscribeRejectsUnknownSymbol(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	require.Equal(t, int64(404), subscribe(t, l, q, []string{"AAA.US", "NOPE.US"}, types.SubFlagQuote, false).code)
	require.Equal(t, int64(400), subscribe(t, l, q, []string{"AAA.US"}, 0, false).code)
}

func TestSubscriptionsAndRealtimeStore(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	require.Zero(t, subscribe(t, l, q, []string{"TSLA.US", "AAA.US"}, types.SubFlagQuote|types.SubFlagTrade, false).code)
	r := await[struct{}](t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextSubscribeCandlesticks(q, ffi.CStringOf("AAA.US"), types.PeriodMin1, cb, 0)
	}, nil)
	require.Zero(t, r.code)
	l.Step()

	type sub struct {
		symbol  string
		flags   types.SubFlags
		periods []types.Period
	}
	subs := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextSubscriptions(q, cb, 0) }, func(res *ffi.AsyncResult) []sub {
		var out []sub
		for _, s := range ffi.SliceOf[ffi.CSubscription](res.Data, res.Length) {
			out = append(out, sub{ffi.GoString(s.Symbol), s.SubTypes, slices.Clone(ffi.Slice(s.Candlesticks, s.NumCandlesticks))})
		}
		return out
	})
	require.Equal(t, []sub{
		{"AAA.US", types.SubFlagQuote | types.SubFlagTrade, []types.Period{types.PeriodMin1}},
		{"TSLA.US", types.SubFlagQuote | types.SubFlagTrade, nil},
	}, subs.value)

	symbols, n := ffi.CStrings([]string{"AAA.US", "AAPL.US"})
	rt := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextRealtimeQuote(q, symbols, n, cb, 0) }, func(res *ffi.AsyncResult) []string {
		var out []string
		for _, item := range ffi.SliceOf[ffi.CRealtimeQuote](res.Data, res.Length) {
			out = append(out, decString(l, item.LastDone))
		}
		return out
	})
	require.Equal(t, []string{formatDecimal(l.market.quotes([]string{"AAA.US"})[0].last)}, rt.value)

	trades := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextRealtimeTrades(q, ffi.CStringOf("AAA.US"), 10, cb, 0) }, func(res *ffi.AsyncResult) uintptr {
		return res.Length
	})
	require.Equal(t, uintptr(1), trades.value)

	unsub := await[struct{}](t, l, func(cb ffi.AsyncCallback) { l.QuoteContextUnsubscribe(q, symbols, n, types.SubFlagQuote|types.SubFlagTrade, cb, 0) }, nil)
	require.Zero(t, unsub.code)
	rt = await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextRealtimeQuote(q, symbols, n, cb, 0) }, func(res *ffi.AsyncResult) []string {
		return make([]string, res.Length)
	})
	require.Empty(t, rt.value)
}

func TestReplacingPushSlotFreesPreviousUserdata(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)

	var mu sync.Mutex
	var freed []ffi.Userdata
	free := func(ud ffi.Userdata) {
		mu.Lock()
		freed = append(freed, ud)
		mu.Unlock()
	}
	freedSnapshot := func() []ffi.Userdata {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(freed)
	}

	secondCalls := make(chan struct{}, 4)
	second := func(ffi.QuoteContextPtr, *ffi.CPushQuote, ffi.Userdata) { secondCalls <- struct{}{} }
	var freedDuringCallback bool
	first := func(ctx ffi.QuoteContextPtr, _ *ffi.CPushQuote, _ ffi.Userdata) {
		l.QuoteContextSetOnQuote(ctx, second, 2, free)
		freedDuringCallback = slices.Contains(freedSnapshot(), 1)
	}
	l.QuoteContextSetOnQuote(q, first, 1, free)
	require.Zero(t, subscribe(t, l, q, []string{"AAA.US"}, types.SubFlagQuote, false).code)

	l.Step()
	require.Eventually(t, func() bool { return slices.Contains(freedSnapshot(), 1) }, time.Second, 5*time.Millisecond)
	require.False(t, freedDuringCallback)

	l.Step()
	select {
	case <-secondCalls:
	case <-time.After(time.Second):
		t.Fatal("replacement callback not invoked")
	}

	l.QuoteContextRelease(q)
	require.Eventually(t, func() bool { return slices.Contains(freedSnapshot(), 2) }, time.Second, 5*time.Millisecond)
	require.Len(t, freedSnapshot(), 2)
}

func TestSetUserdataFreesPrevious(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)

	var mu sync.Mutex
	var freed []ffi.Userdata
	l.QuoteContextSetFreeUserdataFunc(q, func(ud ffi.Userdata) {
		mu.Lock()
		freed = append(freed, ud)
		mu.Unlock()
	})
	l.QuoteContextSetUserdata(q, 5)
	require.Equal(t, ffi.Userdata(5), l.QuoteContextUserdata(q))
	l.QuoteContextSetUserdata(q, 6)
	require.Equal(t, ffi.Userdata(6), l.QuoteContextUserdata(q))

	l.QuoteContextRelease(q)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return slices.Equal(freed, []ffi.Userdata{5, 6})
	}, time.Second, 5*time.Millisecond)
}

func TestMemberIDAndQuoteLevel(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	require.GreaterOrEqual(t, l.QuoteContextMemberID(q), int64(0))
	require.Equal(t, "LV1", ffi.GoString(l.QuoteContextQuoteLevel(q)))
}

func barDays() func(res *ffi.AsyncResult) []string {
	return func(res *ffi.AsyncResult) []string {
		var out []string
		for _, c := range ffi.SliceOf[ffi.CCandlestick](res.Data, res.Length) {
			out = append(out, types.DateOf(time.Unix(c.Timestamp, 0)).String())
		}
		return out
	}
}

func TestHistoryCandlesticksByOffset(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)
	aaa := ffi.CStringOf("AAA.US")

	at := ffi.CDateTime{Date: ffi.CDate{Year: 2024, Month: 3, Day: 10}}
	back := await(t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByOffset(q, aaa, types.PeriodDay, types.AdjustTypeNoAdjust, false, at, 3, cb, 0)
	}, barDays())
	require.Zero(t, back.code, back.message)
	require.Equal(t, []string{"2024-03-08", "2024-03-09", "2024-03-10"}, back.value)

	fwd := await(t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByOffset(q, aaa, types.PeriodDay, types.AdjustTypeNoAdjust, true, at, 10, cb, 0)
	}, barDays())
	require.Zero(t, fwd.code, fwd.message)
	require.Equal(t, []string{"2024-03-11", "2024-03-12", "2024-03-13", "2024-03-14"}, fwd.value)

	bad := at
	bad.Time.Hour = 24
	r := await[struct{}](t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByOffset(q, aaa, types.PeriodDay, types.AdjustTypeNoAdjust, true, bad, 10, cb, 0)
	}, nil)
	require.Equal(t, int64(400), r.code)
}

func TestHistoryCandlesticksByDate(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)
	aaa := ffi.CStringOf("AAA.US")

	r := await(t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByDate(q, aaa, types.PeriodDay, types.AdjustTypeNoAdjust,
			&ffi.CDate{Year: 2024, Month: 3, Day: 1}, &ffi.CDate{Year: 2024, Month: 3, Day: 3}, cb, 0)
	}, barDays())
	require.Zero(t, r.code, r.message)
	require.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, r.value)

	open := await(t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByDate(q, aaa, types.PeriodDay, types.AdjustTypeNoAdjust, &ffi.CDate{Year: 2024, Month: 3, Day: 13}, nil, cb, 0)
	}, barDays())
	require.Equal(t, []string{"2024-03-13", "2024-03-14"}, open.value)

	inverted := await[struct{}](t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByDate(q, aaa, types.PeriodDay, types.AdjustTypeNoAdjust,
			&ffi.CDate{Year: 2024, Month: 3, Day: 3}, &ffi.CDate{Year: 2024, Month: 3, Day: 1}, cb, 0)
	}, nil)
	require.Equal(t, int64(400), inverted.code)

	unknown := await[struct{}](t, l, func(cb ffi.AsyncCallback) {
		l.QuoteContextHistoryCandlesticksByDate(q, ffi.CStringOf("X.US"), types.PeriodDay, types.AdjustTypeNoAdjust, nil, nil, cb, 0)
	}, nil)
	require.Equal(t, int64(404), unknown.code)
}

func TestTradingSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()
	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)

	r := await(t, l, func(cb ffi.AsyncCallback) { l.QuoteContextTradingSession(q, cb, 0) }, func(res *ffi.AsyncResult) map[types.Market][]ffi.CTradingSessionInfo {
		out := make(map[types.Market][]ffi.CTradingSessionInfo)
		for _, m := range ffi.SliceOf[ffi.CMarketTradingSession](res.Data, res.Length) {
			out[m.Market] = slices.Clone(ffi.Slice(m.TradeSessions, m.NumTradeSessions))
		}
		return out
	})
	require.Zero(t, r.code)
	require.Len(t, r.value, 4)
	us := r.value[types.MarketUS]
	require.Len(t, us, 3)
	require.Equal(t, ffi.CTradingSessionInfo{BeginTime: ffi.CTime{Hour: 4}, EndTime: ffi.CTime{Hour: 9, Minute: 30}, TradeSession: types.TradeSessionPre}, us[0])
	require.Equal(t, types.TradeSessionPost, us[2].TradeSession)
	hk := r.value[types.MarketHK]
	require.Equal(t, ffi.CTime{Hour: 12}, hk[0].EndTime)
	require.Equal(t, ffi.CTime{Hour: 13}, hk[1].BeginTime)
}

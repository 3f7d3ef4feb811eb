package quote

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/config"
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/ffi/ffitest"
	"github.com/coachpo/longport-go/native"
	"github.com/coachpo/longport-go/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newConfig(t *testing.T, overnight bool) *config.Config {
	t.Helper()
	opts := config.Options{AppKey: "app-key", AppSecret: "app-secret", AccessToken: "access-token"}
	if overnight {
		opts.EnableOvernight = &overnight
	}
	cfg := config.New(opts)
	t.Cleanup(cfg.Free)
	return cfg
}

// await issues one call and returns its completion, failing when it is delivered twice.
func await[T any](t *testing.T, start func(cb Callback[T])) bridge.Result[*Context, T] {
	t.Helper()
	done := make(chan bridge.Result[*Context, T], 2)
	start(func(r bridge.Result[*Context, T]) { done <- r })
	var r bridge.Result[*Context, T]
	select {
	case r = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
	}
	select {
	case <-done:
		t.Fatal("callback invoked twice")
	case <-time.After(20 * time.Millisecond):
	}
	return r
}

func connect(t *testing.T, cfg *config.Config) *Context {
	t.Helper()
	r := await(t, func(cb Callback[struct{}]) { New(cfg, cb) })
	require.NoError(t, r.Err())
	require.NotNil(t, r.Context)
	return r.Context
}

func TestNewHoldsOneReference(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	ptr := uintptr(ctx.h.Ptr())

	require.Equal(t, 1, lib.Counts().Created)
	require.Equal(t, 1, lib.Balance(ptr))
	require.Equal(t, uintptr(1), ctx.RefCount())

	clone := ctx.Clone()
	require.Equal(t, 2, lib.Balance(ptr))
	require.Equal(t, uintptr(2), ctx.RefCount())

	clone.Release()
	clone.Release()
	require.Equal(t, 1, lib.Balance(ptr))

	ctx.Release()
	require.Zero(t, lib.Balance(ptr))
	require.Eventually(t, func() bool { return lib.Stats().QuoteContexts == 0 }, time.Second, 5*time.Millisecond)
	require.Panics(t, func() { ctx.Subscriptions(func(bridge.Result[*Context, []Subscription]) {}) })
}

func TestNewFailureProducesNoContext(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	cfg := config.New(config.Options{AppKey: "app-key"})
	defer cfg.Free()

	r := await(t, func(cb Callback[struct{}]) { New(cfg, cb) })
	require.True(t, r.IsErr())
	require.Nil(t, r.Context)
	require.Equal(t, int64(401), r.Status.Code())
	require.Equal(t, "unauthorized", r.Status.Message())

	var e *errs.E
	require.ErrorAs(t, r.Err(), &e)
	require.Equal(t, errs.CodeAuth, e.Code)
	require.Zero(t, lib.Counts().Created)
	require.Zero(t, lib.Stats().QuoteContexts)
}

func TestCallsCompleteOnceAndFreeTheirBox(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()
	ptr := uintptr(ctx.h.Ptr())
	before := bridge.Default().Stats()
	callbacks := lib.Counts().Callbacks

	var inside int
	ok := await(t, func(cb Callback[[]Subscription]) {
		ctx.Subscriptions(func(r bridge.Result[*Context, []Subscription]) {
			inside = lib.Balance(ptr)
			cb(r)
		})
	})
	require.True(t, ok.IsOK())
	require.NotNil(t, ok.Data)
	require.Empty(t, ok.Data)
	require.Equal(t, 2, inside)

	lib.FailNext("quote_context.quote", 500, "boom")
	failed := await(t, func(cb Callback[[]SecurityQuote]) { ctx.Quote([]string{"AAA.US"}, cb) })
	require.True(t, failed.IsErr())
	require.Nil(t, failed.Data)
	require.Equal(t, int64(500), failed.Status.Code())
	require.Equal(t, "boom", failed.Status.Message())

	require.Equal(t, callbacks+2, lib.Counts().Callbacks)
	after := bridge.Default().Stats()
	require.Equal(t, before.Created+2, after.Created)
	require.Equal(t, before.Live(), after.Live())
	require.Eventually(t, func() bool { return lib.Balance(ptr) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return lib.Stats().Errors == 0 }, time.Second, 5*time.Millisecond)
}

func TestQuoteSnapshot(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()

	r := await(t, func(cb Callback[[]SecurityQuote]) { ctx.Quote([]string{"AAA.US", "NOPE.US", "700.HK"}, cb) })
	require.NoError(t, r.Err())
	require.Len(t, r.Data, 2)

	// The payload arena has been poisoned by now; the copies must not notice.
	aaa := r.Data[0]
	require.Equal(t, "AAA.US", aaa.Symbol)
	require.Equal(t, "10.5", aaa.LastDone.String())
	require.InDelta(t, 10.5, aaa.LastDone.Float64(), 1e-9)
	require.Equal(t, "700.HK", r.Data[1].Symbol)
	require.Equal(t, "320.2", r.Data[1].LastDone.String())
	require.Nil(t, aaa.PreMarketQuote)
	require.Nil(t, aaa.PostMarketQuote)
	require.Positive(t, lib.Counts().DecimalNews)
}

func TestOptionalQuoteFields(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, true))
	defer ctx.Release()

	r := await(t, func(cb Callback[[]SecurityQuote]) { ctx.Quote([]string{"AAA.US"}, cb) })
	require.NoError(t, r.Err())
	require.Len(t, r.Data, 1)
	require.Nil(t, r.Data[0].PreMarketQuote)
	require.NotNil(t, r.Data[0].PostMarketQuote)
	require.Equal(t, "10.5", r.Data[0].PostMarketQuote.LastDone.String())
}

func TestQueryErrorsAreCategorised(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()

	r := await(t, func(cb Callback[[]Trade]) { ctx.Trades("AAA.US", -1, cb) })
	var e *errs.E
	require.True(t, errors.As(r.Err(), &e))
	require.Equal(t, errs.CodeInvalid, e.Code)
	require.Equal(t, int64(400), e.NativeCode)

	d := await(t, func(cb Callback[SecurityBrokers]) { ctx.Brokers("NOPE.US", cb) })
	require.True(t, errors.As(d.Err(), &e))
	require.Equal(t, errs.CodeNotFound, e.Code)
}

func TestPushesArriveInOrder(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()

	got := make(chan string, 8)
	ctx.OnQuote(func(_ *Context, p PushQuote) { got <- p.Symbol + "@" + p.LastDone.String() })
	sub := await(t, func(cb Callback[struct{}]) { ctx.Subscribe([]string{"AAA.US"}, types.SubFlagQuote, false, cb) })
	require.NoError(t, sub.Err())

	var want []string
	for range 3 {
		lib.Step()
		q := await(t, func(cb Callback[[]SecurityQuote]) { ctx.Quote([]string{"AAA.US"}, cb) })
		require.NoError(t, q.Err())
		want = append(want, "AAA.US@"+q.Data[0].LastDone.String())
	}
	var seen []string
	for range 3 {
		select {
		case s := <-got:
			seen = append(seen, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d of 3 pushes", len(seen))
		}
	}
	require.Equal(t, want, seen)
}

type pushSeen struct {
	symbol   string
	balance  int
	refs     uintptr
	memberID int64
}

func TestPushHandlerBorrowsContext(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()
	ptr := uintptr(ctx.h.Ptr())

	seen := make(chan pushSeen, 4)
	ctx.OnQuote(func(c *Context, p PushQuote) {
		seen <- pushSeen{symbol: p.Symbol, balance: lib.Balance(ptr), refs: c.RefCount(), memberID: c.MemberID()}
	})
	sub := await(t, func(cb Callback[struct{}]) { ctx.Subscribe([]string{"AAA.US"}, types.SubFlagQuote, false, cb) })
	require.NoError(t, sub.Err())
	require.Eventually(t, func() bool { return lib.Balance(ptr) == 1 }, time.Second, 5*time.Millisecond)
	lib.Step()

	var got pushSeen
	select {
	case got = <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("quote push not delivered")
	}
	require.Equal(t, "AAA.US", got.symbol)
	require.Equal(t, 2, got.balance)
	require.GreaterOrEqual(t, got.refs, uintptr(2))
	require.Equal(t, ctx.MemberID(), got.memberID)

	ctx.OnQuote(nil)
	require.Eventually(t, func() bool { return lib.Balance(ptr) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return ctx.RefCount() == 1 }, time.Second, 5*time.Millisecond)
}

// leak connects and drops the context without releasing it.
func leak(t *testing.T, cfg *config.Config) uintptr {
	t.Helper()
	c := connect(t, cfg)
	return uintptr(c.h.Ptr())
}

func TestLeakedContextIsCollectedAfterClose(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ptr := leak(t, newConfig(t, false))
	require.Equal(t, 1, lib.Balance(ptr))

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lib.Close(closeCtx))
	require.Eventually(t, func() bool { return lib.Stats().QuoteContexts == 0 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		runtime.GC()
		return lib.Balance(ptr) == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, lib.QuoteContextRefCount(ffi.QuoteContextPtr(ptr)))
}

func TestReplacingHandlerFreesPreviousBox(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	before := bridge.Default().Stats()

	first := make(chan struct{}, 4)
	second := make(chan struct{}, 4)
	ctx.OnQuote(func(*Context, PushQuote) { first <- struct{}{} })
	ctx.OnQuote(func(*Context, PushQuote) { second <- struct{}{} })
	require.Eventually(t, func() bool {
		s := bridge.Default().Stats()
		return s.Created == before.Created+2 && s.Freed == before.Freed+1
	}, time.Second, 5*time.Millisecond)

	sub := await(t, func(cb Callback[struct{}]) { ctx.Subscribe([]string{"AAA.US"}, types.SubFlagQuote, false, cb) })
	require.NoError(t, sub.Err())
	lib.Step()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement handler not invoked")
	}
	require.Empty(t, first)

	ctx.OnDepth(func(*Context, PushDepth) {})
	ctx.SetUserdata("state")
	ctx.Release()
	require.Eventually(t, func() bool { return bridge.Default().Stats().Live() == before.Live() }, time.Second, 5*time.Millisecond)
}

func TestClearingHandlerStopsPushes(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()
	before := bridge.Default().Stats()

	calls := make(chan struct{}, 4)
	ctx.OnTrades(func(*Context, PushTrades) { calls <- struct{}{} })
	ctx.OnTrades(nil)
	require.Eventually(t, func() bool { return bridge.Default().Stats().Live() == before.Live() }, time.Second, 5*time.Millisecond)

	sub := await(t, func(cb Callback[struct{}]) { ctx.Subscribe([]string{"AAA.US"}, types.SubFlagTrade, false, cb) })
	require.NoError(t, sub.Err())
	lib.Step()
	q := await(t, func(cb Callback[[]SecurityQuote]) { ctx.Quote([]string{"AAA.US"}, cb) })
	require.NoError(t, q.Err())
	require.Empty(t, calls)
}

func TestUserdata(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()
	before := bridge.Default().Stats()

	require.Nil(t, ctx.Userdata())
	ctx.SetUserdata("first")
	require.Equal(t, "first", ctx.Userdata())

	clone := ctx.Clone()
	require.Equal(t, "first", clone.Userdata())
	clone.Release()

	ctx.SetUserdata(42)
	require.Equal(t, 42, ctx.Userdata())
	require.Eventually(t, func() bool { return bridge.Default().Stats().Freed == before.Freed+1 }, time.Second, 5*time.Millisecond)

	ctx.SetUserdata(nil)
	require.Nil(t, ctx.Userdata())
	require.Eventually(t, func() bool { return bridge.Default().Stats().Live() == before.Live() }, time.Second, 5*time.Millisecond)
}

func TestSubscriptionsAndRealtime(t *testing.T) {
	lib := ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()

	sub := await(t, func(cb Callback[struct{}]) {
		ctx.Subscribe([]string{"AAA.US"}, types.SubFlagQuote|types.SubFlagDepth, true, cb)
	})
	require.NoError(t, sub.Err())
	bars := await(t, func(cb Callback[[]Candlestick]) { ctx.SubscribeCandlesticks("AAA.US", types.PeriodMin1, cb) })
	require.NoError(t, bars.Err())
	lib.Step()

	subs := await(t, func(cb Callback[[]Subscription]) { ctx.Subscriptions(cb) })
	require.NoError(t, subs.Err())
	require.Len(t, subs.Data, 1)
	require.Equal(t, "AAA.US", subs.Data[0].Symbol)
	require.True(t, subs.Data[0].SubTypes.Has(types.SubFlagQuote))
	require.Equal(t, []types.Period{types.PeriodMin1}, subs.Data[0].Candlesticks)

	rt := await(t, func(cb Callback[[]RealtimeQuote]) { ctx.RealtimeQuote([]string{"AAA.US", "700.HK"}, cb) })
	require.NoError(t, rt.Err())
	require.Len(t, rt.Data, 1)
	require.Equal(t, "AAA.US", rt.Data[0].Symbol)

	depth := await(t, func(cb Callback[SecurityDepth]) { ctx.RealtimeDepth("AAA.US", cb) })
	require.NoError(t, depth.Err())
	require.NotEmpty(t, depth.Data.Asks)

	unsub := await(t, func(cb Callback[struct{}]) { ctx.Unsubscribe([]string{"AAA.US"}, types.SubFlagDepth, cb) })
	require.NoError(t, unsub.Err())
	unbars := await(t, func(cb Callback[struct{}]) { ctx.UnsubscribeCandlesticks("AAA.US", types.PeriodMin1, cb) })
	require.NoError(t, unbars.Err())
}

func TestReferenceQueries(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()

	info := await(t, func(cb Callback[[]SecurityStaticInfo]) { ctx.StaticInfo([]string{"700.HK"}, cb) })
	require.NoError(t, info.Err())
	require.Len(t, info.Data, 1)
	require.Equal(t, "HKD", info.Data[0].Currency)

	brokers := await(t, func(cb Callback[SecurityBrokers]) { ctx.Brokers("AAA.US", cb) })
	require.NoError(t, brokers.Err())
	require.Empty(t, brokers.Data.AskBrokers)

	candles := await(t, func(cb Callback[[]Candlestick]) {
		ctx.Candlesticks("AAA.US", types.PeriodDay, 10, types.AdjustTypeNoAdjust, cb)
	})
	require.NoError(t, candles.Err())
	require.Len(t, candles.Data, 10)

	begin := types.Date{Year: 2024, Month: 3, Day: 11}
	end := types.Date{Year: 2024, Month: 3, Day: 17}
	days := await(t, func(cb Callback[MarketTradingDays]) { ctx.TradingDays(types.MarketUS, begin, end, cb) })
	require.NoError(t, days.Err())
	require.Len(t, days.Data.TradingDays, 5)

	require.Equal(t, "LV1", ctx.QuoteLevel())
	require.GreaterOrEqual(t, ctx.MemberID(), int64(0))
}

func TestHistoryCandlesticksAndSessions(t *testing.T) {
	ffitest.Install(t, native.Options{Seed: 42})
	ctx := connect(t, newConfig(t, false))
	defer ctx.Release()
	now := time.Now().UTC()
	today := types.DateOf(now)

	back := await(t, func(cb Callback[[]Candlestick]) {
		ctx.HistoryCandlesticksByOffset("AAA.US", types.PeriodDay, types.AdjustTypeNoAdjust, false, now, 5, cb)
	})
	require.NoError(t, back.Err())
	require.Len(t, back.Data, 5)
	require.Equal(t, today, types.DateOf(back.Data[4].Timestamp))
	require.Equal(t, "10.5", back.Data[4].Close.String())

	ahead := await(t, func(cb Callback[[]Candlestick]) {
		ctx.HistoryCandlesticksByOffset("AAA.US", types.PeriodDay, types.AdjustTypeNoAdjust, true, now, 5, cb)
	})
	require.NoError(t, ahead.Err())
	require.Empty(t, ahead.Data)

	start := types.DateOf(now.AddDate(0, 0, -2))
	byDate := await(t, func(cb Callback[[]Candlestick]) {
		ctx.HistoryCandlesticksByDate("AAA.US", types.PeriodDay, types.AdjustTypeNoAdjust, &start, &today, cb)
	})
	require.NoError(t, byDate.Err())
	require.Len(t, byDate.Data, 3)
	require.Equal(t, start, types.DateOf(byDate.Data[0].Timestamp))

	inverted := await(t, func(cb Callback[[]Candlestick]) {
		ctx.HistoryCandlesticksByDate("AAA.US", types.PeriodDay, types.AdjustTypeNoAdjust, &today, &start, cb)
	})
	var e *errs.E
	require.True(t, errors.As(inverted.Err(), &e))
	require.Equal(t, errs.CodeInvalid, e.Code)

	sessions := await(t, func(cb Callback[[]MarketTradingSession]) { ctx.TradingSession(cb) })
	require.NoError(t, sessions.Err())
	require.Len(t, sessions.Data, 4)
	us := sessions.Data[0]
	require.Equal(t, types.MarketUS, us.Market)
	require.Len(t, us.TradeSessions, 3)
	require.Equal(t, "04:00:00", us.TradeSessions[0].BeginTime.String())
	require.Equal(t, types.TradeSessionNormal, us.TradeSessions[1].TradeSession)
	require.Equal(t, "16:00:00", us.TradeSessions[1].EndTime.String())
}

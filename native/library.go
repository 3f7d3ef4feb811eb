// Package native is an in-process implementation of the SDK entry points described by package
// ffi. It owns every goroutine involved: an async worker pool for one-shot calls, one
// delivery goroutine per context for push events and the market ticker. Payloads handed to
// callbacks live in pooled arenas that are scrubbed as soon as the callback returns.
package native

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/config"
	"github.com/coachpo/longport-go/internal/observability"
	"github.com/coachpo/longport-go/internal/pool"
	"github.com/coachpo/longport-go/lib/async"
)

const (
	defaultWorkers      = 8
	defaultQueue        = 256
	defaultArenas       = 256
	defaultArenaTimeout = 5 * time.Second
)

// Options configures the runtime.
type Options struct {
	// Workers and Queue size the async pool.
	Workers int
	Queue   int
	// Arenas bounds the number of envelopes in flight.
	Arenas       int
	ArenaTimeout time.Duration
	// TickInterval drives Step on a ticker. Zero means the market only moves on Step.
	TickInterval time.Duration
	// FeedURL switches the market to ticks read from a websocket.
	FeedURL string
	// Seed makes the random walk reproducible.
	Seed uint64
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Authorize validates context credentials. The default requires the key, secret and token.
	Authorize func(config.Settings) error
	// MeterProvider defaults to the global otel provider.
	MeterProvider metric.MeterProvider
	// QuoteRate and TradeRate are per-context request rates; zero uses the defaults.
	QuoteRate float64
	QuoteBurst int
	TradeRate float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Queue <= 0 {
		o.Queue = defaultQueue
	}
	if o.Arenas <= 0 {
		o.Arenas = defaultArenas
	}
	if o.ArenaTimeout <= 0 {
		o.ArenaTimeout = defaultArenaTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Authorize == nil {
		o.Authorize = authorizeCredentials
	}
	if o.QuoteRate <= 0 {
		o.QuoteRate = 10
	}
	if o.QuoteBurst <= 0 {
		o.QuoteBurst = 20
	}
	if o.TradeRate <= 0 {
		o.TradeRate = 30
	}
	return o
}

func authorizeCredentials(s config.Settings) error {
	if s.AppKey == "" || s.AppSecret == "" || s.AccessToken == "" {
		return apiError(401, "unauthorized")
	}
	return nil
}

// Library implements ffi.Library.
type Library struct {
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	workers *async.Pool
	arenas  *pool.ArenaManager
	wg      conc.WaitGroup
	closed  atomic.Bool
	metrics *metrics

	errors   *table[nativeError]
	decimals *table[decimalValue]
	configs  *table[configValue]
	clients  *table[httpClient]
	results  *table[httpResult]
	quotes   *table[quoteContext]
	trades   *table[tradeContext]

	market *market
	broker *broker
	feed   *feed

	faultMu sync.Mutex
	faults  map[string][]error

	closeOnce sync.Once
	closeErr  error
}

var _ ffi.Library = (*Library)(nil)

// Open starts a runtime.
func Open(opts Options) (*Library, error) {
	opts = opts.withDefaults()
	workers, err := async.NewPool("native", opts.Workers, opts.Queue)
	if err != nil {
		return nil, fmt.Errorf("native pool: %w", err)
	}
	arenas, err := pool.NewArenaManager(opts.Arenas)
	if err != nil {
		workers.Close()
		return nil, fmt.Errorf("native arenas: %w", err)
	}
	m, err := newMetrics(opts.MeterProvider)
	if err != nil {
		workers.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Library{
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		workers:  workers,
		arenas:   arenas,
		metrics:  m,
		errors:   newTable[nativeError]("error"),
		decimals: newTable[decimalValue]("decimal"),
		configs:  newTable[configValue]("config"),
		clients:  newTable[httpClient]("http_client"),
		results:  newTable[httpResult]("http_result"),
		quotes:   newTable[quoteContext]("quote_context"),
		trades:   newTable[tradeContext]("trade_context"),
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(opts.Clock().UnixNano())
	}
	l.market = newMarket(opts.Clock, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	l.broker = newBroker(l)

	if opts.FeedURL != "" {
		l.feed = newFeed(l, opts.FeedURL)
		l.wg.Go(func() { l.feed.run(ctx) })
	} else if opts.TickInterval > 0 {
		l.wg.Go(func() { l.tick(ctx, opts.TickInterval) })
	}
	observability.Log().Debug("native runtime started",
		observability.F("workers", opts.Workers),
		observability.F("arenas", opts.Arenas),
	)
	return l, nil
}

// Install opens a runtime and loads it as the process-wide library. The previous library is
// returned so tests can restore it.
func Install(opts Options) (*Library, ffi.Library, error) {
	l, err := Open(opts)
	if err != nil {
		return nil, nil, err
	}
	return l, ffi.Load(l), nil
}

func (l *Library) tick(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step moves every instrument that is subscribed or has working orders by one trade and
// queues the resulting push events.
func (l *Library) Step() {
	if l.closed.Load() {
		return
	}
	for _, t := range l.market.step(l.subscribedSymbols()) {
		l.publish(t)
	}
}

// Close stops the runtime. Contexts still alive are torn down and reported. Their owners may
// release them afterwards; those releases do nothing.
func (l *Library) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		var problems []error
		if err := l.workers.Shutdown(ctx); err != nil {
			problems = append(problems, fmt.Errorf("async pool: %w", err))
		}
		l.cancel()
		for _, q := range l.quotes.snapshot() {
			observability.Log().Warn("quote context leaked", observability.F("refs", q.refs.Load()))
			l.quotes.retire(q.id)
			q.stop()
		}
		for _, t := range l.trades.snapshot() {
			observability.Log().Warn("trade context leaked", observability.F("refs", t.refs.Load()))
			l.trades.retire(t.id)
			t.stop()
		}
		l.wg.Wait()
		if err := l.arenas.Shutdown(ctx); err != nil {
			problems = append(problems, fmt.Errorf("arenas: %w", err))
		}
		if n := l.decimals.len(); n > 0 {
			observability.Log().Debug("decimals alive at close", observability.F("count", n))
		}
		l.closeErr = observability.AggregateErrors("native close", problems)
	})
	return l.closeErr
}

// Stats reports live native objects.
type Stats struct {
	QuoteContexts int
	TradeContexts int
	Decimals      int
	Errors        int
	Configs       int
	HTTPClients   int
	HTTPResults   int
	Arenas        int64
}

// Stats returns a snapshot of live native objects.
func (l *Library) Stats() Stats {
	return Stats{
		QuoteContexts: l.quotes.len(),
		TradeContexts: l.trades.len(),
		Decimals:      l.decimals.len(),
		Errors:        l.errors.len(),
		Configs:       l.configs.len(),
		HTTPClients:   l.clients.len(),
		HTTPResults:   l.results.len(),
		Arenas:        l.arenas.Active(),
	}
}

func invalidHandle(op string) *errs.E {
	return errs.Invariant(op, "invalid or freed handle")
}

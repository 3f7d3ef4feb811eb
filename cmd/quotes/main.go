// Command quotes streams quote pushes for a few symbols from the in-process native runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/config"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/observability"
	"github.com/coachpo/longport-go/lib/telemetry"
	"github.com/coachpo/longport-go/native"
	"github.com/coachpo/longport-go/quote"
	"github.com/coachpo/longport-go/types"
)

const (
	defaultSymbols       = "AAA.US,700.HK"
	shutdownTimeout      = 5 * time.Second
	telemetryShutdownTTL = 5 * time.Second
)

type options struct {
	configPath string
	symbols    []string
	duration   time.Duration
	tick       time.Duration
	feedURL    string
	logLevel   string
}

func main() {
	opts := parseFlags()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := observability.NewZapLogger(opts.logLevel)
	observability.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("quotes: %v", err)
	}
}

func parseFlags() options {
	cfgPath := flag.String("config", "", "YAML settings file; credentials come from the environment when empty")
	symbols := flag.String("symbols", defaultSymbols, "comma separated symbols")
	duration := flag.Duration("duration", 0, "stop after this long; zero runs until interrupted")
	tick := flag.Duration("tick", time.Second, "simulated market tick interval")
	feed := flag.String("feed", "", "websocket URL of an external tick feed")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()
	return options{
		configPath: *cfgPath,
		symbols:    parseSymbols(*symbols),
		duration:   *duration,
		tick:       *tick,
		feedURL:    *feed,
		logLevel:   *level,
	}
}

func parseSymbols(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		s := strings.ToUpper(strings.TrimSpace(part))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.FromFile(path)
}

func formatQuote(p quote.PushQuote) string {
	return fmt.Sprintf("%s %s last=%s vol=%d", p.Timestamp.Format(time.RFC3339), p.Symbol, p.LastDone, p.Volume)
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if len(opts.symbols) == 0 {
		return fmt.Errorf("no symbols")
	}
	mp, shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTTL)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			observability.Log().Warn("telemetry shutdown", observability.Err(err))
		}
	}()

	lib, prev, err := native.Install(native.Options{TickInterval: opts.tick, FeedURL: opts.feedURL, MeterProvider: mp})
	if err != nil {
		return fmt.Errorf("native runtime: %w", err)
	}
	defer func() {
		ffi.Load(prev)
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := lib.Close(sctx); err != nil {
			observability.Log().Warn("native runtime close", observability.Err(err))
		}
	}()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer cfg.Free()

	connected := make(chan bridge.Result[*quote.Context, struct{}], 1)
	quote.New(cfg, func(r bridge.Result[*quote.Context, struct{}]) { connected <- r })
	var conn bridge.Result[*quote.Context, struct{}]
	select {
	case conn = <-connected:
	case <-ctx.Done():
		return nil
	}
	if err := conn.Err(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	qc := conn.Context
	defer qc.Release()
	observability.Log().Info("quote context connected",
		observability.F("member_id", qc.MemberID()),
		observability.F("quote_level", qc.QuoteLevel()),
	)

	lines := make(chan string, 64)
	qc.OnQuote(func(_ *quote.Context, p quote.PushQuote) {
		select {
		case lines <- formatQuote(p):
		default:
			observability.Log().Debug("quote dropped", observability.F("symbol", p.Symbol))
		}
	})
	defer qc.OnQuote(nil)

	subscribed := make(chan error, 1)
	qc.Subscribe(opts.symbols, types.SubFlagQuote, true, func(r bridge.Result[*quote.Context, struct{}]) { subscribed <- r.Err() })
	if err := <-subscribed; err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	observability.Log().Info("subscribed", observability.F("symbols", opts.symbols))

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	for {
		select {
		case line := <-lines:
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

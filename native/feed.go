package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/longport-go/internal/observability"
)

// feedFrame is one trade read from the market feed. Timestamp is in unix milliseconds;
// zero means now.
type feedFrame struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	Timestamp int64           `json:"timestamp"`
}

// feed replaces the random walk with trades read from a websocket. A frame is either one
// object or an array of them.
type feed struct {
	l         *Library
	url       string
	connected atomic.Bool
	frames    atomic.Int64
}

func newFeed(l *Library, url string) *feed {
	return &feed{l: l, url: url}
}

// run keeps the connection up, reconnecting with exponential backoff until ctx ends.
func (f *feed) run(ctx context.Context) {
	backoffCfg := backoff.NewExponentialBackOff()
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.Dial(ctx, f.url, nil)
		if err != nil {
			observability.Log().Warn("feed dial failed", observability.F("url", f.url), observability.Err(err))
			if !sleep(ctx, backoffCfg.NextBackOff()) {
				return
			}
			continue
		}
		backoffCfg.Reset()
		f.connected.Store(true)
		observability.Log().Info("feed connected", observability.F("url", f.url))

		err = f.readLoop(ctx, conn)
		f.connected.Store(false)
		if errors.Is(err, context.Canceled) {
			_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
			return
		}
		observability.Log().Warn("feed disconnected", observability.Err(err))
		if !sleep(ctx, backoffCfg.NextBackOff()) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (f *feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return context.Canceled
			}
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := f.handle(data); err != nil {
			observability.Log().Warn("feed frame rejected", observability.Err(err))
		}
	}
}

func (f *feed) handle(data []byte) error {
	var frames []feedFrame
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			return fmt.Errorf("decode frames: %w", err)
		}
	} else {
		var frame feedFrame
		if err := json.Unmarshal(trimmed, &frame); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		frames = append(frames, frame)
	}
	var problems []error
	for _, frame := range frames {
		at := f.l.opts.Clock()
		if frame.Timestamp > 0 {
			at = time.UnixMilli(frame.Timestamp)
		}
		t, err := f.l.market.apply(frame.Symbol, frame.Price, frame.Volume, at)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		f.frames.Add(1)
		if !f.l.closed.Load() {
			f.l.publish(t)
		}
	}
	return errors.Join(problems...)
}

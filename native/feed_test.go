package native

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

func TestFeedDrivesQuotePushes(t *testing.T) {
	send := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-send:
				if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
					return
				}
			}
		}
	}))
	defer srv.Close()

	l, closeLib := openLibrary(t, Options{FeedURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	defer closeLib()

	q := newQuote(t, l)
	defer l.QuoteContextRelease(q)
	prices := make(chan string, 4)
	l.QuoteContextSetOnQuote(q, func(_ ffi.QuoteContextPtr, ev *ffi.CPushQuote, _ ffi.Userdata) {
		prices <- ffi.GoString(ev.Symbol) + "@" + decString(l, ev.LastDone)
	}, 0, nil)
	require.Zero(t, subscribe(t, l, q, []string{"AAA.US"}, types.SubFlagQuote, false).code)
	require.Eventually(t, l.feed.connected.Load, 2*time.Second, 5*time.Millisecond)

	send <- `{"symbol":"AAA.US","price":"11.25","volume":100}`
	send <- `[{"symbol":"NOPE.US","price":"1","volume":1},{"symbol":"AAA.US","price":"11.30","volume":50,"timestamp":1710430200000}]`

	for _, want := range []string{"AAA.US@11.25", "AAA.US@11.30"} {
		select {
		case got := <-prices:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("no push for %s", want)
		}
	}
	require.Equal(t, int64(2), l.feed.frames.Load())
}

func TestFeedRejectsMalformedFrames(t *testing.T) {
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()

	f := newFeed(l, "ws://unused")
	require.Error(t, f.handle([]byte("{")))
	require.Error(t, f.handle([]byte(`{"symbol":"AAA.US","price":"-1","volume":10}`)))
	require.NoError(t, f.handle([]byte(`{"symbol":"700.HK","price":"321.0","volume":100}`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.run(ctx)
	require.False(t, f.connected.Load())
}

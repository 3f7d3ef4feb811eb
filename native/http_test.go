package native

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/longport-go/ffi"
)

func hexSHA1(b []byte) string {
	sum := sha1.Sum(b) // #nosec G401
	return hex.EncodeToString(sum[:])
}

func expectedSignature(r *http.Request, secret string, body []byte) string {
	canonical := r.Method + "|" + r.URL.EscapedPath() + "|" + r.URL.RawQuery + "|" +
		"authorization:" + r.Header.Get("Authorization") + "\n" +
		"x-api-key:" + r.Header.Get("X-Api-Key") + "\n" +
		"x-timestamp:" + r.Header.Get("X-Timestamp") + "\n" +
		"|authorization;x-api-key;x-timestamp|"
	if len(body) > 0 {
		canonical += hexSHA1(body)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("HMAC-SHA256|" + hexSHA1([]byte(canonical))))
	return "HMAC-SHA256 SignedHeaders=authorization;x-api-key;x-timestamp, Signature=" + hex.EncodeToString(mac.Sum(nil))
}

func newClient(l *Library, url string) ffi.HTTPClientPtr {
	return l.HTTPClientNew(ffi.CStringOf(url), ffi.CStringOf("app-key"), ffi.CStringOf("app-secret"), ffi.CStringOf("access-token"))
}

func doRequest(t *testing.T, l *Library, c ffi.HTTPClientPtr, method, path, body string) reply[string] {
	t.Helper()
	var b ffi.CString
	if body != "" {
		b = ffi.CStringOf(body)
	}
	headers, n := ffi.Array([]ffi.CHTTPHeader{{Name: ffi.CStringOf("X-Request-Tag"), Value: ffi.CStringOf("test")}})
	return await(t, l, func(cb ffi.AsyncCallback) {
		l.HTTPClientRequest(c, ffi.CStringOf(method), ffi.CStringOf(path), headers, n, b, cb, 0)
	}, func(res *ffi.AsyncResult) string {
		ptr := *(*ffi.HTTPResultPtr)(res.Data)
		return ffi.GoString(l.HTTPResultResponseBody(ptr))
	})
}

func TestHTTPRequestIsSigned(t *testing.T) {
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("X-Api-Signature") != expectedSignature(r, "app-secret", body) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401004,"message":"signature invalid"}`))
			return
		}
		require.Equal(t, "test", r.Header.Get("X-Request-Tag"))
		require.Equal(t, "openapi-sdk", r.Header.Get("User-Agent"))
		require.Equal(t, strconv.FormatInt(testClock().Unix(), 10), r.Header.Get("X-Timestamp"))
		_, _ = w.Write([]byte(`{"code":0,"message":"","data":{"echo":` + string(body) + `}}`))
	}))
	defer srv.Close()

	c := newClient(l, srv.URL)
	defer l.HTTPClientFree(c)

	r := doRequest(t, l, c, "post", "/v1/trade/order?symbol=AAA.US", `{"qty":1}`)
	require.Zero(t, r.code, r.message)
	require.JSONEq(t, `{"echo":{"qty":1}}`, r.value)

	r = doRequest(t, l, c, "GET", "/v1/asset/account", "")
	require.Zero(t, r.code, r.message)
	require.Eventually(t, func() bool { return l.Stats().HTTPResults == 0 }, time.Second, 5*time.Millisecond)
}

func TestHTTPRetriesRateLimited(t *testing.T) {
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":[1,2,3]}`))
	}))
	defer srv.Close()

	c := newClient(l, srv.URL)
	defer l.HTTPClientFree(c)

	start := time.Now()
	r := doRequest(t, l, c, "GET", "/v1/quote/watchlist", "")
	require.Zero(t, r.code, r.message)
	require.Equal(t, "[1,2,3]", r.value)
	require.Equal(t, int32(3), hits.Load())
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestHTTPReportsAPIErrors(t *testing.T) {
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/denied":
			w.Header().Set("x-trace-id", "trace-1")
			_, _ = w.Write([]byte(`{"code":401003,"message":"token expired"}`))
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		default:
			_, _ = w.Write([]byte("not json"))
		}
	}))
	defer srv.Close()

	c := newClient(l, srv.URL)
	defer l.HTTPClientFree(c)

	r := doRequest(t, l, c, "GET", "/denied", "")
	require.Equal(t, int64(401003), r.code)
	require.Equal(t, "token expired", r.message)

	r = doRequest(t, l, c, "GET", "/broken", "")
	require.Equal(t, int64(http.StatusBadGateway), r.code)
	require.Equal(t, "bad status: 502", r.message)

	r = doRequest(t, l, c, "GET", "/garbage", "")
	require.Equal(t, int64(http.StatusInternalServerError), r.code)

	r = doRequest(t, l, c, "TRACE", "/denied", "")
	require.Equal(t, int64(http.StatusBadRequest), r.code)
}

func TestConfigRefreshAccessToken(t *testing.T) {
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/token/refresh", r.URL.Path)
		require.Equal(t, "2024-04-01T00:00:00Z", r.URL.Query().Get("expired_at"))
		require.Equal(t, "access-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"code":0,"data":{"token":"fresh-token","expired_at":"2024-04-01T00:00:00Z"}}`))
	}))
	defer srv.Close()

	cfg := l.ConfigNew(&ffi.CConfigOptions{
		AppKey:      ffi.CStringOf("app-key"),
		AppSecret:   ffi.CStringOf("app-secret"),
		AccessToken: ffi.CStringOf("access-token"),
		HTTPURL:     ffi.CStringOf(srv.URL),
	})
	defer l.ConfigFree(cfg)

	expiry := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Unix()
	r := await(t, l, func(cb ffi.AsyncCallback) { l.ConfigRefreshAccessToken(cfg, expiry, cb, 0) }, func(res *ffi.AsyncResult) string {
		return ffi.GoString((ffi.CString)(res.Data))
	})
	require.Zero(t, r.code, r.message)
	require.Zero(t, r.ctx)
	require.Equal(t, "fresh-token", r.value)
	require.Equal(t, "fresh-token", l.config(cfg, "test").get().AccessToken)
}

func TestHTTPClientFromEnv(t *testing.T) {
	l, closeLib := openLibrary(t, Options{})
	defer closeLib()

	for _, prefix := range []string{"LONGPORT_", "LONGBRIDGE_"} {
		for _, name := range []string{"APP_KEY", "APP_SECRET", "ACCESS_TOKEN"} {
			t.Setenv(prefix+name, "")
		}
	}
	var errOut ffi.ErrorPtr
	require.Zero(t, l.HTTPClientFromEnv(&errOut))
	require.NotZero(t, errOut)
	require.Equal(t, int64(http.StatusBadRequest), l.ErrorCode(errOut))
	l.ErrorFree(errOut)

	t.Setenv("LONGPORT_APP_KEY", "k")
	t.Setenv("LONGPORT_APP_SECRET", "s")
	t.Setenv("LONGPORT_ACCESS_TOKEN", "a")
	c := l.HTTPClientFromEnv(&errOut)
	require.NotZero(t, c)
	require.Zero(t, errOut)
	l.HTTPClientFree(c)
}

package native

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- the OpenAPI signature scheme is defined over SHA-1 digests.
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/config"
	"github.com/coachpo/longport-go/internal/observability"
	"github.com/coachpo/longport-go/internal/pool"
)

const (
	userAgent           = "openapi-sdk"
	requestTimeout      = 30 * time.Second
	retryCount          = 5
	retryInitialDelay   = 100 * time.Millisecond
	retryFactor         = 2.0
	signedHeaders       = "authorization;x-api-key;x-timestamp"
	signatureAlgorithm  = "HMAC-SHA256"
	headerTraceID       = "x-trace-id"
	headerAPISignature  = "X-Api-Signature"
	headerAPIKey        = "X-Api-Key"
	headerTimestamp     = "X-Timestamp"
	headerAuthorization = "Authorization"
)

var errTooManyRequests = errs.FromNative("http", http.StatusTooManyRequests, "too many requests")

type header struct {
	name  string
	value string
}

type httpClient struct {
	settings config.Settings
	client   *http.Client
	clock    func() time.Time
}

type httpResult struct {
	body []byte
}

type openAPIResponse struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newHTTPClient(s config.Settings, clock func() time.Time) *httpClient {
	client := new(http.Client)
	client.Timeout = requestTimeout
	return &httpClient{settings: s, client: client, clock: clock}
}

// call performs a request and decodes the data field of the response into out.
func (c *httpClient) call(ctx context.Context, method, path string, headers []header, body []byte, out any) error {
	data, err := c.request(ctx, method, path, headers, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.New("http", errs.CodeSDK, errs.WithMessage("decode response data"), errs.WithCause(err))
	}
	return nil
}

// request sends a signed request. Rate-limited responses are retried with exponential
// backoff; every other failure is final.
func (c *httpClient) request(ctx context.Context, method, path string, headers []header, body []byte) (json.RawMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialDelay
	b.Multiplier = retryFactor
	b.RandomizationFactor = 0

	return backoff.Retry(ctx, func() (json.RawMessage, error) {
		data, err := c.send(ctx, method, path, headers, body)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, errTooManyRequests) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(retryCount+1))
}

func (c *httpClient) send(ctx context.Context, method, path string, headers []header, body []byte) (json.RawMessage, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, errs.New("http", errs.CodeInvalid, errs.WithMessage("invalid request method "+method), errs.WithNativeCode(http.StatusBadRequest))
	}

	target, err := url.Parse(strings.TrimRight(c.settings.HTTPURL, "/") + path)
	if err != nil {
		return nil, errs.New("http", errs.CodeInvalid, errs.WithMessage("invalid request url"), errs.WithCause(err), errs.WithNativeCode(http.StatusBadRequest))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, errs.New("http", errs.CodeInvalid, errs.WithMessage("create request"), errs.WithCause(err), errs.WithNativeCode(http.StatusBadRequest))
	}

	timestamp := strconv.FormatInt(c.clock().Unix(), 10)
	for _, h := range headers {
		req.Header.Set(h.name, h.value)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerAPIKey, c.settings.AppKey)
	req.Header.Set(headerAuthorization, c.settings.AccessToken)
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set(headerAPISignature, sign(method, target.EscapedPath(), target.RawQuery, c.settings, timestamp, body))

	observability.Log().Debug("http request", observability.F("method", method), observability.F("url", target.String()))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.New("http", errs.CodeNetwork, errs.WithMessage("request failed"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New("http", errs.CodeNetwork, errs.WithMessage("read response"), errs.WithCause(err))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errTooManyRequests
	}

	var envelope openAPIResponse
	if err := json.Unmarshal(text, &envelope); err != nil {
		if resp.StatusCode == http.StatusOK {
			return nil, errs.New("http", errs.CodeSDK, errs.WithMessage("deserialize response body"), errs.WithCause(err))
		}
		return nil, errs.FromNative("http", int64(resp.StatusCode), fmt.Sprintf("bad status: %d", resp.StatusCode))
	}
	if envelope.Code != 0 {
		return nil, errs.New("http", errs.CodeForNative(envelope.Code),
			errs.WithNativeCode(envelope.Code),
			errs.WithMessage(envelope.Message),
			errs.WithMetadata("trace_id", resp.Header.Get(headerTraceID)),
		)
	}
	return envelope.Data, nil
}

// sign computes the X-Api-Signature header value.
func sign(method, path, query string, s config.Settings, timestamp string, body []byte) string {
	signedValues := "authorization:" + s.AccessToken + "\n" +
		"x-api-key:" + s.AppKey + "\n" +
		"x-timestamp:" + timestamp + "\n"
	canonical := method + "|" + path + "|" + query + "|" + signedValues + "|" + signedHeaders + "|"
	if body != nil {
		canonical += sha1Hex(body)
	}
	toSign := signatureAlgorithm + "|" + sha1Hex([]byte(canonical))
	mac := hmac.New(sha256.New, []byte(s.AppSecret))
	_, _ = mac.Write([]byte(toSign))
	return signatureAlgorithm + " SignedHeaders=" + signedHeaders + ", Signature=" + hex.EncodeToString(mac.Sum(nil))
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// HTTPClientNew implements ffi.HTTPAPI.
func (l *Library) HTTPClientNew(httpURL, appKey, appSecret, accessToken ffi.CString) ffi.HTTPClientPtr {
	s := config.Default()
	if httpURL != nil {
		s.HTTPURL = ffi.GoString(httpURL)
	}
	s.AppKey = ffi.GoString(appKey)
	s.AppSecret = ffi.GoString(appSecret)
	s.AccessToken = ffi.GoString(accessToken)
	return ffi.HTTPClientPtr(l.clients.add(newHTTPClient(s, l.opts.Clock)))
}

// HTTPClientFromEnv implements ffi.HTTPAPI.
func (l *Library) HTTPClientFromEnv(errOut *ffi.ErrorPtr) ffi.HTTPClientPtr {
	s, err := config.FromEnv()
	if err != nil {
		l.setError(errOut, errs.New("http_client_from_env", errs.CodeInvalid, errs.WithMessage(err.Error()), errs.WithNativeCode(http.StatusBadRequest)))
		return 0
	}
	l.setError(errOut, nil)
	return ffi.HTTPClientPtr(l.clients.add(newHTTPClient(s, l.opts.Clock)))
}

func (l *Library) HTTPClientFree(c ffi.HTTPClientPtr) {
	if c == 0 {
		return
	}
	l.clients.remove(uintptr(c), "http_client_free")
}

// HTTPClientRequest copies every argument before returning. The payload is one HTTPResultPtr
// that stays valid until the callback returns.
func (l *Library) HTTPClientRequest(c ffi.HTTPClientPtr, method, path ffi.CString, headers *ffi.CHTTPHeader, numHeaders uintptr, body ffi.CString, cb ffi.AsyncCallback, ud ffi.Userdata) {
	client := l.clients.get(uintptr(c), "http_client_request")
	m := ffi.GoString(method)
	p := ffi.GoString(path)
	var hs []header
	for _, h := range ffi.Slice(headers, numHeaders) {
		hs = append(hs, header{name: ffi.GoString(h.Name), value: ffi.GoString(h.Value)})
	}
	var reqBody []byte
	if body != nil {
		reqBody = []byte(ffi.GoString(body))
	}
	l.executeAsync("http_client.request", 0, nil, cb, ud, func(ctx context.Context, a *pool.Arena) (payload, error) {
		data, err := client.request(ctx, m, p, hs, reqBody)
		if err != nil {
			return payload{}, err
		}
		res := &httpResult{body: append([]byte(data), 0)}
		ptr := ffi.HTTPResultPtr(l.results.add(res))
		a.OnReset(func() {
			r := l.results.remove(uintptr(ptr), "http_result_free")
			for i := 0; i < len(r.body)-1; i++ {
				r.body[i] = poisonByte
			}
		})
		return one(pool.Value(a, ptr)), nil
	})
}

// HTTPResultResponseBody returns the raw JSON of the response data, owned by the result.
func (l *Library) HTTPResultResponseBody(res ffi.HTTPResultPtr) ffi.CString {
	return &l.results.get(uintptr(res), "http_result_response_body").body[0]
}

// Package httpclient wraps the native signed OpenAPI HTTP client.
package httpclient

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/goccy/go-json"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

// Options are the arguments of New. A nil HTTPURL selects the default endpoint.
type Options struct {
	HTTPURL     *string
	AppKey      string
	AppSecret   string
	AccessToken string
}

// Header is one extra request header.
type Header struct {
	Name  string
	Value string
}

// Client owns one native HTTP client.
type Client struct {
	mu      sync.Mutex
	lib     ffi.Library
	ptr     ffi.HTTPClientPtr
	cleanup runtime.Cleanup
}

type clientRef struct {
	lib ffi.HTTPAPI
	ptr ffi.HTTPClientPtr
}

func freeClient(ref clientRef) { ref.lib.HTTPClientFree(ref.ptr) }

func wrap(lib ffi.Library, ptr ffi.HTTPClientPtr) *Client {
	c := &Client{lib: lib, ptr: ptr}
	c.cleanup = runtime.AddCleanup(c, freeClient, clientRef{lib: lib, ptr: ptr})
	return c
}

// New creates a client with explicit credentials.
func New(opts Options) *Client {
	lib := ffi.Lib()
	ptr := lib.HTTPClientNew(ffi.CStringOpt(opts.HTTPURL), ffi.CStringOf(opts.AppKey), ffi.CStringOf(opts.AppSecret), ffi.CStringOf(opts.AccessToken))
	return wrap(lib, ptr)
}

// FromEnv creates a client from the LONGPORT_* environment variables.
func FromEnv() (*Client, error) {
	lib := ffi.Lib()
	var errOut ffi.ErrorPtr
	ptr := lib.HTTPClientFromEnv(&errOut)
	status := bridge.Owned(lib, errOut)
	defer status.Free()
	if status.IsErr() {
		return nil, status.Err("httpclient.from_env")
	}
	if ptr == 0 {
		panic(errs.Invariant("httpclient.from_env", "null client without an error"))
	}
	return wrap(lib, ptr), nil
}

func (c *Client) native() ffi.HTTPClientPtr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ptr == 0 {
		panic(errs.Invariant("httpclient.request", "use of a freed client"))
	}
	return c.ptr
}

// Free releases the native client. Requests in flight complete normally.
func (c *Client) Free() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ptr == 0 {
		return
	}
	c.cleanup.Stop()
	c.lib.HTTPClientFree(c.ptr)
	c.ptr = 0
}

// Request sends a signed request. A nil body sends none. The callback receives the raw JSON
// of the response data field.
func (c *Client) Request(method, path string, headers []Header, body *string, cb func(bridge.Result[struct{}, string])) {
	cHeaders := make([]ffi.CHTTPHeader, len(headers))
	for i, h := range headers {
		cHeaders[i] = ffi.CHTTPHeader{Name: ffi.CStringOf(h.Name), Value: ffi.CStringOf(h.Value)}
	}
	hp, hn := ffi.Array(cHeaders)
	ptr := c.native()
	ud := bridge.Call[struct{}, string]("httpclient.request", c.lib, nil, c.responseBody, cb)
	c.lib.HTTPClientRequest(ptr, ffi.CStringOf(method), ffi.CStringOf(path), hp, hn, ffi.CStringOpt(body), bridge.Trampoline, ud)
	runtime.KeepAlive(c)
}

func (c *Client) responseBody(data unsafe.Pointer, _ uintptr) string {
	if data == nil {
		panic(errs.Invariant("httpclient.request", "null payload on success"))
	}
	return ffi.GoString(c.lib.HTTPResultResponseBody(*(*ffi.HTTPResultPtr)(data)))
}

// Decode is a callback adapter that unmarshals the response data into a T.
func Decode[T any](cb func(T, error)) func(bridge.Result[struct{}, string]) {
	return func(r bridge.Result[struct{}, string]) {
		var out T
		if err := r.Err(); err != nil {
			cb(out, err)
			return
		}
		if err := json.Unmarshal([]byte(r.Data), &out); err != nil {
			cb(out, errs.New(r.Op, errs.CodeSDK, errs.WithMessage("decode response"), errs.WithCause(err)))
			return
		}
		cb(out, nil)
	}
}

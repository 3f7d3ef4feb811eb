// Package config wraps the native SDK configuration. A Config is passed to quote.New and
// trade.New, which copy what they need, so it may be freed once the contexts exist.
package config

import (
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/coachpo/longport-go/bridge"
	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

// Options are the arguments of New. Nil fields take the SDK defaults.
type Options struct {
	AppKey      string
	AppSecret   string
	AccessToken string

	HTTPURL    *string
	QuoteWSURL *string
	TradeWSURL *string

	Language            *types.Language
	EnableOvernight     *bool
	PushCandlestickMode *types.PushCandlestickMode
}

// Config owns one native configuration value.
type Config struct {
	mu      sync.Mutex
	lib     ffi.ConfigAPI
	errAPI  ffi.ErrorAPI
	ptr     ffi.ConfigPtr
	cleanup runtime.Cleanup
}

type configRef struct {
	lib ffi.ConfigAPI
	ptr ffi.ConfigPtr
}

func freeConfig(ref configRef) { ref.lib.ConfigFree(ref.ptr) }

func wrap(lib ffi.Library, ptr ffi.ConfigPtr) *Config {
	c := &Config{lib: lib, errAPI: lib, ptr: ptr}
	c.cleanup = runtime.AddCleanup(c, freeConfig, configRef{lib: lib, ptr: ptr})
	return c
}

// New builds a config from explicit options.
func New(opts Options) *Config {
	lib := ffi.Lib()
	c := ffi.CConfigOptions{
		AppKey:              ffi.CStringOf(opts.AppKey),
		AppSecret:           ffi.CStringOf(opts.AppSecret),
		AccessToken:         ffi.CStringOf(opts.AccessToken),
		HTTPURL:             ffi.CStringOpt(opts.HTTPURL),
		QuoteWSURL:          ffi.CStringOpt(opts.QuoteWSURL),
		TradeWSURL:          ffi.CStringOpt(opts.TradeWSURL),
		Language:            bridge.Ref(opts.Language),
		EnableOvernight:     bridge.Ref(opts.EnableOvernight),
		PushCandlestickMode: bridge.Ref(opts.PushCandlestickMode),
	}
	return wrap(lib, lib.ConfigNew(&c))
}

// FromEnv reads LONGPORT_APP_KEY, LONGPORT_APP_SECRET, LONGPORT_ACCESS_TOKEN and the optional
// endpoint variables, after loading a .env file when one is present.
func FromEnv() (*Config, error) {
	lib := ffi.Lib()
	var errOut ffi.ErrorPtr
	ptr := lib.ConfigFromEnv(&errOut)
	return fromFactory(lib, "config.from_env", ptr, errOut)
}

// FromFile reads YAML settings from path.
func FromFile(path string) (*Config, error) {
	lib := ffi.Lib()
	var errOut ffi.ErrorPtr
	ptr := lib.ConfigFromFile(ffi.CStringOf(path), &errOut)
	return fromFactory(lib, "config.from_file", ptr, errOut)
}

func fromFactory(lib ffi.Library, op string, ptr ffi.ConfigPtr, errOut ffi.ErrorPtr) (*Config, error) {
	status := bridge.Owned(lib, errOut)
	defer status.Free()
	if status.IsErr() {
		return nil, status.Err(op)
	}
	if ptr == 0 {
		panic(errs.Invariant(op, "null config without an error"))
	}
	return wrap(lib, ptr), nil
}

// Ptr returns the native pointer. It stays valid until Free.
func (c *Config) Ptr() ffi.ConfigPtr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ptr == 0 {
		panic(errs.Invariant("config.ptr", "use of a freed config"))
	}
	return c.ptr
}

// Free releases the native config now. It is idempotent.
func (c *Config) Free() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ptr == 0 {
		return
	}
	c.cleanup.Stop()
	c.lib.ConfigFree(c.ptr)
	c.ptr = 0
}

// RefreshAccessToken obtains a token valid until expiredAt and stores it in the config. The
// callback receives the new token.
func (c *Config) RefreshAccessToken(expiredAt time.Time, cb func(bridge.Result[struct{}, string])) {
	ptr := c.Ptr()
	ud := bridge.Call[struct{}, string]("config.refresh_access_token", c.errAPI, nil, token, cb)
	c.lib.ConfigRefreshAccessToken(ptr, expiredAt.Unix(), bridge.Trampoline, ud)
	runtime.KeepAlive(c)
}

func token(data unsafe.Pointer, _ uintptr) string {
	return ffi.GoString((ffi.CString)(data))
}

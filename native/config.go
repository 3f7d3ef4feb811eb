package native

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/config"
	"github.com/coachpo/longport-go/internal/pool"
)

type configValue struct {
	mu       sync.Mutex
	settings config.Settings
}

func (c *configValue) get() config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (l *Library) setError(errOut *ffi.ErrorPtr, err error) {
	if errOut == nil {
		return
	}
	if err == nil {
		*errOut = 0
		return
	}
	*errOut = l.newError(err)
}

// ConfigNew starts from the default endpoints and applies every non-null option.
func (l *Library) ConfigNew(opts *ffi.CConfigOptions) ffi.ConfigPtr {
	s := config.Default()
	if opts != nil {
		s.AppKey = ffi.GoString(opts.AppKey)
		s.AppSecret = ffi.GoString(opts.AppSecret)
		s.AccessToken = ffi.GoString(opts.AccessToken)
		if opts.HTTPURL != nil {
			s.HTTPURL = ffi.GoString(opts.HTTPURL)
		}
		if opts.QuoteWSURL != nil {
			s.QuoteWSURL = ffi.GoString(opts.QuoteWSURL)
		}
		if opts.TradeWSURL != nil {
			s.TradeWSURL = ffi.GoString(opts.TradeWSURL)
		}
		if opts.Language != nil {
			s.Language = *opts.Language
			s.LanguageName = s.Language.String()
		}
		if opts.EnableOvernight != nil {
			s.EnableOvernight = *opts.EnableOvernight
		}
		if opts.PushCandlestickMode != nil {
			s.PushCandlestickMode = *opts.PushCandlestickMode
		}
	}
	return ffi.ConfigPtr(l.configs.add(&configValue{settings: s}))
}

// ConfigFromEnv reads the LONGPORT_* variables. On failure it returns null and an owned
// error through errOut.
func (l *Library) ConfigFromEnv(errOut *ffi.ErrorPtr) ffi.ConfigPtr {
	s, err := config.FromEnv()
	if err != nil {
		l.setError(errOut, errs.New("config_from_env", errs.CodeInvalid, errs.WithMessage(err.Error()), errs.WithNativeCode(http.StatusBadRequest)))
		return 0
	}
	l.setError(errOut, nil)
	return ffi.ConfigPtr(l.configs.add(&configValue{settings: s}))
}

// ConfigFromFile reads YAML settings.
func (l *Library) ConfigFromFile(path ffi.CString, errOut *ffi.ErrorPtr) ffi.ConfigPtr {
	s, err := config.FromFile(ffi.GoString(path))
	if err != nil {
		l.setError(errOut, errs.New("config_from_file", errs.CodeInvalid, errs.WithMessage(err.Error()), errs.WithNativeCode(http.StatusBadRequest)))
		return 0
	}
	l.setError(errOut, nil)
	return ffi.ConfigPtr(l.configs.add(&configValue{settings: s}))
}

func (l *Library) ConfigFree(cfg ffi.ConfigPtr) {
	if cfg == 0 {
		return
	}
	l.configs.remove(uintptr(cfg), "config_free")
}

func (l *Library) config(cfg ffi.ConfigPtr, op string) *configValue {
	return l.configs.get(uintptr(cfg), op)
}

// ConfigRefreshAccessToken asks the OpenAPI for a token valid until expiredAt (unix seconds)
// and stores it in the config. The payload is the new token as a CString.
func (l *Library) ConfigRefreshAccessToken(cfg ffi.ConfigPtr, expiredAt int64, cb ffi.AsyncCallback, ud ffi.Userdata) {
	c := l.config(cfg, "config_refresh_access_token")
	l.executeAsync("config.refresh_access_token", 0, nil, cb, ud, func(ctx context.Context, a *pool.Arena) (payload, error) {
		client := newHTTPClient(c.get(), l.opts.Clock)
		query := url.Values{}
		query.Set("expired_at", time.Unix(expiredAt, 0).UTC().Format(time.RFC3339))
		var resp struct {
			Token     string `json:"token"`
			ExpiredAt string `json:"expired_at"`
		}
		if err := client.call(ctx, http.MethodGet, "/v1/token/refresh?"+query.Encode(), nil, nil, &resp); err != nil {
			return payload{}, err
		}
		c.mu.Lock()
		c.settings.AccessToken = resp.Token
		c.mu.Unlock()
		return payload{data: pointerOf(a.String(resp.Token)), length: 0}, nil
	})
}

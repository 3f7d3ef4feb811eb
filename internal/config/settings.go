// Package config loads SDK settings from defaults, the environment, .env files and YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/longport-go/types"
)

const (
	// DefaultHTTPURL is the OpenAPI endpoint.
	DefaultHTTPURL = "https://openapi.longportapp.com"
	// DefaultQuoteWSURL is the quote websocket endpoint.
	DefaultQuoteWSURL = "wss://openapi-quote.longportapp.com/v2"
	// DefaultTradeWSURL is the trade websocket endpoint.
	DefaultTradeWSURL = "wss://openapi-trade.longportapp.com/v2"
)

// envPrefixes are consulted in order; the first non-empty value wins.
var envPrefixes = []string{"LONGPORT_", "LONGBRIDGE_"}

// ErrMissingCredentials is returned when the key, secret or token is absent.
var ErrMissingCredentials = errors.New("config: app key, app secret and access token are required")

// Settings is the resolved SDK configuration.
type Settings struct {
	AppKey              string                    `yaml:"appKey"`
	AppSecret           string                    `yaml:"appSecret"`
	AccessToken         string                    `yaml:"accessToken"`
	HTTPURL             string                    `yaml:"httpURL"`
	QuoteWSURL          string                    `yaml:"quoteWSURL"`
	TradeWSURL          string                    `yaml:"tradeWSURL"`
	Language            types.Language            `yaml:"-"`
	LanguageName        string                    `yaml:"language"`
	EnableOvernight     bool                      `yaml:"enableOvernight"`
	PushCandlestickMode types.PushCandlestickMode `yaml:"-"`
	PushCandlestickName string                    `yaml:"pushCandlestickMode"`
}

// Default returns settings pointing at the production endpoints without credentials.
func Default() Settings {
	return Settings{
		HTTPURL:             DefaultHTTPURL,
		QuoteWSURL:          DefaultQuoteWSURL,
		TradeWSURL:          DefaultTradeWSURL,
		Language:            types.LanguageEN,
		LanguageName:        types.LanguageEN.String(),
		PushCandlestickMode: types.PushCandlestickRealtime,
		PushCandlestickName: "realtime",
	}
}

// FromEnv loads `.env` from the working directory (without overriding variables that are
// already set), then reads LONGPORT_* variables, falling back to LONGBRIDGE_*.
func FromEnv() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	cfg.AppKey = lookup("APP_KEY")
	cfg.AppSecret = lookup("APP_SECRET")
	cfg.AccessToken = lookup("ACCESS_TOKEN")
	if v := lookup("HTTP_URL"); v != "" {
		cfg.HTTPURL = v
	}
	if v := lookup("QUOTE_WS_URL"); v != "" {
		cfg.QuoteWSURL = v
	}
	if v := lookup("TRADE_WS_URL"); v != "" {
		cfg.TradeWSURL = v
	}
	if v := lookup("LANGUAGE"); v != "" {
		cfg.LanguageName = v
	}
	if v := lookup("ENABLE_OVERNIGHT"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, fmt.Errorf("ENABLE_OVERNIGHT: %w", err)
		}
		cfg.EnableOvernight = enabled
	}
	if v := lookup("PUSH_CANDLESTICK_MODE"); v != "" {
		cfg.PushCandlestickName = v
	}
	if err := cfg.normalise(); err != nil {
		return Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// FromFile reads YAML settings. Missing fields keep their defaults.
func FromFile(path string) (Settings, error) {
	reader, closer, err := openConfigFile(path)
	if err != nil {
		return Settings{}, err
	}
	defer closer()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return Settings{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate checks that credentials are present and endpoints are set.
func (s Settings) Validate() error {
	if s.AppKey == "" || s.AppSecret == "" || s.AccessToken == "" {
		return ErrMissingCredentials
	}
	if s.HTTPURL == "" {
		return fmt.Errorf("config: http url required")
	}
	return nil
}

func (s *Settings) normalise() error {
	s.AppKey = strings.TrimSpace(s.AppKey)
	s.AppSecret = strings.TrimSpace(s.AppSecret)
	s.AccessToken = strings.TrimSpace(s.AccessToken)
	s.HTTPURL = strings.TrimRight(strings.TrimSpace(s.HTTPURL), "/")
	s.QuoteWSURL = strings.TrimSpace(s.QuoteWSURL)
	s.TradeWSURL = strings.TrimSpace(s.TradeWSURL)

	lang, err := types.ParseLanguage(s.LanguageName)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	s.Language = lang
	s.LanguageName = lang.String()

	switch strings.ToLower(strings.TrimSpace(s.PushCandlestickName)) {
	case "", "realtime":
		s.PushCandlestickMode = types.PushCandlestickRealtime
		s.PushCandlestickName = "realtime"
	case "confirmed":
		s.PushCandlestickMode = types.PushCandlestickConfirmed
		s.PushCandlestickName = "confirmed"
	default:
		return fmt.Errorf("config: unknown push candlestick mode %q", s.PushCandlestickName)
	}
	return nil
}

func lookup(name string) string {
	for _, prefix := range envPrefixes {
		if v := strings.TrimSpace(os.Getenv(prefix + name)); v != "" {
			return v
		}
	}
	return ""
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := filepath.Clean(strings.TrimSpace(path))

	file, err := os.Open(candidate) // #nosec G304 -- path is caller controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

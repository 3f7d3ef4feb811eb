package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	for _, prefix := range []string{"LONGPORT_", "LONGBRIDGE_"} {
		for _, name := range []string{"APP_KEY", "APP_SECRET", "ACCESS_TOKEN", "HTTP_URL"} {
			t.Setenv(prefix+name, "")
		}
	}
	t.Setenv("LONGPORT_APP_KEY", "app-key")
	t.Setenv("LONGPORT_APP_SECRET", "app-secret")
	t.Setenv("LONGPORT_ACCESS_TOKEN", "access-token")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func TestParseSymbols(t *testing.T) {
	require.Equal(t, []string{"AAA.US", "700.HK"}, parseSymbols(" aaa.us, 700.HK,,AAA.US "))
	require.Nil(t, parseSymbols(" , "))
}

func TestRunStreamsQuotes(t *testing.T) {
	setCredentials(t)
	var out bytes.Buffer
	err := run(context.Background(), options{
		symbols:  []string{"AAA.US"},
		duration: 300 * time.Millisecond,
		tick:     20 * time.Millisecond,
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	require.Contains(t, lines[0], "AAA.US last=")
}

func TestRunFromFile(t *testing.T) {
	setCredentials(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("appKey: k\nappSecret: s\naccessToken: t\n"), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), options{configPath: path, symbols: []string{"700.HK"}, duration: 100 * time.Millisecond, tick: 20 * time.Millisecond}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "700.HK")
}

func TestRunReportsUnknownSymbol(t *testing.T) {
	setCredentials(t)
	err := run(context.Background(), options{symbols: []string{"NOPE.US"}, duration: time.Second}, &bytes.Buffer{})
	require.ErrorContains(t, err, "subscribe")
}

func TestRunWithoutCredentials(t *testing.T) {
	setCredentials(t)
	t.Setenv("LONGPORT_APP_KEY", "")
	err := run(context.Background(), options{symbols: []string{"AAA.US"}}, &bytes.Buffer{})
	require.ErrorContains(t, err, "load config")
}

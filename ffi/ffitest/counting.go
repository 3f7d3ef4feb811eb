// Package ffitest provides a native layer for binding tests: the in-process runtime wrapped
// with counters on every ownership-relevant entry point.
package ffitest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/native"
)

// Counts is a snapshot of the ownership calls seen so far.
type Counts struct {
	Created     int
	Retains     int
	Releases    int
	Callbacks   int
	ErrorFrees  int
	DecimalNews int
	DecimalFree int
}

// Counting implements ffi.Library by delegating to a native runtime.
type Counting struct {
	*native.Library

	mu        sync.Mutex
	counts    Counts
	perHandle map[uintptr]int
}

// Install opens a runtime, loads the counting wrapper as the process-wide library and
// restores the previous one when the test ends.
func Install(t testing.TB, opts native.Options) *Counting {
	t.Helper()
	l, err := native.Open(opts)
	require.NoError(t, err)
	c := &Counting{Library: l, perHandle: make(map[uintptr]int)}
	prev := ffi.Load(c)
	t.Cleanup(func() {
		ffi.Load(prev)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, l.Close(ctx))
	})
	return c
}

// Counts returns a snapshot.
func (c *Counting) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Balance is the number of references the binding holds on ptr: one transient reference
// per construction, plus retains, minus releases.
func (c *Counting) Balance(ptr uintptr) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perHandle[ptr]
}

func (c *Counting) note(fn func(*Counts)) {
	c.mu.Lock()
	fn(&c.counts)
	c.mu.Unlock()
}

func (c *Counting) adjust(ptr uintptr, delta int) {
	c.mu.Lock()
	c.perHandle[ptr] += delta
	if delta > 0 {
		c.counts.Retains++
	} else {
		c.counts.Releases++
	}
	c.mu.Unlock()
}

// track counts callback invocations and records constructed contexts.
func (c *Counting) track(cb ffi.AsyncCallback, construct bool) ffi.AsyncCallback {
	return func(res *ffi.AsyncResult) {
		c.mu.Lock()
		c.counts.Callbacks++
		if construct && res.Error == 0 && res.Ctx != 0 {
			c.counts.Created++
			c.perHandle[res.Ctx]++
		}
		c.mu.Unlock()
		cb(res)
	}
}

func (c *Counting) QuoteContextNew(cfg ffi.ConfigPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	c.Library.QuoteContextNew(cfg, c.track(cb, true), ud)
}

func (c *Counting) TradeContextNew(cfg ffi.ConfigPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	c.Library.TradeContextNew(cfg, c.track(cb, true), ud)
}

func (c *Counting) QuoteContextRetain(ctx ffi.QuoteContextPtr) {
	c.Library.QuoteContextRetain(ctx)
	c.adjust(uintptr(ctx), 1)
}

func (c *Counting) QuoteContextRelease(ctx ffi.QuoteContextPtr) {
	c.adjust(uintptr(ctx), -1)
	c.Library.QuoteContextRelease(ctx)
}

func (c *Counting) TradeContextRetain(ctx ffi.TradeContextPtr) {
	c.Library.TradeContextRetain(ctx)
	c.adjust(uintptr(ctx), 1)
}

func (c *Counting) TradeContextRelease(ctx ffi.TradeContextPtr) {
	c.adjust(uintptr(ctx), -1)
	c.Library.TradeContextRelease(ctx)
}

func (c *Counting) ErrorFree(err ffi.ErrorPtr) {
	c.note(func(n *Counts) { n.ErrorFrees++ })
	c.Library.ErrorFree(err)
}

func (c *Counting) DecimalClone(d ffi.DecimalPtr) ffi.DecimalPtr {
	c.note(func(n *Counts) { n.DecimalNews++ })
	return c.Library.DecimalClone(d)
}

func (c *Counting) DecimalFree(d ffi.DecimalPtr) {
	if d != 0 {
		c.note(func(n *Counts) { n.DecimalFree++ })
	}
	c.Library.DecimalFree(d)
}

// QuoteContextSubscriptions is representative of the ordinary calls: the callback count
// covers it so tests can assert exactly-once delivery.
func (c *Counting) QuoteContextSubscriptions(ctx ffi.QuoteContextPtr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	c.Library.QuoteContextSubscriptions(ctx, c.track(cb, false), ud)
}

func (c *Counting) QuoteContextQuote(ctx ffi.QuoteContextPtr, symbols *ffi.CString, n uintptr, cb ffi.AsyncCallback, ud ffi.Userdata) {
	c.Library.QuoteContextQuote(ctx, symbols, n, c.track(cb, false), ud)
}

func (c *Counting) TradeContextSubmitOrder(ctx ffi.TradeContextPtr, opts *ffi.CSubmitOrderOptions, cb ffi.AsyncCallback, ud ffi.Userdata) {
	c.Library.TradeContextSubmitOrder(ctx, opts, c.track(cb, false), ud)
}

var _ ffi.Library = (*Counting)(nil)

package bridge

import (
	"errors"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

type fakeError struct {
	code    int64
	message []byte
}

type fakeErrors struct {
	mu    sync.Mutex
	next  ffi.ErrorPtr
	live  map[ffi.ErrorPtr]fakeError
	freed map[ffi.ErrorPtr]int
}

func newFakeErrors() *fakeErrors {
	return &fakeErrors{live: map[ffi.ErrorPtr]fakeError{}, freed: map[ffi.ErrorPtr]int{}}
}

func (f *fakeErrors) add(code int64, msg string) ffi.ErrorPtr {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.live[f.next] = fakeError{code: code, message: append([]byte(msg), 0)}
	return f.next
}

func (f *fakeErrors) ErrorCode(p ffi.ErrorPtr) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[p].code
}

func (f *fakeErrors) ErrorMessage(p ffi.ErrorPtr) ffi.CString {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &f.live[p].message[0]
}

func (f *fakeErrors) ErrorFree(p ffi.ErrorPtr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freed[p]++
	delete(f.live, p)
}

func (f *fakeErrors) freeCount(p ffi.ErrorPtr) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freed[p]
}

type ctxPtr uintptr

type counter struct {
	mu       sync.Mutex
	counts   map[ctxPtr]int
	retains  int
	releases int
}

func newCounter() *counter { return &counter{counts: map[ctxPtr]int{}} }

func (c *counter) ops() *Ops[ctxPtr] {
	return &Ops[ctxPtr]{
		Kind: "test",
		Retain: func(p ctxPtr) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.counts[p] <= 0 {
				panic("retain on freed handle")
			}
			c.counts[p]++
			c.retains++
		},
		Release: func(p ctxPtr) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.counts[p] <= 0 {
				panic("release on freed handle")
			}
			c.counts[p]--
			c.releases++
		},
		RefCount: func(p ctxPtr) uintptr {
			c.mu.Lock()
			defer c.mu.Unlock()
			return uintptr(c.counts[p])
		},
	}
}

func (c *counter) count(p ctxPtr) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[p]
}

type cItem struct {
	Name  ffi.CString
	Qty   int64
	Limit *int64
}

type item struct {
	Name  string
	Qty   int64
	Limit *int64
}

func convertItem(c *cItem) item {
	return item{Name: String(c.Name), Qty: c.Qty, Limit: Opt(c.Limit)}
}

func TestRegistryTokens(t *testing.T) {
	r := NewRegistry()
	a := r.Box("a")
	b := r.Box("b")
	require.NotZero(t, a)
	require.NotEqual(t, a, b)

	v, ok := r.Load(a)
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 2, r.Len())

	v, ok = r.Take(a)
	require.True(t, ok)
	require.Equal(t, "a", v)
	_, ok = r.Take(a)
	require.False(t, ok)

	require.True(t, r.Free(b))
	require.False(t, r.Free(b))
	require.Equal(t, Stats{Created: 2, Freed: 2}, r.Stats())
	require.Zero(t, r.Stats().Live())
}

func TestTrampolineDeliversOnceOnSuccess(t *testing.T) {
	fe := newFakeErrors()
	before := Default().Stats()

	calls := 0
	var got Result[struct{}, []item]
	ud := Call("test.items", fe, nil, Array(convertItem), func(r Result[struct{}, []item]) {
		calls++
		got = r
	})

	limit := int64(9)
	name := []byte("AAA.US\x00")
	payload := []cItem{{Name: &name[0], Qty: 100, Limit: &limit}, {Name: nil, Qty: 1}}
	Trampoline(&ffi.AsyncResult{Data: unsafe.Pointer(&payload[0]), Length: 2, Userdata: ud})

	// the native side reuses its buffers as soon as the trampoline returns
	for i := range name {
		name[i] = 0xDD
	}
	limit = -1
	payload[0] = cItem{}

	require.Equal(t, 1, calls)
	require.True(t, got.IsOK())
	require.NoError(t, got.Err())
	require.Len(t, got.Data, 2)
	require.Equal(t, "AAA.US", got.Data[0].Name)
	require.Equal(t, int64(100), got.Data[0].Qty)
	require.Equal(t, int64(9), *got.Data[0].Limit)
	require.Equal(t, "", got.Data[1].Name)
	require.Nil(t, got.Data[1].Limit)

	after := Default().Stats()
	require.Equal(t, int64(1), after.Created-before.Created)
	require.Equal(t, int64(1), after.Freed-before.Freed)

	require.Panics(t, func() { Trampoline(&ffi.AsyncResult{Userdata: ud}) })
}

func TestTrampolineDeliversOnceOnFailure(t *testing.T) {
	fe := newFakeErrors()
	errPtr := fe.add(401, "unauthorized")
	converted := 0
	calls := 0
	var got Result[struct{}, item]
	ud := Call("trade.submit_order", fe, nil, Single(func(c *cItem) item {
		converted++
		return convertItem(c)
	}), func(r Result[struct{}, item]) {
		calls++
		got = r
	})

	Trampoline(&ffi.AsyncResult{Error: errPtr, Userdata: ud})
	fe.ErrorFree(errPtr)

	require.Equal(t, 1, calls)
	require.Zero(t, converted)
	require.True(t, got.IsErr())
	require.Equal(t, int64(401), got.Status.Code())
	require.Equal(t, "unauthorized", got.Status.Message())
	require.Equal(t, OwnershipBorrowed, got.Status.Ownership())

	var e *errs.E
	require.True(t, errors.As(got.Err(), &e))
	require.Equal(t, errs.CodeAuth, e.Code)
	require.Equal(t, int64(401), e.NativeCode)
	require.Equal(t, "trade.submit_order", e.Op)

	got.Status.Free()
	require.Equal(t, 1, fe.freeCount(errPtr))
}

func TestTrampolineEmptyArray(t *testing.T) {
	var got []item
	ud := Call("test.empty", newFakeErrors(), nil, Array(convertItem), func(r Result[struct{}, []item]) { got = r.Data })
	Trampoline(&ffi.AsyncResult{Data: unsafe.Pointer(new(byte)), Length: 0, Userdata: ud})
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestTrampolineUnknownToken(t *testing.T) {
	require.Panics(t, func() { Trampoline(&ffi.AsyncResult{Userdata: ffi.Userdata(1 << 62)}) })
	require.Panics(t, func() { Trampoline(nil) })
}

func TestTrampolineBorrowsContext(t *testing.T) {
	c := newCounter()
	ops := c.ops()
	const ptr ctxPtr = 7
	c.counts[ptr] = 1

	var inside int
	var kept *Handle[ctxPtr]
	adopt := Borrow(ops, func(h *Handle[ctxPtr]) *Handle[ctxPtr] { return h })
	ud := Call[*Handle[ctxPtr], struct{}]("test.ctx", newFakeErrors(), adopt, nil, func(r Result[*Handle[ctxPtr], struct{}]) {
		inside = c.count(ptr)
		kept = r.Context.Clone()
	})
	Trampoline(&ffi.AsyncResult{Ctx: uintptr(ptr), Userdata: ud})

	require.Equal(t, 2, inside)
	require.Equal(t, 2, c.count(ptr))
	kept.Release()
	require.Equal(t, 1, c.count(ptr))
}

func TestHandleRefcountSymmetry(t *testing.T) {
	c := newCounter()
	ops := c.ops()
	const ptr ctxPtr = 1
	// native construction delivers one transient reference
	c.counts[ptr] = 1

	h := AdoptNew(ops, ptr)
	require.Equal(t, 1, c.count(ptr))
	require.Equal(t, uintptr(1), h.RefCount())
	require.Equal(t, 1, c.retains)
	require.Equal(t, 1, c.releases)

	clone := h.Clone()
	require.Equal(t, 2, c.count(ptr))

	moved := clone.Take()
	require.True(t, clone.IsNull())
	require.Equal(t, ptr, moved.Ptr())
	require.Equal(t, 2, c.count(ptr))

	clone.Release()
	moved.Release()
	moved.Release()
	require.Equal(t, 1, c.count(ptr))

	h.Release()
	require.Zero(t, c.count(ptr))
	require.Equal(t, c.retains+1, c.releases)
	require.Zero(t, h.RefCount())
}

func TestNullHandleIsInert(t *testing.T) {
	var h Handle[ctxPtr]
	require.True(t, h.IsNull())
	h.Release()
	require.True(t, h.Clone().IsNull())
	require.True(t, h.Take().IsNull())
	var nilHandle *Handle[ctxPtr]
	nilHandle.Release()
	require.True(t, nilHandle.IsNull())
}

func TestStatusNull(t *testing.T) {
	s := Borrowed(newFakeErrors(), 0)
	require.True(t, s.IsOK())
	require.Zero(t, s.Code())
	require.Equal(t, "no error", s.Message())
	require.NoError(t, s.Err("op"))

	var nilStatus *Status
	require.True(t, nilStatus.IsOK())
	require.Equal(t, "no error", nilStatus.Message())
	require.True(t, OK().IsOK())
}

func TestOwnedStatusFreesOnce(t *testing.T) {
	fe := newFakeErrors()
	p := fe.add(404, "not found")
	s := Owned(fe, p)
	require.True(t, s.IsErr())
	require.Equal(t, int64(404), s.Code())
	require.Equal(t, "not found", s.Message())
	require.True(t, errs.HasCode(s.Err("config.from_env"), errs.CodeNotFound))

	s.Free()
	s.Free()
	require.Equal(t, 1, fe.freeCount(p))
	require.True(t, s.IsErr())
	require.Equal(t, int64(404), s.Code())
	require.Equal(t, "not found", s.Message())
	require.True(t, errs.HasCode(s.Err("config.from_env"), errs.CodeNotFound))
}

func TestStatusTakeMovesOwnership(t *testing.T) {
	fe := newFakeErrors()
	p := fe.add(500, "boom")
	s := Owned(fe, p)
	moved := s.Take()

	require.True(t, s.IsOK())
	require.Equal(t, "no error", s.Message())
	s.Free()
	require.Zero(t, fe.freeCount(p))

	require.Equal(t, int64(500), moved.Code())
	require.Equal(t, OwnershipOwned, moved.Ownership())
	moved.Free()
	require.Equal(t, 1, fe.freeCount(p))
}

func TestBorrowedStatusNeverFrees(t *testing.T) {
	fe := newFakeErrors()
	p := fe.add(429, "slow down")
	s := Borrowed(fe, p)
	s.Free()
	require.Zero(t, fe.freeCount(p))
	require.Equal(t, int64(429), s.Code())
	require.True(t, errs.HasCode(s.Err("op"), errs.CodeRateLimited))
}

type cEvent struct{ Seq int64 }

func TestPushDeliversWithoutFreeing(t *testing.T) {
	var seen []int64
	ud := Push(func(_ ctxPtr, ev *cEvent) { seen = append(seen, ev.Seq) })
	for i := int64(1); i <= 3; i++ {
		Deliver(ctxPtr(1), &cEvent{Seq: i}, ud)
	}
	require.Equal(t, []int64{1, 2, 3}, seen)

	FreeUserdata(ud)
	require.Panics(t, func() { Deliver(ctxPtr(1), &cEvent{Seq: 4}, ud) })
	require.Panics(t, func() { FreeUserdata(ud) })
	FreeUserdata(0)
}

func TestDeliverWrongEventType(t *testing.T) {
	ud := Push(func(ctxPtr, *cEvent) {})
	defer FreeUserdata(ud)
	require.Panics(t, func() { Deliver(ctxPtr(1), &cItem{}, ud) })
}

func TestValueBoxes(t *testing.T) {
	require.Nil(t, Value(0))
	ud := BoxValue(map[string]int{"a": 1})
	require.Equal(t, map[string]int{"a": 1}, Value(ud))
	FreeUserdata(ud)
	require.Panics(t, func() { Value(ud) })
}

func TestOptionalRoundTrip(t *testing.T) {
	require.Nil(t, Opt[int64](nil))
	require.Nil(t, Ref[bool](nil))
	require.Nil(t, OptString(nil))
	require.Nil(t, Date(nil))
	require.Equal(t, int32(5), OptOr(nil, int32(5)))

	v := int64(42)
	out := Opt(&v)
	require.Equal(t, int64(42), *out)
	v = 0
	require.Equal(t, int64(42), *out)

	side := types.OrderSideBuy
	require.Equal(t, types.OrderSideBuy, *Ref(&side))

	d := types.Date{Year: 2024, Month: 1, Day: 2}
	require.Equal(t, d, *Date(&d))

	s := "remark"
	require.Equal(t, "remark", *OptString(ffi.CStringOpt(&s)))
	require.Equal(t, "", String(nil))

	p, n := ffi.CStrings([]string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, Strings(p, n))
	require.Empty(t, Strings(nil, 0))

	vals := []int32{3, 4}
	vp, vn := ffi.Array(vals)
	copied := Values(vp, vn)
	vals[0] = 0
	require.Equal(t, []int32{3, 4}, copied)
}

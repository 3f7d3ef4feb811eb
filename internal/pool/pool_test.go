package pool

import (
	"context"
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  *byte
	Count int64
	Price uintptr
	Flag  bool
	Opt   *int64
}

func cstring(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

func TestArenaManagerRejectsBadCapacity(t *testing.T) {
	_, err := NewArenaManager(0)
	require.Error(t, err)
	_, err = NewArenaManager(-3)
	require.Error(t, err)
}

func newManager(t *testing.T, capacity int) *ArenaManager {
	t.Helper()
	am, err := NewArenaManager(capacity)
	require.NoError(t, err)
	return am
}

func TestArenaPoisonedOnPut(t *testing.T) {
	pm := newManager(t, 1)

	arena, release, err := pm.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	freed := 0
	arena.OnReset(func() { freed++ })
	name := arena.String("AAA.US")
	items := Alloc[payload](arena, 2)
	items[0] = payload{Name: name, Count: 100, Price: 7, Opt: Value(arena, int64(3))}
	require.Equal(t, "AAA.US", cstring(items[0].Name))
	require.Equal(t, int64(1), pm.Active())

	release()

	require.Equal(t, 1, freed)
	require.Equal(t, int64(0), pm.Active())
	require.NotEqual(t, "AAA.US", cstring(name))
	require.Len(t, cstring(name), len("AAA.US"))
	require.Nil(t, items[0].Name)
	require.Nil(t, items[0].Opt)
	require.Equal(t, int64(-1), items[0].Count)
	require.True(t, items[0].Flag)
	require.Equal(t, ^uintptr(0), items[0].Price)

	release()
	require.Equal(t, int64(0), pm.Active())
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	pm := newManager(t, 1)
	_, release, err := pm.Acquire(context.Background(), 0)
	require.NoError(t, err)

	_, _, err = pm.Acquire(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(1), pm.Active())

	release()
	_, again, err := pm.Acquire(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	again()
}

func TestDoublePutPanics(t *testing.T) {
	bp := NewBoundedPool("double", 1, NewArena)
	obj, err := bp.Get(context.Background())
	require.NoError(t, err)
	bp.Put(obj)
	require.Panics(t, func() { bp.Put(obj) })
}

func TestBoundedPoolBlocksAtCapacity(t *testing.T) {
	bp := NewBoundedPool("bounded", 1, NewArena)
	obj, err := bp.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), bp.Outstanding())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = bp.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	bp.Put(obj)
	require.Equal(t, int64(0), bp.Outstanding())
}

func TestShutdownReportsOutstanding(t *testing.T) {
	pm := newManager(t, 2)
	_, release, err := pm.Acquire(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, pm.Shutdown(ctx))

	_, _, err = pm.Acquire(context.Background(), 0)
	require.True(t, errors.Is(err, ErrArenasClosed))

	release()
	require.NoError(t, pm.Shutdown(context.Background()))
}

func TestAllocZero(t *testing.T) {
	a := &Arena{}
	require.Nil(t, Alloc[int64](a, 0))
	require.Nil(t, a.OptString(nil))
	require.Equal(t, "x", cstring(a.OptString(func() *string { s := "x"; return &s }())))
}

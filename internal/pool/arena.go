package pool

import (
	"math"
	"reflect"
)

const arenaPool = "payload"

const poisonByte = 0xDD

// Arena owns the memory of one envelope: strings, arrays and anything registered with
// OnReset. Everything it handed out is scrubbed when the arena goes back to its pool.
type Arena struct {
	returned bool
	strings  [][]byte
	blocks   []reflect.Value
	onReset  []func()
}

// NewArena is the constructor to register with a pool.
func NewArena() any { return &Arena{} }

// Reset runs the registered release hooks and drops every allocation.
func (a *Arena) Reset() {
	for i := len(a.onReset) - 1; i >= 0; i-- {
		a.onReset[i]()
	}
	clear(a.onReset)
	a.onReset = a.onReset[:0]
	clear(a.strings)
	a.strings = a.strings[:0]
	clear(a.blocks)
	a.blocks = a.blocks[:0]
}

// SetReturned implements PooledObject.
func (a *Arena) SetReturned(v bool) { a.returned = v }

// IsReturned implements PooledObject.
func (a *Arena) IsReturned() bool { return a.returned }

// Poison overwrites every string byte (keeping terminators) and every array element so
// that readers holding stale pointers observe garbage instead of the old payload.
func (a *Arena) Poison() {
	for _, buf := range a.strings {
		for i := 0; i < len(buf)-1; i++ {
			buf[i] = poisonByte
		}
	}
	for _, block := range a.blocks {
		for i := 0; i < block.Len(); i++ {
			poisonValue(block.Index(i))
		}
	}
}

// OnReset registers fn to run when the arena is reset. Hooks run in reverse order.
func (a *Arena) OnReset(fn func()) {
	if fn != nil {
		a.onReset = append(a.onReset, fn)
	}
}

// String copies s into the arena as a NUL-terminated string.
func (a *Arena) String(s string) *byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	a.strings = append(a.strings, buf)
	return &buf[0]
}

// OptString is String for optional values; nil stays null.
func (a *Arena) OptString(s *string) *byte {
	if s == nil {
		return nil
	}
	return a.String(*s)
}

// Alloc returns n zeroed elements owned by the arena.
func Alloc[T any](a *Arena, n int) []T {
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	a.blocks = append(a.blocks, reflect.ValueOf(out))
	return out
}

// New returns one zeroed element owned by the arena.
func New[T any](a *Arena) *T {
	return &Alloc[T](a, 1)[0]
}

// Value returns an arena-owned copy of v.
func Value[T any](a *Arena, v T) *T {
	p := New[T](a)
	*p = v
	return p
}

func poisonValue(v reflect.Value) {
	if !v.IsValid() || !v.CanSet() {
		return
	}
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(true)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(-1)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v.SetUint(math.MaxUint64)
	case reflect.Float32, reflect.Float64:
		v.SetFloat(math.MaxFloat64)
	case reflect.String:
		v.SetString("<<poison>>")
	case reflect.Pointer, reflect.UnsafePointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Interface:
		v.SetZero()
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			poisonValue(v.Field(i))
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			poisonValue(v.Index(i))
		}
	}
}

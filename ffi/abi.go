// Package ffi describes the C-shaped boundary between the Go binding and the native SDK.
//
// Every native object is an opaque pointer-sized handle. Strings are NUL-terminated byte
// pointers. Arrays are (pointer, length) pairs. Optional scalars are nullable pointers.
// Values reachable from an AsyncResult or a push event are borrowed. The native layer reuses
// them as soon as the callback returns, so callers copy what they keep.
package ffi

import (
	"unsafe"
)

// Opaque native handles. The zero value is the null handle.
type (
	ConfigPtr       uintptr
	HTTPClientPtr   uintptr
	HTTPResultPtr   uintptr
	QuoteContextPtr uintptr
	TradeContextPtr uintptr
	DecimalPtr      uintptr
	ErrorPtr        uintptr
)

// Userdata is the opaque value the native layer hands back to callbacks untouched.
type Userdata uintptr

// CString is a borrowed NUL-terminated string. A nil CString is the null pointer.
type CString = *byte

// AsyncResult is the envelope passed to an AsyncCallback. It is valid only for the duration
// of the callback.
type AsyncResult struct {
	// Ctx is the context the operation ran on. For construction calls it is the new
	// context; for config and HTTP calls it is null.
	Ctx      uintptr
	Error    ErrorPtr
	Data     unsafe.Pointer
	Length   uintptr
	Userdata Userdata
}

// AsyncCallback receives the single completion of a one-shot call.
type AsyncCallback func(res *AsyncResult)

// FreeUserdataFunc releases a userdata value the native layer no longer references.
type FreeUserdataFunc func(ud Userdata)

// GoString copies a borrowed CString. The null pointer yields "".
func GoString(s CString) string {
	if s == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(s), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(s, n))
}

// GoStringOpt copies a nullable CString. The null pointer yields nil.
func GoStringOpt(s CString) *string {
	if s == nil {
		return nil
	}
	v := GoString(s)
	return &v
}

// CStringOf allocates a NUL-terminated copy of s in Go memory.
func CStringOf(s string) CString {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return &buf[0]
}

// CStringOpt allocates a copy of *s, or returns null for nil.
func CStringOpt(s *string) CString {
	if s == nil {
		return nil
	}
	return CStringOf(*s)
}

// CStrings allocates a CString array. An empty input yields (nil, 0).
func CStrings(values []string) (*CString, uintptr) {
	if len(values) == 0 {
		return nil, 0
	}
	out := make([]CString, len(values))
	for i, v := range values {
		out[i] = CStringOf(v)
	}
	return &out[0], uintptr(len(out))
}

// Slice reinterprets a (pointer, length) pair as a Go slice aliasing native memory.
func Slice[T any](p *T, n uintptr) []T {
	if p == nil || n == 0 {
		return nil
	}
	return unsafe.Slice(p, n)
}

// SliceOf reinterprets envelope Data and Length as a slice of T.
func SliceOf[T any](data unsafe.Pointer, n uintptr) []T {
	return Slice((*T)(data), n)
}

// Array returns the (pointer, length) pair of values, or (nil, 0) when empty.
func Array[T any](values []T) (*T, uintptr) {
	if len(values) == 0 {
		return nil, 0
	}
	return &values[0], uintptr(len(values))
}

// Ref returns a pointer to a copy of v. It is the request-side form of an optional field.
func Ref[T any](v T) *T { return &v }

package bridge

import (
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/types"
)

// Opt copies a nullable native scalar. Null maps to nil.
func Opt[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// OptOr dereferences p, or returns def for null.
func OptOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// Ref is the request direction: nil stays null, a value is copied into a new allocation the
// native layer may read during the call.
func Ref[T any](v *T) *T { return Opt(v) }

// String copies a required string field. Null maps to "".
func String(s ffi.CString) string { return ffi.GoString(s) }

// OptString copies an optional string field. Null maps to nil.
func OptString(s ffi.CString) *string { return ffi.GoStringOpt(s) }

// Date copies an optional native date.
func Date(p *ffi.CDate) *types.Date { return Opt(p) }

// Strings copies a borrowed CString array.
func Strings(p *ffi.CString, n uintptr) []string {
	src := ffi.Slice(p, n)
	out := make([]string, len(src))
	for i, s := range src {
		out[i] = ffi.GoString(s)
	}
	return out
}

// Values copies a borrowed scalar array.
func Values[T any](p *T, n uintptr) []T {
	src := ffi.Slice(p, n)
	out := make([]T, len(src))
	copy(out, src)
	return out
}

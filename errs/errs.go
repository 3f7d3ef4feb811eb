// Package errs provides structured error types shared by the binding and the native layer.
package errs

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeAuth indicates authentication or authorization errors.
	CodeAuth Code = "auth"
	// CodeRateLimited indicates that the request exceeded rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeNotFound indicates a missing resource.
	CodeNotFound Code = "not_found"
	// CodeUnavailable indicates the native runtime cannot accept work.
	CodeUnavailable Code = "unavailable"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeSDK indicates any other failure reported by the native SDK.
	CodeSDK Code = "sdk"
	// CodeInvariant marks a broken ownership or callback invariant. These are raised as panics.
	CodeInvariant Code = "invariant"
)

// E captures structured error information produced across the binding.
type E struct {
	Op         string
	Code       Code
	NativeCode int64
	Message    string
	Metadata   map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:         strings.TrimSpace(op),
		Code:       code,
		NativeCode: 0,
		Message:    "",
		Metadata:   nil,
		cause:      nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithNativeCode records the numeric code reported by the native layer.
func WithNativeCode(code int64) Option {
	return func(e *E) {
		e.NativeCode = code
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithMetadata appends a single metadata key/value pair.
func WithMetadata(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, "op="+op)
	}

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = string(CodeSDK)
	}
	parts = append(parts, "code="+code)

	if e.NativeCode != 0 {
		parts = append(parts, "native_code="+strconv.FormatInt(e.NativeCode, 10))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target is an *E carrying the same category. A target without a
// code matches any *E.
func (e *E) Is(target error) bool {
	var t *E
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// CodeForNative maps a native status code onto an error category.
func CodeForNative(code int64) Code {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeAuth
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadRequest:
		return CodeInvalid
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeSDK
	}
}

// FromNative converts a native error into an envelope. The message is kept verbatim.
func FromNative(op string, code int64, message string) *E {
	return New(op, CodeForNative(code), WithNativeCode(code), WithMessage(message))
}

// Invariant returns the error raised when an ownership or callback invariant is broken.
func Invariant(op, msg string) *E {
	return New(op, CodeInvariant, WithMessage(msg))
}

// NativeCodeOf extracts the native code carried by err, or 0 when err is not an *E.
func NativeCodeOf(err error) int64 {
	var e *E
	if errors.As(err, &e) {
		return e.NativeCode
	}
	return 0
}

// HasCode reports whether err carries an *E of the given category.
func HasCode(err error, code Code) bool {
	var e *E
	return errors.As(err, &e) && e.Code == code
}

package bridge

import (
	"runtime"
	"sync"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

// Ownership tells whether a Status must free its native error.
type Ownership uint8

const (
	// OwnershipBorrowed errors belong to an envelope and are never freed by the receiver.
	OwnershipBorrowed Ownership = iota
	// OwnershipOwned errors were returned by a factory call and are freed exactly once.
	OwnershipOwned
)

const noErrorMessage = "no error"

// Status is the outcome of a native call: either no error or a native error value.
//
// Both kinds copy the code and message when they are built. The envelope error of a borrowed
// status is invalid once the trampoline returns, and an owned status keeps reporting its
// failure after Free.
type Status struct {
	mu        sync.Mutex
	ownership Ownership
	lib       ffi.ErrorAPI
	ptr       ffi.ErrorPtr
	failed    bool
	code      int64
	message   string
	cleanup   runtime.Cleanup
	armed     bool
}

// OK returns a status without an error.
func OK() *Status { return &Status{message: noErrorMessage} }

// Borrowed snapshots an envelope error. It never frees ptr.
func Borrowed(lib ffi.ErrorAPI, ptr ffi.ErrorPtr) *Status {
	s := &Status{ownership: OwnershipBorrowed, message: noErrorMessage}
	if ptr == 0 {
		return s
	}
	s.failed = true
	s.code = lib.ErrorCode(ptr)
	s.message = ffi.GoString(lib.ErrorMessage(ptr))
	return s
}

// Owned takes ownership of ptr. Free releases it; a leaked status is released by a cleanup.
func Owned(lib ffi.ErrorAPI, ptr ffi.ErrorPtr) *Status {
	s := &Status{ownership: OwnershipOwned, lib: lib, ptr: ptr, message: noErrorMessage}
	if ptr != 0 {
		s.failed = true
		s.code = lib.ErrorCode(ptr)
		s.message = ffi.GoString(lib.ErrorMessage(ptr))
	}
	s.arm()
	return s
}

func (s *Status) arm() {
	if s.ptr == 0 {
		return
	}
	s.cleanup = runtime.AddCleanup(s, freeError, errorRef{lib: s.lib, ptr: s.ptr})
	s.armed = true
}

type errorRef struct {
	lib ffi.ErrorAPI
	ptr ffi.ErrorPtr
}

func freeError(ref errorRef) { ref.lib.ErrorFree(ref.ptr) }

// Ownership reports whether the status frees its error.
func (s *Status) Ownership() Ownership {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownership
}

// IsOK reports that there is no error.
func (s *Status) IsOK() bool { return !s.IsErr() }

// IsErr reports that the call failed.
func (s *Status) IsErr() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed || s.ptr != 0
}

// Code returns the native error code, or 0 without an error.
func (s *Status) Code() int64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Message returns the native error message, or "no error".
func (s *Status) Message() string {
	if s == nil {
		return noErrorMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Err converts a failed status into an *errs.E; it returns nil on success.
func (s *Status) Err(op string) error {
	if !s.IsErr() {
		return nil
	}
	return errs.FromNative(op, s.Code(), s.Message())
}

// Take moves the status. The source becomes a status without an error.
func (s *Status) Take() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &Status{
		ownership: s.ownership,
		lib:       s.lib,
		ptr:       s.ptr,
		failed:    s.failed,
		code:      s.code,
		message:   s.message,
	}
	if s.armed {
		s.cleanup.Stop()
		s.armed = false
	}
	s.ptr = 0
	s.failed = false
	s.code = 0
	s.message = noErrorMessage
	if out.ownership == OwnershipOwned {
		out.arm()
	}
	return out
}

// Free releases an owned native error. It is idempotent and a no-op for borrowed statuses.
func (s *Status) Free() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownership != OwnershipOwned || s.ptr == 0 {
		return
	}
	if s.armed {
		s.cleanup.Stop()
		s.armed = false
	}
	s.lib.ErrorFree(s.ptr)
	s.ptr = 0
}

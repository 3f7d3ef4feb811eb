package native

import (
	"errors"
	"net/http"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
)

type nativeError struct {
	code    int64
	message []byte
}

// apiError builds the error an SDK call reports for a rejected request.
func apiError(code int64, message string) *errs.E {
	return errs.FromNative("native", code, message)
}

// statusOf maps any error raised inside the runtime onto a native code and message.
func statusOf(err error) (int64, string) {
	var e *errs.E
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, err.Error()
	}
	msg := e.Message
	if msg == "" {
		msg = err.Error()
	}
	if e.NativeCode != 0 {
		return e.NativeCode, msg
	}
	switch e.Code {
	case errs.CodeInvalid:
		return http.StatusBadRequest, msg
	case errs.CodeAuth:
		return http.StatusUnauthorized, msg
	case errs.CodeRateLimited:
		return http.StatusTooManyRequests, msg
	case errs.CodeNotFound:
		return http.StatusNotFound, msg
	case errs.CodeUnavailable, errs.CodeNetwork:
		return http.StatusServiceUnavailable, msg
	default:
		return http.StatusInternalServerError, msg
	}
}

func (l *Library) newError(err error) ffi.ErrorPtr {
	code, msg := statusOf(err)
	return ffi.ErrorPtr(l.errors.add(&nativeError{code: code, message: append([]byte(msg), 0)}))
}

// ErrorCode implements ffi.ErrorAPI.
func (l *Library) ErrorCode(err ffi.ErrorPtr) int64 {
	if err == 0 {
		return 0
	}
	return l.errors.get(uintptr(err), "error_code").code
}

// ErrorMessage implements ffi.ErrorAPI. The string lives as long as the error.
func (l *Library) ErrorMessage(err ffi.ErrorPtr) ffi.CString {
	if err == 0 {
		return nil
	}
	return &l.errors.get(uintptr(err), "error_message").message[0]
}

// ErrorFree implements ffi.ErrorAPI. The message bytes are scrubbed.
func (l *Library) ErrorFree(err ffi.ErrorPtr) {
	if err == 0 {
		return
	}
	e := l.errors.remove(uintptr(err), "error_free")
	for i := 0; i < len(e.message)-1; i++ {
		e.message[i] = poisonByte
	}
}

const poisonByte = 0xDD

package connection

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failure of the log stream.
type ErrorCode string

const (
	ErrorInvalidArgument  ErrorCode = "invalid_argument"
	ErrorConnectionClosed ErrorCode = "connection_closed"
	ErrorEncodeFailed     ErrorCode = "encode_failed"
	ErrorSendFailed       ErrorCode = "send_failed"
	ErrorBadFrame         ErrorCode = "bad_frame"
	ErrorSubscription     ErrorCode = "subscription_failed"
)

// Error is returned, or passed to callbacks, for every stream failure.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Code)
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapError(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

func errorf(code ErrorCode, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsCode reports whether err wraps an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var connErr *Error
	return errors.As(err, &connErr) && connErr.Code == code
}

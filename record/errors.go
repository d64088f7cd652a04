package record

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("decode failed")

// DecodeError reports bytes that do not fit a table's schema.
type DecodeError struct {
	Table  string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("decode %s.%s: %s", e.Table, e.Field, e.Reason)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeErrorf(table, field, format string, args ...any) error {
	return &DecodeError{Table: table, Field: field, Reason: fmt.Sprintf(format, args...)}
}

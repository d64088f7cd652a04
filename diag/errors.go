// Package diag carries the per-row failures the cache isolates and reports
// instead of returning: unknown tables, bad splices, decode failures and
// bookkeeping violations.
package diag

import (
	"errors"
	"fmt"

	"github.com/vmaark/storesync/types"
)

// Code classifies a diagnostic.
type Code string

const (
	CodeUnknownTable   Code = "unknown_table"
	CodeSpliceRange    Code = "splice_range"
	CodeStaticOverflow Code = "static_overflow"
	CodeDecodeFailed   Code = "decode_failed"
	CodeMissingRawRow  Code = "missing_raw_row"
	CodeStaleBatch     Code = "stale_batch"
)

// Error is the diagnostic payload. Table and ID are zero when not applicable.
type Error struct {
	Code  Code
	Op    string
	Table types.TableID
	ID    types.RowID
	Block uint64
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Code)
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Table != (types.TableID{}) {
		msg += fmt.Sprintf(" table=%s", e.Table.Label())
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" id=%s", e.ID)
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

// IsCode reports whether err (or any wrapped error) is a diagnostic with the given code.
func IsCode(err error, code Code) bool {
	var diagErr *Error
	return errors.As(err, &diagErr) && diagErr.Code == code
}

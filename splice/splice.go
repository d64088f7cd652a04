package splice

import (
	"errors"
	"fmt"
)

// ErrRange is matched by every RangeError.
var ErrRange = errors.New("splice out of range")

// RangeError reports a splice whose bounds do not fit the buffer it targets.
type RangeError struct {
	Start       uint64
	DeleteCount uint64
	Length      int
}

func (e *RangeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("splice out of range: start=%d delete=%d length=%d", e.Start, e.DeleteCount, e.Length)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}

// Bytes replaces original[start:start+deleteCount] with replacement and returns
// the result as a new slice. Neither input is retained or modified.
func Bytes(original []byte, start, deleteCount uint64, replacement []byte) ([]byte, error) {
	length := uint64(len(original))
	end := start + deleteCount
	if start > length || end < start || end > length {
		return nil, &RangeError{Start: start, DeleteCount: deleteCount, Length: len(original)}
	}

	out := make([]byte, 0, length-deleteCount+uint64(len(replacement)))
	out = append(out, original[:start]...)
	out = append(out, replacement...)
	out = append(out, original[end:]...)
	return out, nil
}

// Overwrite writes replacement over original starting at start. Bytes past the
// end of original are appended, so a short buffer grows to fit the write.
func Overwrite(original []byte, start uint64, replacement []byte) ([]byte, error) {
	length := uint64(len(original))
	if start > length {
		return nil, &RangeError{Start: start, DeleteCount: uint64(len(replacement)), Length: len(original)}
	}
	deleteCount := min(uint64(len(replacement)), length-start)
	return Bytes(original, start, deleteCount, replacement)
}
